package models

import (
	"time"

	"github.com/google/uuid"
)

// ResolutionVote is one resolver bot's current vote on a market's outcome.
// Resubmission by the same bot overwrites the prior vote; the latest vote
// counts.
type ResolutionVote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID  uuid.UUID `gorm:"type:uuid;not null;index:idx_vote_market_bot,unique" json:"market_id"`
	BotID     uuid.UUID `gorm:"type:uuid;not null;index:idx_vote_market_bot,unique" json:"bot_id"`
	OutcomeID string    `gorm:"size:100;not null" json:"outcome_id"`
	Evidence  string    `gorm:"type:text" json:"evidence,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for ResolutionVote model
func (ResolutionVote) TableName() string {
	return "resolution_votes"
}

// Resolution is the single authoritative outcome of a market, created once
// when the resolver policy completes and immutable thereafter.
// ResolverBotIDs is the comma-joined set of bots whose votes contributed.
type Resolution struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"market_id"`
	ResolvedOutcomeID string    `gorm:"size:100;not null" json:"resolved_outcome_id"`
	ResolverBotIDs    string    `gorm:"type:text;not null" json:"resolver_bot_ids"`
	Evidence          string    `gorm:"type:text" json:"evidence,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName specifies the table name for Resolution model
func (Resolution) TableName() string {
	return "resolutions"
}
