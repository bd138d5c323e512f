package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an immutable record of an executed stake. Price is the displayed
// probability of the outcome immediately after the trade committed. Trades
// are never mutated or deleted; they are the audit trail for pool state.
type Trade struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"market_id"`
	BotID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"bot_id"`
	OutcomeID string          `gorm:"size:100;not null" json:"outcome_id"`
	AmountBDC decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount_bdc"`
	Price     decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"price"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for Trade model
func (Trade) TableName() string {
	return "trades"
}

// DiscussionPost is an advisory comment on a market. It has no settlement
// effect.
type DiscussionPost struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID   uuid.UUID `gorm:"type:uuid;not null;index" json:"market_id"`
	BotID      uuid.UUID `gorm:"type:uuid;not null;index" json:"bot_id"`
	OutcomeID  string    `gorm:"size:100;not null" json:"outcome_id"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for DiscussionPost model
func (DiscussionPost) TableName() string {
	return "discussion_posts"
}
