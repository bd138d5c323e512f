package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Market status constants
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Resolver policy constants
type ResolverPolicy string

const (
	ResolverPolicySingle    ResolverPolicy = "single"
	ResolverPolicyMajority  ResolverPolicy = "majority"
	ResolverPolicyConsensus ResolverPolicy = "consensus"
)

// Market represents a prediction market. The market owns its outcome pool
// rows and, once created, its 1:1 resolution record.
//
// Deadlocked is set when the resolver policy can no longer complete (tied
// majority, unreachable consensus threshold). A deadlocked market stays
// closed and needs external intervention.
type Market struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorBotID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"creator_bot_id"`
	Title              string           `gorm:"size:500;not null" json:"title"`
	Description        string           `gorm:"type:text" json:"description"`
	Category           string           `gorm:"size:50;index" json:"category"`
	Status             MarketStatus     `gorm:"size:20;not null;default:open;index" json:"status"`
	Deadlocked         bool             `gorm:"not null;default:false" json:"deadlocked"`
	ResolverPolicy     ResolverPolicy   `gorm:"size:20;not null" json:"resolver_policy"`
	ConsensusThreshold decimal.Decimal  `gorm:"type:decimal(5,4);not null;default:0" json:"consensus_threshold,omitempty"`
	Outcomes           []MarketOutcome  `gorm:"foreignKey:MarketID" json:"outcomes,omitempty"`
	Resolvers          []MarketResolver `gorm:"foreignKey:MarketID" json:"resolvers,omitempty"`
	ClosesAt           time.Time        `gorm:"not null;index" json:"closes_at"`
	CreatedAt          time.Time        `json:"created_at"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
}

// TableName specifies the table name for Market model
func (Market) TableName() string {
	return "markets"
}

// MarketOutcome is one possible outcome of a market together with its AMM
// liquidity pool. PoolBDC is the accumulated stake backing this outcome;
// the sum across a market's outcomes equals the BDC staked and not yet
// paid out.
type MarketOutcome struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_market_outcome,unique" json:"market_id"`
	OutcomeID string          `gorm:"size:100;not null;index:idx_market_outcome,unique" json:"outcome_id"`
	Position  int             `gorm:"not null" json:"position"`
	PoolBDC   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"pool_bdc"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for MarketOutcome model
func (MarketOutcome) TableName() string {
	return "market_outcomes"
}

// MarketResolver is a bot eligible to vote on a market's resolution. Weight
// only matters under the consensus policy.
type MarketResolver struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	MarketID uuid.UUID       `gorm:"type:uuid;not null;index:idx_market_resolver,unique" json:"market_id"`
	BotID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_market_resolver,unique" json:"bot_id"`
	Weight   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:1" json:"weight"`
}

// TableName specifies the table name for MarketResolver model
func (MarketResolver) TableName() string {
	return "market_resolvers"
}
