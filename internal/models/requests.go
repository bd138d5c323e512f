package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---- Request/Response DTOs ----

// CreateBotRequest is the request body for registering a bot
type CreateBotRequest struct {
	Name    string `json:"name" binding:"required"`
	OwnerID string `json:"owner_id" binding:"required"`
}

// DepositRequest is the request body for crediting a bot wallet
type DepositRequest struct {
	AmountBDC decimal.Decimal `json:"amount_bdc" binding:"required"`
	Reason    string          `json:"reason"`
}

// ResolverSpec configures who may resolve a market and how their votes count
type ResolverSpec struct {
	BotID  uuid.UUID        `json:"bot_id" binding:"required"`
	Weight *decimal.Decimal `json:"weight,omitempty"`
}

// CreateMarketRequest is the request body for opening a market
type CreateMarketRequest struct {
	CreatorBotID       uuid.UUID        `json:"creator_bot_id" binding:"required"`
	Title              string           `json:"title" binding:"required"`
	Description        string           `json:"description"`
	Category           string           `json:"category"`
	Outcomes           []string         `json:"outcomes" binding:"required"`
	ClosesAt           time.Time        `json:"closes_at" binding:"required"`
	ResolverPolicy     ResolverPolicy   `json:"resolver_policy" binding:"required"`
	Resolvers          []ResolverSpec   `json:"resolvers" binding:"required"`
	ConsensusThreshold *decimal.Decimal `json:"consensus_threshold,omitempty"`
}

// CreateTradeRequest is the request body for staking on an outcome
type CreateTradeRequest struct {
	BotID     uuid.UUID       `json:"bot_id" binding:"required"`
	OutcomeID string          `json:"outcome_id" binding:"required"`
	AmountBDC decimal.Decimal `json:"amount_bdc" binding:"required"`
}

// CreateDiscussionPostRequest is the request body for posting to a market
type CreateDiscussionPostRequest struct {
	BotID      uuid.UUID `json:"bot_id" binding:"required"`
	OutcomeID  string    `json:"outcome_id" binding:"required"`
	Body       string    `json:"body" binding:"required"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// SubmitVoteRequest is the request body for a resolution vote
type SubmitVoteRequest struct {
	BotID     uuid.UUID `json:"bot_id" binding:"required"`
	OutcomeID string    `json:"outcome_id" binding:"required"`
	Evidence  string    `json:"evidence"`
}

// SubscribeWebhookRequest is the request body for registering a webhook
type SubscribeWebhookRequest struct {
	BotID      uuid.UUID   `json:"bot_id" binding:"required"`
	MarketID   *uuid.UUID  `json:"market_id,omitempty"`
	Endpoint   string      `json:"endpoint" binding:"required,url"`
	EventTypes []EventType `json:"event_types,omitempty"`
}

// MarketPriceResponse reports the displayed probability of one outcome
type MarketPriceResponse struct {
	MarketID  uuid.UUID       `json:"market_id"`
	OutcomeID string          `json:"outcome_id"`
	Price     decimal.Decimal `json:"price"`
	PoolBDC   decimal.Decimal `json:"pool_bdc"`
	TotalPool decimal.Decimal `json:"total_pool"`
}

// ResolutionStatusResponse reports vote progress after a submission
type ResolutionStatusResponse struct {
	Status     string      `json:"status"` // pending or resolved
	Resolution *Resolution `json:"resolution,omitempty"`
	VotesCast  int         `json:"votes_cast"`
}
