package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry reason constants
type LedgerReason string

const (
	LedgerReasonDeposit LedgerReason = "deposit"
	LedgerReasonTrade   LedgerReason = "trade"
	LedgerReasonPayout  LedgerReason = "payout"
	LedgerReasonRefund  LedgerReason = "refund"
)

// LedgerEntry is an immutable, append-only balance delta for a bot. The sum
// of a bot's deltas is the single source of truth for its balance; entries
// are never edited or removed.
type LedgerEntry struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BotID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"bot_id"`
	MarketID  *uuid.UUID      `gorm:"type:uuid;index" json:"market_id,omitempty"`
	DeltaBDC  decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"delta_bdc"`
	Reason    LedgerReason    `gorm:"size:20;not null;index" json:"reason"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for LedgerEntry model
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
