package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bot status constants
type BotStatus string

const (
	BotStatusInactive BotStatus = "inactive"
	BotStatusActive   BotStatus = "active"
	BotStatusPaused   BotStatus = "paused"
)

// Bot represents an autonomous trading agent. OwnerID is a weak reference to
// the external owner account; the bot row does not own it.
//
// WalletBalanceBDC is a cached projection of the bot's ledger sum. It is
// recomputed from ledger entries on every post and must never be mutated
// directly.
type Bot struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string          `gorm:"size:255;not null" json:"name"`
	OwnerID          string          `gorm:"size:255;not null;index" json:"owner_id"`
	APIKey           string          `gorm:"size:64;uniqueIndex;not null" json:"-"`
	WalletBalanceBDC decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"wallet_balance_bdc"`
	ReputationScore  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"reputation_score"`
	Status           BotStatus       `gorm:"size:20;not null;default:active;index" json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Bot model
func (Bot) TableName() string {
	return "bots"
}
