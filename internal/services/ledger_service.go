package services

import (
	"context"
	"fmt"
	"time"

	"prediclaw/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// bdcScale is the number of decimal places of the smallest BDC unit (0.01).
const bdcScale = 2

// LedgerService owns all balance state. Every BDC movement is an immutable
// ledger entry; a bot's balance is the sum of its deltas. Posts for the same
// bot are serialized through a per-bot mutex so two concurrent debits can
// never both pass the balance check.
type LedgerService struct {
	db       *gorm.DB
	botLocks *keyedMutex
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db, botLocks: newKeyedMutex()}
}

// Post appends a balance delta for a bot. A negative delta fails with
// ErrInsufficientFunds unless the bot's current balance covers it. The entry
// append and the wallet cache refresh commit atomically.
func (s *LedgerService) Post(ctx context.Context, botID uuid.UUID, marketID *uuid.UUID, delta decimal.Decimal, reason models.LedgerReason) (*models.LedgerEntry, error) {
	s.botLocks.Lock(botID)
	defer s.botLocks.Unlock(botID)

	var entry *models.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.postTx(tx, botID, marketID, delta, reason)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// postTx appends an entry inside an enclosing transaction. The caller must
// hold the bot lock until the transaction commits.
func (s *LedgerService) postTx(tx *gorm.DB, botID uuid.UUID, marketID *uuid.UUID, delta decimal.Decimal, reason models.LedgerReason) (*models.LedgerEntry, error) {
	var bot models.Bot
	if err := tx.First(&bot, "id = ?", botID).Error; err != nil {
		return nil, fmt.Errorf("bot not found: %w", err)
	}

	balance, err := s.sumTx(tx, botID)
	if err != nil {
		return nil, err
	}

	newBalance := balance.Add(delta)
	if delta.IsNegative() && newBalance.IsNegative() {
		return nil, fmt.Errorf("bot %s balance %s cannot cover %s: %w",
			botID, balance, delta.Neg(), ErrInsufficientFunds)
	}

	entry := &models.LedgerEntry{
		ID:        uuid.New(),
		BotID:     botID,
		MarketID:  marketID,
		DeltaBDC:  delta,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	// Refresh the wallet cache from the ledger sum. The cache is a
	// read-through projection, never an independent balance.
	if err := tx.Model(&models.Bot{}).Where("id = ?", botID).
		Update("wallet_balance_bdc", newBalance).Error; err != nil {
		return nil, fmt.Errorf("failed to refresh wallet cache: %w", err)
	}

	return entry, nil
}

// BalanceOf derives a bot's balance by summing its ledger entries. Reads
// reflect every post that has returned success to its caller.
func (s *LedgerService) BalanceOf(ctx context.Context, botID uuid.UUID) (decimal.Decimal, error) {
	return s.sumTx(s.db.WithContext(ctx), botID)
}

func (s *LedgerService) sumTx(tx *gorm.DB, botID uuid.UUID) (decimal.Decimal, error) {
	var deltas []decimal.Decimal
	if err := tx.Model(&models.LedgerEntry{}).
		Where("bot_id = ?", botID).
		Order("created_at ASC").
		Pluck("delta_bdc", &deltas).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	balance := decimal.Zero
	for _, d := range deltas {
		balance = balance.Add(d)
	}
	return balance, nil
}

// Entries returns a bot's ledger history, oldest first.
func (s *LedgerService) Entries(ctx context.Context, botID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// lockBot exposes the per-bot serialization point to sibling services that
// post inside their own transactions (trade debit, payout batch).
func (s *LedgerService) lockBot(botID uuid.UUID)   { s.botLocks.Lock(botID) }
func (s *LedgerService) unlockBot(botID uuid.UUID) { s.botLocks.Unlock(botID) }
