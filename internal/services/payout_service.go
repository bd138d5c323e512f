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

// winnerReputationBump is added to each winning bot's reputation score.
var winnerReputationBump = decimal.NewFromInt(1)

// PayoutService distributes a resolved market's full pool to the bots that
// staked the winning outcome, proportional to their contribution. Payouts
// are floored to the smallest BDC unit and the rounding remainder goes to
// the treasury bot, so the payout batch plus treasury always equals the pool
// exactly.
type PayoutService struct {
	db            *gorm.DB
	ledger        *LedgerService
	treasuryBotID uuid.UUID
}

// NewPayoutService creates a new payout service
func NewPayoutService(db *gorm.DB, ledger *LedgerService, treasuryBotID uuid.UUID) *PayoutService {
	return &PayoutService{db: db, ledger: ledger, treasuryBotID: treasuryBotID}
}

// winnerStakes groups a market's winning-outcome trades by bot, preserving
// first-trade order for deterministic payout sequencing.
func winnerStakes(trades []models.Trade, winningOutcomeID string) ([]uuid.UUID, map[uuid.UUID]decimal.Decimal) {
	order := make([]uuid.UUID, 0)
	stakes := make(map[uuid.UUID]decimal.Decimal)
	for _, t := range trades {
		if t.OutcomeID != winningOutcomeID {
			continue
		}
		if _, ok := stakes[t.BotID]; !ok {
			order = append(order, t.BotID)
			stakes[t.BotID] = decimal.Zero
		}
		stakes[t.BotID] = stakes[t.BotID].Add(t.AmountBDC)
	}
	return order, stakes
}

// distributeTx computes and posts the payout batch inside the resolution
// transaction. The caller holds the market lock plus the locks of every
// credited bot, and the market's trade set is final (no trades after close).
// Pools are zeroed in the same transaction: pool mass leaves entirely or not
// at all.
func (s *PayoutService) distributeTx(tx *gorm.DB, market *models.Market, trades []models.Trade, winningOutcomeID string) ([]models.LedgerEntry, error) {
	totalPool := decimal.Zero
	winningPool := decimal.Zero
	for _, o := range market.Outcomes {
		totalPool = totalPool.Add(o.PoolBDC)
		if o.OutcomeID == winningOutcomeID {
			winningPool = o.PoolBDC
		}
	}

	payouts := make([]models.LedgerEntry, 0)
	paid := decimal.Zero

	if winningPool.IsPositive() {
		order, stakes := winnerStakes(trades, winningOutcomeID)
		for _, botID := range order {
			amount := stakes[botID].Mul(totalPool).Div(winningPool).RoundFloor(bdcScale)
			if !amount.IsPositive() {
				continue
			}
			entry, err := s.ledger.postTx(tx, botID, &market.ID, amount, models.LedgerReasonPayout)
			if err != nil {
				return nil, fmt.Errorf("failed to post payout for bot %s: %w", botID, err)
			}
			if err := tx.Model(&models.Bot{}).Where("id = ?", botID).
				UpdateColumn("reputation_score", gorm.Expr("reputation_score + ?", winnerReputationBump)).Error; err != nil {
				return nil, fmt.Errorf("failed to bump winner reputation: %w", err)
			}
			payouts = append(payouts, *entry)
			paid = paid.Add(amount)
		}
	}

	// Remainder (rounding residue, or the whole pool when nobody staked the
	// winning outcome) is routed to the treasury, never dropped: the batch
	// must balance against the pool to zero.
	remainder := totalPool.Sub(paid)
	if remainder.IsPositive() {
		if _, err := s.ledger.postTx(tx, s.treasuryBotID, &market.ID, remainder, models.LedgerReasonPayout); err != nil {
			return nil, fmt.Errorf("failed to post treasury remainder: %w", err)
		}
	}

	if err := tx.Model(&models.MarketOutcome{}).
		Where("market_id = ?", market.ID).
		Updates(map[string]interface{}{
			"pool_bdc":   decimal.Zero,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, fmt.Errorf("failed to drain outcome pools: %w", err)
	}

	return payouts, nil
}

// creditedBots returns every bot the payout batch may credit, treasury
// included, for lock acquisition before the resolution transaction starts.
func (s *PayoutService) creditedBots(trades []models.Trade, winningOutcomeID string) []uuid.UUID {
	order, _ := winnerStakes(trades, winningOutcomeID)
	return append(order, s.treasuryBotID)
}

// Payouts returns the payout ledger entries recorded for a market.
func (s *PayoutService) Payouts(ctx context.Context, marketID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).
		Where("market_id = ? AND reason = ?", marketID, models.LedgerReasonPayout).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return entries, nil
}
