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

// priceScale is the number of decimal places kept on displayed prices.
const priceScale = 6

// AMMService handles pool pricing and trade execution. Each market carries
// one liquidity pool per outcome; staking on an outcome grows its pool, and
// the displayed probability of outcome X is pool[X] / sum(pools). The pools
// are the engine's sufficient statistic: prices are always re-derivable from
// the pool snapshot alone.
type AMMService struct {
	db       *gorm.DB
	ledger   *LedgerService
	markets  *MarketService
	webhooks *WebhookService
}

// NewAMMService creates a new AMM service
func NewAMMService(db *gorm.DB, ledger *LedgerService, markets *MarketService, webhooks *WebhookService) *AMMService {
	return &AMMService{db: db, ledger: ledger, markets: markets, webhooks: webhooks}
}

// ============================================================================
// PRICING
// ============================================================================

// PoolPrice derives the displayed probability of one outcome from a pool
// snapshot. An unfunded market prices every outcome at 1/n, the
// minimum-liquidity floor of the proportional model.
func PoolPrice(outcomes []models.MarketOutcome, outcomeID string) (decimal.Decimal, error) {
	total := decimal.Zero
	var pool *decimal.Decimal
	for i := range outcomes {
		total = total.Add(outcomes[i].PoolBDC)
		if outcomes[i].OutcomeID == outcomeID {
			pool = &outcomes[i].PoolBDC
		}
	}
	if pool == nil {
		return decimal.Zero, ErrUnknownOutcome
	}
	if total.IsZero() {
		return decimal.NewFromInt(1).
			DivRound(decimal.NewFromInt(int64(len(outcomes))), priceScale), nil
	}
	return pool.DivRound(total, priceScale), nil
}

// Quote computes the shares bought and the post-trade price for a stake
// without touching any state. Under the proportional model shares equal the
// staked amount; the price is the outcome's pool share after the stake is
// added.
func (s *AMMService) Quote(market *models.Market, outcomeID string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrInvalidAmount
	}

	total := amount
	pool := decimal.Zero
	found := false
	for _, o := range market.Outcomes {
		total = total.Add(o.PoolBDC)
		if o.OutcomeID == outcomeID {
			pool = o.PoolBDC.Add(amount)
			found = true
		}
	}
	if !found {
		return decimal.Zero, decimal.Zero, ErrUnknownOutcome
	}

	return amount, pool.DivRound(total, priceScale), nil
}

// Price returns the current displayed probability for an outcome.
func (s *AMMService) Price(ctx context.Context, marketID uuid.UUID, outcomeID string) (*models.MarketPriceResponse, error) {
	market, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	price, err := PoolPrice(market.Outcomes, outcomeID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	pool := decimal.Zero
	for _, o := range market.Outcomes {
		total = total.Add(o.PoolBDC)
		if o.OutcomeID == outcomeID {
			pool = o.PoolBDC
		}
	}

	return &models.MarketPriceResponse{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Price:     price,
		PoolBDC:   pool,
		TotalPool: total,
	}, nil
}

// ============================================================================
// TRADE EXECUTION
// ============================================================================

// ExecuteTrade stakes BDC on an outcome. Validation, the ledger debit, the
// pool mutation and the trade record commit in one transaction under the
// market and bot locks; a failure at any step leaves both the ledger and the
// pool untouched. Trades on the same market are fully serialized, trades on
// different markets run in parallel.
func (s *AMMService) ExecuteTrade(ctx context.Context, marketID, botID uuid.UUID, outcomeID string, amount decimal.Decimal) (*models.Trade, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount = amount.Round(bdcScale)
	if amount.IsZero() {
		return nil, ErrInvalidAmount
	}

	s.markets.lockMarket(marketID)
	defer s.markets.unlockMarket(marketID)

	if err := s.markets.CloseIfExpired(ctx, marketID); err != nil {
		return nil, err
	}

	s.ledger.lockBot(botID)
	defer s.ledger.unlockBot(botID)

	var trade *models.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var market models.Market
		if err := tx.Preload("Outcomes", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).First(&market, "id = ?", marketID).Error; err != nil {
			return fmt.Errorf("market not found: %w", err)
		}
		if market.Status != models.MarketStatusOpen {
			return ErrMarketNotOpen
		}

		var outcome *models.MarketOutcome
		for i := range market.Outcomes {
			if market.Outcomes[i].OutcomeID == outcomeID {
				outcome = &market.Outcomes[i]
				break
			}
		}
		if outcome == nil {
			return ErrUnknownOutcome
		}

		_, price, err := s.Quote(&market, outcomeID, amount)
		if err != nil {
			return err
		}

		if _, err := s.ledger.postTx(tx, botID, &marketID, amount.Neg(), models.LedgerReasonTrade); err != nil {
			return err
		}

		if err := tx.Model(&models.MarketOutcome{}).
			Where("id = ?", outcome.ID).
			Updates(map[string]interface{}{
				"pool_bdc":   outcome.PoolBDC.Add(amount),
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return fmt.Errorf("failed to update outcome pool: %w", err)
		}

		trade = &models.Trade{
			ID:        uuid.New(),
			MarketID:  marketID,
			BotID:     botID,
			OutcomeID: outcomeID,
			AmountBDC: amount,
			Price:     price,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to record trade: %w", err)
		}

		return s.webhooks.enqueueTx(tx, models.EventPriceChanged, marketID, &marketID, &botID, map[string]interface{}{
			"outcome_id": outcomeID,
			"amount_bdc": amount,
			"price":      price,
		})
	})
	if err != nil {
		return nil, err
	}

	return trade, nil
}

// ============================================================================
// TRADE HISTORY
// ============================================================================

// Trades returns a market's trade history, oldest first.
func (s *AMMService) Trades(ctx context.Context, marketID uuid.UUID) ([]models.Trade, error) {
	var trades []models.Trade
	if err := s.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("created_at ASC").
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}
