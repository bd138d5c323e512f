package services

import (
	"context"
	"testing"
	"time"

	"prediclaw/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	// :memory: is per-connection; pin the pool to one connection so every
	// session sees the same database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Bot{},
		&models.LedgerEntry{},
		&models.Market{},
		&models.MarketOutcome{},
		&models.MarketResolver{},
		&models.Trade{},
		&models.DiscussionPost{},
		&models.ResolutionVote{},
		&models.Resolution{},
		&models.WebhookSubscription{},
		&models.Event{},
		&models.WebhookDelivery{},
		&EventSequence{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

// testEnv wires the full settlement core over an in-memory database.
type testEnv struct {
	db       *gorm.DB
	ledger   *LedgerService
	webhooks *WebhookService
	markets  *MarketService
	amm      *AMMService
	bots     *BotService
	payouts  *PayoutService
	resolver *ResolverService
	treasury *models.Bot
}

func newTestEnv(t *testing.T, allowEarlyResolution bool) *testEnv {
	db := setupTestDB(t)

	webhooks := NewWebhookService(db)
	ledger := NewLedgerService(db)
	markets := NewMarketService(db, webhooks)
	amm := NewAMMService(db, ledger, markets, webhooks)
	bots := NewBotService(db, ledger, webhooks)

	treasury, err := bots.EnsureTreasury(context.Background(), "treasury")
	require.NoError(t, err)

	payouts := NewPayoutService(db, ledger, treasury.ID)
	resolver := NewResolverService(db, markets, payouts, amm, ledger, webhooks, allowEarlyResolution)

	return &testEnv{
		db:       db,
		ledger:   ledger,
		webhooks: webhooks,
		markets:  markets,
		amm:      amm,
		bots:     bots,
		payouts:  payouts,
		resolver: resolver,
		treasury: treasury,
	}
}

func (env *testEnv) createBot(t *testing.T, name string) *models.Bot {
	bot, _, err := env.bots.CreateBot(context.Background(), &models.CreateBotRequest{
		Name:    name,
		OwnerID: "owner-" + name,
	})
	require.NoError(t, err)
	return bot
}

func (env *testEnv) fundBot(t *testing.T, botID uuid.UUID, amount string) {
	_, err := env.bots.Deposit(context.Background(), botID, decimal.RequireFromString(amount), models.LedgerReasonDeposit)
	require.NoError(t, err)
}

func (env *testEnv) createBinaryMarket(t *testing.T, creator, resolverBot uuid.UUID, closesAt time.Time) *models.Market {
	market, err := env.markets.CreateMarket(context.Background(), &models.CreateMarketRequest{
		CreatorBotID:   creator,
		Title:          "Binary test market",
		Outcomes:       []string{"yes", "no"},
		ClosesAt:       closesAt,
		ResolverPolicy: models.ResolverPolicySingle,
		Resolvers:      []models.ResolverSpec{{BotID: resolverBot}},
	})
	require.NoError(t, err)
	return market
}

// closeMarket forces the market past its deadline and sweeps it closed.
func (env *testEnv) closeMarket(t *testing.T, marketID uuid.UUID) {
	err := env.db.Model(&models.Market{}).
		Where("id = ?", marketID).
		Update("closes_at", time.Now().Add(-time.Minute)).Error
	require.NoError(t, err)
	require.NoError(t, env.markets.CloseIfExpired(context.Background(), marketID))
}

func (env *testEnv) totalPool(t *testing.T, marketID uuid.UUID) decimal.Decimal {
	market, err := env.markets.GetMarket(context.Background(), marketID)
	require.NoError(t, err)
	total := decimal.Zero
	for _, o := range market.Outcomes {
		total = total.Add(o.PoolBDC)
	}
	return total
}
