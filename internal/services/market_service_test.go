package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"prediclaw/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMarketValidation(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	creator := env.createBot(t, "creator")
	judge := env.createBot(t, "judge")

	base := func() *models.CreateMarketRequest {
		return &models.CreateMarketRequest{
			CreatorBotID:   creator.ID,
			Title:          "Test market",
			Outcomes:       []string{"yes", "no"},
			ClosesAt:       time.Now().Add(time.Hour),
			ResolverPolicy: models.ResolverPolicySingle,
			Resolvers:      []models.ResolverSpec{{BotID: judge.ID}},
		}
	}

	req := base()
	req.Outcomes = []string{"yes"}
	_, err := env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrInvalidOutcomes))

	req = base()
	req.Outcomes = []string{"yes", "yes"}
	_, err = env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrInvalidOutcomes))

	req = base()
	req.Outcomes = []string{"yes", "  "}
	_, err = env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrInvalidOutcomes))

	// single wants exactly one resolver.
	req = base()
	req.Resolvers = append(req.Resolvers, models.ResolverSpec{BotID: creator.ID})
	_, err = env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrPolicyInvalid))

	// majority wants a quorum.
	req = base()
	req.ResolverPolicy = models.ResolverPolicyMajority
	_, err = env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrPolicyInvalid))

	// consensus threshold must sit in (0, 1].
	req = base()
	req.ResolverPolicy = models.ResolverPolicyConsensus
	req.Resolvers = []models.ResolverSpec{{BotID: judge.ID}, {BotID: creator.ID}}
	bad := decimal.RequireFromString("1.5")
	req.ConsensusThreshold = &bad
	_, err = env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrPolicyInvalid))

	req = base()
	req.ResolverPolicy = "quadratic"
	_, err = env.markets.CreateMarket(ctx, req)
	assert.True(t, errors.Is(err, ErrPolicyInvalid))
}

func TestCreateMarketSeedsZeroPools(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	creator := env.createBot(t, "creator")
	judge := env.createBot(t, "judge")

	market := env.createBinaryMarket(t, creator.ID, judge.ID, time.Now().Add(time.Hour))

	got, err := env.markets.GetMarket(ctx, market.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketStatusOpen, got.Status)
	require.Len(t, got.Outcomes, 2)
	assert.Equal(t, "yes", got.Outcomes[0].OutcomeID)
	assert.Equal(t, "no", got.Outcomes[1].OutcomeID)
	for _, o := range got.Outcomes {
		assert.True(t, o.PoolBDC.IsZero())
	}
	require.Len(t, got.Resolvers, 1)
	assert.Equal(t, judge.ID, got.Resolvers[0].BotID)
	assert.True(t, got.Resolvers[0].Weight.Equal(decimal.NewFromInt(1)))
}

func TestCloseExpiredSweep(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	creator := env.createBot(t, "creator")
	judge := env.createBot(t, "judge")

	expired := env.createBinaryMarket(t, creator.ID, judge.ID, time.Now().Add(-time.Minute))
	live := env.createBinaryMarket(t, creator.ID, judge.ID, time.Now().Add(time.Hour))

	closed, err := env.markets.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := env.markets.GetMarket(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketStatusClosed, got.Status)

	got, err = env.markets.GetMarket(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarketStatusOpen, got.Status)

	// Sweeping again finds nothing and emits nothing new.
	closed, err = env.markets.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	events, err := env.webhooks.Events(ctx, expired.ID)
	require.NoError(t, err)
	closedEvents := 0
	for _, e := range events {
		if e.EventType == models.EventMarketClosed {
			closedEvents++
		}
	}
	assert.Equal(t, 1, closedEvents)
}

func TestDiscussionLifecycle(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	creator := env.createBot(t, "creator")
	judge := env.createBot(t, "judge")
	market := env.createBinaryMarket(t, creator.ID, judge.ID, time.Now().Add(time.Hour))

	confidence := 0.8
	post, err := env.markets.PostDiscussion(ctx, market.ID, &models.CreateDiscussionPostRequest{
		BotID:      creator.ID,
		OutcomeID:  "yes",
		Body:       "leaning yes on recent data",
		Confidence: &confidence,
	})
	require.NoError(t, err)
	assert.Equal(t, "yes", post.OutcomeID)

	over := 1.2
	_, err = env.markets.PostDiscussion(ctx, market.ID, &models.CreateDiscussionPostRequest{
		BotID:      creator.ID,
		OutcomeID:  "yes",
		Body:       "overconfident",
		Confidence: &over,
	})
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = env.markets.PostDiscussion(ctx, market.ID, &models.CreateDiscussionPostRequest{
		BotID:     creator.ID,
		OutcomeID: "maybe",
		Body:      "bad outcome",
	})
	assert.True(t, errors.Is(err, ErrUnknownOutcome))

	// Discussion stays open after close.
	env.closeMarket(t, market.ID)
	_, err = env.markets.PostDiscussion(ctx, market.ID, &models.CreateDiscussionPostRequest{
		BotID:     creator.ID,
		OutcomeID: "no",
		Body:      "still arguing",
	})
	require.NoError(t, err)

	// But ends at resolution.
	_, err = env.resolver.SubmitVote(ctx, market.ID, judge.ID, "yes", "")
	require.NoError(t, err)
	_, err = env.markets.PostDiscussion(ctx, market.ID, &models.CreateDiscussionPostRequest{
		BotID:     creator.ID,
		OutcomeID: "no",
		Body:      "too late",
	})
	assert.True(t, errors.Is(err, ErrAlreadyResolved))

	posts, err := env.markets.ListDiscussion(ctx, market.ID)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func TestListMarketsByStatus(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	creator := env.createBot(t, "creator")
	judge := env.createBot(t, "judge")

	open := env.createBinaryMarket(t, creator.ID, judge.ID, time.Now().Add(time.Hour))
	closed := env.createBinaryMarket(t, creator.ID, judge.ID, time.Now().Add(time.Hour))
	env.closeMarket(t, closed.ID)

	markets, err := env.markets.ListMarkets(ctx, models.MarketStatusOpen, 50, 0)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, open.ID, markets[0].ID)

	markets, err = env.markets.ListMarkets(ctx, "", 50, 0)
	require.NoError(t, err)
	assert.Len(t, markets, 2)
}
