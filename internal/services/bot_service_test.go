package services

import (
	"context"
	"testing"

	"prediclaw/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBotIssuesAPIKey(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	bot, key, err := env.bots.CreateBot(ctx, &models.CreateBotRequest{
		Name:    "alpha",
		OwnerID: "owner-1",
	})
	require.NoError(t, err)
	assert.Len(t, key, 64) // 32 random bytes, hex encoded
	assert.Equal(t, models.BotStatusActive, bot.Status)
	assert.True(t, bot.WalletBalanceBDC.IsZero())

	found, err := env.bots.GetBotByAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, bot.ID, found.ID)

	_, err = env.bots.GetBotByAPIKey(ctx, "no-such-key")
	assert.Error(t, err)

	_, otherKey, err := env.bots.CreateBot(ctx, &models.CreateBotRequest{
		Name:    "beta",
		OwnerID: "owner-2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, key, otherKey)
}

func TestEnsureTreasuryIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	again, err := env.bots.EnsureTreasury(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, env.treasury.ID, again.ID)

	var count int64
	require.NoError(t, env.db.Model(&models.Bot{}).Where("owner_id = ?", "system").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSetStatusEmitsEvent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	bot := env.createBot(t, "alpha")

	updated, err := env.bots.SetStatus(ctx, bot.ID, models.BotStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusPaused, updated.Status)

	events, err := env.webhooks.Events(ctx, bot.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventBotStatusChanged, events[0].EventType)
}
