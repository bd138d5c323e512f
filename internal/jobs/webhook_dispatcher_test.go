package jobs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"prediclaw/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/glebarez/sqlite"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.WebhookSubscription{},
		&models.Event{},
		&models.WebhookDelivery{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func testConfig() WebhookDispatcherConfig {
	return WebhookDispatcherConfig{
		MaxAttempts:    3,
		BaseBackoff:    50 * time.Millisecond,
		QueueDepth:     8,
		PollInterval:   time.Second,
		RequestTimeout: time.Second,
	}
}

// seedDelivery inserts a subscription-scoped event and its pending delivery.
func seedDelivery(t *testing.T, db *gorm.DB, subID uuid.UUID, subjectID uuid.UUID, seq int64, payload string) *models.WebhookDelivery {
	now := time.Now().UTC()
	event := models.Event{
		ID:        uuid.New(),
		EventType: models.EventPriceChanged,
		SubjectID: subjectID,
		Sequence:  seq,
		Payload:   payload,
		CreatedAt: now,
	}
	require.NoError(t, db.Create(&event).Error)

	delivery := models.WebhookDelivery{
		ID:             uuid.New(),
		EventID:        event.ID,
		SubscriptionID: subID,
		SubjectID:      subjectID,
		Sequence:       seq,
		Status:         models.DeliveryStatusPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(&delivery).Error)
	return &delivery
}

func subscribe(t *testing.T, db *gorm.DB, endpoint string) *models.WebhookSubscription {
	sub := models.WebhookSubscription{
		ID:        uuid.New(),
		BotID:     uuid.New(),
		Endpoint:  endpoint,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&sub).Error)
	return &sub
}

func reloadDelivery(t *testing.T, db *gorm.DB, id uuid.UUID) *models.WebhookDelivery {
	var delivery models.WebhookDelivery
	require.NoError(t, db.First(&delivery, "id = ?", id).Error)
	return &delivery
}

// forceDue rewinds a delivery's retry timer so the next pass picks it up.
func forceDue(t *testing.T, db *gorm.DB, id uuid.UUID) {
	err := db.Model(&models.WebhookDelivery{}).
		Where("id = ?", id).
		Update("next_attempt_at", time.Now().Add(-time.Second)).Error
	require.NoError(t, err)
}

func TestDispatcherDeliversOnAck(t *testing.T) {
	db := setupTestDB(t)

	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := subscribe(t, db, server.URL)
	seeded := seedDelivery(t, db, sub.ID, uuid.New(), 1, `{"event_type":"price_changed"}`)

	wd := NewWebhookDispatcher(db, testConfig())
	delivered, failed := wd.RunOnce(context.Background())
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, failed)

	got := reloadDelivery(t, db, seeded.ID)
	assert.Equal(t, models.DeliveryStatusDelivered, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, got.LastError)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t, `{"event_type":"price_changed"}`, bodies[0])

	// A delivered row never fires again.
	delivered, failed = wd.RunOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Zero(t, failed)
}

func TestDispatcherRetriesUntilAck(t *testing.T) {
	db := setupTestDB(t)

	var mu sync.Mutex
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := subscribe(t, db, server.URL)
	seeded := seedDelivery(t, db, sub.ID, uuid.New(), 1, `{}`)

	cfg := testConfig()
	cfg.BaseBackoff = time.Minute
	wd := NewWebhookDispatcher(db, cfg)

	delivered, failed := wd.RunOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Zero(t, failed)

	got := reloadDelivery(t, db, seeded.ID)
	assert.Equal(t, models.DeliveryStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Contains(t, got.LastError, "500")
	assert.True(t, got.NextAttemptAt.After(time.Now().UTC()))

	// Not due yet: the pass skips it entirely.
	delivered, _ = wd.RunOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Equal(t, 1, reloadDelivery(t, db, seeded.ID).Attempts)

	forceDue(t, db, seeded.ID)
	wd.RunOnce(context.Background())
	forceDue(t, db, seeded.ID)
	delivered, failed = wd.RunOnce(context.Background())
	assert.Equal(t, 1, delivered)
	assert.Zero(t, failed)

	got = reloadDelivery(t, db, seeded.ID)
	assert.Equal(t, models.DeliveryStatusDelivered, got.Status)
	assert.Equal(t, 3, got.Attempts)
}

func TestDispatcherExhaustsAttempts(t *testing.T) {
	db := setupTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sub := subscribe(t, db, server.URL)
	seeded := seedDelivery(t, db, sub.ID, uuid.New(), 1, `{}`)

	cfg := testConfig()
	cfg.MaxAttempts = 2
	wd := NewWebhookDispatcher(db, cfg)

	wd.RunOnce(context.Background())
	forceDue(t, db, seeded.ID)
	delivered, failed := wd.RunOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Equal(t, 1, failed)

	got := reloadDelivery(t, db, seeded.ID)
	assert.Equal(t, models.DeliveryStatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Contains(t, got.LastError, "503")

	// Terminal: no further attempts.
	delivered, failed = wd.RunOnce(context.Background())
	assert.Zero(t, delivered)
	assert.Zero(t, failed)
	assert.Equal(t, 2, reloadDelivery(t, db, seeded.ID).Attempts)
}

func TestDispatcherHoldsBackBeyondQueueDepth(t *testing.T) {
	db := setupTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sub := subscribe(t, db, server.URL)
	subject := uuid.New()
	head := seedDelivery(t, db, sub.ID, subject, 1, `{"seq":1}`)
	behind := seedDelivery(t, db, sub.ID, subject, 2, `{"seq":2}`)

	cfg := testConfig()
	cfg.MaxAttempts = 1
	cfg.QueueDepth = 1
	wd := NewWebhookDispatcher(db, cfg)

	// Only the head is inside the window; sequence 2 waits.
	_, failed := wd.RunOnce(context.Background())
	assert.Equal(t, 1, failed)
	assert.Equal(t, models.DeliveryStatusFailed, reloadDelivery(t, db, head.ID).Status)
	assert.Equal(t, 0, reloadDelivery(t, db, behind.ID).Attempts)

	// Once the head is terminal the window moves on.
	_, failed = wd.RunOnce(context.Background())
	assert.Equal(t, 1, failed)
	assert.Equal(t, models.DeliveryStatusFailed, reloadDelivery(t, db, behind.ID).Status)
}

func TestDispatcherWindowsSubjectsIndependently(t *testing.T) {
	db := setupTestDB(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	// One global subscription sees two subjects whose sequence counters are
	// unrelated; each subject's pending head must anchor its own window.
	sub := subscribe(t, db, server.URL)
	marketA := uuid.New()
	marketB := uuid.New()
	ahead := seedDelivery(t, db, sub.ID, marketA, 5, `{"seq":5}`)
	fresh := seedDelivery(t, db, sub.ID, marketB, 1, `{"seq":1}`)

	cfg := testConfig()
	cfg.QueueDepth = 1
	wd := NewWebhookDispatcher(db, cfg)

	delivered, failed := wd.RunOnce(context.Background())
	assert.Equal(t, 2, delivered)
	assert.Zero(t, failed)
	assert.Equal(t, models.DeliveryStatusDelivered, reloadDelivery(t, db, ahead.ID).Status)
	assert.Equal(t, models.DeliveryStatusDelivered, reloadDelivery(t, db, fresh.ID).Status)
}

func TestDispatcherPreservesSubjectOrder(t *testing.T) {
	db := setupTestDB(t)

	var mu sync.Mutex
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sub := subscribe(t, db, server.URL)
	subject := uuid.New()
	// Seeded out of order on purpose.
	seedDelivery(t, db, sub.ID, subject, 3, `{"seq":3}`)
	seedDelivery(t, db, sub.ID, subject, 1, `{"seq":1}`)
	seedDelivery(t, db, sub.ID, subject, 2, `{"seq":2}`)

	wd := NewWebhookDispatcher(db, testConfig())
	delivered, _ := wd.RunOnce(context.Background())
	assert.Equal(t, 3, delivered)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"seq":1}`, `{"seq":2}`, `{"seq":3}`}, bodies)
}
