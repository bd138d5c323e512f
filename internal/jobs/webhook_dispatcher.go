package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"prediclaw/internal/models"

	"gorm.io/gorm"
)

// WebhookDispatcherConfig bounds the dispatcher's retry and ordering
// behavior.
type WebhookDispatcherConfig struct {
	// MaxAttempts is the attempt count after which a delivery goes to the
	// terminal failed state.
	MaxAttempts int
	// BaseBackoff is doubled on every failed attempt.
	BaseBackoff time.Duration
	// QueueDepth bounds how far past a subscriber's oldest pending delivery
	// the dispatcher may run ahead. A retrying head delivery defers, but
	// never permanently blocks, later events.
	QueueDepth int
	// PollInterval is the queue scan period.
	PollInterval time.Duration
	// RequestTimeout caps each delivery attempt.
	RequestTimeout time.Duration
}

// WebhookDispatcher is the background consumer of the durable webhook
// outbox. Every pending delivery is attempted at least once and ends as
// either delivered (endpoint acknowledged with a 2xx) or failed (attempts
// exhausted, kept for inspection).
type WebhookDispatcher struct {
	db       *gorm.DB
	client   *http.Client
	cfg      WebhookDispatcherConfig
	stopChan chan struct{}
}

// NewWebhookDispatcher creates a new webhook dispatcher job
func NewWebhookDispatcher(db *gorm.DB, cfg WebhookDispatcherConfig) *WebhookDispatcher {
	return &WebhookDispatcher{
		db:       db,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
}

// Start begins the delivery loop
func (wd *WebhookDispatcher) Start() {
	log.Printf("[WebhookDispatcher] Starting delivery loop (interval: %v, max attempts: %d)",
		wd.cfg.PollInterval, wd.cfg.MaxAttempts)

	ticker := time.NewTicker(wd.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			delivered, failed := wd.RunOnce(context.Background())
			if delivered > 0 || failed > 0 {
				log.Printf("[WebhookDispatcher] Delivered %d, failed %d", delivered, failed)
			}
		case <-wd.stopChan:
			log.Println("[WebhookDispatcher] Stopping delivery loop")
			return
		}
	}
}

// Stop stops the delivery loop
func (wd *WebhookDispatcher) Stop() {
	close(wd.stopChan)
}

// RunOnce drains every due delivery once and reports how many reached a
// terminal state this pass.
func (wd *WebhookDispatcher) RunOnce(ctx context.Context) (delivered, failed int) {
	var pending []models.WebhookDelivery
	if err := wd.db.WithContext(ctx).
		Where("status = ?", models.DeliveryStatusPending).
		Order("sequence ASC").
		Find(&pending).Error; err != nil {
		log.Printf("[WebhookDispatcher] Error loading pending deliveries: %v", err)
		return 0, 0
	}
	if len(pending) == 0 {
		return 0, 0
	}

	// Head sequence per (subscription, subject): deliveries more than
	// QueueDepth ahead of the oldest pending one wait, preserving order
	// across retries. Subjects sequence independently, so a retrying head
	// on one subject never defers another subject's deliveries.
	heads := make(map[string]int64)
	bySub := make(map[string][]models.WebhookDelivery)
	for _, d := range pending {
		key := d.SubscriptionID.String() + "/" + d.SubjectID.String()
		if head, ok := heads[key]; !ok || d.Sequence < head {
			heads[key] = d.Sequence
		}
		bySub[key] = append(bySub[key], d)
	}

	now := time.Now().UTC()
	subs := make([]string, 0, len(bySub))
	for key := range bySub {
		subs = append(subs, key)
	}
	sort.Strings(subs)

	for _, key := range subs {
		for _, delivery := range bySub[key] {
			if delivery.Sequence >= heads[key]+int64(wd.cfg.QueueDepth) {
				break
			}
			if delivery.NextAttemptAt.After(now) {
				continue
			}
			switch wd.attempt(ctx, &delivery) {
			case models.DeliveryStatusDelivered:
				delivered++
			case models.DeliveryStatusFailed:
				failed++
			}
		}
	}
	return delivered, failed
}

// attempt sends one delivery and records the outcome. Delivered requires an
// explicit 2xx acknowledgment; anything else schedules an exponential
// backoff retry until attempts run out.
func (wd *WebhookDispatcher) attempt(ctx context.Context, delivery *models.WebhookDelivery) models.DeliveryStatus {
	var event models.Event
	if err := wd.db.WithContext(ctx).First(&event, "id = ?", delivery.EventID).Error; err != nil {
		log.Printf("[WebhookDispatcher] Error loading event %s: %v", delivery.EventID, err)
		return models.DeliveryStatusPending
	}
	var sub models.WebhookSubscription
	if err := wd.db.WithContext(ctx).First(&sub, "id = ?", delivery.SubscriptionID).Error; err != nil {
		log.Printf("[WebhookDispatcher] Error loading subscription %s: %v", delivery.SubscriptionID, err)
		return models.DeliveryStatusPending
	}

	sendErr := wd.send(ctx, sub.Endpoint, event.Payload)

	delivery.Attempts++
	delivery.UpdatedAt = time.Now().UTC()

	if sendErr == nil {
		delivery.Status = models.DeliveryStatusDelivered
		delivery.LastError = ""
	} else {
		delivery.LastError = sendErr.Error()
		if delivery.Attempts >= wd.cfg.MaxAttempts {
			delivery.Status = models.DeliveryStatusFailed
			log.Printf("[WebhookDispatcher] Delivery %s failed permanently after %d attempts: %v",
				delivery.ID, delivery.Attempts, sendErr)
		} else {
			backoff := wd.cfg.BaseBackoff << uint(delivery.Attempts-1)
			delivery.NextAttemptAt = time.Now().UTC().Add(backoff)
		}
	}

	if err := wd.db.WithContext(ctx).Model(&models.WebhookDelivery{}).
		Where("id = ?", delivery.ID).
		Updates(map[string]interface{}{
			"status":          delivery.Status,
			"attempts":        delivery.Attempts,
			"next_attempt_at": delivery.NextAttemptAt,
			"last_error":      delivery.LastError,
			"updated_at":      delivery.UpdatedAt,
		}).Error; err != nil {
		log.Printf("[WebhookDispatcher] Error updating delivery %s: %v", delivery.ID, err)
	}
	return delivery.Status
}

func (wd *WebhookDispatcher) send(ctx context.Context, endpoint, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := wd.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport failure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint responded %d", resp.StatusCode)
	}
	return nil
}
