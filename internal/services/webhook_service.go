package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"prediclaw/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookService owns subscriptions and the durable outbound-event queue.
// Enqueueing happens inside the settlement transaction that produced the
// event, so a committed trade or resolution can never lose its event; the
// actual delivery runs in the background dispatcher, decoupled from the
// settlement critical path.
type WebhookService struct {
	db *gorm.DB
}

// NewWebhookService creates a new webhook service
func NewWebhookService(db *gorm.DB) *WebhookService {
	return &WebhookService{db: db}
}

// ============================================================================
// SUBSCRIPTIONS
// ============================================================================

// Subscribe registers a bot endpoint. A nil market ID subscribes globally;
// an empty event type list subscribes to everything.
func (s *WebhookService) Subscribe(ctx context.Context, req *models.SubscribeWebhookRequest) (*models.WebhookSubscription, error) {
	types := make([]string, 0, len(req.EventTypes))
	for _, t := range req.EventTypes {
		types = append(types, string(t))
	}

	sub := &models.WebhookSubscription{
		ID:         uuid.New(),
		BotID:      req.BotID,
		MarketID:   req.MarketID,
		Endpoint:   req.Endpoint,
		EventTypes: strings.Join(types, ","),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return sub, nil
}

// Subscriptions returns a bot's webhook registrations.
func (s *WebhookService) Subscriptions(ctx context.Context, botID uuid.UUID) ([]models.WebhookSubscription, error) {
	var subs []models.WebhookSubscription
	if err := s.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("created_at ASC").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func subscriptionMatches(sub *models.WebhookSubscription, eventType models.EventType, marketID *uuid.UUID) bool {
	if sub.MarketID != nil {
		if marketID == nil || *sub.MarketID != *marketID {
			return false
		}
	}
	if sub.EventTypes == "" {
		return true
	}
	for _, t := range strings.Split(sub.EventTypes, ",") {
		if t == string(eventType) {
			return true
		}
	}
	return false
}

// ============================================================================
// EVENT OUTBOX
// ============================================================================

// eventEnvelope is the wire payload delivered to subscriber endpoints. It
// carries enough to reconstruct the state change without a follow-up read.
type eventEnvelope struct {
	EventType models.EventType       `json:"event_type"`
	MarketID  *uuid.UUID             `json:"market_id,omitempty"`
	BotID     *uuid.UUID             `json:"bot_id,omitempty"`
	Sequence  int64                  `json:"sequence"`
	Body      map[string]interface{} `json:"body"`
}

// enqueueTx appends an event and its pending deliveries inside the caller's
// transaction. The per-subject sequence comes from an atomically incremented
// counter row, so events for one subject are totally ordered even across
// processes.
func (s *WebhookService) enqueueTx(tx *gorm.DB, eventType models.EventType, subjectID uuid.UUID, marketID, botID *uuid.UUID, body map[string]interface{}) error {
	seq, err := nextSequenceTx(tx, subjectID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(eventEnvelope{
		EventType: eventType,
		MarketID:  marketID,
		BotID:     botID,
		Sequence:  seq,
		Body:      body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	event := &models.Event{
		ID:        uuid.New(),
		EventType: eventType,
		SubjectID: subjectID,
		Sequence:  seq,
		MarketID:  marketID,
		BotID:     botID,
		Payload:   string(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	var subs []models.WebhookSubscription
	if err := tx.Find(&subs).Error; err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	now := time.Now().UTC()
	for i := range subs {
		if !subscriptionMatches(&subs[i], eventType, marketID) {
			continue
		}
		delivery := models.WebhookDelivery{
			ID:             uuid.New(),
			EventID:        event.ID,
			SubscriptionID: subs[i].ID,
			SubjectID:      subjectID,
			Sequence:       seq,
			Status:         models.DeliveryStatusPending,
			NextAttemptAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&delivery).Error; err != nil {
			return fmt.Errorf("failed to enqueue delivery: %w", err)
		}
	}
	return nil
}

// EventSequence is the per-subject monotonic counter behind event ordering.
type EventSequence struct {
	SubjectID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Next      int64     `gorm:"not null;default:0"`
}

// TableName specifies the table name for EventSequence model
func (EventSequence) TableName() string {
	return "event_sequences"
}

func nextSequenceTx(tx *gorm.DB, subjectID uuid.UUID) (int64, error) {
	res := tx.Model(&EventSequence{}).
		Where("subject_id = ?", subjectID).
		UpdateColumn("next", gorm.Expr("next + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to advance event sequence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&EventSequence{SubjectID: subjectID, Next: 1}).Error; err != nil {
			return 0, fmt.Errorf("failed to seed event sequence: %w", err)
		}
		return 1, nil
	}

	var seq EventSequence
	if err := tx.First(&seq, "subject_id = ?", subjectID).Error; err != nil {
		return 0, fmt.Errorf("failed to read event sequence: %w", err)
	}
	return seq.Next, nil
}

// ============================================================================
// INSPECTION
// ============================================================================

// Events returns a subject's events in sequence order.
func (s *WebhookService) Events(ctx context.Context, subjectID uuid.UUID) ([]models.Event, error) {
	var events []models.Event
	if err := s.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("sequence ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// FailedDeliveries surfaces terminally failed deliveries for operator
// inspection. Nothing is ever dropped silently.
func (s *WebhookService) FailedDeliveries(ctx context.Context, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.DeliveryStatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("failed to list failed deliveries: %w", err)
	}
	return deliveries, nil
}
