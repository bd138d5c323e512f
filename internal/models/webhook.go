package models

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants
type EventType string

const (
	EventMarketCreated    EventType = "market_created"
	EventPriceChanged     EventType = "price_changed"
	EventDiscussionPosted EventType = "discussion_posted"
	EventMarketClosed     EventType = "market_closed"
	EventMarketResolved   EventType = "market_resolved"
	EventBotStatusChanged EventType = "bot_status_changed"
)

// Delivery status constants
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// WebhookSubscription registers a bot endpoint for event delivery. A nil
// MarketID subscribes to all markets. An empty EventTypes list subscribes
// to every event type; otherwise it is a comma-joined filter.
type WebhookSubscription struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BotID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"bot_id"`
	MarketID   *uuid.UUID `gorm:"type:uuid;index" json:"market_id,omitempty"`
	Endpoint   string     `gorm:"size:500;not null" json:"endpoint"`
	EventTypes string     `gorm:"size:500" json:"event_types"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName specifies the table name for WebhookSubscription model
func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

// Event is an append-only outbound event. Sequence increases monotonically
// per subject (market, or bot for bot_status_changed) and orders delivery.
type Event struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EventType EventType  `gorm:"size:50;not null;index" json:"event_type"`
	SubjectID uuid.UUID  `gorm:"type:uuid;not null;index:idx_event_subject_seq,unique" json:"subject_id"`
	Sequence  int64      `gorm:"not null;index:idx_event_subject_seq,unique" json:"sequence"`
	MarketID  *uuid.UUID `gorm:"type:uuid;index" json:"market_id,omitempty"`
	BotID     *uuid.UUID `gorm:"type:uuid;index" json:"bot_id,omitempty"`
	Payload   string     `gorm:"type:text;not null" json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
}

// TableName specifies the table name for Event model
func (Event) TableName() string {
	return "events"
}

// WebhookDelivery tracks one event's delivery to one subscription. A row is
// marked delivered only on a 2xx acknowledgment from the endpoint; after
// MaxAttempts failures it goes to failed (terminal) and stays inspectable.
type WebhookDelivery struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"event_id"`
	SubscriptionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"subscription_id"`
	SubjectID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"subject_id"`
	Sequence       int64          `gorm:"not null" json:"sequence"`
	Status         DeliveryStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	Attempts       int            `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time      `gorm:"not null;index" json:"next_attempt_at"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName specifies the table name for WebhookDelivery model
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
