package model

import (
	"database/sql/driver"
	"time"
)

// WebhookStatus represents the processing status of a webhook
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "pending"
	WebhookStatusProcessing WebhookStatus = "processing"
	WebhookStatusCompleted  WebhookStatus = "completed"
	WebhookStatusFailed     WebhookStatus = "failed"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// WebhookEventLog records every verified gateway delivery, keyed by (gateway, event id).
// Payload is the raw body so failed events can be replayed.
type WebhookEventLog struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Gateway     PaymentGateway `gorm:"size:20;not null;uniqueIndex:idx_webhook_events_gateway_event" json:"gateway"`
	EventID     string         `gorm:"size:255;not null;uniqueIndex:idx_webhook_events_gateway_event" json:"event_id"`
	EventType   string         `gorm:"size:100;not null;index" json:"event_type"`
	Status      WebhookStatus  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Payload     string         `gorm:"type:jsonb;not null" json:"payload"`
	Attempts    int            `gorm:"default:0" json:"attempts"`
	LastError   *string        `json:"last_error,omitempty"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"default:now()" json:"created_at"`
}

// TableName specifies the table name for GORM
func (WebhookEventLog) TableName() string {
	return "webhook_events"
}
