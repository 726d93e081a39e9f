package repository

import (
	"context"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// WebhookEventRepository is the delivery log used for deduplication and replay.
type WebhookEventRepository interface {
	// SaveEvent records the event and reports whether it was new.
	SaveEvent(ctx context.Context, event *model.WebhookEventLog) (bool, error)

	GetEvent(ctx context.Context, gateway model.PaymentGateway, eventID string) (*model.WebhookEventLog, error)

	MarkProcessing(ctx context.Context, gateway model.PaymentGateway, eventID string) error
	MarkProcessed(ctx context.Context, gateway model.PaymentGateway, eventID string) error
	MarkFailed(ctx context.Context, gateway model.PaymentGateway, eventID string, cause error) error

	// ListRetryable returns failed events whose retry time has passed.
	ListRetryable(ctx context.Context, limit int) ([]model.WebhookEventLog, error)
}
