package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
)

const maxRetryBackoff = 24 * time.Hour

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookEventRepository {
	return &webhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent saves a new webhook event
func (r *webhookEventRepository) SaveEvent(ctx context.Context, event *model.WebhookEventLog) (bool, error) {
	if event.Status == "" {
		event.Status = model.WebhookStatusPending
	}
	if event.Payload == "" {
		event.Payload = "{}"
	}

	// ON CONFLICT keeps the first delivery
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		r.logger.Error("Failed to save webhook event",
			zap.String("gateway", string(event.Gateway)),
			zap.String("event_id", event.EventID),
			zap.String("event_type", event.EventType),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to save webhook event: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetEvent retrieves a webhook event by gateway and event ID
func (r *webhookEventRepository) GetEvent(ctx context.Context, gateway model.PaymentGateway, eventID string) (*model.WebhookEventLog, error) {
	var event model.WebhookEventLog

	err := r.db.WithContext(ctx).
		Where("gateway = ? AND event_id = ?", gateway, eventID).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return &event, nil
}

func (r *webhookEventRepository) MarkProcessing(ctx context.Context, gateway model.PaymentGateway, eventID string) error {
	return r.update(ctx, gateway, eventID, map[string]interface{}{
		"status": model.WebhookStatusProcessing,
	})
}

// MarkProcessed marks a webhook event as processed
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, gateway model.PaymentGateway, eventID string) error {
	now := time.Now()
	return r.update(ctx, gateway, eventID, map[string]interface{}{
		"status":       model.WebhookStatusCompleted,
		"processed_at": &now,
		"last_error":   nil,
	})
}

// MarkFailed records the failure and schedules a retry with exponential backoff.
func (r *webhookEventRepository) MarkFailed(ctx context.Context, gateway model.PaymentGateway, eventID string, cause error) error {
	var event model.WebhookEventLog
	if err := r.db.WithContext(ctx).
		Where("gateway = ? AND event_id = ?", gateway, eventID).
		First(&event).Error; err != nil {
		r.logger.Error("Failed to get webhook event for failure update",
			zap.String("event_id", eventID),
			zap.Error(err))
		return fmt.Errorf("failed to get webhook event: %w", err)
	}

	attempts := event.Attempts + 1
	nextRetry := time.Now().Add(RetryBackoff(attempts))
	errorMsg := cause.Error()

	return r.update(ctx, gateway, eventID, map[string]interface{}{
		"status":        model.WebhookStatusFailed,
		"attempts":      attempts,
		"last_error":    &errorMsg,
		"next_retry_at": &nextRetry,
	})
}

// RetryBackoff is 5 minutes doubled per attempt, capped at a day.
func RetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 9 {
		return maxRetryBackoff
	}
	backoff := 5 * time.Minute * time.Duration(1<<(attempts-1))
	if backoff > maxRetryBackoff {
		return maxRetryBackoff
	}
	return backoff
}

// ListRetryable retrieves failed webhook events that are due for another attempt
func (r *webhookEventRepository) ListRetryable(ctx context.Context, limit int) ([]model.WebhookEventLog, error) {
	var events []model.WebhookEventLog

	query := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", model.WebhookStatusFailed, time.Now()).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&events).Error; err != nil {
		r.logger.Error("Failed to get retryable webhook events", zap.Error(err))
		return nil, fmt.Errorf("failed to get retryable webhook events: %w", err)
	}
	return events, nil
}

func (r *webhookEventRepository) update(ctx context.Context, gateway model.PaymentGateway, eventID string, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.WebhookEventLog{}).
		Where("gateway = ? AND event_id = ?", gateway, eventID).
		Updates(values)
	if result.Error != nil {
		r.logger.Error("Failed to update webhook event",
			zap.String("event_id", eventID),
			zap.Any("status", values["status"]),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update webhook event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}
	return nil
}
