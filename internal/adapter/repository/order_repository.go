package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
)

type orderRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB, logger *zap.Logger) domainRepo.OrderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the order; gorm saves its items in the same transaction.
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		r.logger.Error("Failed to create order",
			zap.String("order_id", order.ID.String()),
			zap.String("user_id", order.UserID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get order",
			zap.String("order_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *orderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		r.logger.Error("Failed to list order items",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	return items, nil
}

// MarkCompleted is a conditional update so that only one settlement wins.
func (r *orderRepository) MarkCompleted(ctx context.Context, id uuid.UUID, gateway model.PaymentGateway, paymentIntentID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND payment_status <> ?", id, model.OrderStatusCompleted).
		Updates(map[string]interface{}{
			"status":            model.OrderStatusCompleted,
			"payment_status":    model.OrderStatusCompleted,
			"payment_gateway":   gateway,
			"payment_intent_id": paymentIntentID,
		})
	if result.Error != nil {
		r.logger.Error("Failed to mark order completed",
			zap.String("order_id", id.String()),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark order completed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *orderRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND payment_status = ?", id, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusFailed,
			"payment_status": model.OrderStatusFailed,
		})
	if result.Error != nil {
		r.logger.Error("Failed to mark order failed",
			zap.String("order_id", id.String()),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to mark order failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *orderRepository) FindCourseByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	var course model.Course
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&course).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get course",
			zap.String("course_id", id.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &course, nil
}
