package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// OrderRepository persists orders and reads the course catalog they reference.
type OrderRepository interface {
	// Create inserts the order and its items.
	Create(ctx context.Context, order *model.Order) error

	// FindByID loads the order with its items. Returns nil, nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	ListItems(ctx context.Context, orderID uuid.UUID) ([]model.OrderItem, error)

	// MarkCompleted moves the order to COMPLETED unless it already is.
	// It reports false when another caller completed it first.
	MarkCompleted(ctx context.Context, id uuid.UUID, gateway model.PaymentGateway, paymentIntentID string) (bool, error)

	// MarkFailed moves a PENDING order to FAILED. It reports false when the order was not PENDING.
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)

	FindCourseByID(ctx context.Context, id uuid.UUID) (*model.Course, error)
}
