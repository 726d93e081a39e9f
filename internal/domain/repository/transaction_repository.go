package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// TransactionRepository persists ledger rows. Finders return nil, nil when absent.
type TransactionRepository interface {
	// Create fails with ErrDuplicateTransactionID when TransactionID is already taken.
	Create(ctx context.Context, tx *model.Transaction) error

	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)

	// FindByOrderID returns the most recent transaction of txType for the order.
	FindByOrderID(ctx context.Context, orderID uuid.UUID, txType model.TransactionType) (*model.Transaction, error)

	FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status model.TransactionStatus) error

	// ListByUser returns the user's transactions, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error)
}
