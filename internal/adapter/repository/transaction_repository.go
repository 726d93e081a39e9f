package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
)

type transactionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.TransactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return customErr.ErrDuplicateTransactionID
		}
		r.logger.Error("Failed to create transaction",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("type", string(tx.Type)),
			zap.Error(err))
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *transactionRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID, txType model.TransactionType) (*model.Transaction, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, txType).
		Order("created_at DESC"))
}

func (r *transactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("transaction_id = ?", transactionID))
}

func (r *transactionRepository) findOne(_ context.Context, query *gorm.DB) (*model.Transaction, error) {
	var tx model.Transaction
	if err := query.First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.TransactionStatus) error {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		r.logger.Error("Failed to update transaction status",
			zap.String("transaction_id", id.String()),
			zap.String("status", string(status)),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update transaction status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return customErr.NewNotFoundError("transaction", id)
	}
	return nil
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Transaction, error) {
	var txs []model.Transaction

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&txs).Error; err != nil {
		r.logger.Error("Failed to list transactions",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
