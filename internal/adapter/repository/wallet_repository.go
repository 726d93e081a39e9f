package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
)

// walletRepository implements the WalletRepository interface
type walletRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWalletRepository creates a new wallet repository instance
func NewWalletRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WalletRepository {
	return &walletRepository{
		db:     db,
		logger: logger,
	}
}

func (r *walletRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get wallet",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *walletRepository) Create(ctx context.Context, wallet *model.Wallet) error {
	if err := r.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// ApplyEntry changes the balance and completes the ledger row atomically
func (r *walletRepository) ApplyEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerResult, error) {
	var result *model.LedgerResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findLedgerRow(tx, entry.Transaction)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsCompleted() {
			var wallet model.Wallet
			if err := tx.Where("user_id = ?", entry.UserID).First(&wallet).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load wallet: %w", err)
			}
			result = &model.LedgerResult{Wallet: &wallet, Transaction: existing, Applied: false}
			return nil
		}

		wallet, err := r.lockWallet(tx, entry)
		if err != nil {
			return err
		}

		version := wallet.Version
		if entry.Direction == model.LedgerCredit {
			err = wallet.AddAmount(entry.Amount, entry.Currency)
		} else {
			err = wallet.ReduceAmount(entry.Amount, entry.Currency)
		}
		if err != nil {
			return err
		}

		updated := tx.Model(&model.Wallet{}).
			Where("id = ? AND version = ?", wallet.ID, version).
			Updates(map[string]interface{}{
				"balance": wallet.Balance,
				"version": wallet.Version,
			})
		if updated.Error != nil {
			return fmt.Errorf("failed to update balance: %w", updated.Error)
		}
		if updated.RowsAffected == 0 {
			return fmt.Errorf("wallet %s changed concurrently", wallet.ID)
		}

		row, err := completeLedgerRow(tx, entry.Transaction, existing, wallet.ID)
		if err != nil {
			return err
		}

		result = &model.LedgerResult{Wallet: wallet, Transaction: row, Applied: true}
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to apply ledger entry",
			zap.String("user_id", entry.UserID.String()),
			zap.String("direction", string(entry.Direction)),
			zap.String("amount", entry.Amount.String()),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

// lockWallet selects the wallet FOR UPDATE. Credits create it on first use.
func (r *walletRepository) lockWallet(tx *gorm.DB, entry *model.LedgerEntry) (*model.Wallet, error) {
	var wallet model.Wallet
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", entry.UserID)

	if entry.Direction == model.LedgerCredit {
		if err := locked.Attrs(model.NewWallet(entry.UserID, entry.Currency)).FirstOrCreate(&wallet).Error; err != nil {
			return nil, fmt.Errorf("failed to lock wallet: %w", err)
		}
		return &wallet, nil
	}

	if err := locked.First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customErr.NewNotFoundError("wallet for user", entry.UserID)
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// findLedgerRow looks the entry's transaction up by id, then by its external key.
func findLedgerRow(tx *gorm.DB, want *model.Transaction) (*model.Transaction, error) {
	query := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", want.ID)
	if want.TransactionID != nil {
		query = query.Or("transaction_id = ?", *want.TransactionID)
	}

	var rows []model.Transaction
	if err := query.Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to look up ledger row: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func completeLedgerRow(tx *gorm.DB, want, existing *model.Transaction, walletID uuid.UUID) (*model.Transaction, error) {
	if existing != nil {
		err := tx.Model(&model.Transaction{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"status":    model.TransactionStatusCompleted,
				"wallet_id": walletID,
			}).Error
		if err != nil {
			return nil, fmt.Errorf("failed to complete transaction: %w", err)
		}
		existing.Status = model.TransactionStatusCompleted
		existing.WalletID = &walletID
		existing.UpdatedAt = time.Now()
		return existing, nil
	}

	row := *want
	row.Status = model.TransactionStatusCompleted
	row.WalletID = &walletID
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, customErr.ErrDuplicateTransactionID
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return &row, nil
}
