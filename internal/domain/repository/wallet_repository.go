package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
)

// WalletRepository persists wallets. Balance changes only go through ApplyEntry.
type WalletRepository interface {
	// FindByUserID returns nil, nil when the user has no wallet yet.
	FindByUserID(ctx context.Context, userID uuid.UUID) (*model.Wallet, error)

	Create(ctx context.Context, wallet *model.Wallet) error

	// ApplyEntry locks the wallet row, mutates the balance and writes the
	// entry's transaction as COMPLETED in one database transaction. Credits
	// create the wallet on first use; debits fail with NotFound. An entry whose
	// transaction key was already completed is returned with Applied=false.
	ApplyEntry(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerResult, error)
}
