package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/byway-payment/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/byway-payment/internal/domain/repository"
	"github.com/wekeepgrowing/byway-payment/internal/metrics"
)

// WalletService serializes balance changes per user. The repository row lock
// covers other processes; the keyed mutex keeps this one from queueing on it.
type WalletService struct {
	walletRepo      domainRepo.WalletRepository
	locks           *keyedMutex
	defaultCurrency string
	logger          *zap.Logger
}

func NewWalletService(walletRepo domainRepo.WalletRepository, defaultCurrency string, logger *zap.Logger) *WalletService {
	return &WalletService{
		walletRepo:      walletRepo,
		locks:           newKeyedMutex(),
		defaultCurrency: model.NormalizeCurrency(defaultCurrency),
		logger:          logger,
	}
}

// FindWallet returns nil when the user has no wallet.
func (s *WalletService) FindWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return wallet, nil
}

// GetWallet returns the user's wallet, or an unsaved empty one if none exists yet.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*model.Wallet, error) {
	wallet, err := s.FindWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return model.NewWallet(userID, s.defaultCurrency), nil
	}
	return wallet, nil
}

// Credit adds amount to the user's wallet and completes tx as its ledger row.
func (s *WalletService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, tx *model.Transaction) (*model.LedgerResult, error) {
	return s.apply(ctx, &model.LedgerEntry{
		UserID:      userID,
		Direction:   model.LedgerCredit,
		Amount:      amount,
		Currency:    currency,
		Transaction: tx,
	})
}

// Debit removes amount from the user's wallet and completes tx as its ledger row.
func (s *WalletService) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, currency string, tx *model.Transaction) (*model.LedgerResult, error) {
	return s.apply(ctx, &model.LedgerEntry{
		UserID:      userID,
		Direction:   model.LedgerDebit,
		Amount:      amount,
		Currency:    currency,
		Transaction: tx,
	})
}

func (s *WalletService) apply(ctx context.Context, entry *model.LedgerEntry) (*model.LedgerResult, error) {
	unlock := s.locks.Lock(entry.UserID)
	defer unlock()

	result, err := s.walletRepo.ApplyEntry(ctx, entry)
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(entry.Direction), strconv.FormatBool(result.Applied)).Inc()
	if result.Applied {
		s.logger.Info("Wallet ledger entry applied",
			zap.String("user_id", entry.UserID.String()),
			zap.String("direction", string(entry.Direction)),
			zap.String("amount", entry.Amount.StringFixed(2)),
			zap.String("balance", result.Wallet.Balance.StringFixed(2)))
	} else {
		s.logger.Info("Wallet ledger entry already applied",
			zap.String("user_id", entry.UserID.String()),
			zap.String("transaction_id", result.Transaction.ID.String()))
	}
	return result, nil
}

// keyedMutex hands out one mutex per key and frees it when no one holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*refMutex)}
}

func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
