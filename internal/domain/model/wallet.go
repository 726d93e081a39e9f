package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
)

// Wallet holds a user's internal balance. There is at most one wallet per user.
type Wallet struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"balance"`
	Currency  string          `gorm:"size:3;not null" json:"currency"`
	Version   int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time       `gorm:"default:now()" json:"created_at"`
	UpdatedAt time.Time       `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Wallet) TableName() string {
	return "wallets"
}

// NewWallet returns an empty wallet for userID.
func NewWallet(userID uuid.UUID, currency string) *Wallet {
	now := time.Now()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  NormalizeCurrency(currency),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BalanceMoney returns the balance as Money.
func (w *Wallet) BalanceMoney() Money {
	return Money{amount: w.Balance, currency: NormalizeCurrency(w.Currency)}
}

func (w *Wallet) AddAmount(amount decimal.Decimal, currency string) error {
	delta, err := w.delta(amount, currency)
	if err != nil {
		return err
	}
	balance, err := w.BalanceMoney().Add(delta)
	if err != nil {
		return err
	}
	w.apply(balance)
	return nil
}

// ReduceAmount leaves the wallet unchanged when the balance is insufficient.
func (w *Wallet) ReduceAmount(amount decimal.Decimal, currency string) error {
	delta, err := w.delta(amount, currency)
	if err != nil {
		return err
	}
	balance, err := w.BalanceMoney().Subtract(delta)
	if err != nil {
		return err
	}
	w.apply(balance)
	return nil
}

// HasSufficientBalance is advisory; ReduceAmount re-checks.
func (w *Wallet) HasSufficientBalance(amount decimal.Decimal, currency string) bool {
	m, err := NewMoney(amount, currency)
	if err != nil || m.currency != NormalizeCurrency(w.Currency) {
		return false
	}
	return w.Balance.GreaterThanOrEqual(m.amount)
}

func (w *Wallet) delta(amount decimal.Decimal, currency string) (Money, error) {
	if !amount.IsPositive() {
		return Money{}, domainerrors.ErrNonPositiveAmount
	}
	m, err := NewMoney(amount, currency)
	if err != nil {
		return Money{}, err
	}
	if m.currency != NormalizeCurrency(w.Currency) {
		return Money{}, domainerrors.ErrCurrencyMismatch
	}
	return m, nil
}

func (w *Wallet) apply(balance Money) {
	w.Balance = balance.amount
	w.Currency = balance.currency
	w.Version++
	w.UpdatedAt = time.Now()
}
