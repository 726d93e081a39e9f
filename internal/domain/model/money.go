package model

import (
	"strings"

	"github.com/shopspring/decimal"

	domainerrors "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
)

// Money is an immutable non-negative amount in a single currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NormalizeCurrency returns the upper-case ISO code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewMoney validates amount and normalizes the currency code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = NormalizeCurrency(currency)
	if currency == "" {
		return Money{}, domainerrors.ErrMissingCurrency
	}
	if amount.IsNegative() {
		return Money{}, domainerrors.ErrInvalidAmount
	}
	return Money{amount: amount, currency: currency}, nil
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }

func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, domainerrors.ErrCurrencyMismatch
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Subtract fails with InsufficientBalanceError when other exceeds m.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, domainerrors.ErrCurrencyMismatch
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, domainerrors.NewInsufficientBalanceError(other.amount, m.amount)
	}
	return Money{amount: result, currency: m.currency}, nil
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}
