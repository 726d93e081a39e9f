package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
)

func usd(t *testing.T, amount string) Money {
	t.Helper()
	m, err := NewMoney(decimal.RequireFromString(amount), "usd")
	require.NoError(t, err)
	return m
}

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.NewFromInt(10), " usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", m.Currency())

	_, err = NewMoney(decimal.NewFromInt(-1), "USD")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAmount)

	_, err = NewMoney(decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, domainerrors.ErrMissingCurrency)

	zero, err := NewMoney(decimal.Zero, "USD")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}

func TestMoneyAddSubtractRoundTrip(t *testing.T) {
	a := usd(t, "120.50")
	b := usd(t, "19.99")

	sum, err := a.Add(b)
	require.NoError(t, err)
	back, err := sum.Subtract(b)
	require.NoError(t, err)

	assert.True(t, back.Equal(a))
	assert.Equal(t, "140.49 USD", sum.String())
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	inr, err := NewMoney(decimal.NewFromInt(5), "INR")
	require.NoError(t, err)

	_, err = usd(t, "5").Add(inr)
	assert.ErrorIs(t, err, domainerrors.ErrCurrencyMismatch)

	_, err = usd(t, "5").Subtract(inr)
	assert.ErrorIs(t, err, domainerrors.ErrCurrencyMismatch)
}

func TestMoneySubtractInsufficient(t *testing.T) {
	_, err := usd(t, "10").Subtract(usd(t, "25"))

	var balanceErr *domainerrors.InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	assert.True(t, balanceErr.Requested.Equal(decimal.NewFromInt(25)))
	assert.True(t, balanceErr.Available.Equal(decimal.NewFromInt(10)))
}
