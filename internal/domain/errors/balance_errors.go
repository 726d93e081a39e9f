package errors

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/wekeepgrowing/byway-payment/pkg/errors"
)

// InsufficientBalanceError is returned when a debit exceeds the available balance.
type InsufficientBalanceError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %s, available %s", e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Code() string {
	return apperrors.ErrBusinessRuleViolation
}

func (e *InsufficientBalanceError) Unwrap() error {
	return nil
}

func NewInsufficientBalanceError(requested, available decimal.Decimal) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		Requested: requested,
		Available: available,
	}
}
