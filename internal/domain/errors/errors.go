package errors

import (
	"errors"
	"fmt"

	apperrors "github.com/wekeepgrowing/byway-payment/pkg/errors"
)

var (
	ErrInvalidAmount     = apperrors.NewAppError(apperrors.ErrInvalidArgument, "amount must not be negative", nil)
	ErrNonPositiveAmount = apperrors.NewAppError(apperrors.ErrInvalidArgument, "amount must be greater than zero", nil)
	ErrCurrencyMismatch  = apperrors.NewAppError(apperrors.ErrInvalidArgument, "currency mismatch", nil)
	ErrMissingCurrency   = apperrors.NewAppError(apperrors.ErrInvalidArgument, "currency is required", nil)

	ErrCheckoutInProgress = apperrors.NewAppError(apperrors.ErrBusinessRuleViolation, "checkout already in progress", nil)

	// Persistence-level sentinels, mapped from unique constraint violations.
	ErrDuplicateTransactionID = errors.New("transaction id already exists")
	ErrDuplicateEnrollment    = errors.New("enrollment already exists")
)

// NewValidationError reports malformed input or metadata.
func NewValidationError(format string, args ...interface{}) error {
	return apperrors.NewAppError(apperrors.ErrInvalidArgument, fmt.Sprintf(format, args...), nil)
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(resource string, id interface{}) error {
	return apperrors.NewAppError(apperrors.ErrNotFound, fmt.Sprintf("%s %v not found", resource, id), nil)
}

// NewBusinessRuleViolation reports a well-formed request the domain refuses.
func NewBusinessRuleViolation(format string, args ...interface{}) error {
	return apperrors.NewAppError(apperrors.ErrBusinessRuleViolation, fmt.Sprintf(format, args...), nil)
}

// NewPaymentError reports a gateway or settlement failure.
func NewPaymentError(message string, cause error) error {
	return apperrors.NewAppError(apperrors.ErrPayment, message, cause)
}

// NewInvalidSignatureError reports a webhook whose signature could not be verified.
func NewInvalidSignatureError(cause error) error {
	return apperrors.NewAppError(apperrors.ErrInvalidSignature, "invalid webhook signature", cause)
}

func IsValidation(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrInvalidArgument)
}

func IsNotFound(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrNotFound)
}

func IsBusinessRuleViolation(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrBusinessRuleViolation)
}

// IsPaymentError is also true for signature failures.
func IsPaymentError(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrPayment) || IsInvalidSignature(err)
}

func IsInvalidSignature(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrInvalidSignature)
}
