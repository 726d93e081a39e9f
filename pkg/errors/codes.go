package errors

import "net/http"

// Error codes shared by every layer of the service.
const (
	ErrInternal              = "INTERNAL"
	ErrNotFound              = "NOT_FOUND"
	ErrInvalidArgument       = "INVALID_ARGUMENT"
	ErrUnauthenticated       = "UNAUTHENTICATED"
	ErrUnauthorized          = "UNAUTHORIZED"
	ErrConflict              = "CONFLICT"
	ErrTimeout               = "TIMEOUT"
	ErrBusinessRuleViolation = "BUSINESS_RULE_VIOLATION"
	ErrPayment               = "PAYMENT_ERROR"
	ErrInvalidSignature      = "INVALID_SIGNATURE"
)

var httpStatusByCode = map[string]int{
	ErrInternal:              http.StatusInternalServerError,
	ErrNotFound:              http.StatusNotFound,
	ErrInvalidArgument:       http.StatusBadRequest,
	ErrUnauthenticated:       http.StatusUnauthorized,
	ErrUnauthorized:          http.StatusForbidden,
	ErrConflict:              http.StatusConflict,
	ErrTimeout:               http.StatusGatewayTimeout,
	ErrBusinessRuleViolation: http.StatusUnprocessableEntity,
	ErrPayment:               http.StatusInternalServerError,
	ErrInvalidSignature:      http.StatusBadRequest,
}

// ToHTTPStatus maps an error code to an HTTP status. Unknown codes map to 500.
func ToHTTPStatus(code string) int {
	if status, ok := httpStatusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
