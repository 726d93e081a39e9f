package http

import (
	"github.com/go-playground/validator/v10"

	customErr "github.com/wekeepgrowing/byway-payment/internal/domain/errors"
)

// CustomValidator plugs go-playground/validator into echo.
type CustomValidator struct {
	validator *validator.Validate
}

func NewCustomValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return customErr.NewValidationError("invalid request: %v", err)
	}
	return nil
}
