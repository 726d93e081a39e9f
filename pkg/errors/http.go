package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToHTTPError converts err into an echo HTTP error with an ErrorResponse body.
func ToHTTPError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}

	var coded Error
	if As(err, &coded) {
		status := ToHTTPStatus(coded.Code())
		message := coded.Error()
		if status >= http.StatusInternalServerError {
			// internal causes stay in the logs
			message = http.StatusText(status)
			var appErr *AppError
			if As(err, &appErr) {
				message = appErr.Message()
			}
		}
		return echo.NewHTTPError(status, ErrorResponse{Code: coded.Code(), Message: message})
	}

	if echoErr, ok := err.(*echo.HTTPError); ok {
		return echoErr
	}

	return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{
		Code:    ErrInternal,
		Message: http.StatusText(http.StatusInternalServerError),
	})
}
