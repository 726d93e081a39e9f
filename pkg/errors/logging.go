package errors

import (
	"net/http"

	"go.uber.org/zap"
)

// LogError logs err with its code. Client-side failures (4xx) are logged at warn level.
func LogError(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err == nil {
		return
	}

	allFields := make([]zap.Field, 0, len(fields)+2)
	allFields = append(allFields, zap.Error(err))

	code := CodeOf(err)
	allFields = append(allFields, zap.String("error_code", code))
	allFields = append(allFields, fields...)

	if ToHTTPStatus(code) < http.StatusInternalServerError {
		logger.Warn(msg, allFields...)
		return
	}
	logger.Error(msg, allFields...)
}
