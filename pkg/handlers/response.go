package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

// ApiResponse is the envelope of every successful JSON response.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// TenantMiddleware scopes a handler to the project named by the {pid} path value.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// errorStatus maps a service error to an HTTP status and error code.
// Unclassified errors use fallbackCode with status 500.
func errorStatus(err error, fallbackCode string) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidKind):
		return http.StatusBadRequest, "invalid_table_kind"
	case errors.Is(err, apperrors.ErrInvalidRule):
		return http.StatusBadRequest, "invalid_rule"
	case errors.Is(err, apperrors.ErrInvalidLink):
		return http.StatusBadRequest, "invalid_link"
	case errors.Is(err, apperrors.ErrRunActive):
		return http.StatusConflict, "validation_running"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case apperrors.IsLoadError(err):
		return http.StatusUnprocessableEntity, "unreadable_table"
	default:
		return http.StatusInternalServerError, fallbackCode
	}
}

// writeServiceError logs err and writes the mapped error response.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallbackCode, logMsg string, fields ...zap.Field) {
	status, code := errorStatus(err, fallbackCode)
	fields = append(fields, zap.Error(err))
	if status >= http.StatusInternalServerError {
		logger.Error(logMsg, fields...)
	} else {
		logger.Warn(logMsg, fields...)
	}
	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeBadRequest(w http.ResponseWriter, logger *zap.Logger, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
