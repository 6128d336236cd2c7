package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// maxBodyBytes bounds request bodies. A large invoice is a few hundred lines.
const maxBodyBytes = 4 << 20

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

// AuthFailedResponse is returned with 401 when every login strategy failed.
type AuthFailedResponse struct {
	Error   string               `json:"error"`
	Message string               `json:"message"`
	Trace   []models.LoginAttempt `json:"trace"`
}

// WriteFailedResponse is returned with 409 when a delivery was rolled back.
// Index is the failing line, or -1 for the header.
type WriteFailedResponse struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
	Index   int                     `json:"index"`
	Summary *models.DeliverySummary `json:"summary,omitempty"`
}

// decodeJSON reads the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}

// writeServiceError maps service errors to status codes.
func writeServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		authErr  *apperrors.AuthenticationFailedError
		writeErr *apperrors.WriteFailedError
		encErr   error
	)
	switch {
	case errors.As(err, &authErr):
		encErr = WriteJSON(w, http.StatusUnauthorized, AuthFailedResponse{
			Error:   "authentication_failed",
			Message: authErr.Error(),
			Trace:   authErr.Trace.Attempts(),
		})
	case errors.As(err, &writeErr):
		encErr = WriteJSON(w, http.StatusConflict, WriteFailedResponse{
			Error:   "write_failed",
			Message: logging.SanitizeError(writeErr),
			Index:   writeErr.Index,
		})
	case errors.Is(err, apperrors.ErrProfileNotFound):
		encErr = ErrorResponse(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, apperrors.ErrNoSession):
		encErr = ErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Login required")
	case errors.Is(err, apperrors.ErrSchemaUnavailable):
		encErr = ErrorResponse(w, http.StatusUnprocessableEntity, "schema_unavailable", logging.SanitizeError(err))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		encErr = ErrorResponse(w, http.StatusServiceUnavailable, "cancelled", "Request cancelled")
	default:
		logger.Error("Request failed", zap.String("error", logging.SanitizeError(err)))
		encErr = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Internal error")
	}
	if encErr != nil {
		logger.Error("Failed to write error response", zap.Error(encErr))
	}
}
