package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/techservice/notifier/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// IssuedEnvelope describes a freshly issued code without revealing it.
type IssuedEnvelope struct {
	CodeID     string          `json:"code_id"`
	Email      string          `json:"email"`
	Type       domain.CodeType `json:"type"`
	ExpiresAt  string          `json:"expires_at"`
	MaxRetries int             `json:"max_retries"`
	TrackingID string          `json:"tracking_id"`
}

// TrackingEnvelope is returned when a notification is accepted for delivery.
type TrackingEnvelope struct {
	TrackingID string `json:"tracking_id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpError maps domain sentinels to status codes. Anything unrecognised is
// logged and reported as a 500 without its detail.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBadRequest), errors.Is(err, domain.ErrInvalidRecipient):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
