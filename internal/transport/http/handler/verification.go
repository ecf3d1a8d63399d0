package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/techservice/notifier/internal/application/notification"
	"github.com/techservice/notifier/internal/application/verification"
	"github.com/techservice/notifier/internal/domain"
)

// VerificationHandler issues, verifies and resends verification codes.
// Issued codes are mailed through the notification queue and never
// returned in a response body.
type VerificationHandler struct {
	codes         verification.Service
	notifications notification.Service
}

func NewVerificationHandler(codes verification.Service, notifications notification.Service) *VerificationHandler {
	return &VerificationHandler{codes: codes, notifications: notifications}
}

type verifyRequest struct {
	Email string          `json:"email"`
	Code  string          `json:"code"`
	Type  domain.CodeType `json:"type"`
}

type resendRequest struct {
	Email string          `json:"email"`
	Type  domain.CodeType `json:"type"`
}

// resultStatus maps verification outcomes to response codes.
var resultStatus = map[verification.Kind]int{
	verification.KindVerified:       http.StatusOK,
	verification.KindNotFound:       http.StatusNotFound,
	verification.KindExpired:        http.StatusGone,
	verification.KindAlreadyUsed:    http.StatusConflict,
	verification.KindInvalidCode:    http.StatusUnprocessableEntity,
	verification.KindRetryExhausted: http.StatusTooManyRequests,
}

func (h *VerificationHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req verification.IssueParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.codes.IssueCode(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	h.mail(w, r, v)
}

func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.codes.VerifyCode(r.Context(), req.Email, req.Code, req.Type)
	if err != nil {
		httpError(w, err)
		return
	}
	status, ok := resultStatus[res.Kind]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (h *VerificationHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := h.codes.ResendCode(r.Context(), req.Email, req.Type)
	if err != nil {
		httpError(w, err)
		return
	}
	h.mail(w, r, v)
}

func (h *VerificationHandler) mail(w http.ResponseWriter, _ *http.Request, v *domain.VerificationCode) {
	trackingID, err := h.notifications.Enqueue(verification.CodeEmail(v))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, IssuedEnvelope{
		CodeID:     v.ID,
		Email:      v.Email,
		Type:       v.Type,
		ExpiresAt:  v.ExpiresAt.UTC().Format(time.RFC3339),
		MaxRetries: v.MaxRetries,
		TrackingID: trackingID,
	})
}
