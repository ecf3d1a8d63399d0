package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/techservice/notifier/internal/application/notification"
	"github.com/techservice/notifier/internal/domain"
)

const dateLayout = "2006-01-02"

// NotificationHandler accepts notifications for delivery and reports on them.
type NotificationHandler struct {
	svc notification.Service
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type sendRequest struct {
	To           string              `json:"to"`
	Subject      string              `json:"subject"`
	Body         string              `json:"body"`
	IsHTML       bool                `json:"is_html"`
	TemplateName string              `json:"template_name"`
	TemplateData map[string]string   `json:"template_data"`
	Attachments  []domain.Attachment `json:"attachments"`
	MaxRetries   int                 `json:"max_retries"`
}

func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trackingID, err := h.svc.Enqueue(domain.NotificationRequest{
		To:           req.To,
		Subject:      req.Subject,
		Body:         req.Body,
		IsHTML:       req.IsHTML,
		TemplateName: req.TemplateName,
		TemplateData: req.TemplateData,
		Attachments:  req.Attachments,
		MaxRetries:   req.MaxRetries,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TrackingEnvelope{TrackingID: trackingID})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Lookup(chi.URLParam(r, "trackingId"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Statistics accepts optional start and end query parameters as RFC 3339
// timestamps or calendar dates. A date-only end covers that whole day.
func (h *NotificationHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseBound(q.Get("start"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseBound(q.Get("end"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		writeError(w, http.StatusBadRequest, "end precedes start")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.GetStatistics(start, end))
}

func parseBound(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
