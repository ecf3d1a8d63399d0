package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/techservice/notifier/internal/application/stats"
	"github.com/techservice/notifier/internal/application/template"
	"github.com/techservice/notifier/internal/domain"
	"github.com/techservice/notifier/internal/pkg/clock"
	"github.com/techservice/notifier/internal/pkg/id"
	"github.com/techservice/notifier/internal/pkg/validate"
)

// Transport delivers one rendered message. Errors wrapping
// domain.ErrConfiguration or domain.ErrInvalidRecipient are permanent;
// any other error is treated as transient and retried.
type Transport interface {
	Send(ctx context.Context, msg domain.Message) error
}

type Renderer interface {
	Render(name string, data map[string]string) template.Rendered
}

type Blacklist interface {
	IsBlocked(address string) bool
}

type Tracker interface {
	Record(r domain.DeliveryResult) error
	Lookup(trackingID string) (domain.DeliveryResult, bool)
	Between(start, end *time.Time) []domain.DeliveryResult
}

type Stats interface {
	RecordAttempt(template string)
	RecordSuccess()
	RecordFailure(reason string)
	Snapshot(pending int) domain.Statistics
}

type Service interface {
	// Enqueue validates req and queues it for delivery, returning its tracking id.
	Enqueue(req domain.NotificationRequest) (string, error)
	// ProcessQueue drains the requests queued at call time and returns how
	// many were attempted. It performs network I/O and belongs on a worker.
	ProcessQueue(ctx context.Context) int
	Lookup(trackingID string) (domain.DeliveryResult, error)
	GetStatistics(start, end *time.Time) domain.Statistics
}

// Deps wires a Service. RetryBaseDelay of zero re-attempts failed
// requests on the next drain.
type Deps struct {
	Queue             *Queue
	Templates         Renderer
	Blacklist         Blacklist
	Transport         Transport
	Tracker           Tracker
	Stats             Stats
	Clock             clock.Clock
	DefaultMaxRetries int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
}

type service struct {
	queue             *Queue
	templates         Renderer
	blacklist         Blacklist
	transport         Transport
	tracker           Tracker
	stats             Stats
	clock             clock.Clock
	defaultMaxRetries int
	retryBaseDelay    time.Duration
	retryMaxDelay     time.Duration
}

func NewService(d Deps) Service {
	s := &service{
		queue:             d.Queue,
		templates:         d.Templates,
		blacklist:         d.Blacklist,
		transport:         d.Transport,
		tracker:           d.Tracker,
		stats:             d.Stats,
		clock:             d.Clock,
		defaultMaxRetries: d.DefaultMaxRetries,
		retryBaseDelay:    d.RetryBaseDelay,
		retryMaxDelay:     d.RetryMaxDelay,
	}
	if s.queue == nil {
		s.queue = NewQueue()
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.defaultMaxRetries <= 0 {
		s.defaultMaxRetries = domain.DefaultMaxRetries
	}
	return s
}

func (s *service) Enqueue(req domain.NotificationRequest) (string, error) {
	if !validate.Email(req.To) {
		return "", fmt.Errorf("recipient %q: %w", req.To, domain.ErrInvalidRecipient)
	}
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}

	now := s.clock.Now()
	r := req
	r.ID = id.NewAt(now)
	r.RetryCount = 0
	if r.MaxRetries <= 0 {
		r.MaxRetries = s.defaultMaxRetries
	}
	r.CreatedAt = now
	r.NextAttemptAt = now
	if req.TemplateData != nil {
		r.TemplateData = make(map[string]string, len(req.TemplateData))
		for k, v := range req.TemplateData {
			r.TemplateData[k] = v
		}
	}
	r.Attachments = append([]domain.Attachment(nil), req.Attachments...)

	s.queue.Enqueue(&r)
	slog.Debug("notification enqueued", "tracking_id", r.ID, "to", r.To, "template", r.TemplateName)
	return r.ID, nil
}

func (s *service) ProcessQueue(ctx context.Context) int {
	pending := s.queue.Len()
	processed := 0
	for i := 0; i < pending; i++ {
		if ctx.Err() != nil {
			break
		}
		req, ok := s.queue.Dequeue()
		if !ok {
			break
		}
		if req.NextAttemptAt.After(s.clock.Now()) {
			s.queue.Enqueue(req)
			continue
		}
		s.deliver(ctx, req)
		processed++
	}
	return processed
}

func (s *service) deliver(ctx context.Context, req *domain.NotificationRequest) {
	if req.RetryCount >= req.MaxRetries {
		slog.Warn("notification abandoned", "tracking_id", req.ID, "to", req.To, "retry_count", req.RetryCount)
		s.stats.RecordFailure(stats.ReasonAbandoned)
		s.record(req, req.Subject, req.RetryCount, errors.New("retry limit reached"))
		return
	}

	msg := domain.Message{
		To:          req.To,
		Subject:     req.Subject,
		Body:        req.Body,
		IsHTML:      req.IsHTML,
		Attachments: req.Attachments,
	}
	if req.TemplateName != "" {
		rendered := s.templates.Render(req.TemplateName, req.TemplateData)
		msg.Subject = rendered.Subject
		msg.Body = rendered.Body
		msg.IsHTML = true
	}

	if s.blacklist.IsBlocked(req.To) {
		slog.Info("notification refused, recipient blacklisted", "tracking_id", req.ID, "to", req.To)
		s.stats.RecordFailure(stats.ReasonBlacklisted)
		s.record(req, msg.Subject, req.RetryCount, domain.ErrBlacklisted)
		return
	}

	s.stats.RecordAttempt(req.TemplateName)
	err := s.transport.Send(ctx, msg)
	if err == nil {
		s.stats.RecordSuccess()
		s.record(req, msg.Subject, req.RetryCount+1, nil)
		slog.Info("notification delivered", "tracking_id", req.ID, "to", req.To, "attempt", req.RetryCount+1)
		return
	}

	if reason, permanent := permanentReason(err); permanent {
		slog.Error("notification failed permanently", "tracking_id", req.ID, "to", req.To, "reason", reason, "err", err)
		s.stats.RecordFailure(reason)
		s.record(req, msg.Subject, req.RetryCount+1, err)
		return
	}

	if ctx.Err() != nil {
		s.queue.Enqueue(req)
		slog.Info("notification delivery interrupted, requeued", "tracking_id", req.ID, "to", req.To, "err", err)
		return
	}

	req.RetryCount++
	if req.RetryCount < req.MaxRetries {
		req.NextAttemptAt = s.clock.Now().Add(s.backoff(req.RetryCount))
		s.queue.Enqueue(req)
		slog.Warn("notification delivery failed, will retry",
			"tracking_id", req.ID, "to", req.To, "retry_count", req.RetryCount, "next_attempt_at", req.NextAttemptAt, "err", err)
		return
	}
	slog.Error("notification delivery failed, retries exhausted", "tracking_id", req.ID, "to", req.To, "retry_count", req.RetryCount, "err", err)
	s.stats.RecordFailure(stats.ReasonRetryExhausted)
	s.record(req, msg.Subject, req.RetryCount, err)
}

// permanentReason classifies transport errors that retrying cannot fix.
func permanentReason(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return stats.ReasonConfiguration, true
	case errors.Is(err, domain.ErrInvalidRecipient):
		return stats.ReasonInvalidRecipient, true
	}
	return "", false
}

// backoff doubles from retryBaseDelay per failed attempt, capped at retryMaxDelay.
func (s *service) backoff(retryCount int) time.Duration {
	if s.retryBaseDelay <= 0 {
		return 0
	}
	d := s.retryBaseDelay
	for i := 1; i < retryCount; i++ {
		d *= 2
		if s.retryMaxDelay > 0 && d >= s.retryMaxDelay {
			return s.retryMaxDelay
		}
	}
	if s.retryMaxDelay > 0 && d > s.retryMaxDelay {
		return s.retryMaxDelay
	}
	return d
}

func (s *service) record(req *domain.NotificationRequest, subject string, attempts int, cause error) {
	res := domain.DeliveryResult{
		TrackingID:   req.ID,
		Recipient:    req.To,
		Subject:      subject,
		TemplateName: req.TemplateName,
		SentAt:       s.clock.Now(),
		Success:      cause == nil,
		Attempts:     attempts,
	}
	if cause != nil {
		msg := cause.Error()
		res.ErrorMessage = &msg
	}
	if err := s.tracker.Record(res); err != nil {
		slog.Warn("delivery result not recorded", "tracking_id", req.ID, "err", err)
	}
}

func (s *service) Lookup(trackingID string) (domain.DeliveryResult, error) {
	res, ok := s.tracker.Lookup(trackingID)
	if !ok {
		return domain.DeliveryResult{}, fmt.Errorf("delivery %s: %w", trackingID, domain.ErrNotFound)
	}
	return res, nil
}

// GetStatistics combines the live counters with a per-day breakdown of
// tracked outcomes inside [start, end].
func (s *service) GetStatistics(start, end *time.Time) domain.Statistics {
	out := s.stats.Snapshot(s.queue.Len())
	out.StartDate, out.EndDate = start, end

	byDay := make(map[string]*domain.DailyCount)
	for _, r := range s.tracker.Between(start, end) {
		key := r.SentAt.UTC().Format("2006-01-02")
		dc, ok := byDay[key]
		if !ok {
			dc = &domain.DailyCount{Date: key}
			byDay[key] = dc
		}
		if r.Success {
			dc.Succeeded++
		} else {
			dc.Failed++
		}
	}
	out.Daily = make([]domain.DailyCount, 0, len(byDay))
	for _, dc := range byDay {
		out.Daily = append(out.Daily, *dc)
	}
	sort.Slice(out.Daily, func(i, j int) bool { return out.Daily[i].Date < out.Daily[j].Date })
	return out
}
