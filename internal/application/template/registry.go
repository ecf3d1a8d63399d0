package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/techservice/notifier/internal/domain"
)

// Built-in template names.
const (
	ServiceRequestCreated = "service-request-created"
	TechnicianAssigned    = "technician-assigned"
	ServiceCompleted      = "service-completed"
	UrgentRequest         = "urgent-request"
	Fallback              = "default"
)

// Source reads and writes the persisted template set. Load returns
// domain.ErrNotFound when no template set exists yet.
type Source interface {
	Load(ctx context.Context) ([]domain.Template, error)
	Save(ctx context.Context, templates []domain.Template) error
}

// Rendered is the result of substituting data into a template.
type Rendered struct {
	TemplateName string
	Subject      string
	Body         string
}

// Registry caches templates by name. It is filled once by Load; cached
// entries are values and are never modified after that.
type Registry struct {
	source    Source
	mu        sync.RWMutex
	templates map[string]domain.Template
}

func NewRegistry(source Source) *Registry {
	return &Registry{source: source, templates: make(map[string]domain.Template)}
}

// Load fills the cache from the source. An absent or empty source is
// replaced by the built-in set, which is written back for future loads.
func (r *Registry) Load(ctx context.Context) (int, error) {
	loaded, err := r.source.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("load templates: %w", err)
	}
	if len(loaded) == 0 {
		loaded = Defaults()
		if err := r.source.Save(ctx, loaded); err != nil {
			slog.Warn("could not persist default templates", "err", err)
		} else {
			slog.Info("persisted default templates", "count", len(loaded))
		}
	}

	m := make(map[string]domain.Template, len(loaded))
	for _, t := range loaded {
		m[t.Name] = t
	}
	r.mu.Lock()
	r.templates = m
	r.mu.Unlock()
	slog.Info("templates loaded", "count", len(m))
	return len(m), nil
}

// Get returns a copy of the named template.
func (r *Registry) Get(name string) (domain.Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Names lists cached template names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render substitutes {Key} placeholders in the named template. Unknown
// names fall back to the generic template; placeholders without data are
// left as they are.
func (r *Registry) Render(name string, data map[string]string) Rendered {
	t, ok := r.Get(name)
	if !ok {
		slog.Warn("unknown template, using fallback", "template", name)
		t = fallbackTemplate()
	}
	return Rendered{
		TemplateName: t.Name,
		Subject:      substitute(t.Subject, data),
		Body:         substitute(t.Body, data),
	}
}

func substitute(s string, data map[string]string) string {
	if len(data) == 0 {
		return s
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	// Single pass: substituted values are never re-scanned for placeholders.
	return strings.NewReplacer(pairs...).Replace(s)
}

func fallbackTemplate() domain.Template {
	return domain.Template{Name: Fallback, Subject: domain.DefaultSubject, Body: "{Message}"}
}

// Defaults returns the built-in template set.
func Defaults() []domain.Template {
	return []domain.Template{
		{
			Name:    ServiceRequestCreated,
			Subject: "Service request #{RequestId} received",
			Body: `<p>Dear {CustomerName},</p>
<p>We have received your service request <strong>#{RequestId}</strong>: {Title}.</p>
<p>Our team will review it and assign a technician shortly. You can follow its status at any time.</p>
<p>Technical Service</p>`,
		},
		{
			Name:    TechnicianAssigned,
			Subject: "Technician assigned to request #{RequestId}",
			Body: `<p>Dear {CustomerName},</p>
<p>{TechnicianName} has been assigned to your service request <strong>#{RequestId}</strong>: {Title}.</p>
<p>Scheduled date: {ScheduledDate}</p>
<p>Technical Service</p>`,
		},
		{
			Name:    ServiceCompleted,
			Subject: "Service request #{RequestId} completed",
			Body: `<p>Dear {CustomerName},</p>
<p>Your service request <strong>#{RequestId}</strong>: {Title} has been completed.</p>
<p>Resolution: {Resolution}</p>
<p>Thank you for choosing us.</p>
<p>Technical Service</p>`,
		},
		{
			Name:    UrgentRequest,
			Subject: "URGENT: service request #{RequestId}",
			Body: `<p>An urgent service request needs attention.</p>
<p>Request: <strong>#{RequestId}</strong> {Title}<br>
Customer: {CustomerName}<br>
Priority: {Priority}</p>
<p>{Description}</p>`,
		},
	}
}
