package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/techservice/notifier/internal/domain"
)

// archiveTimeout bounds each archive call; the tracker API carries no context.
const archiveTimeout = 5 * time.Second

// Archive persists results beyond the process lifetime. Get returns
// domain.ErrNotFound for unknown ids.
type Archive interface {
	Put(ctx context.Context, r domain.DeliveryResult) error
	Get(ctx context.Context, trackingID string) (domain.DeliveryResult, error)
}

// Tracker keeps the terminal DeliveryResult of every request for the
// lifetime of the process. Entries never expire and are never replaced.
// With an archive attached, results are also written through to it and
// lookups that miss the cache fall back to it.
type Tracker struct {
	results *cache.Cache
	archive Archive
}

func NewTracker() *Tracker {
	// Cleanup interval 0 disables the janitor goroutine; nothing expires.
	return &Tracker{results: cache.New(cache.NoExpiration, 0)}
}

// WithArchive attaches a write-through archive and returns t.
func (t *Tracker) WithArchive(a Archive) *Tracker {
	t.archive = a
	return t
}

// Record stores r under its tracking id. A second result for the same id
// is rejected with domain.ErrConflict. Archive failures are logged only.
func (t *Tracker) Record(r domain.DeliveryResult) error {
	if err := t.results.Add(r.TrackingID, r, cache.NoExpiration); err != nil {
		return fmt.Errorf("delivery %s already recorded: %w", r.TrackingID, domain.ErrConflict)
	}
	if t.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := t.archive.Put(ctx, r); err != nil {
			slog.Warn("could not archive delivery result", "tracking_id", r.TrackingID, "err", err)
		}
	}
	return nil
}

func (t *Tracker) Lookup(trackingID string) (domain.DeliveryResult, bool) {
	if v, ok := t.results.Get(trackingID); ok {
		return v.(domain.DeliveryResult), true
	}
	if t.archive == nil {
		return domain.DeliveryResult{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	r, err := t.archive.Get(ctx, trackingID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("delivery archive lookup failed", "tracking_id", trackingID, "err", err)
		}
		return domain.DeliveryResult{}, false
	}
	return r, true
}

// Between returns results whose SentAt falls within [start, end], oldest
// first. Nil bounds are open.
func (t *Tracker) Between(start, end *time.Time) []domain.DeliveryResult {
	var out []domain.DeliveryResult
	for _, item := range t.results.Items() {
		r := item.Object.(domain.DeliveryResult)
		if start != nil && r.SentAt.Before(*start) {
			continue
		}
		if end != nil && r.SentAt.After(*end) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

func (t *Tracker) Len() int {
	return t.results.ItemCount()
}
