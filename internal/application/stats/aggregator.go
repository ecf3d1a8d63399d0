package stats

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/techservice/notifier/internal/domain"
)

// Aggregator holds monotonic delivery counters. Each update runs in one
// critical section; the same events are mirrored to Prometheus.
type Aggregator struct {
	mu          sync.Mutex
	totalSent   int64
	succeeded   int64
	failed      int64
	abandoned   int64
	blacklisted int64
	byTemplate  map[string]int64

	sentTotal      *prometheus.CounterVec
	succeededTotal prometheus.Counter
	failedTotal    *prometheus.CounterVec
}

// Failure reasons used as the "reason" label.
const (
	ReasonBlacklisted      = "blacklisted"
	ReasonRetryExhausted   = "retry_exhausted"
	ReasonAbandoned        = "abandoned"
	ReasonConfiguration    = "configuration"
	ReasonInvalidRecipient = "invalid_recipient"
)

// NewAggregator registers the delivery metrics on reg (prometheus.DefaultRegisterer
// when nil). queueDepth is sampled when metrics are scraped.
func NewAggregator(reg prometheus.Registerer, queueDepth func() int) (*Aggregator, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Aggregator{
		byTemplate: make(map[string]int64),
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Transport delivery attempts",
		}, []string{"template"}),
		succeededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_succeeded_total",
			Help: "Notifications delivered successfully",
		}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notifications that permanently failed",
		}, []string{"reason"}),
	}
	var err error
	if a.sentTotal, err = register(reg, a.sentTotal); err != nil {
		return nil, err
	}
	if a.succeededTotal, err = register(reg, a.succeededTotal); err != nil {
		return nil, err
	}
	if a.failedTotal, err = register(reg, a.failedTotal); err != nil {
		return nil, err
	}
	if queueDepth != nil {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "notifications_queue_depth",
			Help: "Requests waiting in the delivery queue",
		}, func() float64 { return float64(queueDepth()) })
		if _, err := register(reg, gauge); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAttempt counts one transport send attempt.
func (a *Aggregator) RecordAttempt(template string) {
	if template == "" {
		template = "none"
	}
	a.mu.Lock()
	a.totalSent++
	a.byTemplate[template]++
	a.mu.Unlock()
	a.sentTotal.WithLabelValues(template).Inc()
}

func (a *Aggregator) RecordSuccess() {
	a.mu.Lock()
	a.succeeded++
	a.mu.Unlock()
	a.succeededTotal.Inc()
}

// RecordFailure counts a permanent failure. Blacklisted and abandoned
// requests are also tallied separately.
func (a *Aggregator) RecordFailure(reason string) {
	a.mu.Lock()
	a.failed++
	switch reason {
	case ReasonBlacklisted:
		a.blacklisted++
	case ReasonAbandoned:
		a.abandoned++
	}
	a.mu.Unlock()
	a.failedTotal.WithLabelValues(reason).Inc()
}

// Snapshot copies the counters. pending is supplied by the caller.
func (a *Aggregator) Snapshot(pending int) domain.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	byTemplate := make(map[string]int64, len(a.byTemplate))
	for k, v := range a.byTemplate {
		byTemplate[k] = v
	}
	return domain.Statistics{
		TotalSent:   a.totalSent,
		Succeeded:   a.succeeded,
		Failed:      a.failed,
		Abandoned:   a.abandoned,
		Blacklisted: a.blacklisted,
		Pending:     pending,
		ByTemplate:  byTemplate,
	}
}
