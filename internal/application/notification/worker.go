package notification

import (
	"context"
	"log/slog"
	"time"
)

// DefaultWorkerInterval replaces non-positive intervals.
const DefaultWorkerInterval = 10 * time.Second

// Worker drains the queue on a fixed interval until its context ends.
type Worker struct {
	svc      Service
	interval time.Duration
}

func NewWorker(svc Service, interval time.Duration) *Worker {
	if interval <= 0 {
		slog.Warn("invalid worker interval, using default", "interval", interval, "default", DefaultWorkerInterval)
		interval = DefaultWorkerInterval
	}
	return &Worker{svc: svc, interval: interval}
}

func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := w.svc.ProcessQueue(ctx); n > 0 {
				slog.Info("notification queue processed", "processed", n)
			}
		}
	}
}
