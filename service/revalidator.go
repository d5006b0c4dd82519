package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tiffinwaleofficial/student-app-sub003/metrics"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// DefaultRevalidateInterval is how often the held credential is re-checked
// against the backend. Local validation answers most callers; the remote
// check only catches server-side revocation, so it runs at low frequency.
const DefaultRevalidateInterval = 15 * time.Minute

// Revalidator periodically asks the backend whether the held credential is
// still honored. An explicit "no" publishes an expiry event for the
// coordinator to act on; a network failure is ignored, because the check is
// advisory and local validation remains authoritative.
type Revalidator struct {
	sessions *SessionStore
	backend  ports.SessionBackend
	events   ports.EventPublisher
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// NewRevalidator creates a revalidator. A non-positive interval falls back
// to DefaultRevalidateInterval.
func NewRevalidator(sessions *SessionStore, backend ports.SessionBackend, events ports.EventPublisher, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Revalidator {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Revalidator{
		sessions: sessions,
		backend:  backend,
		events:   events,
		interval: interval,
		logger:   logger.With("component", "revalidator"),
		metrics:  m,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the periodic check until Stop is called or the context ends
func (r *Revalidator) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.check(ctx)
			}
		}
	}()
}

// Stop ends the periodic check and waits for the loop to exit
func (r *Revalidator) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Revalidator) check(ctx context.Context) {
	if !r.sessions.IsAuthenticated() {
		return
	}

	cred, ok := r.sessions.Credential()
	if !ok {
		return
	}

	valid, err := r.backend.Validate(ctx, cred.AccessToken)
	if err != nil {
		r.metrics.ObserveRevalidation(metrics.ResultError)
		r.logger.Debug("remote revalidation unreachable", "error", err)
		return
	}

	if valid {
		r.metrics.ObserveRevalidation(metrics.ResultOK)
		return
	}

	r.metrics.ObserveRevalidation("invalid")
	r.logger.Info("backend no longer honors credential, signaling expiry")

	if err := r.events.PublishSessionExpired(ctx, ports.SessionExpiredEvent{
		Reason: "remote_validation",
	}); err != nil {
		r.logger.Warn("failed to publish expiry event", "error", err)
	}
}
