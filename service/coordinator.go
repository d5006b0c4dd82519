package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/tiffinwaleofficial/student-app-sub003/metrics"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// ExpiryCoordinator subscribes to the process-wide expiry topic and turns
// any burst of "no longer authorized" signals into exactly one logout. Its
// guard flag is independent of the session store's own reentrancy guard;
// the two agree but are checked separately.
type ExpiryCoordinator struct {
	sessions   *SessionStore
	subscriber message.Subscriber
	logger     *slog.Logger
	metrics    *metrics.Metrics

	handling atomic.Bool
	wg       sync.WaitGroup
}

// NewExpiryCoordinator creates a coordinator over the given subscriber
func NewExpiryCoordinator(sessions *SessionStore, subscriber message.Subscriber, logger *slog.Logger, m *metrics.Metrics) *ExpiryCoordinator {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExpiryCoordinator{
		sessions:   sessions,
		subscriber: subscriber,
		logger:     logger.With("component", "coordinator"),
		metrics:    m,
	}
}

// Start subscribes to the expiry topic and dispatches deliveries until the
// context is canceled. Each delivery is handled on its own goroutine so a
// slow logout never blocks the subscription.
func (c *ExpiryCoordinator) Start(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, ports.SessionExpiredTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to expiry topic: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range messages {
			msg.Ack()
			c.wg.Add(1)
			go func(msg *message.Message) {
				defer c.wg.Done()
				c.handle(ctx, msg)
			}(msg)
		}
	}()

	return nil
}

// Wait blocks until the dispatch loop and all in-flight handlers have
// finished after the subscription context was canceled
func (c *ExpiryCoordinator) Wait() {
	c.wg.Wait()
}

func (c *ExpiryCoordinator) handle(ctx context.Context, msg *message.Message) {
	var event ports.SessionExpiredEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Warn("discarding unreadable expiry event", "error", err)
		return
	}

	// Whoever wins the flag runs the logout; everyone else drops their
	// signal. The check and the set are a single atomic step.
	if !c.handling.CompareAndSwap(false, true) {
		c.metrics.ObserveExpiryEvent("dropped")
		c.logger.Debug("expiry signal dropped, logout already in hand", "event_id", event.EventID)
		return
	}
	// Released unconditionally so a failing logout cannot wedge the
	// coordinator into ignoring every future signal
	defer c.handling.Store(false)

	c.metrics.ObserveExpiryEvent("handled")
	c.logger.Info("session expiry signaled", "reason", event.Reason, "event_id", event.EventID)

	if err := c.sessions.logout(ctx, "expired"); err != nil {
		c.logger.Error("expiry logout failed", "error", err)
	}
}
