package ports

import (
	"context"
	"time"
)

// SessionExpiredTopic is the process-wide channel for expiry signals. Any
// component may publish to it; only the lifecycle coordinator subscribes.
const SessionExpiredTopic = "auth.session_expired"

// SessionExpiredEvent signals that an in-flight request was rejected as
// unauthorized and the local session should be torn down
type SessionExpiredEvent struct {
	EventID   string    `json:"event_id"`
	Reason    string    `json:"reason"`
	EmittedAt time.Time `json:"emitted_at"`
}

// EventPublisher publishes session lifecycle events
type EventPublisher interface {
	PublishSessionExpired(ctx context.Context, event SessionExpiredEvent) error
}
