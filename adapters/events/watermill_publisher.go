package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/tiffinwaleofficial/student-app-sub003/ports"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a publisher for the session expiry topic
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     ports.SessionExpiredTopic,
	}
}

// PublishSessionExpired publishes a session expired event. Missing event
// identity and timestamp are filled in before publishing.
func (p *WatermillPublisher) PublishSessionExpired(ctx context.Context, event ports.SessionExpiredEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.EventID, payload)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
