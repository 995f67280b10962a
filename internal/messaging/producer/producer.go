package producer

import (
	"context"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/events"
)

// Producer publishes reconciliation events to a message queue
type Producer interface {
	// Publish sends a single event
	Publish(ctx context.Context, ev events.Event) error

	// PublishBatch sends events in order
	PublishBatch(ctx context.Context, evs []events.Event) error

	// Close flushes pending writes and closes the connection
	Close() error
}
