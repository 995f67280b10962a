package consumer

import (
	"context"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// Consumer delivers submission intake messages.
type Consumer interface {
	// Consume blocks until a message is received or the context is cancelled.
	// ack(true) commits the message; ack(false) leaves it for redelivery.
	Consume(ctx context.Context) (msg *models.IntakeMessage, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
