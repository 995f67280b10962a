package consumer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// ErrClosed is returned by Consume after Close
var ErrClosed = errors.New("consumer closed")

// MockConsumer serves messages from memory. A nack puts the message back.
type MockConsumer struct {
	logger   *zap.Logger
	messages chan models.IntakeMessage

	mu     sync.Mutex
	closed bool
	acked  []int64
}

// NewMockConsumer creates a MockConsumer preloaded with msgs
func NewMockConsumer(logger *zap.Logger, capacity int, msgs ...models.IntakeMessage) *MockConsumer {
	if capacity < len(msgs) {
		capacity = len(msgs)
	}
	mc := &MockConsumer{
		logger:   logger,
		messages: make(chan models.IntakeMessage, capacity+1),
	}
	for _, msg := range msgs {
		mc.messages <- msg
	}
	logger.Info("mock consumer ready", zap.Int("preloaded", len(msgs)))
	return mc
}

// Enqueue adds a message; it reports false when the queue is full or closed
func (m *MockConsumer) Enqueue(msg models.IntakeMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.messages <- msg:
		return true
	default:
		return false
	}
}

// Acked returns the evaluation ids acknowledged so far
func (m *MockConsumer) Acked() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.acked...)
}

func (m *MockConsumer) Consume(ctx context.Context) (*models.IntakeMessage, func(success bool), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case msg, ok := <-m.messages:
		if !ok {
			return nil, nil, ErrClosed
		}

		ack := func(success bool) {
			if success {
				m.mu.Lock()
				m.acked = append(m.acked, msg.EvaluationID)
				m.mu.Unlock()
				return
			}
			if !m.Enqueue(msg) {
				m.logger.Warn("mock consumer could not re-queue message",
					zap.Int64("evaluation_id", msg.EvaluationID))
			}
		}
		return &msg, ack, nil
	}
}

// Close closes the message channel.
func (m *MockConsumer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.messages)
	}
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
