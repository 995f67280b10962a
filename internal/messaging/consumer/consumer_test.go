package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

func TestDecodeIntake(t *testing.T) {
	msg, err := decodeIntake([]byte(`{"evaluationId": 42, "role": "estoquista"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.EvaluationID)
	assert.Equal(t, "estoquista", msg.Role)

	tests := map[string]string{
		"not json":     `{`,
		"missing id":   `{"role": "primary"}`,
		"unknown role": `{"evaluationId": 1, "role": "manager"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeIntake([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestNewKafkaConsumer_Incomplete(t *testing.T) {
	_, err := NewKafkaConsumer(config.KafkaConsumerConfig{Brokers: []string{"k:9092"}, Topic: "t"}, zap.NewNop())
	assert.Error(t, err)
}

func TestMockConsumer_AckAndNack(t *testing.T) {
	mc := NewMockConsumer(zap.NewNop(), 4,
		models.IntakeMessage{EvaluationID: 1},
		models.IntakeMessage{EvaluationID: 2, Role: "primary"},
	)
	ctx := context.Background()

	msg, ack, err := mc.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.EvaluationID)
	ack(false)

	msg, ack, err = mc.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.EvaluationID)
	ack(true)

	msg, ack, err = mc.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.EvaluationID, "nacked message is redelivered")
	ack(true)

	assert.Equal(t, []int64{2, 1}, mc.Acked())
}

func TestMockConsumer_ContextAndClose(t *testing.T) {
	mc := NewMockConsumer(zap.NewNop(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := mc.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, mc.Close())
	require.NoError(t, mc.Close())
	_, _, err = mc.Consume(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, mc.Enqueue(models.IntakeMessage{EvaluationID: 3}))
}
