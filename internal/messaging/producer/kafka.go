package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/events"
)

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
	topic  string
}

// NewKafkaProducer creates a new KafkaProducer
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "all":
		requiredAcks = kafka.RequireAll
	default:
		requiredAcks = kafka.RequireOne
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{}, // events of one unit keep their order

		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeoutDuration(),
		BatchBytes:   int64(cfg.BatchBytes),

		RequiredAcks: requiredAcks,
		Async:        cfg.Async,

		WriteTimeout: cfg.WriteTimeoutDuration(),
		ReadTimeout:  cfg.ReadTimeoutDuration(),

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Sugar().Errorf("kafka writer: "+msg, args...)
		}),
	}

	logger.Info("kafka producer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

func toMessage(ev events.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize event %s: %w", ev.ID, err)
	}
	key := ev.UnitName
	if key == "" {
		key = ev.ID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(ev.ID)},
			{Key: "event-kind", Value: []byte(ev.Kind)},
		},
	}, nil
}

// Publish sends one event
func (p *KafkaProducer) Publish(ctx context.Context, ev events.Event) error {
	msg, err := toMessage(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s to kafka: %w", ev.ID, err)
	}
	return nil
}

// PublishBatch sends events in one write
func (p *KafkaProducer) PublishBatch(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(evs))
	for i, ev := range evs {
		msg, err := toMessage(ev)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to batch write %d events to kafka: %w", len(evs), err)
	}
	p.logger.Debug("events written", zap.Int("count", len(evs)), zap.String("topic", p.topic))
	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Info("closing kafka producer (and flushing buffer)")
	return p.writer.Close()
}

var (
	_ Producer         = (*KafkaProducer)(nil)
	_ events.Publisher = (*KafkaProducer)(nil)
)
