package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// ErrMalformedMessage is returned for messages that cannot be decoded. They
// are committed so they do not block the partition.
var ErrMalformedMessage = errors.New("malformed intake message")

// KafkaConsumer reads intake messages from a consumer group
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *zap.Logger
}

// NewKafkaConsumer creates a new KafkaConsumer instance
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("incomplete kafka configuration: brokers, topic, group_id are all required")
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          1e6,
		MaxWait:           time.Second,
		SessionTimeout:    cfg.SessionTimeoutDuration(),
		HeartbeatInterval: cfg.HeartbeatIntervalDuration(),
		StartOffset:       kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Sugar().Errorf("kafka reader: "+msg, args...)
		}),
	}
	if cfg.AutoOffsetReset == "latest" {
		readerConfig.StartOffset = kafka.LastOffset
	}

	r := kafka.NewReader(readerConfig)

	logger.Info("kafka consumer created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID))

	return &KafkaConsumer{
		reader: r,
		logger: logger,
	}, nil
}

// Consume implements the Consumer interface by reading messages from Kafka
func (k *KafkaConsumer) Consume(ctx context.Context) (*models.IntakeMessage, func(success bool), error) {
	kafkaMsg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}

	msg, err := decodeIntake(kafkaMsg.Value)
	if err != nil {
		k.logger.Warn("discarding intake message",
			zap.Int64("offset", kafkaMsg.Offset),
			zap.Int("partition", kafkaMsg.Partition),
			zap.Error(err))
		_ = k.reader.CommitMessages(context.Background(), kafkaMsg)
		return nil, nil, err
	}

	ack := func(success bool) {
		if !success {
			k.logger.Info("intake message nacked, offset not committed",
				zap.Int64("offset", kafkaMsg.Offset),
				zap.Int64("evaluation_id", msg.EvaluationID))
			return
		}
		if err := k.reader.CommitMessages(context.Background(), kafkaMsg); err != nil {
			k.logger.Error("failed to commit offset",
				zap.Int64("offset", kafkaMsg.Offset), zap.Error(err))
		}
	}
	return msg, ack, nil
}

func decodeIntake(value []byte) (*models.IntakeMessage, error) {
	var msg models.IntakeMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.EvaluationID <= 0 {
		return nil, fmt.Errorf("%w: missing evaluationId", ErrMalformedMessage)
	}
	if _, err := models.ParseRole(msg.Role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

// Close implements the Consumer interface by closing the Kafka reader
func (k *KafkaConsumer) Close() error {
	k.logger.Info("closing kafka consumer")
	return k.reader.Close()
}

var _ Consumer = (*KafkaConsumer)(nil)
