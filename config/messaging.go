package config

import (
	"fmt"
	"strings"
	"time"
)

// MockBroker as the only broker selects the in-process mock consumer
const MockBroker = "mock://local"

// KafkaProducerConfig defines configuration for the event mirror producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int    `yaml:"batch_size"`
	BatchTimeout string `yaml:"batch_timeout"`
	BatchBytes   int    `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"` // none, one or all
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout string `yaml:"write_timeout"`
	ReadTimeout  string `yaml:"read_timeout"`
}

// Enabled reports whether the mirror should run
func (c *KafkaProducerConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// SetDefaults sets reasonable default values for the producer
func (c *KafkaProducerConfig) SetDefaults() {
	if !c.Enabled() {
		return
	}
	if c.Topic == "" {
		c.Topic = "reconciliation-events"
		fmt.Printf("Warning: kafka_producer.topic not set, defaulting to %s\n", c.Topic)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == "" {
		c.BatchTimeout = "100ms"
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 1024 * 1024
	}
	if c.RequiredAcks == "" {
		c.RequiredAcks = "one"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "5s"
	}
}

// Validate validates the producer configuration
func (c *KafkaProducerConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	switch c.RequiredAcks {
	case "none", "one", "all":
	default:
		return fmt.Errorf("required_acks must be none, one or all, got %q", c.RequiredAcks)
	}
	for field, value := range map[string]string{
		"batch_timeout": c.BatchTimeout,
		"write_timeout": c.WriteTimeout,
		"read_timeout":  c.ReadTimeout,
	} {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *KafkaProducerConfig) BatchTimeoutDuration() time.Duration {
	return duration(c.BatchTimeout, 100*time.Millisecond)
}

func (c *KafkaProducerConfig) WriteTimeoutDuration() time.Duration {
	return duration(c.WriteTimeout, 5*time.Second)
}

func (c *KafkaProducerConfig) ReadTimeoutDuration() time.Duration {
	return duration(c.ReadTimeout, 5*time.Second)
}

// LogConfiguration logs the producer configuration
func (c *KafkaProducerConfig) LogConfiguration() {
	if !c.Enabled() {
		fmt.Printf("Event Mirror: [disabled]\n")
		return
	}
	fmt.Printf("Event Mirror (Kafka):\n")
	fmt.Printf("  Brokers: %s\n", strings.Join(c.Brokers, ","))
	fmt.Printf("  Topic: %s\n", c.Topic)
	fmt.Printf("  Required Acks: %s, Async: %v\n", c.RequiredAcks, c.Async)
}

// KafkaConsumerConfig defines configuration for the submission intake consumer
type KafkaConsumerConfig struct {
	Brokers           []string `yaml:"brokers"`            // e.g., ["kafka1:9092"], or ["mock://local"]
	Topic             string   `yaml:"topic"`              // Topic to consume from
	GroupID           string   `yaml:"group_id"`           // Consumer group ID
	SessionTimeout    string   `yaml:"session_timeout"`    // Kafka session timeout
	HeartbeatInterval string   `yaml:"heartbeat_interval"` // Kafka heartbeat interval
	AutoOffsetReset   string   `yaml:"auto_offset_reset"`  // earliest/latest
}

// Enabled reports whether the intake should run
func (c *KafkaConsumerConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Mock reports whether the mock consumer was requested
func (c *KafkaConsumerConfig) Mock() bool {
	return len(c.Brokers) == 1 && c.Brokers[0] == MockBroker
}

// SetDefaults sets reasonable default values for Kafka consumer configuration
func (c *KafkaConsumerConfig) SetDefaults() {
	if !c.Enabled() {
		return
	}
	if c.Topic == "" {
		c.Topic = "checklist-submissions"
		fmt.Printf("Warning: kafka_consumer.topic not set, defaulting to %s\n", c.Topic)
	}
	if c.GroupID == "" {
		c.GroupID = "invoice-reconciler"
		fmt.Printf("Warning: kafka_consumer.group_id not set, defaulting to %s\n", c.GroupID)
	}
	if c.SessionTimeout == "" {
		c.SessionTimeout = "30s"
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = "3s"
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "earliest"
	}
}

// Validate validates the consumer configuration
func (c *KafkaConsumerConfig) Validate() error {
	if !c.Enabled() || c.Mock() {
		return nil
	}
	if c.AutoOffsetReset != "earliest" && c.AutoOffsetReset != "latest" {
		return fmt.Errorf("auto_offset_reset must be earliest or latest, got %q", c.AutoOffsetReset)
	}
	if _, err := parseDuration("session_timeout", c.SessionTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("heartbeat_interval", c.HeartbeatInterval); err != nil {
		return err
	}
	return nil
}

func (c *KafkaConsumerConfig) SessionTimeoutDuration() time.Duration {
	return duration(c.SessionTimeout, 30*time.Second)
}

func (c *KafkaConsumerConfig) HeartbeatIntervalDuration() time.Duration {
	return duration(c.HeartbeatInterval, 3*time.Second)
}

// LogConfiguration logs the consumer configuration
func (c *KafkaConsumerConfig) LogConfiguration() {
	if !c.Enabled() {
		fmt.Printf("Submission Intake: [disabled]\n")
		return
	}
	fmt.Printf("Submission Intake (Kafka):\n")
	fmt.Printf("  Brokers: %s\n", strings.Join(c.Brokers, ","))
	fmt.Printf("  Topic: %s, Group: %s\n", c.Topic, c.GroupID)
}

// WorkerConfig defines configuration for the intake worker pool
type WorkerConfig struct {
	Concurrency        int    `yaml:"concurrency"`          // Number of concurrent workers
	ConsumerRetryDelay string `yaml:"consumer_retry_delay"` // Delay when consumer encounters errors
	ProcessTimeout     string `yaml:"process_timeout"`      // Bound on one submission
}

// SetDefaults sets reasonable default values for worker configuration
func (c *WorkerConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.ConsumerRetryDelay == "" {
		c.ConsumerRetryDelay = "5s"
	}
	if c.ProcessTimeout == "" {
		c.ProcessTimeout = "30s"
	}
}

// Validate validates the worker configuration
func (c *WorkerConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if _, err := parseDuration("consumer_retry_delay", c.ConsumerRetryDelay); err != nil {
		return err
	}
	_, err := parseDuration("process_timeout", c.ProcessTimeout)
	return err
}

func (c *WorkerConfig) ConsumerRetryDelayDuration() time.Duration {
	return duration(c.ConsumerRetryDelay, 5*time.Second)
}

func (c *WorkerConfig) ProcessTimeoutDuration() time.Duration {
	return duration(c.ProcessTimeout, 30*time.Second)
}
