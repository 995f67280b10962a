package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v2"
)

// Config is the complete reconciler configuration, loaded from one YAML file
type Config struct {
	ServiceName    string `yaml:"service_name"`
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"` // empty disables the gRPC health server
	Timezone       string `yaml:"timezone"`         // used to render alert timestamps

	HttpServer    HttpServerConfig    `yaml:"http_server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Alert         AlertConfig         `yaml:"alert"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
	Matching      MatchingConfig      `yaml:"matching"`
	Fields        FieldsConfig        `yaml:"fields"`
	KafkaProducer KafkaProducerConfig `yaml:"kafka_producer"` // event mirror, disabled without brokers
	KafkaConsumer KafkaConsumerConfig `yaml:"kafka_consumer"` // submission intake, disabled without brokers
	Worker        WorkerConfig        `yaml:"worker"`
}

// Load reads, defaults and validates the configuration at path.
// ${VAR} references are expanded from the environment.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse is Load for an in-memory document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset value
func (c *Config) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "invoice-reconciler"
	}
	if c.HttpListenAddr == "" {
		c.HttpListenAddr = ":8080"
		fmt.Printf("Warning: http_listen_addr not set, defaulting to %s\n", c.HttpListenAddr)
	}
	if c.Timezone == "" {
		c.Timezone = "America/Sao_Paulo"
		fmt.Printf("Warning: timezone not set, defaulting to %s\n", c.Timezone)
	}

	c.HttpServer.SetDefaults()
	c.Logging.SetDefaults()
	c.Monitoring.SetDefaults()
	c.Ledger.SetDefaults()
	c.Evaluation.SetDefaults()
	c.Alert.SetDefaults()
	c.EventBus.SetDefaults()
	c.Matching.SetDefaults()
	c.Fields.SetDefaults()
	c.KafkaProducer.SetDefaults()
	c.KafkaConsumer.SetDefaults()
	c.Worker.SetDefaults()
}

// Validate checks the whole configuration
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("configuration error: invalid timezone %q: %w", c.Timezone, err)
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"http_server", c.HttpServer.Validate},
		{"logging", c.Logging.Validate},
		{"ledger", c.Ledger.Validate},
		{"evaluation", c.Evaluation.Validate},
		{"alert", c.Alert.Validate},
		{"event_bus", c.EventBus.Validate},
		{"matching", c.Matching.Validate},
		{"kafka_producer", c.KafkaProducer.Validate},
		{"kafka_consumer", c.KafkaConsumer.Validate},
		{"worker", c.Worker.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s configuration error: %w", s.name, err)
		}
	}
	return nil
}

// Location returns the configured timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LogConfiguration prints the effective configuration without secrets
func (c *Config) LogConfiguration() {
	fmt.Printf("Reconciler Configuration:\n")
	fmt.Printf("  Service: %s\n", c.ServiceName)
	fmt.Printf("  HTTP Listen: %s\n", c.HttpListenAddr)
	fmt.Printf("  gRPC Listen: %s\n", orDisabled(c.GrpcListenAddr))
	fmt.Printf("  Timezone: %s\n", c.Timezone)
	c.Ledger.LogConfiguration()
	c.Evaluation.LogConfiguration()
	c.Alert.LogConfiguration()
	c.EventBus.LogConfiguration()
	fmt.Printf("  Matching Tolerance: %s\n", c.Matching.Tolerance)
	c.KafkaProducer.LogConfiguration()
	c.KafkaConsumer.LogConfiguration()
}

// parseDuration validates a duration field
func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

// duration returns value parsed, or fallback when it does not parse.
// Fields are validated on load, so fallback only applies to hand-built configs.
func duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func orDisabled(s string) string {
	if s == "" {
		return "[disabled]"
	}
	return s
}
