package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/extract"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/models"
)

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	IdleTimeout     string `yaml:"idle_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	MaxHeaderBytes  int    `yaml:"max_header_bytes"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
}

func (c *HttpServerConfig) SetDefaults() {
	if c.ReadTimeout == "" {
		c.ReadTimeout = "10s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "60s"
	}
	if c.IdleTimeout == "" {
		c.IdleTimeout = "120s"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "15s"
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 1 << 20
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

func (c *HttpServerConfig) Validate() error {
	for field, value := range map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"idle_timeout":     c.IdleTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *HttpServerConfig) ReadTimeoutDuration() time.Duration {
	return duration(c.ReadTimeout, 10*time.Second)
}

func (c *HttpServerConfig) WriteTimeoutDuration() time.Duration {
	return duration(c.WriteTimeout, 60*time.Second)
}

func (c *HttpServerConfig) IdleTimeoutDuration() time.Duration {
	return duration(c.IdleTimeout, 120*time.Second)
}

func (c *HttpServerConfig) ShutdownTimeoutDuration() time.Duration {
	return duration(c.ShutdownTimeout, 15*time.Second)
}

// LoggingConfig selects the zap encoder and level
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be json or console, got %q", c.Format)
	}
	return nil
}

// MonitoringConfig defines the metrics and health endpoints
type MonitoringConfig struct {
	EnableMetrics   bool   `yaml:"enable_metrics"`
	MetricsPath     string `yaml:"metrics_path"`
	HealthCheckPath string `yaml:"health_check_path"`
}

func (c *MonitoringConfig) SetDefaults() {
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
}

// EvaluationConfig points at the checklist platform
type EvaluationConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout string `yaml:"timeout"`
	// When set, evaluations of other checklists are acknowledged and ignored
	PrimaryChecklistID   int64 `yaml:"primary_checklist_id"`
	SecondaryChecklistID int64 `yaml:"secondary_checklist_id"`
}

func (c *EvaluationConfig) SetDefaults() {
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
}

func (c *EvaluationConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL, got %q", c.BaseURL)
	}
	_, err := parseDuration("timeout", c.Timeout)
	return err
}

func (c *EvaluationConfig) TimeoutDuration() time.Duration {
	return duration(c.Timeout, 10*time.Second)
}

// ChecklistFor returns the configured checklist id for role, 0 when unset
func (c *EvaluationConfig) ChecklistFor(role models.Role) int64 {
	if role == models.RolePrimary {
		return c.PrimaryChecklistID
	}
	return c.SecondaryChecklistID
}

func (c *EvaluationConfig) LogConfiguration() {
	fmt.Printf("Evaluation Platform:\n")
	fmt.Printf("  Base URL: %s\n", c.BaseURL)
	fmt.Printf("  Timeout: %s\n", c.Timeout)
	if c.Token != "" {
		fmt.Printf("  Token: [configured]\n")
	}
}

// AlertConfig configures the chat webhook sink
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url"` // empty logs alerts instead of sending them
	Timeout    string `yaml:"timeout"`
}

func (c *AlertConfig) SetDefaults() {
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.WebhookURL == "" {
		fmt.Printf("Warning: alert.webhook_url not set, alerts will only be logged\n")
	}
}

func (c *AlertConfig) Validate() error {
	_, err := parseDuration("timeout", c.Timeout)
	return err
}

func (c *AlertConfig) TimeoutDuration() time.Duration {
	return duration(c.Timeout, 10*time.Second)
}

func (c *AlertConfig) LogConfiguration() {
	fmt.Printf("Alert Sink:\n")
	if c.WebhookURL == "" {
		fmt.Printf("  Webhook: [log only]\n")
	} else {
		fmt.Printf("  Webhook: [configured]\n") // the URL embeds the channel secret
	}
	fmt.Printf("  Timeout: %s\n", c.Timeout)
}

// EventBusConfig sizes the in-memory event log and its Kafka mirror
type EventBusConfig struct {
	Capacity     int `yaml:"capacity"`
	SnapshotSize int `yaml:"snapshot_size"`

	MirrorBatchSize    int    `yaml:"mirror_batch_size"`
	MirrorBatchTimeout string `yaml:"mirror_batch_timeout"`
	MirrorMaxBuffered  int    `yaml:"mirror_max_buffered"`
}

func (c *EventBusConfig) SetDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 100
	}
	if c.SnapshotSize <= 0 {
		c.SnapshotSize = 20
	}
	if c.MirrorBatchSize <= 0 {
		c.MirrorBatchSize = 50
	}
	if c.MirrorBatchTimeout == "" {
		c.MirrorBatchTimeout = "1s"
	}
	if c.MirrorMaxBuffered <= 0 {
		c.MirrorMaxBuffered = 1000
	}
}

func (c *EventBusConfig) Validate() error {
	if c.SnapshotSize > c.Capacity {
		return fmt.Errorf("snapshot_size (%d) cannot exceed capacity (%d)", c.SnapshotSize, c.Capacity)
	}
	_, err := parseDuration("mirror_batch_timeout", c.MirrorBatchTimeout)
	return err
}

func (c *EventBusConfig) MirrorBatchTimeoutDuration() time.Duration {
	return duration(c.MirrorBatchTimeout, time.Second)
}

func (c *EventBusConfig) LogConfiguration() {
	fmt.Printf("Event Bus: capacity %d, snapshot %d\n", c.Capacity, c.SnapshotSize)
}

// MatchingConfig holds the comparison rule
type MatchingConfig struct {
	Tolerance string `yaml:"tolerance"` // decimal, "0" requires exact equality
}

func (c *MatchingConfig) SetDefaults() {
	if c.Tolerance == "" {
		c.Tolerance = "0"
	}
}

func (c *MatchingConfig) Validate() error {
	d, err := models.ParseDecimal(c.Tolerance)
	if err != nil {
		return fmt.Errorf("invalid tolerance %q: %w", c.Tolerance, err)
	}
	if d.Negative && !d.IsZero() {
		return fmt.Errorf("tolerance cannot be negative")
	}
	return nil
}

// FieldsConfig maps checklist labels to record fields per role
type FieldsConfig struct {
	Primary   extract.Labels `yaml:"primary"`
	Secondary extract.Labels `yaml:"secondary"`
}

func (c *FieldsConfig) SetDefaults() {
	c.Primary = c.Primary.WithDefaults(extract.DefaultPrimaryLabels())
	c.Secondary = c.Secondary.WithDefaults(extract.DefaultSecondaryLabels())
}
