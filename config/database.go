package config

import (
	"fmt"
	"time"
)

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
)

// LedgerConfig selects and tunes the reconciliation ledger
type LedgerConfig struct {
	Backend    string         `yaml:"backend"`     // memory, postgres or sqlite
	Timeout    string         `yaml:"timeout"`     // bound on every ledger call
	SQLitePath string         `yaml:"sqlite_path"` // used by the sqlite backend
	Database   DatabaseConfig `yaml:"database"`    // used by the postgres backend
}

// SetDefaults sets sensible default values for the ledger configuration
func (c *LedgerConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = LedgerMemory
		fmt.Printf("Warning: ledger.backend not set, defaulting to %s\n", c.Backend)
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.Backend == LedgerSQLite && c.SQLitePath == "" {
		c.SQLitePath = "reconciler.db"
		fmt.Printf("Warning: ledger.sqlite_path not set, defaulting to %s\n", c.SQLitePath)
	}
	if c.Backend == LedgerPostgres {
		c.Database.SetDefaults()
	}
}

// Validate validates the ledger configuration
func (c *LedgerConfig) Validate() error {
	if _, err := parseDuration("timeout", c.Timeout); err != nil {
		return err
	}
	switch c.Backend {
	case LedgerMemory:
		return nil
	case LedgerSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite backend")
		}
		return nil
	case LedgerPostgres:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %q (want %s, %s or %s)", c.Backend, LedgerMemory, LedgerPostgres, LedgerSQLite)
	}
}

// TimeoutDuration returns the parsed per-call timeout
func (c *LedgerConfig) TimeoutDuration() time.Duration {
	return duration(c.Timeout, 10*time.Second)
}

// LogConfiguration logs the ledger configuration
func (c *LedgerConfig) LogConfiguration() {
	fmt.Printf("Ledger Configuration:\n")
	fmt.Printf("  Backend: %s\n", c.Backend)
	fmt.Printf("  Timeout: %s\n", c.Timeout)
	switch c.Backend {
	case LedgerSQLite:
		fmt.Printf("  SQLite Path: %s\n", c.SQLitePath)
	case LedgerPostgres:
		c.Database.LogConfiguration()
	}
}

// DatabaseConfig configures the PostgreSQL connection pool
type DatabaseConfig struct {
	DSN            string `yaml:"dsn"`             // PostgreSQL connection string
	MaxConnections int    `yaml:"max_connections"` // Maximum number of connections
	MinConnections int    `yaml:"min_connections"` // Minimum number of connections
	MaxIdleTime    string `yaml:"max_idle_time"`   // Maximum time a connection can be idle
	MaxLifetime    string `yaml:"max_lifetime"`    // Maximum lifetime of a connection
}

// SetDefaults sets sensible default values for the database configuration
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 10
		fmt.Printf("Warning: ledger.database.max_connections not set or invalid, defaulting to %d\n", c.MaxConnections)
	}
	if c.MinConnections <= 0 {
		c.MinConnections = 1
		fmt.Printf("Warning: ledger.database.min_connections not set or invalid, defaulting to %d\n", c.MinConnections)
	}
	if c.MaxIdleTime == "" {
		c.MaxIdleTime = "30m"
		fmt.Printf("Warning: ledger.database.max_idle_time not set, defaulting to %s\n", c.MaxIdleTime)
	}
	if c.MaxLifetime == "" {
		c.MaxLifetime = "1h"
		fmt.Printf("Warning: ledger.database.max_lifetime not set, defaulting to %s\n", c.MaxLifetime)
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("database max_connections must be positive")
	}
	if c.MinConnections < 0 {
		return fmt.Errorf("database min_connections cannot be negative")
	}
	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("database min_connections (%d) cannot be greater than max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	if _, err := parseDuration("max_idle_time", c.MaxIdleTime); err != nil {
		return err
	}
	if _, err := parseDuration("max_lifetime", c.MaxLifetime); err != nil {
		return err
	}
	return nil
}

// MaxIdleDuration returns the parsed idle timeout
func (c *DatabaseConfig) MaxIdleDuration() time.Duration {
	return duration(c.MaxIdleTime, 30*time.Minute)
}

// MaxLifetimeDuration returns the parsed connection lifetime
func (c *DatabaseConfig) MaxLifetimeDuration() time.Duration {
	return duration(c.MaxLifetime, time.Hour)
}

// LogConfiguration logs the database configuration (excluding sensitive DSN)
func (c *DatabaseConfig) LogConfiguration() {
	fmt.Printf("  Max Connections: %d\n", c.MaxConnections)
	fmt.Printf("  Min Connections: %d\n", c.MinConnections)
	fmt.Printf("  Max Idle Time: %s\n", c.MaxIdleTime)
	fmt.Printf("  Max Lifetime: %s\n", c.MaxLifetime)
	fmt.Printf("  DSN: [configured]\n") // Don't log the actual DSN for security
}
