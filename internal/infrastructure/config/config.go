package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Config is the root configuration structure for the Gray Logic gateway service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Gateways  []GatewayConfig `yaml:"gateways"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains admin HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// ArchiveMessages writes every ingested payload as a raw_messages point.
	ArchiveMessages bool `yaml:"archive_messages"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// IngestConfig configures the ingestion queue and its worker pool.
type IngestConfig struct {
	// Capacity is the maximum number of queued messages.
	Capacity int `yaml:"capacity"`

	// Policy is the overflow policy: "block", "drop_oldest" or "reject".
	Policy string `yaml:"policy"`

	// PutTimeoutMS bounds how long a producer waits under the block policy.
	PutTimeoutMS int `yaml:"put_timeout_ms"`

	// Workers is the number of concurrent consumers.
	Workers int `yaml:"workers"`

	// DrainTimeoutMS bounds how long shutdown waits for queued messages.
	DrainTimeoutMS int `yaml:"drain_timeout_ms"`
}

// ReconnectConfig tunes the per-gateway reconnect loop.
type ReconnectConfig struct {
	WaitMS     int `yaml:"wait_ms"`
	PollTickMS int `yaml:"poll_tick_ms"`
}

// GatewayConfig seeds one gateway into the configuration store at startup.
type GatewayConfig struct {
	ID          int64             `yaml:"id"`
	Name        string            `yaml:"name"`
	NetworkType string            `yaml:"network_type"`
	Enabled     *bool             `yaml:"enabled"`
	URL         string            `yaml:"url"`
	ClientID    string            `yaml:"client_id"`
	Username    string            `yaml:"username"`
	Password    string            `yaml:"password"`
	Subscribe   []string          `yaml:"subscribe"`
	Publish     string            `yaml:"publish"`
	QoS         int               `yaml:"qos"`
	Options     map[string]string `yaml:"options"`
}

// IsEnabled reports whether the gateway should start. Gateways are enabled
// unless explicitly disabled.
func (g GatewayConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_INGEST_CAPACITY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-gateway.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "gateways",
			BatchSize:     1000,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Ingest: IngestConfig{
			Capacity:       10000,
			Policy:         "block",
			PutTimeoutMS:   250,
			Workers:        4,
			DrainTimeoutMS: 5000,
		},
		Reconnect: ReconnectConfig{
			WaitMS:     5000,
			PollTickMS: 100,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Ingest
	if v := os.Getenv("GRAYLOGIC_INGEST_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GRAYLOGIC_INGEST_CAPACITY: %w", err)
		}
		cfg.Ingest.Capacity = n
	}

	return nil
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator can fix them in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Ingest
	if c.Ingest.Capacity <= 0 {
		errs = append(errs, "ingest.capacity must be positive")
	}
	if _, err := message.ParseOverflowPolicy(c.Ingest.Policy); err != nil {
		errs = append(errs, "ingest.policy must be block, drop_oldest or reject")
	}
	if c.Ingest.PutTimeoutMS < 0 {
		errs = append(errs, "ingest.put_timeout_ms must not be negative")
	}
	if c.Ingest.Workers < 1 {
		errs = append(errs, "ingest.workers must be at least 1")
	}

	// Reconnect
	if c.Reconnect.WaitMS <= 0 {
		errs = append(errs, "reconnect.wait_ms must be positive")
	}
	if c.Reconnect.PollTickMS <= 0 {
		errs = append(errs, "reconnect.poll_tick_ms must be positive")
	} else if c.Reconnect.PollTickMS > c.Reconnect.WaitMS {
		errs = append(errs, "reconnect.poll_tick_ms must not exceed reconnect.wait_ms")
	}

	errs = append(errs, c.validateGateways()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateGateways() []string {
	var errs []string
	seen := make(map[int64]bool, len(c.Gateways))

	for i, gw := range c.Gateways {
		prefix := fmt.Sprintf("gateways[%d]", i)

		if gw.ID <= 0 {
			errs = append(errs, prefix+".id must be positive")
		} else if seen[gw.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %d is duplicated", prefix, gw.ID))
		}
		seen[gw.ID] = true

		if gw.Name == "" {
			errs = append(errs, prefix+".name is required")
		}
		if _, err := message.ParseNetworkType(gw.NetworkType); err != nil {
			errs = append(errs, prefix+".network_type must be mqtt, nats or redis")
		}
		if gw.URL == "" {
			errs = append(errs, prefix+".url is required")
		}
		if gw.QoS < 0 || gw.QoS > 2 {
			errs = append(errs, prefix+".qos must be 0, 1, or 2")
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PutTimeout returns the ingest put timeout as a Duration.
func (c IngestConfig) PutTimeout() time.Duration {
	return time.Duration(c.PutTimeoutMS) * time.Millisecond
}

// DrainTimeout returns the ingest drain timeout as a Duration.
func (c IngestConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutMS) * time.Millisecond
}

// Wait returns the reconnect wait as a Duration.
func (c ReconnectConfig) Wait() time.Duration {
	return time.Duration(c.WaitMS) * time.Millisecond
}

// PollTick returns the reconnect poll tick as a Duration.
func (c ReconnectConfig) PollTick() time.Duration {
	return time.Duration(c.PollTickMS) * time.Millisecond
}
