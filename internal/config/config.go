package config

import (
	"fmt"
	"time"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Results  ResultsConfig  `mapstructure:"results"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`  // Enable/disable API key authentication
	APIKeys []string `mapstructure:"api_keys"` // List of valid API keys
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string `mapstructure:"host"`          // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort    int    `mapstructure:"http_port"`     // HTTP server port
	BodyLimitMB int    `mapstructure:"body_limit_mb"` // Max request body, uploads included
}

// AnalysisConfig holds the default parameters of an analysis run.
// Requests may override every field except Parallelism.
type AnalysisConfig struct {
	WindowSize        int     `mapstructure:"window_size"`        // Trailing ratios averaged per entity
	CleaningThreshold float64 `mapstructure:"cleaning_threshold"` // Smoothed ratio below which cleaning is due
	FaultMultiplier   float64 `mapstructure:"fault_multiplier"`   // Standard deviations that mark an outlier
	NonFinitePolicy   string  `mapstructure:"non_finite_policy"`  // exclude (default) or sentinel
	Sentinel          float64 `mapstructure:"sentinel"`           // Replacement value for the sentinel policy
	Parallelism       int     `mapstructure:"parallelism"`        // Entities processed concurrently, 0 or 1 = serial
	SampleSize        int     `mapstructure:"sample_size"`        // Default rows returned by sampled views
}

// ResultsConfig controls the in-memory run store and file exports.
type ResultsConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`        // How long a run stays retrievable
	MaxRuns   int           `mapstructure:"max_runs"`   // Oldest runs are evicted beyond this
	ExportDir string        `mapstructure:"export_dir"` // Directory used by the offline tool
}

// QueueConfig represents alert queue configuration
type QueueConfig struct {
	Enabled       bool   `mapstructure:"enabled"`        // Publish alerts after each run
	Type          string `mapstructure:"type"`           // Queue type: nats (default), redis, kafka, memory
	URL           string `mapstructure:"url"`            // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Username      string `mapstructure:"username"`       // Optional authentication
	Password      string `mapstructure:"password"`       // Optional authentication
	SubjectPrefix string `mapstructure:"subject_prefix"` // Alerts go to <prefix>.maintenance and <prefix>.fault

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`     // Redis database number (default: 0)
	RedisStream string `mapstructure:"redis_stream"` // Redis stream prefix (default: subject prefix)

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"` // Kafka broker addresses
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, UnixMs, etc
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.Results.Validate(); err != nil {
		return fmt.Errorf("results config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}

	if c.BodyLimitMB < 1 {
		return fmt.Errorf("body_limit_mb must be at least 1")
	}

	return nil
}

// Validate checks the analysis defaults against the parameter domains.
func (c *AnalysisConfig) Validate() error {
	params, err := c.Params()
	if err != nil {
		return err
	}
	if c.SampleSize < 0 {
		return fmt.Errorf("sample_size cannot be negative")
	}
	return params.Validate()
}

// Validate validates results configuration
func (c *ResultsConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("results.ttl must be positive")
	}

	if c.MaxRuns < 1 {
		return fmt.Errorf("results.max_runs must be at least 1")
	}

	return nil
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Type {
	case "", "nats", "redis", "memory":
	case "kafka":
		if len(c.KafkaBrokers) == 0 && c.URL == "" {
			return fmt.Errorf("queue.kafka_brokers is required for kafka")
		}
	default:
		return fmt.Errorf("queue.type must be one of: nats, redis, kafka, memory")
	}

	if c.SubjectPrefix == "" {
		return fmt.Errorf("queue.subject_prefix is required")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}

// Params converts the analysis defaults to core parameters.
func (c *AnalysisConfig) Params() (powerratio.Params, error) {
	mode, err := powerratio.ParseNonFiniteMode(c.NonFinitePolicy)
	if err != nil {
		return powerratio.Params{}, err
	}

	return powerratio.Params{
		WindowSize:        c.WindowSize,
		CleaningThreshold: c.CleaningThreshold,
		FaultMultiplier:   c.FaultMultiplier,
		NonFinite:         powerratio.NonFinitePolicy{Mode: mode, Sentinel: c.Sentinel},
		Missing:           powerratio.MissingAsZero,
		Parallelism:       c.Parallelism,
	}, nil
}
