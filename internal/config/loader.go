package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/soltixdb/pvratio/internal/analytics/powerratio"
)

// EnvPrefix prefixes every environment override, e.g. PVRATIO_SERVER_HTTP_PORT.
const EnvPrefix = "PVRATIO"

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")            // Current directory
		v.AddConfigPath("./configs")    // Project configs directory
		v.AddConfigPath("./config")     // Alternative config directory
		v.AddConfigPath("/etc/pvratio") // System-wide config
	}

	// Set defaults
	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server defaults
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)
	v.SetDefault("server.body_limit_mb", d.Server.BodyLimitMB)

	// Analysis defaults
	v.SetDefault("analysis.window_size", d.Analysis.WindowSize)
	v.SetDefault("analysis.cleaning_threshold", d.Analysis.CleaningThreshold)
	v.SetDefault("analysis.fault_multiplier", d.Analysis.FaultMultiplier)
	v.SetDefault("analysis.non_finite_policy", d.Analysis.NonFinitePolicy)
	v.SetDefault("analysis.sentinel", d.Analysis.Sentinel)
	v.SetDefault("analysis.parallelism", d.Analysis.Parallelism)
	v.SetDefault("analysis.sample_size", d.Analysis.SampleSize)

	// Results defaults
	v.SetDefault("results.ttl", d.Results.TTL.String())
	v.SetDefault("results.max_runs", d.Results.MaxRuns)
	v.SetDefault("results.export_dir", d.Results.ExportDir)

	// Queue defaults
	v.SetDefault("queue.enabled", d.Queue.Enabled)
	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.subject_prefix", d.Queue.SubjectPrefix)

	// Auth defaults
	v.SetDefault("auth.enabled", d.Auth.Enabled)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		// Return default configuration
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			HTTPPort:    5580,
			BodyLimitMB: 64,
		},
		Analysis: AnalysisConfig{
			WindowSize:        powerratio.DefaultWindowSize,
			CleaningThreshold: powerratio.DefaultCleaningThreshold,
			FaultMultiplier:   powerratio.DefaultFaultMultiplier,
			NonFinitePolicy:   string(powerratio.NonFiniteExclude),
			SampleSize:        5000,
		},
		Results: ResultsConfig{
			TTL:       1 * time.Hour,
			MaxRuns:   100,
			ExportDir: "./results",
		},
		Queue: QueueConfig{
			Enabled:       false,
			Type:          "nats",
			URL:           "nats://localhost:4222",
			SubjectPrefix: "pvratio.alerts",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
