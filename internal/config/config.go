// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrProviderAPIKeyRequired is returned when the chosen provider has
	// no API key configured.
	ErrProviderAPIKeyRequired = errors.New("config: provider API key is required")
	// ErrUnknownProvider is returned when GENERATION_PROVIDER names an
	// unsupported provider.
	ErrUnknownProvider = errors.New("config: unknown generation provider")
	// ErrTelegramTokenRequired is returned when TELEGRAM_BOT_TOKEN is not set.
	ErrTelegramTokenRequired = errors.New("config: TELEGRAM_BOT_TOKEN is required")
)

// Supported generation providers.
const (
	ProviderComet = "comet"
	ProviderSora  = "sora"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Provider settings. The provider is chosen once at startup.
	Provider     string `env:"GENERATION_PROVIDER, default=comet" json:"provider"`
	CometAPIKey  string `env:"COMET_API_KEY" json:"-"`  // Masked in JSON
	OpenAIAPIKey string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON

	// Polling settings
	PollInterval time.Duration `env:"POLL_INTERVAL, default=10s" json:"poll_interval"`
	PollTimeout  time.Duration `env:"POLL_TIMEOUT, default=600s" json:"poll_timeout"`

	// Worker settings
	WorkerPoolSize int `env:"WORKER_POOL_SIZE, default=4" json:"worker_pool_size"`
	MaxClips       int `env:"MAX_CLIPS, default=3" json:"max_clips"`
	// LeaseTimeout must exceed the full pipeline worst case (all clips
	// at the polling ceiling) so live workers are never reaped.
	LeaseTimeout  time.Duration `env:"LEASE_TIMEOUT, default=45m" json:"lease_timeout"`
	StaleInterval time.Duration `env:"STALE_SWEEP_INTERVAL, default=1m" json:"stale_sweep_interval"`

	// Database settings. Empty falls back to the in-memory store.
	DatabaseURL string `env:"DATABASE_URL" json:"-"` // Masked in JSON

	// Kafka settings. Empty brokers fall back to the in-process queue.
	KafkaBrokers       []string `env:"KAFKA_BROKERS" json:"kafka_brokers,omitempty"`
	KafkaTopic         string   `env:"KAFKA_TOPIC, default=video-tasks" json:"kafka_topic"`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP, default=video-workers" json:"kafka_consumer_group"`

	// Redis settings. Empty falls back to the in-memory results cache.
	RedisAddr     string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string        `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RecentTTL     time.Duration `env:"RECENT_RESULTS_TTL, default=168h" json:"recent_results_ttl"`

	// Storage settings
	TempDir    string `env:"TEMP_DIR, default=/tmp/vidforge" json:"temp_dir"`
	ResultsDir string `env:"RESULTS_DIR" json:"results_dir,omitempty"`

	// Optional S3 settings for result artifacts
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Delivery settings
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN" json:"-"` // Masked in JSON

	// Media settings
	FFmpegPath  string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PostgresEnabled returns true if a database URL is configured.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// KafkaEnabled returns true if broker addresses are configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if required variables are not set.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderComet:
		if c.CometAPIKey == "" {
			return fmt.Errorf("%w: COMET_API_KEY", ErrProviderAPIKeyRequired)
		}
	case ProviderSora:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrProviderAPIKeyRequired)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}

	if c.TelegramBotToken == "" {
		return ErrTelegramTokenRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Provider: %s, PollInterval: %s, PollTimeout: %s, WorkerPoolSize: %d, MaxClips: %d, LeaseTimeout: %s, KafkaBrokers: %v, RedisAddr: %s, TempDir: %s, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Provider,
		c.PollInterval,
		c.PollTimeout,
		c.WorkerPoolSize,
		c.MaxClips,
		c.LeaseTimeout,
		c.KafkaBrokers,
		c.RedisAddr,
		c.TempDir,
		c.S3Bucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
