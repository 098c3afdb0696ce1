// Package config loads rowguard configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the rowguard service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration for the rule store.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx-compatible connection URL.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// SinkConfig selects and configures the violation sink.
type SinkConfig struct {
	// Type is "opensearch" or "postgres".
	Type       string           `mapstructure:"type"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
}

// OpenSearchConfig holds OpenSearch sink settings.
type OpenSearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
}

// RedisConfig holds Redis settings for run-state tracking.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds settings for the artifact-available trigger subscription.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
	Subject string `mapstructure:"subject"`
	Name    string `mapstructure:"name"`
}

// SourcesConfig configures the record and rule sources.
type SourcesConfig struct {
	Records RecordSourceConfig `mapstructure:"records"`
	Rules   RuleSourceConfig   `mapstructure:"rules"`
}

// RecordSourceConfig configures where record artifacts are fetched from.
type RecordSourceConfig struct {
	// Dir restricts artifact references to a base directory when non-empty.
	Dir string `mapstructure:"dir"`
}

// RuleSourceConfig selects the rule source.
type RuleSourceConfig struct {
	// Type is "postgres" or "file".
	Type string `mapstructure:"type"`
	// Path is the YAML rule file for the file source.
	Path string `mapstructure:"path"`
}

// PipelineConfig tunes run behavior.
type PipelineConfig struct {
	Workers       int           `mapstructure:"workers"`
	RequireRules  bool          `mapstructure:"require_rules"`
	SkipProcessed bool          `mapstructure:"skip_processed"`
	ProcessedTTL  time.Duration `mapstructure:"processed_ttl"`
	Retry         RetryConfig   `mapstructure:"retry"`
}

// RetryConfig bounds sink write retries.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file and ROWGUARD_* environment
// variables. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "rowguard")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "rowguard")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("sink.type", "opensearch")
	v.SetDefault("sink.opensearch.url", "https://localhost:9200")
	v.SetDefault("sink.opensearch.username", "admin")
	v.SetDefault("sink.opensearch.password", "")
	v.SetDefault("sink.opensearch.insecure", true)
	v.SetDefault("sink.opensearch.index", "rowguard-violations")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject", "rowguard.artifacts.available")
	v.SetDefault("nats.name", "rowguard")

	v.SetDefault("sources.records.dir", "")
	v.SetDefault("sources.rules.type", "postgres")
	v.SetDefault("sources.rules.path", "")

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.require_rules", false)
	v.SetDefault("pipeline.skip_processed", false)
	v.SetDefault("pipeline.processed_ttl", "168h")
	v.SetDefault("pipeline.retry.max_attempts", 3)
	v.SetDefault("pipeline.retry.initial_backoff", "500ms")
	v.SetDefault("pipeline.retry.max_backoff", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ROWGUARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
