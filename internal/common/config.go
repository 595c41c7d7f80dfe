package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// WindowQuarters is the fixed length of every series.
const WindowQuarters = 16

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Dart        DartConfig     `toml:"dart"`
	Storage     StorageConfig  `toml:"storage"`
	Resolver    ResolverConfig `toml:"resolver"`
	Pipeline    PipelineConfig `toml:"pipeline"`
	Server      ServerConfig   `toml:"server"`
	Logging     LoggingConfig  `toml:"logging"`
	Batch       BatchConfig    `toml:"batch"`
}

// DartConfig holds Open DART API settings
type DartConfig struct {
	APIKey    string  `toml:"api_key"`                          // crtfc_key, usually supplied via env
	BaseURL   string  `toml:"base_url" validate:"required,url"` // default: https://opendart.fss.or.kr/api
	Timeout   string  `toml:"timeout" validate:"required"`      // HTTP timeout as duration string (default: "30s")
	RateLimit float64 `toml:"rate_limit" validate:"gt=0"`       // Requests per second
	UserAgent string  `toml:"user_agent"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Type   string       `toml:"type" validate:"oneof=sqlite badger memory"` // "sqlite" (default), "badger" or "memory"
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path          string `toml:"path"`            // Database file path
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // Wait time for locked database
	WALMode       bool   `toml:"wal_mode"`        // Write-ahead logging
	CacheSizeMB   int    `toml:"cache_size_mb"`   // Page cache size
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path string `toml:"path"` // Database directory path
}

// ResolverConfig controls company-name resolution
type ResolverConfig struct {
	MinSimilarity   float64 `toml:"min_similarity" validate:"gt=0,lte=1"` // Candidates scoring below are discarded
	MaxDirectoryAge string  `toml:"max_directory_age" validate:"required"` // Directory snapshot refresh threshold (default: "24h")
	RefreshSchedule string  `toml:"refresh_schedule"`                      // Cron schedule for serve mode, empty disables
}

// PipelineConfig controls the orchestrator
type PipelineConfig struct {
	MaxConcurrentYears int         `toml:"max_concurrent_years" validate:"min=1,max=8"`
	Retry              RetryConfig `toml:"retry"`
}

// RetryConfig mirrors common.RetryPolicy in file form
type RetryConfig struct {
	MaxAttempts      int     `toml:"max_attempts" validate:"min=1"`
	InitialBackoff   string  `toml:"initial_backoff"`
	MaxBackoff       string  `toml:"max_backoff"`
	Multiplier       float64 `toml:"multiplier" validate:"gte=1"`
	RateLimitBackoff string  `toml:"rate_limit_backoff"` // Minimum wait after a rate-limit response
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default: "15:04:05.000"
	File       string   `toml:"file"`        // Log file path when "file" output is enabled
}

// BatchConfig controls the warm command
type BatchConfig struct {
	Size            int    `toml:"size" validate:"min=1"`
	ReferencePeriod string `toml:"reference_period"` // YYYYMM, empty means the current month
	Pause           string `toml:"pause"`            // Delay between companies (default: "1s")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Dart: DartConfig{
			BaseURL:   "https://opendart.fss.or.kr/api",
			Timeout:   "30s",
			RateLimit: 5,
			UserAgent: UserAgent(),
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path:          "./data/dartseries.db",
				BusyTimeoutMS: 5000,
				WALMode:       true,
				CacheSizeMB:   16,
			},
			Badger: BadgerConfig{
				Path: "./data/badger",
			},
		},
		Resolver: ResolverConfig{
			MinSimilarity:   0.8,
			MaxDirectoryAge: "24h",
			RefreshSchedule: "0 6 * * *",
		},
		Pipeline: PipelineConfig{
			MaxConcurrentYears: 4,
			Retry: RetryConfig{
				MaxAttempts:      3,
				InitialBackoff:   "1s",
				MaxBackoff:       "30s",
				Multiplier:       2.0,
				RateLimitBackoff: "10s",
			},
		},
		Server: ServerConfig{
			Port: 8088,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
			File:       "./logs/dartseries.log",
		},
		Batch: BatchConfig{
			Size:  20,
			Pause: "1s",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal merges with existing values
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DARTSERIES_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// DART configuration
	if apiKey := os.Getenv("DARTSERIES_DART_API_KEY"); apiKey != "" {
		config.Dart.APIKey = apiKey
	} else if apiKey := os.Getenv("DART_API_KEY"); apiKey != "" {
		config.Dart.APIKey = apiKey
	}
	if baseURL := os.Getenv("DARTSERIES_DART_BASE_URL"); baseURL != "" {
		config.Dart.BaseURL = baseURL
	}
	if timeout := os.Getenv("DARTSERIES_DART_TIMEOUT"); timeout != "" {
		config.Dart.Timeout = timeout
	}
	if rateLimit := os.Getenv("DARTSERIES_DART_RATE_LIMIT"); rateLimit != "" {
		if r, err := strconv.ParseFloat(rateLimit, 64); err == nil {
			config.Dart.RateLimit = r
		}
	}

	// Storage configuration
	if storageType := os.Getenv("DARTSERIES_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if sqlitePath := os.Getenv("DARTSERIES_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if badgerPath := os.Getenv("DARTSERIES_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Resolver configuration
	if minSimilarity := os.Getenv("DARTSERIES_RESOLVER_MIN_SIMILARITY"); minSimilarity != "" {
		if s, err := strconv.ParseFloat(minSimilarity, 64); err == nil {
			config.Resolver.MinSimilarity = s
		}
	}

	// Pipeline configuration
	if years := os.Getenv("DARTSERIES_PIPELINE_MAX_CONCURRENT_YEARS"); years != "" {
		if y, err := strconv.Atoi(years); err == nil {
			config.Pipeline.MaxConcurrentYears = y
		}
	}
	if attempts := os.Getenv("DARTSERIES_RETRY_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Pipeline.Retry.MaxAttempts = a
		}
	}

	// Server configuration
	if port := os.Getenv("DARTSERIES_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("DARTSERIES_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("DARTSERIES_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("DARTSERIES_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		config.Logging.Output = outputs
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the duration and schedule strings.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"dart.timeout":                      c.Dart.Timeout,
		"resolver.max_directory_age":        c.Resolver.MaxDirectoryAge,
		"pipeline.retry.initial_backoff":    c.Pipeline.Retry.InitialBackoff,
		"pipeline.retry.max_backoff":        c.Pipeline.Retry.MaxBackoff,
		"pipeline.retry.rate_limit_backoff": c.Pipeline.Retry.RateLimitBackoff,
		"batch.pause":                       c.Batch.Pause,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", key, err)
		}
	}

	if c.Resolver.RefreshSchedule != "" {
		if err := ValidateSchedule(c.Resolver.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid configuration: resolver.refresh_schedule: %w", err)
		}
	}

	if c.Batch.ReferencePeriod != "" && len(c.Batch.ReferencePeriod) != 6 {
		return fmt.Errorf("invalid configuration: batch.reference_period must be YYYYMM, got %q", c.Batch.ReferencePeriod)
	}

	return nil
}

// ResolveAPIKey resolves the DART key with environment variable priority.
// Resolution order: DARTSERIES_DART_API_KEY → DART_API_KEY → config → error
func ResolveAPIKey(configFallback string) (string, error) {
	for _, envVarName := range []string{"DARTSERIES_DART_API_KEY", "DART_API_KEY"} {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("DART API key not found in environment or config (set DART_API_KEY or dart.api_key)")
}

// ValidateSchedule validates a standard five-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses a duration string, returning fallback when it is empty or malformed.
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// DartTimeout returns the HTTP timeout for DART requests
func (c *Config) DartTimeout() time.Duration {
	return ParseDurationOr(c.Dart.Timeout, 30*time.Second)
}

// DirectoryMaxAge returns the age after which the corp-code directory is refreshed
func (c *Config) DirectoryMaxAge() time.Duration {
	return ParseDurationOr(c.Resolver.MaxDirectoryAge, 24*time.Hour)
}

// BatchPause returns the delay between companies in the warm command
func (c *Config) BatchPause() time.Duration {
	return ParseDurationOr(c.Batch.Pause, time.Second)
}

// RetryPolicy builds the runtime retry policy from the [pipeline.retry] section
func (c *Config) RetryPolicy() *RetryPolicy {
	d := NewDefaultRetryPolicy()
	r := c.Pipeline.Retry
	return &RetryPolicy{
		MaxAttempts:       r.MaxAttempts,
		InitialBackoff:    ParseDurationOr(r.InitialBackoff, d.InitialBackoff),
		MaxBackoff:        ParseDurationOr(r.MaxBackoff, d.MaxBackoff),
		BackoffMultiplier: r.Multiplier,
		RateLimitBackoff:  ParseDurationOr(r.RateLimitBackoff, d.RateLimitBackoff),
	}
}
