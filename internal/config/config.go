package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"uptimewatch/internal/checker"
)

// Supported values for DATABASE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds the application's configuration values.
type Config struct {
	DatabaseDriver string          `yaml:"database_driver"`
	DatabaseURL    string          `yaml:"database_url"`
	DatabaseName   string          `yaml:"database_name"` // mongo only
	TickInterval   time.Duration   `yaml:"tick_interval"`
	MaxConcurrency int             `yaml:"max_concurrency"`
	ProbeTimeout   time.Duration   `yaml:"probe_timeout"`
	RetrySchedule  []time.Duration `yaml:"retry_schedule"`
	StrictStatus   bool            `yaml:"strict_status"`
	ShutdownGrace  time.Duration   `yaml:"shutdown_grace"`
	HTTPPort       string          `yaml:"http_port"`
	CronSecret     string          `yaml:"cron_secret"`
	UserAgent      string          `yaml:"user_agent"`
	Log            LogConfig       `yaml:"log"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`   // optional extra output path
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		DatabaseDriver: DriverSQLite,
		DatabaseURL:    "uptimewatch.db",
		DatabaseName:   "uptimewatch",
		TickInterval:   checker.DefaultCadence,
		MaxConcurrency: checker.DefaultMaxConcurrency,
		ProbeTimeout:   checker.DefaultProbeTimeout,
		RetrySchedule:  append([]time.Duration(nil), checker.DefaultBackoff...),
		ShutdownGrace:  40 * time.Second,
		HTTPPort:       "8080",
		UserAgent:      checker.DefaultUserAgent,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration in layers: defaults, then the YAML file at
// path (skipped when path is empty), then variables from ./.env that are not
// already set in the process environment, then the environment itself.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DatabaseDriver = getEnv("DATABASE_DRIVER", c.DatabaseDriver)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DatabaseName = getEnv("DATABASE_NAME", c.DatabaseName)
	c.TickInterval = getEnvDuration("TICK_INTERVAL", c.TickInterval)
	c.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", c.MaxConcurrency)
	c.ProbeTimeout = getEnvDuration("PROBE_TIMEOUT", c.ProbeTimeout)
	c.StrictStatus = getEnvBool("STRICT_STATUS", c.StrictStatus)
	c.ShutdownGrace = getEnvDuration("SHUTDOWN_GRACE", c.ShutdownGrace)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.CronSecret = getEnv("CRON_SECRET", c.CronSecret)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	if raw, ok := os.LookupEnv("RETRY_SCHEDULE"); ok {
		schedule, err := ParseSchedule(raw)
		if err != nil {
			return fmt.Errorf("invalid RETRY_SCHEDULE: %w", err)
		}
		c.RetrySchedule = schedule
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DatabaseDriver))
	}
	if c.DatabaseDriver != DriverMemory && c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.DatabaseDriver == DriverMongo && c.DatabaseName == "" {
		errs = append(errs, errors.New("database name is required for mongo"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick interval must be positive"))
	}
	if c.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("max concurrency must be positive"))
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("probe timeout must be positive"))
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, errors.New("shutdown grace must not be negative"))
	}
	for i, d := range c.RetrySchedule {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("retry delay %d must be positive", i+1))
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseSchedule parses a comma-separated list of durations such as "5s,10s,20s".
// An empty string yields an empty schedule, which disables retries.
func ParseSchedule(raw string) ([]time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []time.Duration{}, nil
	}
	parts := strings.Split(raw, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		schedule = append(schedule, d)
	}
	return schedule, nil
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
