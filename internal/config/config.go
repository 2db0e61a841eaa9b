package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/spanfetch/internal/progress"
	"github.com/ligustah/spanfetch/pkg/fetch"
)

// EnvPrefix prefixes all environment variables read by LoadFromEnv.
const EnvPrefix = "SPANFETCH_"

// Config defines configuration for the spanfetch CLI.
type Config struct {
	Bucket         string            `yaml:"bucket"`
	OutputBucket   string            `yaml:"output_bucket"`
	PartSize       int64             `yaml:"part_size"`
	Concurrency    int               `yaml:"concurrency"`
	MaxBuffered    int64             `yaml:"max_buffered"`
	SizeMode       string            `yaml:"size_mode"`
	AttemptTimeout time.Duration     `yaml:"attempt_timeout"`
	SessionTimeout time.Duration     `yaml:"session_timeout"`
	Progress       bool              `yaml:"progress"`
	Force          bool              `yaml:"force"`
	LogLevel       string            `yaml:"log_level"`
	LogFormat      string            `yaml:"log_format"`
	Headers        map[string]string `yaml:"headers"`
	Retry          RetryConfig       `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		PartSize:    fetch.DefaultPartSize,
		Concurrency: fetch.DefaultConcurrency,
		SizeMode:    fetch.SizeWhenRequired.String(),
		LogLevel:    "info",
		LogFormat:   "auto",
		Retry: RetryConfig{
			Attempts:   fetch.DefaultMaxAttempts,
			Backoff:    250 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Bucket         string            `yaml:"bucket"`
	OutputBucket   string            `yaml:"output_bucket"`
	PartSize       string            `yaml:"part_size"`
	Concurrency    int               `yaml:"concurrency"`
	MaxBuffered    string            `yaml:"max_buffered"`
	SizeMode       string            `yaml:"size_mode"`
	AttemptTimeout string            `yaml:"attempt_timeout"`
	SessionTimeout string            `yaml:"session_timeout"`
	Progress       bool              `yaml:"progress"`
	Force          bool              `yaml:"force"`
	LogLevel       string            `yaml:"log_level"`
	LogFormat      string            `yaml:"log_format"`
	Headers        map[string]string `yaml:"headers"`
	Retry          yamlRetryConfig   `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("config: parse file: %w", err)
	}

	override := Config{
		Bucket:       yc.Bucket,
		OutputBucket: yc.OutputBucket,
		Concurrency:  yc.Concurrency,
		SizeMode:     yc.SizeMode,
		Progress:     yc.Progress,
		Force:        yc.Force,
		LogLevel:     yc.LogLevel,
		LogFormat:    yc.LogFormat,
		Headers:      yc.Headers,
		Retry:        RetryConfig{Attempts: yc.Retry.Attempts},
	}

	fields := []struct {
		name string
		val  string
		into any
	}{
		{"part_size", yc.PartSize, &override.PartSize},
		{"max_buffered", yc.MaxBuffered, &override.MaxBuffered},
		{"attempt_timeout", yc.AttemptTimeout, &override.AttemptTimeout},
		{"session_timeout", yc.SessionTimeout, &override.SessionTimeout},
		{"retry.backoff", yc.Retry.Backoff, &override.Retry.Backoff},
		{"retry.max_backoff", yc.Retry.MaxBackoff, &override.Retry.MaxBackoff},
	}
	for _, f := range fields {
		if f.val == "" {
			continue
		}
		if err := parseInto(f.val, f.into); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", f.name, err)
		}
	}

	return Default().Merge(override), nil
}

// LoadDotEnv loads variables from a dotenv file into the process
// environment. Variables that are already set win. A missing file is not an
// error unless required is set.
func LoadDotEnv(path string, required bool) error {
	if _, err := os.Stat(path); err != nil && !required {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SPANFETCH_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := []struct {
		key  string
		into *string
	}{
		{"BUCKET", &c.Bucket},
		{"OUTPUT_BUCKET", &c.OutputBucket},
		{"SIZE_MODE", &c.SizeMode},
		{"LOG_LEVEL", &c.LogLevel},
		{"LOG_FORMAT", &c.LogFormat},
	}
	for _, s := range strs {
		if v := os.Getenv(EnvPrefix + s.key); v != "" {
			*s.into = v
		}
	}

	parsed := []struct {
		key  string
		into any
	}{
		{"PART_SIZE", &c.PartSize},
		{"CONCURRENCY", &c.Concurrency},
		{"MAX_BUFFERED", &c.MaxBuffered},
		{"ATTEMPT_TIMEOUT", &c.AttemptTimeout},
		{"SESSION_TIMEOUT", &c.SessionTimeout},
		{"PROGRESS", &c.Progress},
		{"FORCE", &c.Force},
		{"RETRY_ATTEMPTS", &c.Retry.Attempts},
		{"RETRY_BACKOFF", &c.Retry.Backoff},
		{"RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff},
	}
	for _, p := range parsed {
		v := os.Getenv(EnvPrefix + p.key)
		if v == "" {
			continue
		}
		if err := parseInto(v, p.into); err != nil {
			return fmt.Errorf("config: parse %s%s: %w", EnvPrefix, p.key, err)
		}
	}

	// SPANFETCH_HEADER_X_API_KEY=secret sets the X-Api-Key header.
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		name, ok := strings.CutPrefix(k, EnvPrefix+"HEADER_")
		if !ok || name == "" {
			continue
		}
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		c.Headers[strings.ReplaceAll(name, "_", "-")] = v
	}

	return nil
}

// parseInto parses s according to the type of into: byte sizes for int64,
// durations, integers and booleans.
func parseInto(s string, into any) error {
	switch p := into.(type) {
	case *int64:
		n, err := progress.ParseBytes(s)
		if err != nil {
			return err
		}
		*p = n
	case *int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*p = n
	case *time.Duration:
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*p = d
	case *bool:
		*p = s == "true" || s == "1"
	default:
		return fmt.Errorf("unsupported type %T", into)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PartSize <= 0 {
		return errors.New("config: part_size must be positive")
	}
	if c.Concurrency <= 0 {
		return errors.New("config: concurrency must be positive")
	}
	if c.MaxBuffered < 0 {
		return errors.New("config: max_buffered must not be negative")
	}
	if _, err := parseSizeMode(c.SizeMode); err != nil {
		return err
	}
	if c.AttemptTimeout < 0 || c.SessionTimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return errors.New("config: retry backoff must not be negative")
	}
	switch c.LogFormat {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.OutputBucket != "" {
		c.OutputBucket = override.OutputBucket
	}
	if override.PartSize != 0 {
		c.PartSize = override.PartSize
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.MaxBuffered != 0 {
		c.MaxBuffered = override.MaxBuffered
	}
	if override.SizeMode != "" {
		c.SizeMode = override.SizeMode
	}
	if override.AttemptTimeout != 0 {
		c.AttemptTimeout = override.AttemptTimeout
	}
	if override.SessionTimeout != 0 {
		c.SessionTimeout = override.SessionTimeout
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Force {
		c.Force = override.Force
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if len(override.Headers) > 0 {
		headers := make(map[string]string, len(c.Headers)+len(override.Headers))
		for k, v := range c.Headers {
			headers[k] = v
		}
		for k, v := range override.Headers {
			headers[k] = v
		}
		c.Headers = headers
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

// Fetch converts the configuration into engine settings. Observer and Logger
// are left for the caller to set.
func (c Config) Fetch() (fetch.Config, error) {
	mode, err := parseSizeMode(c.SizeMode)
	if err != nil {
		return fetch.Config{}, err
	}

	var backoff fetch.Backoff = fetch.NoBackoff
	if c.Retry.Backoff > 0 {
		backoff = fetch.ExponentialBackoff{
			Initial: c.Retry.Backoff,
			Max:     c.Retry.MaxBackoff,
			Jitter:  true,
		}
	}

	return fetch.Config{
		PartSize:         c.PartSize,
		Concurrency:      c.Concurrency,
		MaxAttempts:      c.Retry.Attempts,
		Backoff:          backoff,
		AttemptTimeout:   c.AttemptTimeout,
		SessionTimeout:   c.SessionTimeout,
		MaxBufferedBytes: c.MaxBuffered,
		SizeMode:         mode,
	}, nil
}

func parseSizeMode(s string) (fetch.SizeMode, error) {
	switch s {
	case "", fetch.SizeWhenRequired.String():
		return fetch.SizeWhenRequired, nil
	case fetch.SizeAlways.String():
		return fetch.SizeAlways, nil
	default:
		return 0, fmt.Errorf("config: unknown size_mode %q", s)
	}
}
