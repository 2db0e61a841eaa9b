package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligustah/spanfetch/pkg/fetch"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.PartSize != 8*1024*1024 {
		t.Errorf("expected default part size 8MiB, got %d", cfg.PartSize)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected default concurrency 8, got %d", cfg.Concurrency)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.SizeMode != "required" {
		t.Errorf("expected default size mode required, got %s", cfg.SizeMode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
concurrency: 32
part_size: 16MiB
max_buffered: 1GB
size_mode: always
attempt_timeout: 30s
session_timeout: 1h
progress: true
log_level: debug
headers:
  Authorization: Bearer abc
retry:
  attempts: 10
  backoff: 2s
  max_backoff: 60s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Concurrency != 32 {
		t.Errorf("expected concurrency 32, got %d", cfg.Concurrency)
	}
	if cfg.PartSize != 16*1024*1024 {
		t.Errorf("expected part size 16MiB, got %d", cfg.PartSize)
	}
	if cfg.MaxBuffered != 1000*1000*1000 {
		t.Errorf("expected max buffered 1GB, got %d", cfg.MaxBuffered)
	}
	if cfg.SizeMode != "always" {
		t.Errorf("expected size mode always, got %s", cfg.SizeMode)
	}
	if cfg.AttemptTimeout != 30*time.Second || cfg.SessionTimeout != time.Hour {
		t.Errorf("expected timeouts 30s/1h, got %v/%v", cfg.AttemptTimeout, cfg.SessionTimeout)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("expected Authorization header, got %v", cfg.Headers)
	}
	if cfg.Retry.Attempts != 10 {
		t.Errorf("expected retry attempts 10, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 2*time.Second {
		t.Errorf("expected retry backoff 2s, got %v", cfg.Retry.Backoff)
	}
	if cfg.Retry.MaxBackoff != 60*time.Second {
		t.Errorf("expected retry max backoff 60s, got %v", cfg.Retry.MaxBackoff)
	}
	// Unset fields keep their defaults.
	if cfg.LogFormat != "auto" {
		t.Errorf("expected log format auto, got %s", cfg.LogFormat)
	}
}

func TestLoadFromYAMLBadValue(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("attempt_timeout: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPANFETCH_CONCURRENCY", "64")
	t.Setenv("SPANFETCH_PART_SIZE", "1GiB")
	t.Setenv("SPANFETCH_PROGRESS", "true")
	t.Setenv("SPANFETCH_BUCKET", "mem://")
	t.Setenv("SPANFETCH_RETRY_ATTEMPTS", "7")
	t.Setenv("SPANFETCH_RETRY_BACKOFF", "500ms")
	t.Setenv("SPANFETCH_SESSION_TIMEOUT", "10m")
	t.Setenv("SPANFETCH_HEADER_X_API_KEY", "secret")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Concurrency != 64 {
		t.Errorf("expected concurrency 64, got %d", cfg.Concurrency)
	}
	if cfg.PartSize != 1024*1024*1024 {
		t.Errorf("expected part size 1GiB, got %d", cfg.PartSize)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Bucket != "mem://" {
		t.Errorf("expected bucket mem://, got %s", cfg.Bucket)
	}
	if cfg.Retry.Attempts != 7 {
		t.Errorf("expected retry attempts 7, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
	if cfg.SessionTimeout != 10*time.Minute {
		t.Errorf("expected session timeout 10m, got %v", cfg.SessionTimeout)
	}
	if cfg.Headers["X-API-KEY"] != "secret" {
		t.Errorf("expected X-API-KEY header, got %v", cfg.Headers)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("SPANFETCH_CONCURRENCY", "many")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid SPANFETCH_CONCURRENCY")
	}
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ".env")
	if err := os.WriteFile(path, []byte("SPANFETCH_TEST_DOTENV_CONCURRENCY=5\n"), 0644); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SPANFETCH_TEST_DOTENV_CONCURRENCY") })

	if err := LoadDotEnv(path, true); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("SPANFETCH_TEST_DOTENV_CONCURRENCY"); got != "5" {
		t.Errorf("expected variable from dotenv, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(tmpDir, "missing.env"), false); err != nil {
		t.Errorf("optional missing dotenv: %v", err)
	}
	if err := LoadDotEnv(filepath.Join(tmpDir, "missing.env"), true); err == nil {
		t.Error("expected error for required missing dotenv")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "zero part size", mutate: func(c *Config) { c.PartSize = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: true},
		{name: "negative buffer", mutate: func(c *Config) { c.MaxBuffered = -1 }, wantErr: true},
		{name: "unknown size mode", mutate: func(c *Config) { c.SizeMode = "sometimes" }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.AttemptTimeout = -time.Second }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.Attempts = 0 }, wantErr: true},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.Bucket = "gs://bucket"
	base.Headers = map[string]string{"A": "1"}

	override := Config{
		Concurrency: 32,
		Headers:     map[string]string{"B": "2"},
	}

	merged := base.Merge(override)

	if merged.Bucket != "gs://bucket" {
		t.Errorf("expected Bucket preserved, got %s", merged.Bucket)
	}
	if merged.PartSize != fetch.DefaultPartSize {
		t.Errorf("expected PartSize preserved, got %d", merged.PartSize)
	}
	if merged.Concurrency != 32 {
		t.Errorf("expected Concurrency overridden to 32, got %d", merged.Concurrency)
	}
	if merged.Headers["A"] != "1" || merged.Headers["B"] != "2" {
		t.Errorf("expected merged headers, got %v", merged.Headers)
	}
	if _, ok := base.Headers["B"]; ok {
		t.Error("Merge modified the base headers")
	}
}

func TestFetchConversion(t *testing.T) {
	cfg := Default()
	cfg.SizeMode = "always"
	cfg.MaxBuffered = 1 << 20
	cfg.AttemptTimeout = 5 * time.Second

	fc, err := cfg.Fetch()
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fc.PartSize != cfg.PartSize || fc.Concurrency != cfg.Concurrency || fc.MaxAttempts != cfg.Retry.Attempts {
		t.Errorf("unexpected conversion: %+v", fc)
	}
	if fc.SizeMode != fetch.SizeAlways {
		t.Errorf("expected SizeAlways, got %s", fc.SizeMode)
	}
	if fc.MaxBufferedBytes != 1<<20 || fc.AttemptTimeout != 5*time.Second {
		t.Errorf("unexpected limits: %+v", fc)
	}
	eb, ok := fc.Backoff.(fetch.ExponentialBackoff)
	if !ok || eb.Initial != cfg.Retry.Backoff || eb.Max != cfg.Retry.MaxBackoff {
		t.Errorf("unexpected backoff %#v", fc.Backoff)
	}

	cfg.Retry.Backoff = 0
	fc, _ = cfg.Fetch()
	if fc.Backoff != fetch.NoBackoff {
		t.Errorf("expected NoBackoff, got %#v", fc.Backoff)
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
