package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/ligustah/spanfetch/internal/blobstore"
	"github.com/ligustah/spanfetch/internal/config"
	httpclient "github.com/ligustah/spanfetch/internal/http"
	"github.com/ligustah/spanfetch/internal/logging"
	"github.com/ligustah/spanfetch/internal/progress"
	"github.com/ligustah/spanfetch/pkg/fetch"
)

// commonFlags are shared by every command that talks to a backend. Values
// set on the command line override the config file and the environment.
type commonFlags struct {
	fs *pflag.FlagSet

	configPath string
	envFile    string

	bucket         string
	partSize       string
	concurrency    int
	maxBuffered    string
	sizeMode       string
	attempts       int
	attemptTimeout time.Duration
	sessionTimeout time.Duration
	headers        []string
	logLevel       string
	logFormat      string
}

func newCommonFlags(fs *pflag.FlagSet) *commonFlags {
	c := &commonFlags{fs: fs}
	fs.StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&c.envFile, "env-file", ".env", "dotenv file with SPANFETCH_ variables")
	fs.StringVarP(&c.bucket, "bucket", "b", "", "Source bucket URL (mem://, file://, s3://, gs://); the source is then an object key")
	fs.StringVar(&c.partSize, "part-size", "", "Bytes per range request (e.g. 8MiB)")
	fs.IntVarP(&c.concurrency, "concurrency", "j", 0, "Maximum parts in flight")
	fs.StringVar(&c.maxBuffered, "max-buffered", "", "Maximum fetched but unconsumed bytes")
	fs.StringVar(&c.sizeMode, "size-mode", "", "Size probing: required or always")
	fs.IntVar(&c.attempts, "attempts", 0, "Attempts per part, including the first")
	fs.DurationVar(&c.attemptTimeout, "attempt-timeout", 0, "Timeout for a single request")
	fs.DurationVar(&c.sessionTimeout, "timeout", 0, "Timeout for the whole download")
	fs.StringArrayVarP(&c.headers, "header", "H", nil, "Extra HTTP header 'Name: value' (repeatable)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format: auto, text, json")
	return c
}

// load builds the effective configuration: defaults, then the config file,
// then the environment, then flags.
func (c *commonFlags) load() (config.Config, error) {
	if err := config.LoadDotEnv(c.envFile, c.fs.Changed("env-file")); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(c.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	var override config.Config
	override.Bucket = c.bucket
	override.SizeMode = c.sizeMode
	override.LogLevel = c.logLevel
	override.LogFormat = c.logFormat
	override.Concurrency = c.concurrency
	override.Retry.Attempts = c.attempts
	override.AttemptTimeout = c.attemptTimeout
	override.SessionTimeout = c.sessionTimeout
	for _, size := range []struct {
		flag  string
		value string
		into  *int64
	}{
		{"part-size", c.partSize, &override.PartSize},
		{"max-buffered", c.maxBuffered, &override.MaxBuffered},
	} {
		if size.value == "" {
			continue
		}
		v, err := progress.ParseBytes(size.value)
		if err != nil {
			return config.Config{}, fmt.Errorf("--%s: %w", size.flag, err)
		}
		*size.into = v
	}
	for _, h := range c.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return config.Config{}, fmt.Errorf("--header %q: want 'Name: value'", h)
		}
		if override.Headers == nil {
			override.Headers = make(map[string]string)
		}
		override.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	cfg = cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config, stderr io.Writer) (*slog.Logger, error) {
	return logging.Setup(stderr, cfg.LogLevel, cfg.LogFormat)
}

// openBackend picks the object store backend when a bucket is configured and
// the HTTP client otherwise. The returned close function is never nil.
func openBackend(ctx context.Context, cfg config.Config, source string) (fetch.Backend, func() error, error) {
	if cfg.Bucket != "" {
		b, err := blobstore.Open(ctx, cfg.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}

	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return nil, nil, errors.New("source must be an http(s) URL unless --bucket is set")
	}
	opts := httpclient.DefaultOptions()
	if len(cfg.Headers) > 0 {
		opts.Header = make(http.Header, len(cfg.Headers))
		for k, v := range cfg.Headers {
			opts.Header.Set(k, v)
		}
	}
	return httpclient.NewClient(opts), func() error { return nil }, nil
}

// parseSpan turns --from/--to/--range into a span. --range takes an HTTP
// style byte range: "first-last" inclusive, "first-" to the end, or "-n" for
// the final n bytes.
func parseSpan(fs *pflag.FlagSet, from, to int64, rng string) (fetch.Span, error) {
	hasFrom, hasTo := fs.Changed("from"), fs.Changed("to")
	if rng != "" {
		if hasFrom || hasTo {
			return fetch.Span{}, errors.New("--range cannot be combined with --from or --to")
		}
		first, last, ok := strings.Cut(rng, "-")
		if !ok {
			return fetch.Span{}, fmt.Errorf("--range %q: want first-last", rng)
		}
		var err error
		if first != "" {
			if from, err = progress.ParseBytes(first); err != nil {
				return fetch.Span{}, fmt.Errorf("--range %q: %w", rng, err)
			}
			hasFrom = true
		}
		if last != "" {
			var l int64
			if l, err = progress.ParseBytes(last); err != nil {
				return fetch.Span{}, fmt.Errorf("--range %q: %w", rng, err)
			}
			if !hasFrom {
				return fetch.Last(l), nil
			}
			return fetch.Inclusive(from, l), nil
		}
	}

	switch {
	case hasFrom && hasTo:
		return fetch.Between(from, to), nil
	case hasFrom:
		return fetch.From(from), nil
	case hasTo:
		return fetch.To(to), nil
	default:
		return fetch.Full(), nil
	}
}
