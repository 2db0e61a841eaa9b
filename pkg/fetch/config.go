package fetch

import (
	"errors"
	"log/slog"
	"time"
)

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultPartSize    = 8 * 1024 * 1024
	DefaultConcurrency = 8
	DefaultMaxAttempts = 3
)

// SizeMode controls when the blob size is probed.
type SizeMode uint8

const (
	// SizeWhenRequired probes the size only for spans that need it (Full, From).
	SizeWhenRequired SizeMode = iota
	// SizeAlways probes on every download so closed spans are checked against
	// the real blob size.
	SizeAlways
)

func (m SizeMode) String() string {
	if m == SizeAlways {
		return "always"
	}
	return "required"
}

// Config configures a Downloader. The zero value is usable; New fills in
// defaults for zero fields.
type Config struct {
	// PartSize is the number of bytes fetched per range request.
	// Default: 8 MiB
	PartSize int64

	// Concurrency is the maximum number of parts in flight.
	// Default: 8
	Concurrency int

	// MaxAttempts is the total number of attempts per part, including the
	// first one. Also used for size probes.
	// Default: 3
	MaxAttempts int

	// Backoff is the delay policy between attempts.
	// Default: exponential from 250ms to 10s with jitter
	Backoff Backoff

	// AttemptTimeout bounds a single backend call. Zero means no limit.
	AttemptTimeout time.Duration

	// SessionTimeout bounds a whole download, including consumption.
	// Zero means no limit.
	SessionTimeout time.Duration

	// MaxBufferedBytes bounds fetched but not yet consumed bytes, including
	// parts in flight. A part larger than the budget is admitted alone.
	// Default: 2 * PartSize * Concurrency
	MaxBufferedBytes int64

	// SizeMode controls size probing.
	SizeMode SizeMode

	// Observer receives lifecycle events. Optional.
	Observer Observer

	// Logger, when set, receives structured lifecycle records in addition to
	// Observer.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration New uses for a zero Config.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// Validate rejects negative or inconsistent values. Zero values are valid and
// mean "use the default".
func (c Config) Validate() error {
	if c.PartSize < 0 {
		return errors.New("fetch: part size must not be negative")
	}
	if c.Concurrency < 0 {
		return errors.New("fetch: concurrency must not be negative")
	}
	if c.MaxAttempts < 0 {
		return errors.New("fetch: max attempts must not be negative")
	}
	if c.AttemptTimeout < 0 || c.SessionTimeout < 0 {
		return errors.New("fetch: timeouts must not be negative")
	}
	if c.MaxBufferedBytes < 0 {
		return errors.New("fetch: max buffered bytes must not be negative")
	}
	if c.SizeMode > SizeAlways {
		return errors.New("fetch: unknown size mode")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PartSize == 0 {
		c.PartSize = DefaultPartSize
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff == nil {
		c.Backoff = ExponentialBackoff{
			Initial:    250 * time.Millisecond,
			Max:        10 * time.Second,
			Multiplier: 2,
			Jitter:     true,
		}
	}
	if c.MaxBufferedBytes == 0 {
		c.MaxBufferedBytes = 2 * c.PartSize * int64(c.Concurrency)
	}

	var observers []Observer
	if c.Observer != nil {
		observers = append(observers, c.Observer)
	}
	if c.Logger != nil {
		observers = append(observers, LogObserver(c.Logger))
	}
	c.Observer = MultiObserver(observers...)
	c.Logger = nil
	return c
}
