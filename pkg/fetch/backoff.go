package fetch

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff decides how long to wait before a retry. retry is 1 before the
// second attempt, 2 before the third, and so on.
type Backoff interface {
	Delay(retry int) time.Duration
}

// ConstantBackoff waits the same duration before every retry.
type ConstantBackoff time.Duration

// Delay returns b.
func (b ConstantBackoff) Delay(int) time.Duration {
	return time.Duration(b)
}

// NoBackoff retries immediately.
var NoBackoff Backoff = ConstantBackoff(0)

// ExponentialBackoff doubles (or multiplies by Multiplier) the delay on every
// retry, capped at Max. With Jitter the delay is scaled by a random factor in
// [0.5, 1.5).
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64 // default 2
	Jitter     bool
}

// Delay returns the wait before the given retry.
func (b ExponentialBackoff) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}

	d := float64(b.Initial) * math.Pow(mult, float64(retry-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
