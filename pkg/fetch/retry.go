package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// retryPolicy runs a backend call with bounded attempts, a per-attempt
// timeout and a backoff between attempts.
type retryPolicy struct {
	maxAttempts int
	backoff     Backoff
	timeout     time.Duration
}

func newRetryPolicy(cfg Config) retryPolicy {
	return retryPolicy{
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		timeout:     cfg.AttemptTimeout,
	}
}

// attemptHooks are optional callbacks around attempts.
type attemptHooks struct {
	started func(attempt int)
	retried func(attempt int, err error, delay time.Duration)
}

// do calls fn until it succeeds, fails with a non-retryable error, runs out of
// attempts or ctx is done. It returns the number of attempts made and the last
// error.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error, hooks attemptHooks) (int, error) {
	maxAttempts := max(p.maxAttempts, 1)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if hooks.started != nil {
			hooks.started(attempt)
		}

		err := p.attempt(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || !KindOf(err).Retryable() || attempt >= maxAttempts {
			return attempt, err
		}

		delay := p.backoff.Delay(attempt)
		if hooks.retried != nil {
			hooks.retried(attempt, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return attempt, err
		}
	}
}

func (p retryPolicy) attempt(ctx context.Context, fn func(context.Context) error) error {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if p.timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()

	err := fn(actx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if p.timeout > 0 && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: attempt exceeded %s: %v", ErrTimeout, p.timeout, err)
	}
	if KindOf(err) == KindCancelled {
		// Nobody cancelled us, so the backend gave up on its own.
		return fmt.Errorf("%w: backend cancelled the request: %v", ErrTransient, err)
	}
	return err
}
