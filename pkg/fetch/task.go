package fetch

import (
	"context"
	"fmt"
	"time"
)

// fetchTask fetches single parts with retries and reports their progress.
type fetchTask struct {
	backend Backend
	loc     Location
	session string
	policy  retryPolicy
	obs     Observer
	track   func(index int, st PartState, attempts int)
}

// run fetches part and validates the returned length. A failure is returned
// as an *Error; if ctx is done the error has KindCancelled.
func (t *fetchTask) run(ctx context.Context, part Part) ([]byte, error) {
	start := time.Now()

	var data []byte
	fetchPart := func(actx context.Context) error {
		b, err := t.backend.Fetch(actx, t.loc, part.Range)
		if err != nil {
			return err
		}
		if int64(len(b)) != part.Range.Len() {
			return fmt.Errorf("%w: received %d bytes for %s, expected %d",
				ErrProtocolViolation, len(b), part.Range, part.Range.Len())
		}
		data = b
		return nil
	}

	hooks := attemptHooks{
		started: func(attempt int) {
			t.update(&part, PartInFlight, attempt)
			t.obs.PartStarted(PartEvent{Session: t.session, Part: part, Attempt: attempt})
		},
		retried: func(attempt int, err error, delay time.Duration) {
			t.update(&part, PartRetrying, attempt)
			t.obs.PartRetried(PartEvent{Session: t.session, Part: part, Attempt: attempt, Err: err, Delay: delay})
		},
	}

	attempts, err := t.policy.do(ctx, fetchPart, hooks)
	if err != nil {
		fe := &Error{
			Kind:     KindOf(err),
			Op:       OpFetch,
			Location: t.loc,
			Part:     part.Index,
			Range:    part.Range,
			Attempts: attempts,
			Err:      err,
		}
		if ctx.Err() != nil {
			fe.Kind = KindCancelled
			return nil, fe
		}
		t.update(&part, PartFailed, attempts)
		t.obs.PartFailed(PartEvent{
			Session: t.session,
			Part:    part,
			Attempt: attempts,
			Err:     fe,
			Elapsed: time.Since(start),
		})
		return nil, fe
	}

	t.update(&part, PartDone, attempts)
	t.obs.PartCompleted(PartEvent{
		Session: t.session,
		Part:    part,
		Attempt: attempts,
		Elapsed: time.Since(start),
	})
	return data, nil
}

func (t *fetchTask) update(part *Part, st PartState, attempts int) {
	part.State = st
	part.Attempts = attempts
	if t.track != nil {
		t.track(part.Index, st, attempts)
	}
}
