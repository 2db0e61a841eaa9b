package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type partResult struct {
	index int
	data  []byte
}

// scheduler admits parts in plan order, bounded by the concurrency limit and
// the byte budget, and delivers fetched parts to results.
//
// Admission in plan order keeps the lowest unemitted part in flight, so the
// reassembler can always make progress and free budget.
type scheduler struct {
	parts       []Part
	concurrency int
	budget      *semaphore.Weighted
	limit       int64
	task        *fetchTask
	obs         Observer
	session     string
	results     chan<- partResult

	// dispatched is called once the last part has been admitted, optional.
	dispatched func()
}

// weight is the share of the byte budget a part holds from admission until it
// is emitted. A part larger than the whole budget holds all of it.
func weight(p Part, limit int64) int64 {
	return min(p.Range.Len(), limit)
}

// run fetches all parts. It returns the first fatal error; once that happens
// no further parts are admitted and in-flight parts are cancelled.
func (s *scheduler) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	admitted := 0
	for _, part := range s.parts {
		w := weight(part, s.limit)
		if !s.budget.TryAcquire(w) {
			s.obs.BufferFull(s.session, s.limit)
			if err := s.budget.Acquire(gctx, w); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			s.budget.Release(w)
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				s.budget.Release(w)
				return err
			}

			data, err := s.task.run(gctx, part)
			if err != nil {
				s.budget.Release(w)
				return err
			}

			select {
			case s.results <- partResult{index: part.Index, data: data}:
				return nil
			case <-gctx.Done():
				s.budget.Release(w)
				return gctx.Err()
			}
		})
		admitted++
	}
	if admitted == len(s.parts) && s.dispatched != nil {
		s.dispatched()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
