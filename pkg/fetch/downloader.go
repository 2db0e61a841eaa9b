package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/semaphore"
)

// Downloader starts download sessions against a Backend. It is safe for
// concurrent use; every Download call gets its own session.
type Downloader struct {
	backend Backend
	cfg     Config
}

// New returns a Downloader for backend. Zero fields of cfg take their
// defaults.
func New(backend Backend, cfg Config) (*Downloader, error) {
	if backend == nil {
		return nil, errors.New("fetch: backend is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Downloader{backend: backend, cfg: cfg.withDefaults()}, nil
}

// Config returns the effective configuration, defaults included.
func (d *Downloader) Config() Config {
	return d.cfg
}

// Size probes the blob size, retrying transient failures like a part fetch.
func (d *Downloader) Size(ctx context.Context, loc Location) (int64, error) {
	return d.probe(ctx, loc)
}

// Download starts downloading span of the blob at loc. The size probe and
// planning run before Download returns, so their failures are returned
// directly. Fetching continues in the background; consume the session with
// Next, Read or WriteTo and Close it when done.
func (d *Downloader) Download(ctx context.Context, loc Location, span Span) (*Session, error) {
	s := newSession(ctx, loc, d.cfg.Observer, d.cfg.SessionTimeout)

	size := int64(-1)
	if span.NeedsSize() || d.cfg.SizeMode == SizeAlways {
		s.transition(StateSizeProbing)
		n, err := d.probe(s.ctx, loc)
		if err != nil {
			s.abort(err)
			close(s.done)
			return nil, s.Err()
		}
		size = n
	}

	s.transition(StatePlanning)
	r, err := span.Resolve(size)
	if err != nil {
		s.abort(&Error{Kind: KindInvalidRange, Op: OpPlan, Location: loc, Part: -1, Err: err})
		close(s.done)
		return nil, s.Err()
	}

	var parts []Part
	if r.Len() > 0 {
		parts, err = Plan(r, d.cfg.PartSize)
		if err != nil {
			var fe *Error
			if errors.As(err, &fe) {
				fe.Location = loc
			}
			s.abort(err)
			close(s.done)
			return nil, s.Err()
		}
	}

	d.start(s, r, parts)
	return s, nil
}

func (d *Downloader) start(s *Session, r Range, parts []Part) {
	s.mu.Lock()
	s.parts = parts
	s.info.Range = r
	s.info.Parts = len(parts)
	s.info.PartSize = d.cfg.PartSize
	info := s.info
	s.mu.Unlock()

	s.transition(StateFetching)
	s.obs.SessionStarted(info)

	if len(parts) == 0 {
		s.finish(StateCompleted, nil)
		close(s.done)
		return
	}

	limit := d.cfg.MaxBufferedBytes
	budget := semaphore.NewWeighted(limit)
	results := make(chan partResult, d.cfg.Concurrency)

	s.asm = newReassembler(parts, results, func(p Part) {
		budget.Release(weight(p, limit))
	})

	sched := &scheduler{
		parts:       append([]Part(nil), parts...),
		concurrency: d.cfg.Concurrency,
		budget:      budget,
		limit:       limit,
		obs:         s.obs,
		session:     s.id,
		results:     results,
		dispatched:  func() { s.transition(StateDraining) },
		task: &fetchTask{
			backend: d.backend,
			loc:     s.loc,
			session: s.id,
			policy:  newRetryPolicy(d.cfg),
			obs:     s.obs,
			track:   s.track,
		},
	}

	go func() {
		defer close(s.done)
		if err := sched.run(s.ctx); err != nil {
			s.abort(err)
		}
	}()
}

// Get downloads span into memory.
func (d *Downloader) Get(ctx context.Context, loc Location, span Span) ([]byte, error) {
	s, err := d.Download(ctx, loc, span)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	buf := make([]byte, 0, s.Len())
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, c.Data...)
	}
}

func (d *Downloader) probe(ctx context.Context, loc Location) (int64, error) {
	var size int64
	probe := func(actx context.Context) error {
		n, err := d.backend.Size(actx, loc)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: negative size %d", ErrProtocolViolation, n)
		}
		size = n
		return nil
	}

	attempts, err := newRetryPolicy(d.cfg).do(ctx, probe, attemptHooks{})
	if err != nil {
		fe := &Error{
			Kind:     KindOf(err),
			Op:       OpSize,
			Location: loc,
			Part:     -1,
			Attempts: attempts,
			Err:      err,
		}
		if ctx.Err() != nil {
			fe.Kind = KindCancelled
		}
		return 0, fe
	}
	return size, nil
}
