package fetch

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errSessionTimeout = errors.New("session timeout exceeded")
	errSessionClosed  = errors.New("session closed")
)

// Chunk is one reassembled part of a download.
type Chunk struct {
	Part   int
	Offset int64 // offset of Data[0] within the blob
	Data   []byte
}

// Session is a single download. Bytes are consumed in blob order with Next,
// Read or WriteTo, or in completion order with NextUnordered or WriteToAt;
// a session is consumed one way or the other, not both. A session must be consumed from one goroutine; State, Err
// and Parts are safe to call from any goroutine.
//
// The session ends in exactly one of Completed, Failed or Cancelled. Close
// cancels an unfinished session and releases its resources.
type Session struct {
	id      string
	loc     Location
	obs     Observer
	started time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   context.CancelFunc

	mu    sync.Mutex
	state State
	err   error
	info  SessionInfo
	parts []Part
	dead  chan struct{}

	done chan struct{} // closed once background fetching has stopped

	// consumer owned
	asm *reassembler
	buf []byte
}

func newSession(parent context.Context, loc Location, obs Observer, timeout time.Duration) *Session {
	base, cancel := context.WithCancelCause(parent)
	ctx, stop := base, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, stop = context.WithTimeoutCause(base, timeout, errSessionTimeout)
	}

	id := uuid.NewString()
	return &Session{
		id:      id,
		loc:     loc,
		obs:     obs,
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		stop:    stop,
		state:   StateCreated,
		info:    SessionInfo{ID: id, Location: loc},
		dead:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the unique session identifier used in observer events.
func (s *Session) ID() string {
	return s.id
}

// Location returns the downloaded blob.
func (s *Session) Location() Location {
	return s.loc
}

// Range returns the resolved byte range being downloaded.
func (s *Session) Range() Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Range
}

// Len returns the number of bytes the session yields on success.
func (s *Session) Len() int64 {
	return s.Range().Len()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, or nil while the session is running or
// after it completed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Parts returns a snapshot of the part table.
func (s *Session) Parts() []Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]Part, len(s.parts))
	copy(parts, s.parts)
	return parts
}

// Next returns the next chunk in blob order. It returns io.EOF once every
// byte of the range has been returned, or the terminal error if the download
// failed or was cancelled.
func (s *Session) Next() (Chunk, error) {
	return s.consume(s.asm.pop)
}

// NextUnordered returns the next chunk to finish downloading, whatever its
// offset. Each part is returned exactly once and its buffer budget is freed
// as soon as it is returned. It returns io.EOF after the last part.
func (s *Session) NextUnordered() (Chunk, error) {
	return s.consume(s.asm.popAny)
}

func (s *Session) consume(pop func(context.Context, <-chan struct{}) (Part, []byte, error)) (Chunk, error) {
	s.mu.Lock()
	st, err := s.state, s.err
	s.mu.Unlock()
	if st.Terminal() {
		if err != nil {
			return Chunk{}, err
		}
		return Chunk{}, io.EOF
	}

	part, data, err := pop(s.ctx, s.dead)
	if errors.Is(err, errMixedOrder) {
		return Chunk{}, err
	}
	if err == io.EOF {
		s.finish(StateCompleted, nil)
		return Chunk{}, io.EOF
	}
	if err != nil {
		s.abort(err)
		return Chunk{}, s.Err()
	}
	return Chunk{Part: part.Index, Offset: part.Range.Start, Data: data}, nil
}

// Read implements io.Reader.
func (s *Session) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.buf) == 0 {
		c, err := s.Next()
		if err != nil {
			return 0, err
		}
		s.buf = c.Data
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// WriteTo implements io.WriterTo. If w fails the session is cancelled.
func (s *Session) WriteTo(w io.Writer) (int64, error) {
	var total int64
	write := func(b []byte) error {
		n, err := w.Write(b)
		total += int64(n)
		if err == nil && n != len(b) {
			err = io.ErrShortWrite
		}
		if err != nil {
			s.Close()
		}
		return err
	}

	if len(s.buf) > 0 {
		b := s.buf
		s.buf = nil
		if err := write(b); err != nil {
			return total, err
		}
	}
	for {
		c, err := s.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if err := write(c.Data); err != nil {
			return total, err
		}
	}
}

// WriteToAt writes every chunk to w as soon as it arrives, at its offset
// relative to the start of the range. It returns the number of bytes written.
// If w fails the session is cancelled.
func (s *Session) WriteToAt(w io.WriterAt) (int64, error) {
	start := s.Range().Start
	var total int64
	for {
		c, err := s.NextUnordered()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := w.WriteAt(c.Data, c.Offset-start)
		total += int64(n)
		if err != nil {
			s.Close()
			return total, err
		}
	}
}

// Close cancels the session if it has not finished yet and waits for
// in-flight fetches to return. It is safe to call more than once.
func (s *Session) Close() error {
	s.cancel(errSessionClosed)
	s.abort(context.Canceled)
	<-s.done
	return nil
}

func (s *Session) track(index int, st PartState, attempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.parts) {
		s.parts[index].State = st
		s.parts[index].Attempts = attempts
	}
}

// transition moves to a non-terminal state. Moves the state machine does not
// allow are ignored.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.state, to) {
		return false
	}
	s.state = to
	return true
}

// finish moves the session to a terminal state. Only the first call has an
// effect.
func (s *Session) finish(to State, err error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if to == StateCompleted && s.state == StateFetching {
		s.state = StateDraining
	}
	if !canTransition(s.state, to) {
		s.mu.Unlock()
		return
	}

	err = withState(err, s.state)
	s.state = to
	s.err = err
	info := s.info
	if to != StateCompleted {
		close(s.dead)
	}
	s.mu.Unlock()

	s.stop()
	s.cancel(errSessionClosed)
	s.obs.SessionFinished(info, to, err, time.Since(s.started))
}

// abort ends the session after err. Errors caused by the session context
// being done are resolved by the reason it was stopped: a session timeout
// fails the download, anything else cancels it.
func (s *Session) abort(err error) {
	cause := context.Cause(s.ctx)
	stopped := KindOf(err) == KindCancelled || errors.Is(err, context.DeadlineExceeded)
	if cause == nil || !stopped {
		s.finish(StateFailed, err)
		return
	}

	if errors.Is(cause, errSessionTimeout) {
		s.finish(StateFailed, &Error{Kind: KindTimeout, Op: OpDownload, Location: s.loc, Part: -1, Err: cause})
		return
	}
	s.finish(StateCancelled, &Error{Kind: KindCancelled, Op: OpDownload, Location: s.loc, Part: -1, Err: cause})
}
