package fetch

import (
	"context"
	"errors"
	"io"
)

var (
	errSessionStopped = errors.New("fetch: session stopped")
	errMixedOrder     = errors.New("fetch: session consumed both in order and unordered")
)

type consumeMode uint8

const (
	modeUnset consumeMode = iota
	modeOrdered
	modeUnordered
)

// reassembler turns parts arriving in any order into an in-order stream.
// It is owned by the consumer goroutine.
type reassembler struct {
	parts   []Part
	results <-chan partResult
	pending map[int][]byte
	next    int // ordered: next index to emit; unordered: parts emitted
	mode    consumeMode
	release func(Part) // called once a part is emitted, may be nil
}

func newReassembler(parts []Part, results <-chan partResult, release func(Part)) *reassembler {
	return &reassembler{
		parts:   parts,
		results: results,
		pending: make(map[int][]byte),
		release: release,
	}
}

// pop returns the next part in offset order, waiting for it if needed. It
// returns io.EOF after the last part has been emitted. Once dead is closed or ctx is done,
// nothing more is emitted, buffered parts included.
func (r *reassembler) pop(ctx context.Context, dead <-chan struct{}) (Part, []byte, error) {
	if err := r.setMode(modeOrdered); err != nil {
		return Part{}, nil, err
	}
	for {
		if r.next == len(r.parts) {
			return Part{}, nil, io.EOF
		}

		select {
		case <-dead:
			return Part{}, nil, errSessionStopped
		case <-ctx.Done():
			return Part{}, nil, ctx.Err()
		default:
		}

		if data, ok := r.pending[r.next]; ok {
			delete(r.pending, r.next)
			p := r.parts[r.next]
			r.next++
			if r.release != nil {
				r.release(p)
			}
			return p, data, nil
		}

		select {
		case res := <-r.results:
			r.pending[res.index] = res.data
		case <-dead:
			return Part{}, nil, errSessionStopped
		case <-ctx.Done():
			return Part{}, nil, ctx.Err()
		}
	}
}

// popAny returns parts in the order they complete. The budget is released as
// soon as a part is handed out.
func (r *reassembler) popAny(ctx context.Context, dead <-chan struct{}) (Part, []byte, error) {
	if err := r.setMode(modeUnordered); err != nil {
		return Part{}, nil, err
	}
	if r.next == len(r.parts) {
		return Part{}, nil, io.EOF
	}

	select {
	case <-dead:
		return Part{}, nil, errSessionStopped
	case <-ctx.Done():
		return Part{}, nil, ctx.Err()
	default:
	}

	select {
	case <-dead:
		return Part{}, nil, errSessionStopped
	case <-ctx.Done():
		return Part{}, nil, ctx.Err()
	case res := <-r.results:
		p := r.parts[res.index]
		r.next++
		if r.release != nil {
			r.release(p)
		}
		return p, res.data, nil
	}
}

func (r *reassembler) setMode(m consumeMode) error {
	if r.mode == modeUnset {
		r.mode = m
	}
	if r.mode != m {
		return errMixedOrder
	}
	return nil
}
