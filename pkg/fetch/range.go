package fetch

import (
	"fmt"
)

// Range is a half-open byte range [Start, End) within a blob.
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Last returns the offset of the last byte in the range (inclusive).
func (r Range) Last() int64 {
	return r.End - 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

type spanKind uint8

const (
	spanFull spanKind = iota
	spanFrom
	spanTo
	spanBetween
	spanLast
)

// Span describes the region of a blob to download. Unlike [Range] a span may
// be open ended, in which case it is resolved once the blob size is known.
type Span struct {
	kind  spanKind
	start int64
	end   int64
}

// Full returns a span covering the whole blob.
func Full() Span {
	return Span{kind: spanFull}
}

// From returns a span starting at start and ending at the end of the blob.
func From(start int64) Span {
	return Span{kind: spanFrom, start: start}
}

// To returns a span from the start of the blob up to end (exclusive).
func To(end int64) Span {
	return Span{kind: spanTo, end: end}
}

// Last returns a span covering the final n bytes of the blob, or the whole
// blob if it is shorter, like an HTTP suffix range "bytes=-n".
func Last(n int64) Span {
	return Span{kind: spanLast, start: n}
}

// Between returns the half-open span [start, end).
func Between(start, end int64) Span {
	return Span{kind: spanBetween, start: start, end: end}
}

// Inclusive returns the closed span [first, last].
func Inclusive(first, last int64) Span {
	return Span{kind: spanBetween, start: first, end: last + 1}
}

// NeedsSize reports whether the blob size must be known to resolve the span.
func (s Span) NeedsSize() bool {
	return s.kind == spanFull || s.kind == spanFrom || s.kind == spanLast
}

// Resolve turns the span into a concrete range. A negative size means the
// size is unknown, which is only valid for spans that don't need it.
//
// Resolving Full against an empty blob yields the empty range [0, 0).
func (s Span) Resolve(size int64) (Range, error) {
	var r Range
	switch s.kind {
	case spanFull:
		if size < 0 {
			return Range{}, fmt.Errorf("%w: size required for %s", ErrInvalidRange, s)
		}
		if size == 0 {
			return Range{}, nil
		}
		r = Range{Start: 0, End: size}
	case spanFrom:
		if size < 0 {
			return Range{}, fmt.Errorf("%w: size required for %s", ErrInvalidRange, s)
		}
		r = Range{Start: s.start, End: size}
	case spanLast:
		if size < 0 {
			return Range{}, fmt.Errorf("%w: size required for %s", ErrInvalidRange, s)
		}
		if s.start <= 0 {
			return Range{}, fmt.Errorf("%w: %s is empty", ErrInvalidRange, s)
		}
		r = Range{Start: max(size-s.start, 0), End: size}
	case spanTo:
		r = Range{Start: 0, End: s.end}
	default:
		r = Range{Start: s.start, End: s.end}
	}

	if r.Start < 0 || r.Start >= r.End {
		return Range{}, fmt.Errorf("%w: %s is empty or negative", ErrInvalidRange, r)
	}
	if size >= 0 && r.End > size {
		return Range{}, fmt.Errorf("%w: %s exceeds blob size %d", ErrInvalidRange, r, size)
	}
	return r, nil
}

func (s Span) String() string {
	switch s.kind {
	case spanFull:
		return "full"
	case spanFrom:
		return fmt.Sprintf("[%d, end)", s.start)
	case spanTo:
		return fmt.Sprintf("[0, %d)", s.end)
	case spanLast:
		return fmt.Sprintf("last %d bytes", s.start)
	default:
		return fmt.Sprintf("[%d, %d)", s.start, s.end)
	}
}
