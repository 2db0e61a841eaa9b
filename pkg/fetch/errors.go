package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per [Kind]. Backends wrap these to classify failures:
//
//	return nil, fmt.Errorf("%w: HTTP 404", fetch.ErrNotFound)
var (
	ErrInvalidRange      = errors.New("fetch: invalid range")
	ErrNotFound          = errors.New("fetch: blob not found")
	ErrPermissionDenied  = errors.New("fetch: permission denied")
	ErrRangeNotSupported = errors.New("fetch: range requests not supported")
	ErrTransient         = errors.New("fetch: transient failure")
	ErrTimeout           = errors.New("fetch: timeout")
	ErrProtocolViolation = errors.New("fetch: protocol violation")
	ErrCancelled         = errors.New("fetch: cancelled")
)

// Kind classifies a download failure.
type Kind uint8

const (
	// KindNone is returned by KindOf for a nil error.
	KindNone Kind = iota
	// KindInvalidRange is a caller error. Never retried.
	KindInvalidRange
	// KindNotFound means the blob does not exist. Never retried.
	KindNotFound
	// KindPermissionDenied means the backend refused access. Never retried.
	KindPermissionDenied
	// KindRangeNotSupported means the backend cannot serve byte ranges. Never retried.
	KindRangeNotSupported
	// KindTransient covers connection failures, server-side transient errors
	// and anything a backend did not classify. Retried.
	KindTransient
	// KindTimeout means an attempt or the session ran out of time. Attempt
	// timeouts are retried.
	KindTimeout
	// KindProtocolViolation means the backend returned the wrong number of
	// bytes. Never retried.
	KindProtocolViolation
	// KindCancelled means the caller cancelled the download.
	KindCancelled
)

var kindSentinels = [...]error{
	KindInvalidRange:      ErrInvalidRange,
	KindNotFound:          ErrNotFound,
	KindPermissionDenied:  ErrPermissionDenied,
	KindRangeNotSupported: ErrRangeNotSupported,
	KindTransient:         ErrTransient,
	KindTimeout:           ErrTimeout,
	KindProtocolViolation: ErrProtocolViolation,
	KindCancelled:         ErrCancelled,
}

var kindNames = [...]string{
	KindNone:              "none",
	KindInvalidRange:      "invalid_range",
	KindNotFound:          "not_found",
	KindPermissionDenied:  "permission_denied",
	KindRangeNotSupported: "range_not_supported",
	KindTransient:         "transient",
	KindTimeout:           "timeout",
	KindProtocolViolation: "protocol_violation",
	KindCancelled:         "cancelled",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Retryable reports whether failures of this kind are retried by a fetch task.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindTimeout
}

func (k Kind) sentinel() error {
	if k == KindNone || int(k) >= len(kindSentinels) {
		return nil
	}
	return kindSentinels[k]
}

// KindOf classifies err. Errors that wrap none of the sentinels are treated
// as transient, except context errors which map to cancelled and timeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	for k := KindInvalidRange; k <= KindCancelled; k++ {
		if errors.Is(err, kindSentinels[k]) {
			return k
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindTransient
}

// Operations reported in Error.Op.
const (
	OpSize     = "size probe"
	OpPlan     = "plan"
	OpFetch    = "range fetch"
	OpDownload = "download"
)

// Error is the terminal error of a download. It carries the first fatal
// cause together with retry diagnostics.
//
// Use errors.As to extract it:
//
//	var fe *fetch.Error
//	if errors.As(err, &fe) {
//	    log.Printf("part %d failed after %d attempts", fe.Part, fe.Attempts)
//	}
type Error struct {
	Kind     Kind
	Op       string
	Location Location
	State    State // session state the failure was observed in
	Part     int   // part index, -1 when the failure is not tied to a part
	Range    Range // range of the failing part
	Attempts int   // attempts made before giving up
	Err      error // last underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("fetch: ")
	b.WriteString(e.Op)
	if e.Location != "" {
		fmt.Fprintf(&b, " %q", string(e.Location))
	}
	if e.Part >= 0 {
		fmt.Fprintf(&b, " part %d %s", e.Part, e.Range)
	}
	fmt.Fprintf(&b, " failed (%s", e.Kind)
	if e.Attempts > 0 {
		fmt.Fprintf(&b, ", %d attempt", e.Attempts)
		if e.Attempts > 1 {
			b.WriteByte('s')
		}
	}
	b.WriteByte(')')
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of e's kind, so errors.Is(err, ErrTimeout) holds for
// any timeout Error regardless of its cause.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// withState returns a copy of err with State set, if err is an *Error.
func withState(err error, st State) error {
	var fe *Error
	if !errors.As(err, &fe) {
		return err
	}
	cp := *fe
	cp.State = st
	return &cp
}
