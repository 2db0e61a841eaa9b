package fetch

import (
	"context"
	"fmt"
)

// Location identifies a blob. Its meaning is defined by the backend: an URL for
// HTTP, an object key for a bucket, a path for local files.
type Location string

// Backend is the capability a download runs against.
//
// Implementations must be safe for concurrent use. Failures should wrap one of
// the sentinel errors so that the fetch task can decide whether to retry:
// [ErrNotFound], [ErrPermissionDenied], [ErrRangeNotSupported], [ErrTransient]
// or [ErrTimeout]. Unclassified errors are treated as transient.
//
// Backends should not retry on their own; the engine does that per part.
type Backend interface {
	// Size returns the total length of the blob in bytes.
	Size(ctx context.Context, loc Location) (int64, error)

	// Fetch returns exactly r.Len() bytes starting at r.Start.
	Fetch(ctx context.Context, loc Location, r Range) ([]byte, error)
}

// BackendFuncs adapts a pair of functions to the Backend interface.
type BackendFuncs struct {
	SizeFunc  func(ctx context.Context, loc Location) (int64, error)
	FetchFunc func(ctx context.Context, loc Location, r Range) ([]byte, error)
}

var errNotImplemented = fmt.Errorf("%w: backend operation not implemented", ErrRangeNotSupported)

// Size calls SizeFunc.
func (b BackendFuncs) Size(ctx context.Context, loc Location) (int64, error) {
	if b.SizeFunc == nil {
		return 0, errNotImplemented
	}
	return b.SizeFunc(ctx, loc)
}

// Fetch calls FetchFunc.
func (b BackendFuncs) Fetch(ctx context.Context, loc Location, r Range) ([]byte, error) {
	if b.FetchFunc == nil {
		return nil, errNotImplemented
	}
	return b.FetchFunc(ctx, loc, r)
}
