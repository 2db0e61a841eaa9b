package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/spanfetch/pkg/fetch"
)

// Backend serves blobs from a bucket. Locations are object keys.
type Backend struct {
	bucket *blob.Bucket
	owned  bool
}

var _ fetch.Backend = (*Backend)(nil)

// New returns a Backend reading from bucket. The caller keeps ownership of
// the bucket; Close does not close it.
func New(bucket *blob.Bucket) *Backend {
	return &Backend{bucket: bucket}
}

// Open opens the bucket at bucketURL (mem://, file://, s3://, gs://).
// The caller must call Close() when done.
func Open(ctx context.Context, bucketURL string) (*Backend, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open bucket: %w", err)
	}
	return &Backend{bucket: bucket, owned: true}, nil
}

// Bucket returns the underlying bucket.
func (b *Backend) Bucket() *blob.Bucket {
	return b.bucket
}

// Close closes the bucket if it was opened by Open.
func (b *Backend) Close() error {
	if !b.owned {
		return nil
	}
	return b.bucket.Close()
}

// Size implements fetch.Backend.
func (b *Backend) Size(ctx context.Context, loc fetch.Location) (int64, error) {
	attrs, err := b.bucket.Attributes(ctx, string(loc))
	if err != nil {
		return 0, classify(ctx, fmt.Errorf("blobstore: attributes of %q: %w", loc, err))
	}
	return attrs.Size, nil
}

// Fetch implements fetch.Backend.
func (b *Backend) Fetch(ctx context.Context, loc fetch.Location, r fetch.Range) ([]byte, error) {
	rd, err := b.bucket.NewRangeReader(ctx, string(loc), r.Start, r.Len(), nil)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("blobstore: open %q %s: %w", loc, r, err))
	}
	defer rd.Close()

	// One extra byte lets the engine report an over-long read.
	data, err := io.ReadAll(io.LimitReader(rd, r.Len()+1))
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("blobstore: read %q %s: %w", loc, r, err))
	}
	return data, nil
}

// classify maps gocloud error codes to fetch sentinels. Context errors are
// returned as is while ctx is done so the engine can tell cancellation from
// failure; a cancellation the caller did not ask for is transient.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}

	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return fmt.Errorf("%w: %v", fetch.ErrNotFound, err)
	case gcerrors.PermissionDenied:
		return fmt.Errorf("%w: %v", fetch.ErrPermissionDenied, err)
	case gcerrors.DeadlineExceeded:
		return fmt.Errorf("%w: %v", fetch.ErrTimeout, err)
	case gcerrors.Unimplemented, gcerrors.InvalidArgument:
		return fmt.Errorf("%w: %v", fetch.ErrRangeNotSupported, err)
	default:
		return fmt.Errorf("%w: %v", fetch.ErrTransient, err)
	}
}
