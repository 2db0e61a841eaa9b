package downloader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"github.com/ligustah/spanfetch/pkg/fetch"
)

// ErrOutput marks failures of the sink rather than the download.
var ErrOutput = errors.New("downloader: output failed")

// ErrNotRandomAccess is returned for unordered downloads into a sink that
// cannot write at offsets.
var ErrNotRandomAccess = errors.New("downloader: unordered download needs a random access sink")

// ErrDigestMismatch is returned when the downloaded bytes do not hash to the
// expected digest.
var ErrDigestMismatch = errors.New("downloader: digest mismatch")

// Options configures a download.
type Options struct {
	// Span selects the bytes to download.
	// Default: the whole blob
	Span fetch.Span

	// NoChecksum disables BLAKE3 digest computation.
	NoChecksum bool

	// Unordered writes parts at their offsets as soon as they arrive instead
	// of in blob order. The sink must be a RandomAccessSink; the digest is
	// computed by reading the output back.
	Unordered bool

	// ExpectDigest, when set, is the hex BLAKE3 digest the output must have.
	// A mismatch aborts the sink.
	ExpectDigest string
}

// Result describes a finished download.
type Result struct {
	Session string
	Range   fetch.Range
	Bytes   int64
	Digest  string // hex BLAKE3, empty with NoChecksum
	Elapsed time.Duration
}

// Download copies the blob at loc into sink. The sink is committed only if
// every byte of the span arrived; otherwise it is aborted.
func Download(ctx context.Context, d *fetch.Downloader, loc fetch.Location, sink Sink, opts Options) (*Result, error) {
	if opts.NoChecksum && opts.ExpectDigest != "" {
		return nil, errors.New("downloader: digest verification needs checksums enabled")
	}

	var ra RandomAccessSink
	if opts.Unordered {
		var ok bool
		if ra, ok = sink.(RandomAccessSink); !ok {
			sink.Abort()
			return nil, ErrNotRandomAccess
		}
	}

	start := time.Now()
	s, err := d.Download(ctx, loc, opts.Span)
	if err != nil {
		sink.Abort()
		return nil, err
	}
	defer s.Close()

	var (
		n      int64
		hasher *blake3.Hasher
	)
	if !opts.NoChecksum {
		hasher = blake3.New()
	}
	if ra != nil {
		n, err = s.WriteToAt(ra)
		if err == nil && hasher != nil {
			if _, rerr := io.Copy(hasher, io.NewSectionReader(ra, 0, n)); rerr != nil {
				err = fmt.Errorf("read back output: %w", rerr)
			}
		}
	} else {
		var w io.Writer = sink
		if hasher != nil {
			w = io.MultiWriter(sink, hasher)
		}
		n, err = s.WriteTo(w)
	}
	if err != nil {
		sink.Abort()
		var ferr *fetch.Error
		if !errors.As(err, &ferr) {
			// The sink failed, not the download.
			return nil, fmt.Errorf("%w: %w", ErrOutput, err)
		}
		return nil, err
	}

	res := &Result{
		Session: s.ID(),
		Range:   s.Range(),
		Bytes:   n,
		Elapsed: time.Since(start),
	}
	if hasher != nil {
		res.Digest = hex.EncodeToString(hasher.Sum(nil))
	}
	if opts.ExpectDigest != "" && res.Digest != opts.ExpectDigest {
		sink.Abort()
		return nil, fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, res.Digest, opts.ExpectDigest)
	}

	if err := sink.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutput, err)
	}
	return res, nil
}
