package fetch

import (
	"context"
	"errors"
	"io"
)

// ReaderAt gives random access to a blob. Every ReadAt runs its own download
// session for the requested window, so concurrent ReadAt calls are safe.
// Read and Seek share an offset and must not be used concurrently.
type ReaderAt struct {
	ctx  context.Context
	d    *Downloader
	loc  Location
	size int64
	off  int64
}

var (
	_ io.ReaderAt   = (*ReaderAt)(nil)
	_ io.ReadSeeker = (*ReaderAt)(nil)
)

// NewReaderAt returns a ReaderAt for the blob at loc. A negative size makes
// it probe the size first.
func NewReaderAt(ctx context.Context, d *Downloader, loc Location, size int64) (*ReaderAt, error) {
	if size < 0 {
		n, err := d.Size(ctx, loc)
		if err != nil {
			return nil, err
		}
		size = n
	}
	return &ReaderAt{ctx: ctx, d: d, loc: loc, size: size}, nil
}

// Size returns the blob size.
func (r *ReaderAt) Size() int64 {
	return r.size
}

// ReadAt implements io.ReaderAt.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("fetch: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= r.size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), r.size)
	s, err := r.d.Download(r.ctx, r.loc, Between(off, end))
	if err != nil {
		return 0, err
	}
	defer s.Close()

	n, err := io.ReadFull(s, p[:end-off])
	if err != nil {
		return n, err
	}
	if end-off < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Read implements io.Reader.
func (r *ReaderAt) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker.
func (r *ReaderAt) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errors.New("fetch: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("fetch: negative position")
	}
	r.off = abs
	return abs, nil
}
