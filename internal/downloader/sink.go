package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
)

// ErrExists is returned by FileSink when the destination exists and
// overwriting was not requested.
var ErrExists = errors.New("downloader: destination exists")

// Sink receives downloaded bytes in order. Exactly one of Commit or Abort is
// called once writing ends; an aborted sink leaves no partial output behind
// where possible.
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
}

// RandomAccessSink is a Sink that also takes writes at arbitrary offsets and
// can read back what it holds. Unordered downloads need one.
type RandomAccessSink interface {
	Sink
	io.WriterAt
	io.ReaderAt
}

// fileSink writes to a temporary file next to the destination and renames it
// into place on Commit.
type fileSink struct {
	f    *os.File
	tmp  string
	path string
}

// FileSink returns a Sink writing to path. It is a RandomAccessSink. The data goes to path+".partial"
// until Commit renames it.
func FileSink(path string, force bool) (RandomAccessSink, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("%w: %s", ErrExists, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("downloader: create directory: %w", err)
		}
	}

	tmp := path + ".partial"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("downloader: create %s: %w", tmp, err)
	}
	return &fileSink{f: f, tmp: tmp, path: path}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *fileSink) WriteAt(p []byte, off int64) (int, error) {
	return s.f.WriteAt(p, off)
}

func (s *fileSink) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSink) Commit() error {
	if err := s.f.Sync(); err != nil {
		s.Abort()
		return fmt.Errorf("downloader: sync %s: %w", s.tmp, err)
	}
	if err := s.f.Close(); err != nil {
		os.Remove(s.tmp)
		return fmt.Errorf("downloader: close %s: %w", s.tmp, err)
	}
	if err := os.Rename(s.tmp, s.path); err != nil {
		os.Remove(s.tmp)
		return fmt.Errorf("downloader: rename into place: %w", err)
	}
	return nil
}

func (s *fileSink) Abort() error {
	s.f.Close()
	if err := os.Remove(s.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("downloader: remove %s: %w", s.tmp, err)
	}
	return nil
}

type writerSink struct {
	io.Writer
}

// WriterSink wraps w, e.g. stdout. Commit and Abort do nothing; bytes already
// written on failure stay written.
func WriterSink(w io.Writer) Sink {
	return writerSink{Writer: w}
}

func (writerSink) Commit() error { return nil }
func (writerSink) Abort() error  { return nil }

// bucketSink streams into a bucket object. Cancelling the writer's context
// before Close makes gocloud discard the object.
type bucketSink struct {
	w      *blob.Writer
	cancel context.CancelFunc
	key    string
}

// BucketSink returns a Sink that uploads to key in bucket.
func BucketSink(ctx context.Context, bucket *blob.Bucket, key string) (Sink, error) {
	wctx, cancel := context.WithCancel(ctx)
	w, err := bucket.NewWriter(wctx, key, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("downloader: open %s for writing: %w", key, err)
	}
	return &bucketSink{w: w, cancel: cancel, key: key}, nil
}

func (s *bucketSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *bucketSink) Commit() error {
	defer s.cancel()
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("downloader: upload %s: %w", s.key, err)
	}
	return nil
}

func (s *bucketSink) Abort() error {
	s.cancel()
	s.w.Close()
	return nil
}
