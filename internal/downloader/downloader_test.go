package downloader

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/blake3"
	"gocloud.dev/blob/memblob"

	"github.com/ligustah/spanfetch/internal/testutils"
	"github.com/ligustah/spanfetch/pkg/fetch"
)

func memDownloader(t *testing.T, data []byte, failAt int64) *fetch.Downloader {
	t.Helper()
	backend := fetch.BackendFuncs{
		SizeFunc: func(ctx context.Context, loc fetch.Location) (int64, error) {
			return int64(len(data)), nil
		},
		FetchFunc: func(ctx context.Context, loc fetch.Location, r fetch.Range) ([]byte, error) {
			if failAt >= 0 && r.Start <= failAt && failAt < r.End {
				return nil, fetch.ErrPermissionDenied
			}
			return append([]byte(nil), data[r.Start:r.End]...), nil
		},
	}
	d, err := fetch.New(backend, fetch.Config{
		PartSize:    1024,
		Concurrency: 4,
		Backoff:     fetch.NoBackoff,
	})
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	return d
}

func digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestDownloadToFile(t *testing.T) {
	data := testutils.GenerateTestData(10*1024 + 17)
	path := filepath.Join(t.TempDir(), "out", "blob.bin")

	sink, err := FileSink(path, false)
	if err != nil {
		t.Fatalf("FileSink: %v", err)
	}
	res, err := Download(context.Background(), memDownloader(t, data, -1), "blob", sink, Options{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("output differs from source")
	}
	if res.Bytes != int64(len(data)) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(data))
	}
	if res.Digest != digest(data) {
		t.Errorf("Digest = %s, want %s", res.Digest, digest(data))
	}
	if res.Session == "" {
		t.Error("Session is empty")
	}
	if _, err := os.Stat(path + ".partial"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial file left behind: %v", err)
	}
}

func TestDownloadFailureLeavesNoFile(t *testing.T) {
	data := testutils.GenerateTestData(8 * 1024)
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")

	sink, err := FileSink(path, false)
	if err != nil {
		t.Fatalf("FileSink: %v", err)
	}
	_, err = Download(context.Background(), memDownloader(t, data, 5000), "blob", sink, Options{})
	if !errors.Is(err, fetch.ErrPermissionDenied) {
		t.Fatalf("Download error = %v, want permission denied", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory not empty after failure: %v", entries)
	}
}

func TestFileSinkExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := FileSink(path, false); !errors.Is(err, ErrExists) {
		t.Fatalf("FileSink error = %v, want ErrExists", err)
	}

	sink, err := FileSink(path, true)
	if err != nil {
		t.Fatalf("FileSink with force: %v", err)
	}
	data := testutils.GenerateTestData(3000)
	if _, err := Download(context.Background(), memDownloader(t, data, -1), "blob", sink, Options{}); err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data) {
		t.Error("existing file was not replaced")
	}
}

func TestDownloadToBucket(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	data := testutils.GenerateTestData(6*1024 + 3)
	sink, err := BucketSink(ctx, bucket, "copies/blob.bin")
	if err != nil {
		t.Fatalf("BucketSink: %v", err)
	}
	if _, err := Download(ctx, memDownloader(t, data, -1), "blob", sink, Options{}); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := bucket.ReadAll(ctx, "copies/blob.bin")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("uploaded object differs from source")
	}
}

func TestBucketSinkAbort(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	data := testutils.GenerateTestData(6 * 1024)
	sink, err := BucketSink(ctx, bucket, "copies/blob.bin")
	if err != nil {
		t.Fatalf("BucketSink: %v", err)
	}
	if _, err := Download(ctx, memDownloader(t, data, 4096), "blob", sink, Options{}); err == nil {
		t.Fatal("Download succeeded, want error")
	}

	ok, err := bucket.Exists(ctx, "copies/blob.bin")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("aborted upload left an object behind")
	}
}

func TestDownloadToWriter(t *testing.T) {
	data := testutils.GenerateTestData(4096)
	var buf bytes.Buffer

	res, err := Download(context.Background(), memDownloader(t, data, -1), "blob", WriterSink(&buf), Options{
		Span:       fetch.Between(100, 2100),
		NoChecksum: true,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data[100:2100]) {
		t.Error("written bytes differ from the requested range")
	}
	if res.Digest != "" {
		t.Errorf("Digest = %q with checksums disabled", res.Digest)
	}
	if res.Range != (fetch.Range{Start: 100, End: 2100}) {
		t.Errorf("Range = %v", res.Range)
	}
}

func TestDownloadDigest(t *testing.T) {
	data := testutils.GenerateTestData(5000)

	tests := []struct {
		name    string
		expect  string
		wantErr error
	}{
		{name: "match", expect: digest(data)},
		{name: "mismatch", expect: digest([]byte("something else")), wantErr: ErrDigestMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "blob.bin")
			sink, err := FileSink(path, false)
			if err != nil {
				t.Fatalf("FileSink: %v", err)
			}
			_, err = Download(context.Background(), memDownloader(t, data, -1), "blob", sink, Options{ExpectDigest: tt.expect})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Download error = %v, want %v", err, tt.wantErr)
			}
			_, statErr := os.Stat(path)
			if tt.wantErr == nil && statErr != nil {
				t.Errorf("output missing: %v", statErr)
			}
			if tt.wantErr != nil && !errors.Is(statErr, os.ErrNotExist) {
				t.Errorf("output committed despite mismatch: %v", statErr)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestDownloadSinkError(t *testing.T) {
	data := testutils.GenerateTestData(4096)
	_, err := Download(context.Background(), memDownloader(t, data, -1), "blob", WriterSink(failingWriter{}), Options{})
	if err == nil {
		t.Fatal("Download succeeded, want error")
	}
	if !errors.Is(err, ErrOutput) {
		t.Errorf("Download error = %v, want ErrOutput", err)
	}
	var ferr *fetch.Error
	if errors.As(err, &ferr) {
		t.Errorf("sink failure reported as fetch error: %v", err)
	}
}

func TestDownloadUnorderedToFile(t *testing.T) {
	data := testutils.GenerateTestData(9*1024 + 100)
	backend := fetch.BackendFuncs{
		SizeFunc: func(ctx context.Context, loc fetch.Location) (int64, error) {
			return int64(len(data)), nil
		},
		FetchFunc: func(ctx context.Context, loc fetch.Location, r fetch.Range) ([]byte, error) {
			// earlier parts finish later
			time.Sleep(time.Duration(len(data)-int(r.Start)) * time.Microsecond)
			return append([]byte(nil), data[r.Start:r.End]...), nil
		},
	}
	d, err := fetch.New(backend, fetch.Config{PartSize: 1024, Concurrency: 10, Backoff: fetch.NoBackoff})
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "blob.bin")
	sink, err := FileSink(path, false)
	if err != nil {
		t.Fatalf("FileSink: %v", err)
	}
	res, err := Download(context.Background(), d, "blob", sink, Options{
		Span:         fetch.From(100),
		Unordered:    true,
		ExpectDigest: digest(data[100:]),
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, data[100:]) {
		t.Fatal("output differs from source")
	}
	if res.Bytes != int64(len(data)-100) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(data)-100)
	}
}

func TestDownloadUnorderedFailure(t *testing.T) {
	data := testutils.GenerateTestData(8 * 1024)
	dir := t.TempDir()

	sink, err := FileSink(filepath.Join(dir, "blob.bin"), false)
	if err != nil {
		t.Fatalf("FileSink: %v", err)
	}
	_, err = Download(context.Background(), memDownloader(t, data, 7000), "blob", sink, Options{Unordered: true})
	if !errors.Is(err, fetch.ErrPermissionDenied) {
		t.Fatalf("Download error = %v, want permission denied", err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("directory not empty after failure: %v", entries)
	}
}

func TestDownloadUnorderedNeedsRandomAccess(t *testing.T) {
	var buf bytes.Buffer
	_, err := Download(context.Background(), memDownloader(t, []byte("abc"), -1), "blob", WriterSink(&buf), Options{Unordered: true})
	if !errors.Is(err, ErrNotRandomAccess) {
		t.Fatalf("Download error = %v, want ErrNotRandomAccess", err)
	}
}
