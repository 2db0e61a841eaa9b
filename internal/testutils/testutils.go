// Package testutils provides shared test infrastructure: a range-capable HTTP
// server with fault injection and, behind the integration build tag, a Minio
// container.
package testutils

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestFile defines a test file with name and data.
type TestFile struct {
	Name string
	Data []byte
}

// GenerateTestData generates a deterministic pattern of the given size.
func GenerateTestData(size int64) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i%251) ^ byte(i>>8)
	}
	return data
}

// RangeServer serves test files with HEAD and Range support.
type RangeServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	failures map[string]int // remaining 503 responses per "path range"

	// FailRanges makes every distinct range request fail with 503 this many
	// times before it succeeds.
	FailRanges int

	requests atomic.Int64
}

// StartRangeServer starts a RangeServer for files. It is closed when the test
// ends.
func StartRangeServer(t *testing.T, files ...TestFile) *RangeServer {
	t.Helper()

	s := &RangeServer{
		files:    make(map[string][]byte),
		failures: make(map[string]int),
	}
	for _, f := range files {
		s.files["/"+f.Name] = f.Data
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// FileURL returns the URL of a served file.
func (s *RangeServer) FileURL(name string) string {
	return s.URL + "/" + name
}

// Requests returns the number of requests served.
func (s *RangeServer) Requests() int64 {
	return s.requests.Load()
}

func (s *RangeServer) serve(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	data, ok := s.files[r.URL.Path]
	fail := false
	if rng := r.Header.Get("Range"); ok && rng != "" && s.FailRanges > 0 {
		key := r.URL.Path + " " + rng
		left, seen := s.failures[key]
		if !seen {
			left = s.FailRanges
		}
		if left > 0 {
			fail = true
			s.failures[key] = left - 1
		}
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("ETag", fmt.Sprintf(`"%s"`, r.URL.Path))
	http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(data))
}

// CompareReaderToData compares reader output with expected data in chunks.
// This is memory-efficient for large files.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	buf := make([]byte, 1024*1024)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("read more data than expected: offset=%d, n=%d, expected len=%d",
					offset, n, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
