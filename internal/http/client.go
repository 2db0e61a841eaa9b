package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ligustah/spanfetch/pkg/fetch"
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Should be at least the download concurrency.
	// Default: 100
	MaxIdleConnsPerHost int

	// Timeout bounds a whole request including reading the body. Zero means
	// no limit; the engine's attempt timeout usually covers this.
	Timeout time.Duration

	// Header is added to every request, e.g. for authorization.
	Header http.Header

	// UserAgent overrides the User-Agent header.
	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 100,
		UserAgent:           "spanfetch",
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	Size          int64
	ETag          string
	AcceptsRanges bool
	ContentType   string
	LastModified  time.Time
}

// Client downloads byte ranges of files served over HTTP. It implements
// [fetch.Backend] with the URL as location. The client does not retry;
// failures are classified with the fetch sentinel errors instead.
type Client struct {
	client *http.Client
	opts   Options
}

var _ fetch.Backend = (*Client)(nil)

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 100
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // ranges address raw bytes
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Size implements fetch.Backend.
func (c *Client) Size(ctx context.Context, loc fetch.Location) (int64, error) {
	info, err := c.Head(ctx, string(loc))
	if err != nil {
		return 0, err
	}
	if info.Size >= 0 {
		return info.Size, nil
	}
	return c.probeSize(ctx, string(loc))
}

// Head performs a HEAD request to get file metadata. Size is -1 when the
// server does not report a Content-Length.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, url, "")
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	info := &FileInfo{
		Size:          resp.ContentLength,
		ETag:          cleanETag(resp.Header.Get("ETag")),
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	return info, nil
}

// probeSize asks for the first byte and reads the total from Content-Range.
func (c *Client) probeSize(ctx context.Context, url string) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, url, "bytes=0-0")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	// An empty file has no first byte.
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && resp.Header.Get("Content-Range") == "bytes */0" {
		return 0, nil
	}
	if err := checkStatus(resp); err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("%w: size probe returned %d without a range", fetch.ErrRangeNotSupported, resp.StatusCode)
	}

	_, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fetch.ErrProtocolViolation, err)
	}
	if total < 0 {
		return 0, fmt.Errorf("%w: server does not report the file size", fetch.ErrRangeNotSupported)
	}
	return total, nil
}

// Fetch implements fetch.Backend using a single Range request.
func (c *Client) Fetch(ctx context.Context, loc fetch.Location, r fetch.Range) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, string(loc), fmt.Sprintf("bytes=%d-%d", r.Start, r.Last()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	cr := resp.Header.Get("Content-Range")
	switch {
	case resp.StatusCode == http.StatusOK && cr == "":
		return nil, fmt.Errorf("%w: server returned the whole file", fetch.ErrRangeNotSupported)
	case cr != "":
		start, end, _, err := ParseContentRange(cr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", fetch.ErrProtocolViolation, err)
		}
		if start != r.Start || end != r.Last() {
			return nil, fmt.Errorf("%w: asked for %s, got bytes %d-%d", fetch.ErrProtocolViolation, r, start, end)
		}
	}
	if resp.ContentLength >= 0 && resp.ContentLength != r.Len() {
		return nil, fmt.Errorf("%w: Content-Length %d for %s", fetch.ErrProtocolViolation, resp.ContentLength, r)
	}

	// One extra byte lets the engine report an over-long body.
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.Len()+1))
	if err != nil {
		return nil, classify(fmt.Errorf("http: read body: %w", err))
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, method, url, byteRange string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: http: invalid URL: %v", fetch.ErrNotFound, err)
	}
	for k, vs := range c.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(fmt.Errorf("http: %s %s: %w", method, url, err))
	}
	return resp, nil
}

// classify wraps transport errors with the fetch sentinel for their kind.
// Context errors are returned as is.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", fetch.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", fetch.ErrTransient, err)
}

// checkStatus maps a non-success status code to a fetch sentinel error.
func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: http: %s", fetch.ErrNotFound, resp.Status)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: http: %s", fetch.ErrPermissionDenied, resp.Status)
	case code == http.StatusRequestedRangeNotSatisfiable:
		return fmt.Errorf("%w: http: %s", fetch.ErrRangeNotSupported, resp.Status)
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: http: %s", fetch.ErrTransient, resp.Status)
	default:
		return fmt.Errorf("http: unexpected status %s", resp.Status)
	}
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// ParseContentRange parses a Content-Range header value of the form
// "bytes start-end/total". Total is -1 if the server sent "*".
func ParseContentRange(header string) (start, end, total int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range %q", header)
	}
	rng, size, ok := strings.Cut(spec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range %q", header)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range %q", header)
	}

	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range start: %w", err)
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range end: %w", err)
	}
	if start > end {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range %q", header)
	}

	if size == "*" {
		return start, end, -1, nil
	}
	if total, err = strconv.ParseInt(size, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("http: invalid Content-Range total: %w", err)
	}
	return start, end, total, nil
}
