// Package http implements a [fetch.Backend] for files served over HTTP.
//
// This package handles:
//   - Connection pooling for high parallelism
//   - HEAD requests for the file size, with a one byte range probe as fallback
//   - Range requests with Content-Range and Content-Length validation
//   - Mapping status codes and transport errors to fetch error kinds
//
// Retries are left to the fetch engine so that every part is retried with the
// same policy across backends.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	d, err := fetch.New(client, fetch.Config{Concurrency: 16})
//	if err != nil {
//	    return err
//	}
//	s, err := d.Download(ctx, fetch.Location(url), fetch.Full())
package http
