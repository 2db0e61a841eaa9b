// Package progress provides progress reporting for downloads.
//
// The Reporter is a fetch.Observer that prints completion percentage,
// transfer speed, ETA and part counts. Byte sizes are formatted and parsed
// with go-humanize.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{Concurrency: 16})
//	reporter.Start()
//	defer reporter.Stop()
//
//	d, err := fetch.New(backend, fetch.Config{Concurrency: 16, Observer: reporter})
//
// # Output Format
//
//	[spanfetch] Downloading: https://example.com/file.tar.gz [0, 2500000000)
//	[spanfetch] Total size: 2.3 GiB | Parts: 299 x 8.0 MiB | Concurrency: 16
//	[spanfetch] Progress: 45.2% | 1.1 GiB / 2.3 GiB | Speed: 120 MiB/s | ETA: 10s
//	[spanfetch] Parts: 135 completed | 16 in-progress | 148 pending | 0 retries
package progress
