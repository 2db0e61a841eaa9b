package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/spf13/pflag"

	"github.com/ligustah/spanfetch/internal/blobstore"
	"github.com/ligustah/spanfetch/internal/config"
	"github.com/ligustah/spanfetch/internal/downloader"
	"github.com/ligustah/spanfetch/internal/progress"
	"github.com/ligustah/spanfetch/pkg/fetch"
)

func runGet(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	common := newCommonFlags(fs)

	output := fs.StringP("output", "o", "", "Output file, '-' for stdout, or object key with --output-bucket")
	outputBucket := fs.String("output-bucket", "", "Upload to this bucket URL instead of a local file")
	from := fs.Int64("from", 0, "First byte offset")
	to := fs.Int64("to", 0, "End offset (exclusive)")
	rng := fs.String("range", "", "HTTP style byte range: first-last (inclusive), first- or -suffix")
	force := fs.BoolP("force", "f", false, "Overwrite an existing output file")
	showProgress := fs.BoolP("progress", "p", false, "Show download progress on stderr")
	unordered := fs.Bool("unordered", false, "Write parts to the output file as they arrive (file output only)")
	noChecksum := fs.Bool("no-checksum", false, "Skip BLAKE3 digest computation")
	expectDigest := fs.String("expect-digest", "", "Fail unless the output has this hex BLAKE3 digest")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: spanfetch get [options] <source>

Download a blob using concurrent range requests. Bytes are written in
order; a file output only appears once the download completed.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: exactly one source is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	source := fs.Arg(0)

	span, err := parseSpan(fs, *from, *to, *rng)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if *unordered && (*output == "" || *output == "-" || *outputBucket != "") {
		fmt.Fprintln(stderr, "Error: --unordered needs a local output file")
		return ExitInvalidArgs
	}
	cfg = cfg.Merge(config.Config{OutputBucket: *outputBucket, Force: *force, Progress: *showProgress})

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	backend, closeBackend, err := openBackend(ctx, cfg, source)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer closeBackend()

	fcfg, err := cfg.Fetch()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	fcfg.Logger = logger

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{Output: stderr, Concurrency: cfg.Concurrency})
		fcfg.Observer = reporter
	}

	d, err := fetch.New(backend, fcfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	sink, target, closeSink, err := openSink(ctx, cfg, source, *output, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	defer closeSink()

	if reporter != nil {
		reporter.Start()
	}
	res, err := downloader.Download(ctx, d, fetch.Location(source), sink, downloader.Options{
		Span:         span,
		Unordered:    *unordered,
		NoChecksum:   *noChecksum,
		ExpectDigest: *expectDigest,
	})
	if reporter != nil {
		reporter.Stop()
	}
	if err != nil {
		if fetch.KindOf(err) == fetch.KindCancelled && ctx.Err() != nil {
			fmt.Fprintln(stderr, "\n[spanfetch] Interrupted")
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	logger.Info("download complete",
		"session", res.Session,
		"range", res.Range.String(),
		"bytes", res.Bytes,
		"elapsed", res.Elapsed,
	)
	fmt.Fprintf(stderr, "[spanfetch] Downloaded %s to %s\n", progress.FormatBytes(res.Bytes), target)
	if res.Digest != "" {
		fmt.Fprintf(stderr, "[spanfetch] blake3: %s\n", res.Digest)
	}
	return ExitSuccess
}

// openSink chooses where the bytes go. It returns a description of the
// target for messages and a close function that is never nil.
func openSink(ctx context.Context, cfg config.Config, source, output string, stdout io.Writer) (downloader.Sink, string, func() error, error) {
	noop := func() error { return nil }

	if cfg.OutputBucket != "" {
		key := output
		if key == "" || key == "-" {
			key = path.Base(source)
		}
		b, err := blobstore.Open(ctx, cfg.OutputBucket)
		if err != nil {
			return nil, "", nil, fmt.Errorf("%w: %w", downloader.ErrOutput, err)
		}
		sink, err := downloader.BucketSink(ctx, b.Bucket(), key)
		if err != nil {
			b.Close()
			return nil, "", nil, fmt.Errorf("%w: %w", downloader.ErrOutput, err)
		}
		return sink, cfg.OutputBucket + " " + key, b.Close, nil
	}

	if output == "" || output == "-" {
		return downloader.WriterSink(stdout), "stdout", noop, nil
	}

	sink, err := downloader.FileSink(output, cfg.Force)
	if err != nil {
		return nil, "", nil, err
	}
	return sink, output, noop, nil
}
