package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/ligustah/spanfetch/internal/progress"
	"github.com/ligustah/spanfetch/pkg/fetch"
)

func runSize(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("size", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	common := newCommonFlags(fs)
	human := fs.Bool("human", false, "Print a human readable size")

	fs.Usage = func() {
		fmt.Fprintln(stderr, `Usage: spanfetch size [options] <source>

Print the size of a blob in bytes.

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

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
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

	d, err := fetch.New(backend, fcfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	size, err := d.Size(ctx, fetch.Location(source))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	if *human {
		fmt.Fprintln(stdout, progress.FormatBytes(size))
	} else {
		fmt.Fprintln(stdout, size)
	}
	return ExitSuccess
}
