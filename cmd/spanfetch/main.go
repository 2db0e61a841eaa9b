package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ligustah/spanfetch/internal/downloader"
	"github.com/ligustah/spanfetch/pkg/fetch"
)

// Exit codes
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitInvalidArgs       = 2
	ExitSourceNotAccess   = 3
	ExitRangeNotSupported = 4
	ExitOutputError       = 5
	ExitTimeout           = 6
	ExitValidationFailed  = 7
	ExitInterrupted       = 130
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "get":
		return runGet(ctx, cmdArgs, stdout, stderr)
	case "size":
		return runSize(ctx, cmdArgs, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "spanfetch %s\n", version)
		return ExitSuccess
	case "help", "-h", "--help":
		printUsage(stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return ExitInvalidArgs
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: spanfetch <command> [options]

Commands:
  get      Download a blob (or a range of it) to a file, stdout or a bucket
  size     Print the size of a blob in bytes
  version  Print the version
  help     Show this help

Sources are HTTP(S) URLs, or object keys when --bucket is set.
Run 'spanfetch <command> -h' for command-specific help.`)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, downloader.ErrDigestMismatch):
		return ExitValidationFailed
	case errors.Is(err, downloader.ErrNotRandomAccess):
		return ExitInvalidArgs
	case errors.Is(err, downloader.ErrExists), errors.Is(err, downloader.ErrOutput):
		return ExitOutputError
	}

	switch fetch.KindOf(err) {
	case fetch.KindInvalidRange:
		return ExitInvalidArgs
	case fetch.KindNotFound, fetch.KindPermissionDenied:
		return ExitSourceNotAccess
	case fetch.KindRangeNotSupported:
		return ExitRangeNotSupported
	case fetch.KindTimeout:
		return ExitTimeout
	case fetch.KindProtocolViolation:
		return ExitValidationFailed
	case fetch.KindCancelled:
		return ExitInterrupted
	default:
		return ExitGeneralError
	}
}
