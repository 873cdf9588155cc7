package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0 // The invocation completed, possibly with some failed units
	ExitError   = 1 // Configuration or runtime error, or every unit failed
)

// runError settles the error returned by a batch. A batch where at least one
// unit succeeded is not an invocation failure: its failed units are listed
// on w and logged, and nil is returned. Any other error, including an
// interrupted batch, is returned as is.
func runError(w io.Writer, err error) error {
	var be *orchestration.BatchError
	if !errors.As(err, &be) || be.AllFailed() || errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(w, "⚠ %d of %d unit(s) failed\n", len(be.Failures), be.Total)
	for _, f := range be.Failures {
		fmt.Fprintf(w, "  ✗ %s: %v\n", f.Unit, f.Err)
		slog.Warn("Unit failed", "unit", f.Unit, "error", f.Err)
	}
	return nil
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitError
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
