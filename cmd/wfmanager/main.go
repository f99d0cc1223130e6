// Package main implements the wfmanager command: it validates workflow
// documents and follows optimisation runs reported over NATS.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "wfmanager"
)

// Exit codes
const (
	exitFailure = 1
	exitPanic   = 2
	exitInvalid = 3
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitPanic)
		}
	}()

	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	if stderrors.Is(err, errWorkflowInvalid) {
		return exitInvalid
	}
	slog.Error("Command failed", "error", err, "exit_code", exitFailure)
	return exitFailure
}
