// Package main is the exchangegate command: an HTTP gateway that dispatches
// requests into configured workflows and answers them when the workflow
// completes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is the build version, set through -ldflags at release time.
var Version = "dev"

const appName = "exchangegate"

func main() {
	if code := run(); code != 0 {
		os.Exit(code)
	}
}

func run() (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			exitCode = 2
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	return 0
}
