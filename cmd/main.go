package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/crediscout/internal/commands"
	"github.com/okian/crediscout/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := commands.NewRuntime()
	if err := commands.NewRootCommand(rt).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, commands.ErrShown) {
			fmt.Fprintln(rt.Err, "Error:", err)
		}
		return 1
	}
	return 0
}
