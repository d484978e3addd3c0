package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/replay-cli/cmd"
	"github.com/xkilldash9x/replay-cli/internal/observability"
)

func main() {
	// A signal-aware context so Ctrl+C cancels the replay cooperatively
	// instead of killing the browser mid-step.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
