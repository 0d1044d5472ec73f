package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forcedExitCode is used when a second signal arrives before the command
// has wound down.
const forcedExitCode = 1

// shutdownContext derives a context from parent that SIGINT or SIGTERM
// cancels. Commands see the cancellation, abort the request in flight and
// close what they opened. Another signal after that exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)

		received := 0

		for {
			select {
			case <-parent.Done():
				return
			case sig := <-signals:
				received++

				if received > 1 {
					logger.Warn("signal received during shutdown, exiting now",
						slog.String("signal", sig.String()),
					)
					os.Exit(forcedExitCode)
				}

				logger.Info("shutting down",
					slog.String("signal", sig.String()),
				)
				cancel()
			}
		}
	}()

	return ctx
}
