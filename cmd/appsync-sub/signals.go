package main

import (
	"log/slog"
	"os"

	"github.com/jdfoster/appsync-realtime-util/pkg/appsync"
)

// exitInterrupted is the status after a second interrupt.
const exitInterrupted = 130

// handleSignals cancels the client on the first signal and waits for
// teardown. A second signal during teardown sends exitInterrupted on exit.
func handleSignals(sigCh <-chan os.Signal, client *appsync.Client, logger *slog.Logger, exit chan<- int) {
	select {
	case sig := <-sigCh:
		logger.Info("Received signal", "signal", sig)
	case <-client.Done():
		return
	}

	logger.Info("Gracefully stopping running tasks. To halt immediately press ^C again.")
	client.Cancel()

	select {
	case <-sigCh:
		logger.Warn("Halting")
		exit <- exitInterrupted
	case <-client.Done():
		logger.Info("Shutdown complete")
	}
}
