// doorgate - MQTT gateway for ESP32 door controllers.
//
// The gateway subscribes to the controllers' log topic and stores every
// access and system event in SQLite, and publishes command files, card
// database snapshots and firmware images dropped into watched directories.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancels on Ctrl+C and SIGTERM; serve uses it for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}
