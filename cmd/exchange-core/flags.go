package main

import (
	"fmt"
	"os"
	"time"
)

// shutdownTimeout bounds how long graceful HTTP/websocket shutdown is
// allowed to take before the process exits anyway.
const shutdownTimeout = 5 * time.Second

// defaultTapeCapacity and defaultCandleHistory are not among §6's
// enumerated knobs; the spec only parameterizes the ingester, snapshot,
// backpressure, and websocket layers, leaving the trade-tape and
// candle-history bounds as implementation constants.
const (
	defaultTapeCapacity  = 10_000
	defaultCandleHistory = 1_000
)

// parseFlags parses CLI arguments into a Config. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (Config, bool, int) {
	cfg := DefaultConfig()
	fs := newFlagSet(&cfg)

	showVersion := fs.BoolP("version", "V", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("exchange-core %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}
