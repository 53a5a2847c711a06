// Command exchange-core is the composition root for the persistence and
// market-data fan-out core: on boot it recovers engine state from the
// latest snapshot plus journal replay, opens the journal writer at the
// recovered cursor, rebuilds the market-data projector from the same
// journal, and serves a websocket subscription endpoint alongside a
// Prometheus exposition endpoint, grounded on the teacher's
// cmd/eth2030/main.go testable run(args) int entrypoint and
// startup-banner style. The websocket endpoint handles subscribe and
// unsubscribe requests only: the projector is built once at boot, and
// nothing it produces is broadcast to subscribers.
//
// Usage:
//
//	exchange-core [flags]
//
// Run `exchange-core --help` for the full flag list (§6 configuration
// knobs: journal, snapshot, ingester, backpressure, and websocket).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acceptx/exchange-core/journal"
	"github.com/acceptx/exchange-core/log"
	"github.com/acceptx/exchange-core/marketdata"
	"github.com/acceptx/exchange-core/metrics"
	"github.com/acceptx/exchange-core/recovery"
	"github.com/acceptx/exchange-core/snapshot"
)

// alertCheckInterval is how often cmd/exchange-core polls the market-data
// alert checker, mirroring the source's periodic check_thresholds sweep.
const alertCheckInterval = 30 * time.Second

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}
	cfg.resolvePolicies()

	logger := log.Default().Module("cmd")

	logger.Info("exchange-core starting", "version", version, "commit", commit)
	logger.Info("resolved configuration",
		"journal_dir", cfg.Journal.Dir,
		"journal_max_file_size", cfg.Journal.MaxFileSize,
		"journal_max_total_size", cfg.Journal.MaxTotalSize,
		"journal_fsync_policy", cfg.fsyncMode,
		"snapshot_dir", cfg.Snapshot.Dir,
		"snapshot_interval", cfg.Snapshot.Interval,
		"snapshot_retention", cfg.Snapshot.RetentionCount,
		"snapshot_compress", cfg.Snapshot.Compress,
		"ingest_buffer_capacity", cfg.Ingester.BufferCapacity,
		"ingest_dedup_window", cfg.Ingester.DedupWindow,
		"subscriber_queue_capacity", cfg.Backpressure.QueueCapacity,
		"subscriber_adaptive_batch_threshold", cfg.Backpressure.AdaptiveBatchThreshold,
		"ws_addr", cfg.HTTPAddr,
		"metrics_addr", cfg.MetricsAddr,
		"symbol", cfg.Symbol,
		"timeframes", cfg.Timeframes,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	snapStore, err := snapshot.Open(cfg.Snapshot)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		return 1
	}

	result, err := recovery.Run(recovery.Config{
		JournalDir:    cfg.Journal.Dir,
		SnapshotStore: snapStore,
		Applier:       recovery.NewLedgerApplier(),
	})
	if err != nil {
		var divergence recovery.DivergenceReport
		if errors.As(err, &divergence) {
			logger.Error("state divergence detected on recovery", "expected", divergence.ExpectedHash, "actual", divergence.ActualHash, "sequence", divergence.Sequence)
		} else {
			logger.Error("recovery failed", "error", err)
		}
		return 1
	}
	logger.Info("recovery complete", "sequence", result.Sequence, "replayed", result.ReplayCount, "hash", result.Hash)

	writer, err := journal.OpenWriter(cfg.Journal)
	if err != nil {
		logger.Error("failed to open journal writer", "error", err)
		return 1
	}
	defer writer.Close()
	if result.Sequence > 0 {
		if err := writer.SetNextSequence(result.Sequence + 1); err != nil {
			logger.Error("failed to set writer cursor", "error", err)
			return 1
		}
	}

	projector, err := buildProjector(cfg, result.Sequence)
	if err != nil {
		logger.Error("failed to rebuild market-data projector", "error", err)
		return 1
	}
	logger.Info("market-data projector rebuilt", "symbol", cfg.Symbol, "last_sequence", projector.Book().LastSequence())

	wsServer := marketdata.NewServer(cfg.Ws, cfg.Backpressure)
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: wsHandler(wsServer, logger)}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server stopped", "error", err)
		}
	}()
	logger.Info("websocket server listening", "addr", cfg.HTTPAddr)

	sysMetrics := metrics.NewSystemMetrics()
	sysMetrics.SetSubscriberCountFunc(func() int { return wsServer.Registry().Len() })
	sysMetrics.SetLastSequenceFunc(func() uint64 { return projector.Book().LastSequence() })
	sysMetrics.SetReplayProgressFunc(func() float64 { return 1.0 }) // recovery already completed by the time we serve

	exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/", exporter.Handler())
	metricsMux.HandleFunc("/system.json", func(w http.ResponseWriter, r *http.Request) {
		body, err := sysMetrics.ExportJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics server listening", "addr", cfg.MetricsAddr)

	alertChecker := marketdata.NewAlertChecker()
	alertStop := make(chan struct{})
	go runAlertChecks(alertChecker, logger, alertStop)
	defer close(alertStop)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	_ = metricsSrv.Shutdown(ctx)

	if err := writer.Sync(); err != nil {
		logger.Error("final journal sync failed", "error", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// buildProjector opens a dedicated journal reader and replays the whole
// journal into a fresh market-data projector, mirroring §4.E's
// snapshot+seek+replay algorithm but over the F-side in-memory views
// rather than engine state.
func buildProjector(cfg Config, lastApplied uint64) (*marketdata.Projector, error) {
	reader, err := journal.OpenReader(cfg.Journal.Dir)
	if err != nil {
		return nil, fmt.Errorf("cmd: open journal for projector rebuild: %w", err)
	}
	defer reader.Close()

	timeframes := make([]marketdata.Timeframe, 0, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		timeframes = append(timeframes, marketdata.Timeframe(tf))
	}

	pcfg := marketdata.ProjectorConfig{
		Symbol:        cfg.Symbol,
		Ingester:      cfg.Ingester,
		TapeCapacity:  defaultTapeCapacity,
		Timeframes:    timeframes,
		CandleHistory: defaultCandleHistory,
		MaxBatchSize:  cfg.Backpressure.NormalBatchSize,
	}
	return marketdata.Rebuild(reader, pcfg)
}

// runAlertChecks polls the market-data alert checker every
// alertCheckInterval, logging every Warning/Critical alert it raises,
// until stop is closed.
func runAlertChecks(checker *metrics.AlertChecker, logger *log.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(alertCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, a := range checker.CheckThresholds() {
				logger.Warn("market-data alert", "level", a.Level.String(), "metric", a.Metric, "message", a.Message)
			}
		case <-stop:
			return
		}
	}
}

// wsHandler wires the single "/ws" upgrade endpoint to the market-data
// server's ServeConn, matching §6's client subscription protocol.
func wsHandler(s *marketdata.Server, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := s.ServeConn(w, r); err != nil {
			logger.Warn("websocket connection closed", "error", err)
		}
	})
	return mux
}
