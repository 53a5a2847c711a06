// config.go collects every configuration knob enumerated in §6 into one
// Config struct, with defaults matching each component's own DefaultConfig
// and a flag set binding them to the command line, grounded on the
// teacher's cmd/eth2030/flags.go pattern but built on pflag (§6 DOMAIN
// STACK: pflag is a direct dependency of calvinalkan-agent-task) instead
// of the teacher's hand-rolled flag.FlagSet wrapper, since pflag already
// provides the Uint64Var/DurationVar helpers the teacher had to hand-write.
package main

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/acceptx/exchange-core/journal"
	"github.com/acceptx/exchange-core/marketdata"
	"github.com/acceptx/exchange-core/snapshot"
)

// Config is the fully resolved configuration for one exchange-core run.
type Config struct {
	Journal      journal.Config
	Snapshot     snapshot.Config
	Ingester     marketdata.IngesterConfig
	Backpressure marketdata.BackpressureConfig
	Ws           marketdata.WsConfig

	Symbol      string
	Timeframes  []string
	HTTPAddr    string
	MetricsAddr string

	flushEveryN int
	fsyncMode   string
	fsyncEveryN int
}

// DefaultConfig returns a Config with every §6-enumerated default.
func DefaultConfig() Config {
	return Config{
		Journal:      journal.DefaultConfig("./data/journal"),
		Snapshot:     snapshot.DefaultConfig("./data/snapshot"),
		Ingester:     marketdata.DefaultIngesterConfig(),
		Backpressure: marketdata.DefaultBackpressureConfig(),
		Ws:           marketdata.DefaultWsConfig(),
		Symbol:       "BTC-USD",
		Timeframes:   []string{"M1", "M5", "H1"},
		HTTPAddr:     ":8080",
		MetricsAddr:  ":9090",
		fsyncMode:    "every-write",
	}
}

// Validate checks cross-field and range constraints not already enforced
// by the flag parser itself.
func (c *Config) Validate() error {
	if c.Journal.Dir == "" {
		return fmt.Errorf("config: journal dir must not be empty")
	}
	if c.Snapshot.Dir == "" {
		return fmt.Errorf("config: snapshot dir must not be empty")
	}
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol must not be empty")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("config: at least one candle timeframe is required")
	}
	for _, tf := range c.Timeframes {
		if !marketdata.ValidTimeframe(marketdata.Timeframe(tf)) {
			return fmt.Errorf("config: unknown timeframe %q", tf)
		}
	}
	switch c.fsyncMode {
	case "every-write", "every-n", "on-rotation":
	default:
		return fmt.Errorf("config: fsync-policy must be one of every-write, every-n, on-rotation (got %q)", c.fsyncMode)
	}
	if c.fsyncMode == "every-n" && c.fsyncEveryN <= 0 {
		return fmt.Errorf("config: fsync-every-n must be positive when fsync-policy=every-n")
	}
	if c.Backpressure.DropPolicy != marketdata.DropPolicyDisconnect && c.Backpressure.DropPolicy != marketdata.DropPolicyDropOldest {
		return fmt.Errorf("config: unknown drop policy %v", c.Backpressure.DropPolicy)
	}
	return nil
}

// resolvePolicies translates the string/int flag inputs into the
// journal's FlushPolicy/FsyncPolicy values, run once after parsing.
func (c *Config) resolvePolicies() {
	if c.flushEveryN > 0 {
		c.Journal.FlushPolicy = journal.EveryNFlush(c.flushEveryN)
	} else {
		c.Journal.FlushPolicy = journal.EveryWriteFlush()
	}
	switch c.fsyncMode {
	case "every-n":
		c.Journal.FsyncPolicy = journal.EveryNFsync(c.fsyncEveryN)
	case "on-rotation":
		c.Journal.FsyncPolicy = journal.OnRotationFsync()
	default:
		c.Journal.FsyncPolicy = journal.EveryWriteFsync()
	}
}

// newFlagSet binds every §6 configuration knob to cfg and returns the
// pflag.FlagSet that parses them.
func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("exchange-core", flag.ContinueOnError)

	fs.StringVar(&cfg.Journal.Dir, "journal-dir", cfg.Journal.Dir, "journal segment directory")
	fs.Uint64Var(&cfg.Journal.MaxFileSize, "journal-max-file-size", cfg.Journal.MaxFileSize, "journal segment rotation threshold in bytes")
	fs.Uint64Var(&cfg.Journal.MaxTotalSize, "journal-max-total-size", cfg.Journal.MaxTotalSize, "journal total size ceiling in bytes (0 = unlimited)")
	fs.IntVar(&cfg.flushEveryN, "journal-flush-every-n", 0, "flush the write buffer every N appends (0 = every write)")
	fs.StringVar(&cfg.fsyncMode, "journal-fsync-policy", cfg.fsyncMode, "fsync policy: every-write, every-n, on-rotation")
	fs.IntVar(&cfg.fsyncEveryN, "journal-fsync-every-n", 0, "fsync every N appends when fsync-policy=every-n")

	fs.StringVar(&cfg.Snapshot.Dir, "snapshot-dir", cfg.Snapshot.Dir, "snapshot directory")
	fs.Uint64Var(&cfg.Snapshot.Interval, "snapshot-interval", cfg.Snapshot.Interval, "event-count interval between snapshots")
	fs.IntVar(&cfg.Snapshot.RetentionCount, "snapshot-retention", cfg.Snapshot.RetentionCount, "number of recent snapshots to retain (0 = keep all)")
	fs.BoolVar(&cfg.Snapshot.Compress, "snapshot-compress", cfg.Snapshot.Compress, "zstd-compress snapshot bodies")

	fs.IntVar(&cfg.Ingester.BufferCapacity, "ingest-buffer-capacity", cfg.Ingester.BufferCapacity, "out-of-order buffer capacity")
	fs.IntVar(&cfg.Ingester.DedupWindow, "ingest-dedup-window", cfg.Ingester.DedupWindow, "duplicate-detection ring size")

	fs.IntVar(&cfg.Backpressure.QueueCapacity, "subscriber-queue-capacity", cfg.Backpressure.QueueCapacity, "per-subscriber outbound queue capacity")
	fs.Var(newDropPolicyValue(&cfg.Backpressure.DropPolicy), "subscriber-drop-policy", "backpressure drop policy: disconnect, drop-oldest")
	fs.IntVar(&cfg.Backpressure.AdaptiveBatchThreshold, "subscriber-adaptive-batch-threshold", cfg.Backpressure.AdaptiveBatchThreshold, "lagging-client count that triggers the stressed batch size")
	fs.IntVar(&cfg.Backpressure.NormalBatchSize, "subscriber-normal-batch-size", cfg.Backpressure.NormalBatchSize, "broadcast batch size under normal load")
	fs.IntVar(&cfg.Backpressure.StressedBatchSize, "subscriber-stressed-batch-size", cfg.Backpressure.StressedBatchSize, "broadcast batch size once the adaptive threshold is crossed")

	fs.DurationVar(&cfg.Ws.HeartbeatInterval, "ws-heartbeat-interval", cfg.Ws.HeartbeatInterval, "websocket ping interval")
	fs.DurationVar(&cfg.Ws.StaleTimeout, "ws-stale-timeout", cfg.Ws.StaleTimeout, "disconnect a client with no pong within this window")
	fs.IntVar(&cfg.Ws.RateLimitMaxMessages, "ws-rate-limit-max-messages", cfg.Ws.RateLimitMaxMessages, "max client messages per rate-limit window")
	fs.DurationVar(&cfg.Ws.RateLimitWindow, "ws-rate-limit-window", cfg.Ws.RateLimitWindow, "rate-limit window duration")
	fs.IntVar(&cfg.Ws.MaxSubscriptionsPerClient, "ws-max-subscriptions", cfg.Ws.MaxSubscriptionsPerClient, "max channel subscriptions per client")

	fs.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "symbol projected by the market-data pipeline")
	fs.StringSliceVar(&cfg.Timeframes, "timeframes", cfg.Timeframes, "candle timeframes to build (M1,M5,M15,M30,H1,H4,D1,W1)")
	fs.StringVar(&cfg.HTTPAddr, "ws-addr", cfg.HTTPAddr, "websocket listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus exposition listen address")

	return fs
}

// dropPolicyValue adapts marketdata.DropPolicy to pflag.Value so it can be
// bound directly as a flag, mirroring the teacher's uint64Value pattern for
// a type the flag package has no native support for.
type dropPolicyValue struct {
	p *marketdata.DropPolicy
}

func newDropPolicyValue(p *marketdata.DropPolicy) *dropPolicyValue {
	return &dropPolicyValue{p: p}
}

func (v *dropPolicyValue) String() string {
	if v.p == nil {
		return ""
	}
	switch *v.p {
	case marketdata.DropPolicyDropOldest:
		return "drop-oldest"
	default:
		return "disconnect"
	}
}

func (v *dropPolicyValue) Set(s string) error {
	switch s {
	case "disconnect":
		*v.p = marketdata.DropPolicyDisconnect
	case "drop-oldest":
		*v.p = marketdata.DropPolicyDropOldest
	default:
		return fmt.Errorf("unknown drop policy %q (want disconnect or drop-oldest)", s)
	}
	return nil
}

func (v *dropPolicyValue) Type() string { return "dropPolicy" }
