// Package marketdata implements the market-data fan-out projector (§4.F):
// an ingestion gate, an in-memory order-book mirror, a delta generator and
// batcher, a trade tape, a candle builder, a snapshot service, and a
// subscriber plane with per-client backpressure. It is the sole reader of
// the same ordered event stream the recovery engine replays, and must
// reach the same determinism bar: replaying a journal twice must produce
// identical book/tape/candle state.
package marketdata

import "time"

// IngesterConfig configures the ingestion gate (§6).
type IngesterConfig struct {
	BufferCapacity int // default 100_000
	DedupWindow    int // default 10_000
}

// DefaultIngesterConfig returns §6's documented defaults.
func DefaultIngesterConfig() IngesterConfig {
	return IngesterConfig{BufferCapacity: 100_000, DedupWindow: 10_000}
}

// DropPolicy names a subscriber-queue overflow policy (§4.F, §7).
type DropPolicy int

const (
	// DropPolicyDisconnect kicks the lagging client.
	DropPolicyDisconnect DropPolicy = iota
	// DropPolicyDropOldest preserves recency by discarding the oldest
	// queued message.
	DropPolicyDropOldest
)

// BackpressureConfig configures the subscriber plane's outbound queues
// (§6).
type BackpressureConfig struct {
	QueueCapacity          int // default 1000
	DropPolicy             DropPolicy
	AdaptiveBatchThreshold int // default 5, lagging-client count that triggers stressed batching
	NormalBatchSize        int // default 10
	StressedBatchSize      int // default 50
}

// DefaultBackpressureConfig returns §6's documented defaults.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{
		QueueCapacity:          1000,
		DropPolicy:             DropPolicyDisconnect,
		AdaptiveBatchThreshold: 5,
		NormalBatchSize:        10,
		StressedBatchSize:      50,
	}
}

// WsConfig configures the websocket subscriber transport (§6).
type WsConfig struct {
	HeartbeatInterval         time.Duration // default 30s
	StaleTimeout              time.Duration // default 90s
	RateLimitMaxMessages      int           // default 100
	RateLimitWindow           time.Duration // default 1s
	MaxSubscriptionsPerClient int           // default 50
}

// DefaultWsConfig returns §6's documented defaults.
func DefaultWsConfig() WsConfig {
	return WsConfig{
		HeartbeatInterval:         30 * time.Second,
		StaleTimeout:              90 * time.Second,
		RateLimitMaxMessages:      100,
		RateLimitWindow:           time.Second,
		MaxSubscriptionsPerClient: 50,
	}
}

// Timeframe names one of the candle builder's fixed bucket durations
// (§6 "Channel strings").
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
)

// Duration returns the bucket width for the timeframe, in exchange-clock
// nanoseconds (the same unit as journal.Entry.Timestamp, §3).
func (tf Timeframe) Duration() int64 {
	switch tf {
	case M1:
		return int64(time.Minute)
	case M5:
		return int64(5 * time.Minute)
	case M15:
		return int64(15 * time.Minute)
	case M30:
		return int64(30 * time.Minute)
	case H1:
		return int64(time.Hour)
	case H4:
		return int64(4 * time.Hour)
	case D1:
		return int64(24 * time.Hour)
	case W1:
		return int64(7 * 24 * time.Hour)
	default:
		return 0
	}
}

// ValidTimeframe reports whether tf is one of the §6 enumerated values.
func ValidTimeframe(tf Timeframe) bool {
	return tf.Duration() > 0
}
