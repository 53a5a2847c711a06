// alerts.go implements threshold-based alerting on top of the standard
// market-data counters (component F), grounded on the market-data
// service's ServiceMetrics/LatencyTracker/AlertThresholds/check_thresholds
// in the original source's services/market-data/src/metrics.rs. The Rust
// service keeps its own dropped/backpressure/latency counters alongside
// the alert checker; here the checker reads straight off DefaultRegistry
// so the same counters standard.go already exposes to Prometheus also
// drive alerting, rather than duplicating state.
package metrics

import (
	"fmt"
	"sort"
	"sync"
)

// AlertLevel is an alert's severity.
type AlertLevel int

const (
	AlertInfo AlertLevel = iota
	AlertWarning
	AlertCritical
)

// String renders the level the way it would appear in a log line.
func (l AlertLevel) String() string {
	switch l {
	case AlertWarning:
		return "warning"
	case AlertCritical:
		return "critical"
	default:
		return "info"
	}
}

// Alert is a single threshold breach.
type Alert struct {
	Level   AlertLevel
	Metric  string
	Message string
}

// AlertThresholds configures the market-data alert checker. Defaults
// mirror the source's AlertThresholds::default(): 100 dropped events, 50
// backpressure drops, 1ms p99 event-processing latency.
type AlertThresholds struct {
	MaxEventsDropped        int64
	MaxBackpressureDrops    int64
	MaxEventProcessingP99Ms float64
}

// DefaultAlertThresholds returns the source's default thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		MaxEventsDropped:        100,
		MaxBackpressureDrops:    50,
		MaxEventProcessingP99Ms: 1,
	}
}

// LatencyTracker keeps a bounded ring of recent samples for percentile and
// average queries, grounded on LatencyTracker in metrics.rs (a Vec-backed
// sliding window with FIFO eviction once max_samples is reached).
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []float64
	maxSamples int
	next       int
	full       bool
}

// NewLatencyTracker returns a tracker holding at most maxSamples values.
func NewLatencyTracker(maxSamples int) *LatencyTracker {
	return &LatencyTracker{
		samples:    make([]float64, maxSamples),
		maxSamples: maxSamples,
	}
}

// Record adds a latency sample, evicting the oldest once the window is
// full.
func (t *LatencyTracker) Record(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[t.next] = v
	t.next = (t.next + 1) % t.maxSamples
	if t.next == 0 {
		t.full = true
	}
}

func (t *LatencyTracker) snapshotLocked() []float64 {
	if t.full {
		out := make([]float64, t.maxSamples)
		copy(out, t.samples)
		return out
	}
	out := make([]float64, t.next)
	copy(out, t.samples[:t.next])
	return out
}

// Percentile returns the p-th percentile (0-100) of recorded samples, or
// false if no samples have been recorded. Uses the same nearest-rank
// index the source computes: (p/100 * (n-1)).
func (t *LatencyTracker) Percentile(p int) (float64, bool) {
	t.mu.Lock()
	sorted := t.snapshotLocked()
	t.mu.Unlock()
	if len(sorted) == 0 {
		return 0, false
	}
	sort.Float64s(sorted)
	idx := int(float64(p) / 100.0 * float64(len(sorted)-1))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx], true
}

// Average returns the arithmetic mean of recorded samples, or false if
// none have been recorded.
func (t *LatencyTracker) Average() (float64, bool) {
	t.mu.Lock()
	sorted := t.snapshotLocked()
	t.mu.Unlock()
	if len(sorted) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted)), true
}

// Count returns the number of samples currently held.
func (t *LatencyTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return t.maxSamples
	}
	return t.next
}

// AlertChecker evaluates AlertThresholds against the market-data
// counters already registered in standard.go, and keeps an append-only
// log of every alert it has raised (the source's Mutex<Vec<Alert>>).
type AlertChecker struct {
	thresholds AlertThresholds
	processing *LatencyTracker

	mu  sync.Mutex
	log []Alert
}

// NewAlertChecker creates a checker over the given thresholds. processing
// is the event-processing latency tracker to evaluate the p99 threshold
// against; pass nil to skip that check.
func NewAlertChecker(thresholds AlertThresholds, processing *LatencyTracker) *AlertChecker {
	return &AlertChecker{thresholds: thresholds, processing: processing}
}

// CheckThresholds reads the current gap/duplicate/backpressure counters
// off DefaultRegistry (MarketDataGapsDetected + MarketDataDuplicatesDropped
// stand in for the source's single events_dropped counter, since this
// projector tracks the two drop reasons separately; MarketDataBackpressureIncidents
// is backpressure_drops verbatim) plus the processing-latency tracker,
// appends any new alerts to the checker's log, and returns them.
func (c *AlertChecker) CheckThresholds() []Alert {
	var alerts []Alert

	dropped := MarketDataGapsDetected.Value() + MarketDataDuplicatesDropped.Value()
	if dropped > c.thresholds.MaxEventsDropped {
		alerts = append(alerts, Alert{
			Level:   AlertWarning,
			Metric:  "events_dropped",
			Message: fmt.Sprintf("events dropped: %d > threshold %d", dropped, c.thresholds.MaxEventsDropped),
		})
	}

	bpDrops := MarketDataBackpressureIncidents.Value()
	if bpDrops > c.thresholds.MaxBackpressureDrops {
		alerts = append(alerts, Alert{
			Level:   AlertCritical,
			Metric:  "backpressure_drops",
			Message: fmt.Sprintf("backpressure drops: %d > threshold %d", bpDrops, c.thresholds.MaxBackpressureDrops),
		})
	}

	if c.processing != nil {
		if p99, ok := c.processing.Percentile(99); ok && p99 > c.thresholds.MaxEventProcessingP99Ms {
			alerts = append(alerts, Alert{
				Level:   AlertWarning,
				Metric:  "event_processing_p99",
				Message: fmt.Sprintf("event processing p99: %.3fms > threshold %.3fms", p99, c.thresholds.MaxEventProcessingP99Ms),
			})
		}
	}

	if len(alerts) > 0 {
		c.mu.Lock()
		c.log = append(c.log, alerts...)
		c.mu.Unlock()
	}
	return alerts
}

// Log returns every alert raised by this checker so far.
func (c *AlertChecker) Log() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.log))
	copy(out, c.log)
	return out
}
