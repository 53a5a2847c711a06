// alerts.go wires the market-data projector's drop/backpressure/latency
// counters into metrics.AlertChecker, grounded on the original source's
// market-data ServiceMetrics::check_thresholds, which the source's
// subscriber loop calls periodically against a fixed AlertThresholds.
package marketdata

import "github.com/acceptx/exchange-core/metrics"

// NewAlertChecker returns an AlertChecker over the default thresholds,
// evaluated against this package's standard counters
// (MarketDataGapsDetected, MarketDataDuplicatesDropped,
// MarketDataBackpressureIncidents) and MarketDataEventProcessingLatency.
// cmd/exchange-core polls CheckThresholds periodically and logs whatever
// it returns.
func NewAlertChecker() *metrics.AlertChecker {
	return metrics.NewAlertChecker(metrics.DefaultAlertThresholds(), metrics.MarketDataEventProcessingLatency)
}
