package marketdata

import (
	"testing"
	"time"

	"github.com/acceptx/exchange-core/fixedpoint"
)

func TestCandleAlignsToBoundary(t *testing.T) {
	duration := int64(time.Minute)
	ts := int64(150 * time.Second) // 2.5 minutes
	got := alignToBoundary(ts, duration)
	want := int64(2 * time.Minute)
	if got != want {
		t.Fatalf("alignToBoundary = %d, want %d", got, want)
	}
}

// TestCandleWellFormedness covers testable property 10: low <= {open,
// close} <= high, volume >= 0, close_time > open_time.
func TestCandleWellFormedness(t *testing.T) {
	cb := NewCandleBuilder("BTC-USD", M1, 10)
	base := int64(0)
	prices := []string{"100", "105", "95", "102"}
	for i, p := range prices {
		ts := base + int64(i)*int64(time.Second)
		cb.Record(fixedpoint.MustNonNegative(p), fixedpoint.MustNonNegative("1"), ts)
	}
	current, ok := cb.Current()
	if !ok {
		t.Fatalf("expected an open candle")
	}
	if current.Low.GreaterThan(current.Open) || current.Low.GreaterThan(current.Close) {
		t.Fatalf("low must be <= open and close: %+v", current)
	}
	if current.High.LessThan(current.Open) || current.High.LessThan(current.Close) {
		t.Fatalf("high must be >= open and close: %+v", current)
	}
	if current.Volume.IsNegative() {
		t.Fatalf("volume must be >= 0: %+v", current)
	}
	if current.CloseTime <= current.OpenTime {
		t.Fatalf("close_time must be > open_time: %+v", current)
	}
	if current.CloseTime != current.OpenTime+cb.duration-1 {
		t.Fatalf("close_time = open_time + duration - 1 violated: %+v", current)
	}
}

func TestCandleClosesOnBoundaryCrossing(t *testing.T) {
	cb := NewCandleBuilder("BTC-USD", M1, 10)
	minute := int64(time.Minute)
	cb.Record(fixedpoint.MustNonNegative("100"), fixedpoint.MustNonNegative("1"), 0)
	cb.Record(fixedpoint.MustNonNegative("110"), fixedpoint.MustNonNegative("1"), minute/2)
	closed := cb.Record(fixedpoint.MustNonNegative("120"), fixedpoint.MustNonNegative("1"), minute+1)
	if closed == nil {
		t.Fatalf("expected the first candle to close on boundary crossing")
	}
	if !closed.Close.Equal(fixedpoint.MustNonNegative("110")) {
		t.Fatalf("closed candle close = %s, want 110", closed.Close)
	}
	current, ok := cb.Current()
	if !ok || !current.Open.Equal(fixedpoint.MustNonNegative("120")) {
		t.Fatalf("expected new candle opened at 120, got %+v", current)
	}
	history := cb.History()
	if len(history) != 1 {
		t.Fatalf("expected one closed candle in history, got %d", len(history))
	}
}

func TestCandleBackfillFillsGapsAtPriorClose(t *testing.T) {
	cb := NewCandleBuilder("BTC-USD", M1, 10)
	minute := int64(time.Minute)
	cb.Record(fixedpoint.MustNonNegative("100"), fixedpoint.MustNonNegative("1"), 0)
	// Jump three minutes ahead: expect two zero-volume backfilled
	// candles (minute 1 and minute 2) before the new current candle.
	cb.Record(fixedpoint.MustNonNegative("130"), fixedpoint.MustNonNegative("1"), 3*minute)

	history := cb.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 entries in history (closed + 2 backfilled), got %d", len(history))
	}
	for _, c := range history[1:] {
		if !c.Volume.IsZero() {
			t.Fatalf("expected zero-volume backfilled candle, got %+v", c)
		}
		if !c.Open.Equal(fixedpoint.MustNonNegative("100")) || !c.Close.Equal(fixedpoint.MustNonNegative("100")) {
			t.Fatalf("expected backfilled candle priced at prior close (100), got %+v", c)
		}
	}
}

func TestCandleHistoryTrimmedToMaxHistory(t *testing.T) {
	cb := NewCandleBuilder("BTC-USD", M1, 2)
	minute := int64(time.Minute)
	for i := int64(0); i < 5; i++ {
		cb.Record(fixedpoint.MustNonNegative("100"), fixedpoint.MustNonNegative("1"), i*minute)
	}
	if len(cb.History()) > 2 {
		t.Fatalf("expected history trimmed to max 2, got %d", len(cb.History()))
	}
}
