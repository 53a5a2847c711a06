package marketdata

import (
	"sort"

	"github.com/acceptx/exchange-core/fixedpoint"
	"github.com/acceptx/exchange-core/journal"
)

// Delta is one order-book level change (§3 "Delta"). Deltas with
// `old == new` must never be emitted (testable property 8).
type Delta struct {
	Side        string
	Price       fixedpoint.Decimal
	OldQuantity fixedpoint.Decimal
	NewQuantity fixedpoint.Decimal
	Sequence    uint64
	Timestamp   int64
}

// IsRemoval reports whether this delta emptied the level entirely
// (scenario 3's `is_removal`).
func (d Delta) IsRemoval() bool {
	return d.NewQuantity.IsZero() && !d.OldQuantity.IsZero()
}

// deltasFromLevels diffs one level's before/after state and returns zero
// or one delta, suppressing the both-zero-quantity case (§4.F "Delta
// generator": "new or old being zero is fine, both-zero is suppressed").
func deltasFromLevels(side string, before, after Level, entry journal.Entry) []Delta {
	if before.Total.Equal(after.Total) {
		return nil
	}
	return []Delta{{
		Side:        side,
		Price:       after.Price,
		OldQuantity: before.Total,
		NewQuantity: after.Total,
		Sequence:    entry.Sequence,
		Timestamp:   entry.Timestamp,
	}}
}

// SortDeltas orders deltas in the fixed total order §5 requires: BUY
// before SELL, then ascending price within a side.
func SortDeltas(deltas []Delta) {
	sort.SliceStable(deltas, func(i, j int) bool {
		if deltas[i].Side != deltas[j].Side {
			return deltas[i].Side == sideBuy
		}
		return deltas[i].Price.LessThan(deltas[j].Price)
	})
}

// DeltaBatcher accumulates deltas and flushes them either on an explicit
// call or once the accumulated count reaches max_batch_size (§4.F "Delta
// batcher").
type DeltaBatcher struct {
	maxBatchSize int
	pending      []Delta
}

// NewDeltaBatcher creates a batcher with the given flush threshold. A
// non-positive maxBatchSize means "flush only on explicit call".
func NewDeltaBatcher(maxBatchSize int) *DeltaBatcher {
	return &DeltaBatcher{maxBatchSize: maxBatchSize}
}

// Add appends deltas to the pending batch, returning a non-nil flushed
// batch if the threshold was reached.
func (b *DeltaBatcher) Add(deltas ...Delta) []Delta {
	b.pending = append(b.pending, deltas...)
	if b.maxBatchSize > 0 && len(b.pending) >= b.maxBatchSize {
		return b.Flush()
	}
	return nil
}

// Flush returns and clears whatever is pending, sorted deterministically.
func (b *DeltaBatcher) Flush() []Delta {
	if len(b.pending) == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	SortDeltas(out)
	return out
}

// Len reports the number of deltas currently pending.
func (b *DeltaBatcher) Len() int { return len(b.pending) }
