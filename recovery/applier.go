// applier.go provides the EventApplier contract (§4.E step 3) and two
// reference implementations: a sequence-recording placeholder matching
// the source's own default applier, and a fuller ledger applier that
// mutates accounts/orders/positions/balances for the event taxonomy in
// §6, used by this repository's own test suite and cmd/exchange-core.
package recovery

import (
	"fmt"

	"github.com/acceptx/exchange-core/enginestate"
	"github.com/acceptx/exchange-core/events"
	"github.com/acceptx/exchange-core/fixedpoint"
	"github.com/acceptx/exchange-core/journal"
)

// EventApplier transforms state in response to one journal entry. It must
// be pure over (state, entry): no I/O, no clock reads, no randomness
// (§4.E) — replay determinism (testable properties 6 and 7) depends on
// this.
type EventApplier func(state *enginestate.State, entry journal.Entry) error

// SequenceRecorder is the side-channel bookkeeping kept by
// NewSequenceRecordingApplier. It is not part of enginestate.State: the
// placeholder applier intentionally does not touch accounts, orders,
// positions, or balances.
type SequenceRecorder struct {
	LastSequence uint64
	CountByType  map[string]uint64
}

// NewSequenceRecordingApplier returns the placeholder applier named in §9's
// third open question ("the source's default applier is a placeholder that
// merely records sequence numbers"): it records rec.LastSequence and a
// per-event-type counter and performs no domain mutation whatsoever.
func NewSequenceRecordingApplier(rec *SequenceRecorder) EventApplier {
	if rec.CountByType == nil {
		rec.CountByType = make(map[string]uint64)
	}
	return func(state *enginestate.State, entry journal.Entry) error {
		rec.LastSequence = entry.Sequence
		rec.CountByType[entry.EventType]++
		return nil
	}
}

// ComposeApplier runs each applier in order over the same (state, entry),
// stopping at the first error. It lets a caller layer the sequence
// recorder alongside the authoritative matching-engine applier (§9).
func ComposeApplier(appliers ...EventApplier) EventApplier {
	return func(state *enginestate.State, entry journal.Entry) error {
		for _, a := range appliers {
			if err := a(state, entry); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewLedgerApplier returns a reference applier mutating
// accounts/orders/positions/balances for the five taxonomy event types
// (§6): OrderAccepted, TradeExecuted, and OrderCanceled mutate state;
// OrderPartiallyFilled and OrderFilled are informational echoes and are
// explicitly no-ops, matching the book mirror's own mutate/echo split in
// §4.F. Cancellation authorization is out of scope for this persistence
// core (§9, second open question): OrderCanceled is applied
// unconditionally, the caller's own gateway being responsible for
// deciding whether a cancel was authorized before it ever reaches the
// journal.
func NewLedgerApplier() EventApplier {
	return func(state *enginestate.State, entry journal.Entry) error {
		switch entry.EventType {
		case events.OrderAccepted:
			var p events.OrderAcceptedPayload
			if err := events.Decode(entry.Payload, &p); err != nil {
				return fmt.Errorf("recovery: decode OrderAccepted at sequence %d: %w", entry.Sequence, err)
			}
			state.Orders[p.OrderID] = enginestate.Order{
				ID: p.OrderID, Symbol: p.Symbol, Side: p.Side,
				Price: p.Price, RemainingQty: p.Qty,
			}
			return nil

		case events.TradeExecuted:
			var p events.TradeExecutedPayload
			if err := events.Decode(entry.Payload, &p); err != nil {
				return fmt.Errorf("recovery: decode TradeExecuted at sequence %d: %w", entry.Sequence, err)
			}
			applyTrade(state, p)
			return nil

		case events.OrderCanceled:
			var p events.OrderCanceledPayload
			if err := events.Decode(entry.Payload, &p); err != nil {
				return fmt.Errorf("recovery: decode OrderCanceled at sequence %d: %w", entry.Sequence, err)
			}
			delete(state.Orders, p.OrderID)
			return nil

		case events.OrderPartiallyFilled, events.OrderFilled:
			// Informational echoes; no state mutation (§4.F, §6).
			return nil

		default:
			return fmt.Errorf("recovery: unknown event type %q at sequence %d", entry.EventType, entry.Sequence)
		}
	}
}

// applyTrade decrements the maker order's remaining quantity (removing it
// once exhausted) and updates the maker account's position and asset
// balance. Position quantity increases for a BUY maker and decreases for
// a SELL maker; the average entry price is a size-weighted average,
// recomputed only while the position grows in its existing direction.
func applyTrade(state *enginestate.State, p events.TradeExecutedPayload) {
	if order, ok := state.Orders[p.MakerOrderID]; ok {
		remaining := order.RemainingQty.Sub(p.Qty)
		if remaining.IsZero() || remaining.IsNegative() {
			delete(state.Orders, p.MakerOrderID)
		} else {
			order.RemainingQty = remaining
			state.Orders[p.MakerOrderID] = order
		}
	}

	posKey := p.AccountID + ":" + p.Symbol
	pos, ok := state.Positions[posKey]
	if !ok {
		pos = enginestate.Position{ID: posKey, AccountID: p.AccountID, Symbol: p.Symbol}
	}

	delta := p.Qty
	if p.Side == "SELL" {
		delta = fixedpoint.Zero.Sub(p.Qty)
	}
	newQty := pos.Quantity.Add(delta)
	growing := pos.Quantity.IsZero() ||
		(pos.Quantity.IsPositive() && delta.IsPositive()) ||
		(pos.Quantity.IsNegative() && delta.IsNegative())
	if growing {
		newAbs := absDecimal(newQty)
		if newAbs.IsZero() {
			pos.AvgEntryPrice = fixedpoint.Zero
		} else {
			totalCost := pos.AvgEntryPrice.Mul(absDecimal(pos.Quantity)).Add(p.Price.Mul(p.Qty))
			pos.AvgEntryPrice = totalCost.Div(newAbs)
		}
	}
	pos.Quantity = newQty
	state.Positions[posKey] = pos

	balKey := p.AccountID + ":" + p.Symbol
	bal, ok := state.Balances[balKey]
	if !ok {
		bal = enginestate.Balance{ID: balKey, AccountID: p.AccountID, Asset: p.Symbol}
	}
	notional := p.Price.Mul(p.Qty)
	if p.Side == "BUY" {
		bal.Available = bal.Available.Sub(notional)
	} else {
		bal.Available = bal.Available.Add(notional)
	}
	state.Balances[balKey] = bal
}

func absDecimal(d fixedpoint.Decimal) fixedpoint.Decimal {
	if d.IsNegative() {
		return fixedpoint.Zero.Sub(d)
	}
	return d
}
