package marketdata

import (
	"fmt"

	"github.com/google/btree"

	"github.com/acceptx/exchange-core/events"
	"github.com/acceptx/exchange-core/fixedpoint"
	"github.com/acceptx/exchange-core/journal"
)

// btreeDegree matches the degree launix-de-memcp's delta index uses for
// its price-ordered btree.BTreeG.
const btreeDegree = 32

const (
	sideBuy  = "BUY"
	sideSell = "SELL"
)

// Level is one price level of a ladder: the aggregate resting quantity
// and order count at that price (§3 "Order book mirror").
type Level struct {
	Price      fixedpoint.Decimal
	Total      fixedpoint.Decimal
	OrderCount int
}

func levelLess(a, b Level) bool { return a.Price.LessThan(b.Price) }

// restingOrder is the side table's per-order record (§3).
type restingOrder struct {
	Side         string
	Price        fixedpoint.Decimal
	RemainingQty fixedpoint.Decimal
}

// BookMirror is the in-memory, per-symbol order-book mirror (§4.F "Order
// book mirror"). It holds no matching logic of its own; it is purely a
// projection of the ordered event stream, rebuilt from scratch on every
// replay.
type BookMirror struct {
	Symbol       string
	bids         *btree.BTreeG[Level] // keyed by price; best bid is Max()
	asks         *btree.BTreeG[Level] // keyed by price; best ask is Min()
	orders       map[string]restingOrder
	lastSequence uint64
}

// NewBookMirror creates an empty mirror for one symbol.
func NewBookMirror(symbol string) *BookMirror {
	return &BookMirror{
		Symbol: symbol,
		bids:   btree.NewG[Level](btreeDegree, levelLess),
		asks:   btree.NewG[Level](btreeDegree, levelLess),
		orders: make(map[string]restingOrder),
	}
}

func (b *BookMirror) ladder(side string) *btree.BTreeG[Level] {
	if side == sideBuy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the highest resting buy price, if any.
func (b *BookMirror) BestBid() (fixedpoint.Decimal, bool) {
	lvl, ok := b.bids.Max()
	return lvl.Price, ok
}

// BestAsk returns the lowest resting sell price, if any.
func (b *BookMirror) BestAsk() (fixedpoint.Decimal, bool) {
	lvl, ok := b.asks.Min()
	return lvl.Price, ok
}

// LastSequence returns the most recently applied event's sequence (§3).
func (b *BookMirror) LastSequence() uint64 { return b.lastSequence }

// Levels returns a side's levels in ascending price order, used by the
// delta generator's before/after capture and the snapshot service.
func (b *BookMirror) Levels(side string) []Level {
	var out []Level
	b.ladder(side).Ascend(func(l Level) bool {
		out = append(out, l)
		return true
	})
	return out
}

// mutateLevel fetches (or zero-values) the level at price, runs mutate
// over it, and writes back the result, compressing (deleting) the level
// if it becomes empty (§3's "a level with total_quantity == 0 and
// order_count == 0 must not exist" invariant). It returns the level
// before and after the mutation, for the delta generator.
func (b *BookMirror) mutateLevel(side string, price fixedpoint.Decimal, mutate func(Level) Level) (before, after Level) {
	tree := b.ladder(side)
	before, found := tree.Get(Level{Price: price})
	if !found {
		before = Level{Price: price}
	}
	after = mutate(before)
	if after.Total.IsZero() && after.OrderCount == 0 {
		tree.Delete(after)
	} else {
		tree.ReplaceOrInsert(after)
	}
	return before, after
}

// Apply dispatches one journal entry to the book mirror and returns the
// deltas it produced (§4.F "Order book mirror" / "Delta generator").
// Only OrderAccepted, TradeExecuted, and OrderCanceled mutate the book;
// the two informational echoes produce no deltas (§6 "Only the first,
// second, and last mutate the book mirror").
func (b *BookMirror) Apply(entry journal.Entry) ([]Delta, error) {
	switch entry.EventType {
	case events.OrderAccepted:
		var p events.OrderAcceptedPayload
		if err := events.Decode(entry.Payload, &p); err != nil {
			return nil, fmt.Errorf("marketdata: decode OrderAccepted: %w", err)
		}
		return b.applyOrderAccepted(p, entry), nil
	case events.TradeExecuted:
		var p events.TradeExecutedPayload
		if err := events.Decode(entry.Payload, &p); err != nil {
			return nil, fmt.Errorf("marketdata: decode TradeExecuted: %w", err)
		}
		return b.applyTradeExecuted(p, entry), nil
	case events.OrderCanceled:
		var p events.OrderCanceledPayload
		if err := events.Decode(entry.Payload, &p); err != nil {
			return nil, fmt.Errorf("marketdata: decode OrderCanceled: %w", err)
		}
		return b.applyOrderCanceled(p, entry), nil
	case events.OrderPartiallyFilled, events.OrderFilled:
		b.lastSequence = entry.Sequence
		return nil, nil
	default:
		return nil, fmt.Errorf("marketdata: unknown event type %q", entry.EventType)
	}
}

func (b *BookMirror) applyOrderAccepted(p events.OrderAcceptedPayload, entry journal.Entry) []Delta {
	before, after := b.mutateLevel(p.Side, p.Price, func(l Level) Level {
		l.Total = l.Total.Add(p.Qty)
		l.OrderCount++
		return l
	})
	b.orders[p.OrderID] = restingOrder{Side: p.Side, Price: p.Price, RemainingQty: p.Qty}
	b.lastSequence = entry.Sequence
	return deltasFromLevels(p.Side, before, after, entry)
}

func (b *BookMirror) applyTradeExecuted(p events.TradeExecutedPayload, entry journal.Entry) []Delta {
	order, ok := b.orders[p.MakerOrderID]
	if !ok {
		// Maker order unknown (e.g. replay starting mid-stream from a
		// snapshot); fall back to the trade's own side/price so the
		// ladder still reflects the fill.
		order = restingOrder{Side: p.Side, Price: p.Price, RemainingQty: p.Qty}
	}
	before, after := b.mutateLevel(order.Side, order.Price, func(l Level) Level {
		l.Total = l.Total.Sub(p.Qty)
		order.RemainingQty = order.RemainingQty.Sub(p.Qty)
		if order.RemainingQty.IsZero() || order.RemainingQty.IsNegative() {
			l.OrderCount--
			delete(b.orders, p.MakerOrderID)
		} else {
			b.orders[p.MakerOrderID] = order
		}
		return l
	})
	b.lastSequence = entry.Sequence
	return deltasFromLevels(order.Side, before, after, entry)
}

func (b *BookMirror) applyOrderCanceled(p events.OrderCanceledPayload, entry journal.Entry) []Delta {
	order, ok := b.orders[p.OrderID]
	if !ok {
		b.lastSequence = entry.Sequence
		return nil
	}
	delete(b.orders, p.OrderID)
	before, after := b.mutateLevel(order.Side, order.Price, func(l Level) Level {
		l.Total = l.Total.Sub(p.RemainingQty)
		l.OrderCount--
		return l
	})
	b.lastSequence = entry.Sequence
	return deltasFromLevels(order.Side, before, after, entry)
}
