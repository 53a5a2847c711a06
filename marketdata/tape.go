package marketdata

import (
	"github.com/acceptx/exchange-core/events"
	"github.com/acceptx/exchange-core/fixedpoint"
	"github.com/acceptx/exchange-core/journal"
)

// Trade is one recorded execution in a symbol's trade tape (§4.F "Trade
// tape").
type Trade struct {
	TradeSequence uint64 // per-symbol monotone counter, distinct from journal.Entry.Sequence
	Sequence      uint64 // the journal entry sequence that produced this trade
	Timestamp     int64
	Symbol        string
	Price         fixedpoint.Decimal
	Qty           fixedpoint.Decimal
	TakerSide     string
}

// TradeTape is a bounded FIFO of recent trades for one symbol (§4.F).
type TradeTape struct {
	Symbol       string
	capacity     int
	trades       []Trade
	nextTradeSeq uint64
}

// NewTradeTape creates a tape bounded to capacity trades. A non-positive
// capacity is treated as unbounded.
func NewTradeTape(symbol string, capacity int) *TradeTape {
	return &TradeTape{Symbol: symbol, capacity: capacity}
}

// Record appends one trade derived from a TradeExecuted event, assigning
// the next per-symbol trade_sequence, and evicts the oldest trade if the
// tape is at capacity.
func (t *TradeTape) Record(p events.TradeExecutedPayload, entry journal.Entry) Trade {
	t.nextTradeSeq++
	trade := Trade{
		TradeSequence: t.nextTradeSeq,
		Sequence:      entry.Sequence,
		Timestamp:     entry.Timestamp,
		Symbol:        p.Symbol,
		Price:         p.Price,
		Qty:           p.Qty,
		TakerSide:     p.TakerSide,
	}
	t.trades = append(t.trades, trade)
	if t.capacity > 0 && len(t.trades) > t.capacity {
		t.trades = t.trades[len(t.trades)-t.capacity:]
	}
	return trade
}

// Trades returns the tape's contents in insertion order (§4.F "Replay
// from the tape yields trades in insertion order").
func (t *TradeTape) Trades() []Trade {
	out := make([]Trade, len(t.trades))
	copy(out, t.trades)
	return out
}

// GetBySequence performs a linear lookup by trade_sequence; the tape is
// bounded, so linear scan is an acceptable cost (§4.F "get_by_sequence is
// linear (the tape is bounded)").
func (t *TradeTape) GetBySequence(tradeSequence uint64) (Trade, bool) {
	for _, tr := range t.trades {
		if tr.TradeSequence == tradeSequence {
			return tr, true
		}
	}
	return Trade{}, false
}

// CompressConsecutive merges consecutive trades that share both price and
// taker side into one aggregated trade, summing quantity and keeping the
// first trade's identity (sequence, trade_sequence, timestamp). It is a
// pure function over a slice and is never applied to the live tape
// itself (§4.F: "a pure function over a list (not applied on the raw
// stream)").
func CompressConsecutive(trades []Trade) []Trade {
	if len(trades) == 0 {
		return nil
	}
	out := make([]Trade, 0, len(trades))
	current := trades[0]
	for _, tr := range trades[1:] {
		if tr.Price.Equal(current.Price) && tr.TakerSide == current.TakerSide {
			current.Qty = current.Qty.Add(tr.Qty)
			continue
		}
		out = append(out, current)
		current = tr
	}
	out = append(out, current)
	return out
}
