// Package events defines the wire payloads for the event taxonomy
// consumed by the recovery engine's reference applier and the
// market-data projector's order-book mirror (§6 "Event taxonomy
// consumed by the projector").
package events

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/acceptx/exchange-core/fixedpoint"
)

// Event type tags, used as journal.Entry.EventType.
const (
	OrderAccepted        = "OrderAccepted"
	TradeExecuted        = "TradeExecuted"
	OrderPartiallyFilled = "OrderPartiallyFilled"
	OrderFilled          = "OrderFilled"
	OrderCanceled        = "OrderCanceled"
)

// OrderAcceptedPayload is emitted when a new order rests on the book.
type OrderAcceptedPayload struct {
	OrderID   string
	AccountID string
	Symbol    string
	Side      string // "BUY" or "SELL"
	Price     fixedpoint.Decimal
	Qty       fixedpoint.Decimal
}

// TradeExecutedPayload is emitted once per maker fill. AccountID names the
// maker's account directly, since the engine-state order record carries no
// account linkage of its own (§3).
type TradeExecutedPayload struct {
	MakerOrderID string
	AccountID    string
	Symbol       string
	Side         string // the maker's side
	Price        fixedpoint.Decimal
	Qty          fixedpoint.Decimal
	TakerSide    string // the taker's side, used by the trade tape's compression rule
}

// OrderPartiallyFilledPayload is an informational echo; it does not mutate
// the book mirror or engine state (§4.F, §6).
type OrderPartiallyFilledPayload struct {
	OrderID      string
	FilledQty    fixedpoint.Decimal
	RemainingQty fixedpoint.Decimal
}

// OrderFilledPayload is an informational echo; it does not mutate the book
// mirror or engine state (§4.F, §6).
type OrderFilledPayload struct {
	OrderID string
}

// OrderCanceledPayload is emitted when a resting order is removed before
// full execution.
type OrderCanceledPayload struct {
	OrderID      string
	RemainingQty fixedpoint.Decimal
}

// Encode gob-encodes a payload for storage in journal.Entry.Payload.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("events: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode gob-decodes data into *out.
func Decode(data []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("events: decode: %w", err)
	}
	return nil
}
