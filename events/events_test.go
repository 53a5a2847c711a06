package events

import (
	"testing"

	"github.com/acceptx/exchange-core/fixedpoint"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := OrderAcceptedPayload{
		OrderID: "ord-1", AccountID: "acct-1", Symbol: "BTC-USD", Side: "BUY",
		Price: fixedpoint.MustNonNegative("50000"), Qty: fixedpoint.MustNonNegative("2"),
	}
	data, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got OrderAcceptedPayload
	if err := Decode(data, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.OrderID != want.OrderID || !got.Price.Equal(want.Price) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}
