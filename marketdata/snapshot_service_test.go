package marketdata

import (
	"testing"

	"github.com/acceptx/exchange-core/events"
	"github.com/acceptx/exchange-core/fixedpoint"
	"github.com/acceptx/exchange-core/journal"
)

func buildTestBook(t *testing.T) *BookMirror {
	t.Helper()
	book := NewBookMirror("BTC-USD")
	entries := []struct {
		id, side, price, qty string
	}{
		{"b1", "BUY", "100", "1"},
		{"b2", "BUY", "99", "2"},
		{"a1", "SELL", "101", "1"},
		{"a2", "SELL", "102", "3"},
	}
	for i, e := range entries {
		entry := journal.Entry{
			Sequence: uint64(i + 1), Timestamp: int64(i + 1), EventType: events.OrderAccepted,
			Payload: mustEncode(t, events.OrderAcceptedPayload{
				OrderID: e.id, AccountID: "a", Symbol: "BTC-USD", Side: e.side,
				Price: fixedpoint.MustNonNegative(e.price), Qty: fixedpoint.MustNonNegative(e.qty),
			}),
		}
		if _, err := book.Apply(entry); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	return book
}

func TestFullSnapshotChecksumVerifies(t *testing.T) {
	book := buildTestBook(t)
	snap := BuildFullSnapshot(book, 1000)
	if !snap.VerifyChecksum() {
		t.Fatalf("expected a freshly built snapshot to verify")
	}
	snap.Bids[0].Total = snap.Bids[0].Total.Add(fixedpoint.MustNonNegative("1"))
	if snap.VerifyChecksum() {
		t.Fatalf("expected tampered snapshot to fail verification")
	}
}

func TestValidateHandoffRequiresSequenceAfterSnapshot(t *testing.T) {
	book := buildTestBook(t)
	snap := BuildFullSnapshot(book, 1000)
	if ValidateHandoff(snap, snap.LastSequence) {
		t.Fatalf("expected handoff to require a delta sequence strictly after last_sequence")
	}
	if !ValidateHandoff(snap, snap.LastSequence+1) {
		t.Fatalf("expected handoff to validate for the next sequence")
	}
}

func TestPaginateLevelsOrdersByDepthFromBestPrice(t *testing.T) {
	book := buildTestBook(t)
	bids := book.Levels(sideBuy)
	page, next := PaginateLevels(bids, sideBuy, nil, 1)
	if len(page) != 1 || !page[0].Price.Equal(fixedpoint.MustNonNegative("100")) {
		t.Fatalf("expected first bid page to start at best bid 100, got %+v", page)
	}
	if next == nil {
		t.Fatalf("expected a next cursor for a deeper book")
	}
	page2, next2 := PaginateLevels(bids, sideBuy, next, 1)
	if len(page2) != 1 || !page2[0].Price.Equal(fixedpoint.MustNonNegative("99")) {
		t.Fatalf("expected second bid page at 99, got %+v", page2)
	}
	if next2 != nil {
		t.Fatalf("expected no further pages, got %+v", next2)
	}
}
