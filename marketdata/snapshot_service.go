// snapshot_service.go implements §4.F's "Snapshot service": a full
// order-book snapshot a reconnecting client can load before switching to
// the delta stream, plus pagination for deep books (a supplemented
// feature — §9's pagination is named but left unspecified in detail).
package marketdata

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	sha256simd "github.com/minio/sha256-simd"

	"github.com/acceptx/exchange-core/fixedpoint"
)

// FullSnapshotVersion pins the wire schema of FullSnapshot.
const FullSnapshotVersion uint32 = 1

// fullSnapshotSeparator is written between the bid and ask ladder byte
// streams so a checksum over `bids || asks` cannot collide with one over
// a different bid/ask split at the same total byte length.
var fullSnapshotSeparator = []byte{0x1f}

// FullSnapshot is the reconnect payload described in §4.F: a client loads
// this, then applies only deltas whose sequence exceeds LastSequence.
type FullSnapshot struct {
	Version      uint32
	Symbol       string
	Bids         []Level
	Asks         []Level
	LastSequence uint64
	Timestamp    int64
	Checksum     string // hex(sha256(...))
}

// BuildFullSnapshot captures the book mirror's current ladders into a
// FullSnapshot.
func BuildFullSnapshot(book *BookMirror, timestamp int64) FullSnapshot {
	bids := book.Levels(sideBuy)
	asks := book.Levels(sideSell)
	return FullSnapshot{
		Version:      FullSnapshotVersion,
		Symbol:       book.Symbol,
		Bids:         bids,
		Asks:         asks,
		LastSequence: book.LastSequence(),
		Timestamp:    timestamp,
		Checksum:     computeLadderChecksum(bids, asks, book.LastSequence()),
	}
}

// VerifyChecksum recomputes the snapshot's checksum and compares it
// against the stored value.
func (s FullSnapshot) VerifyChecksum() bool {
	return s.Checksum == computeLadderChecksum(s.Bids, s.Asks, s.LastSequence)
}

// ValidateHandoff confirms the synchronization hand-off §4.F describes:
// a delta stream resuming after this snapshot must start strictly after
// its last_sequence.
func ValidateHandoff(snap FullSnapshot, firstDeltaSequence uint64) bool {
	return firstDeltaSequence > snap.LastSequence
}

// computeLadderChecksum implements `sha256(ladder-bytes ‖ sep ‖
// ladder-bytes ‖ sep ‖ last_sequence_le)` (§4.F "Snapshot service").
func computeLadderChecksum(bids, asks []Level, lastSequence uint64) string {
	h := sha256simd.New()
	h.Write(ladderBytes(bids))
	h.Write(fullSnapshotSeparator)
	h.Write(ladderBytes(asks))
	h.Write(fullSnapshotSeparator)
	var seqLE [8]byte
	binary.LittleEndian.PutUint64(seqLE[:], lastSequence)
	h.Write(seqLE[:])
	return hex.EncodeToString(h.Sum(nil))
}

// ladderBytes deterministically encodes a price-ascending ladder for
// hashing: each level contributes its price and total as canonical
// decimal strings plus its order count, NUL-separated.
func ladderBytes(levels []Level) []byte {
	var buf bytes.Buffer
	for _, l := range levels {
		buf.Write(l.Price.Bytes())
		buf.WriteByte(0)
		buf.Write(l.Total.Bytes())
		buf.WriteByte(0)
		var countLE [4]byte
		binary.LittleEndian.PutUint32(countLE[:], uint32(l.OrderCount))
		buf.Write(countLE[:])
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// PageCursor is the opaque pagination cursor for deep-book requests
// (§9 supplemented feature: "a simple opaque (priceBoundary, side)
// cursor"). A nil cursor requests the first page, starting from the
// best price on that side.
type PageCursor struct {
	Side          string
	PriceBoundary fixedpoint.Decimal
}

// PaginateLevels returns up to pageSize levels starting after cursor, in
// depth order (best price first: descending for BUY, ascending for
// SELL), along with a cursor for the next page, or nil if this was the
// last page.
func PaginateLevels(levels []Level, side string, cursor *PageCursor, pageSize int) ([]Level, *PageCursor) {
	ordered := make([]Level, len(levels))
	copy(ordered, levels)
	if side == sideBuy {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	start := 0
	if cursor != nil {
		start = len(ordered)
		for i, l := range ordered {
			if (side == sideBuy && l.Price.LessThan(cursor.PriceBoundary)) ||
				(side != sideBuy && l.Price.GreaterThan(cursor.PriceBoundary)) {
				start = i
				break
			}
		}
	}
	if pageSize <= 0 {
		pageSize = len(ordered)
	}
	end := start + pageSize
	if end > len(ordered) {
		end = len(ordered)
	}
	if start > len(ordered) {
		start = len(ordered)
	}
	page := append([]Level(nil), ordered[start:end]...)

	var next *PageCursor
	if end < len(ordered) {
		next = &PageCursor{Side: side, PriceBoundary: ordered[end-1].Price}
	}
	return page, next
}
