package journal

import (
	"bytes"
	"testing"
)

func TestRoundTripFraming(t *testing.T) {
	cases := []Entry{
		{Sequence: 1, Timestamp: 1000, EventType: "OrderAccepted", Payload: []byte("hello")},
		{Sequence: 2, Timestamp: -5, EventType: "", Payload: nil},
		{Sequence: 42, Timestamp: 0, EventType: "TradeExecuted", Payload: bytes.Repeat([]byte{0xAB}, 256)},
	}
	for _, e := range cases {
		frame, err := Encode(e)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", e, err)
		}
		got, n, err := Decode(frame)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if n != len(frame) {
			t.Fatalf("consumed %d bytes, want %d", n, len(frame))
		}
		if got.Sequence != e.Sequence || got.Timestamp != e.Timestamp || got.EventType != e.EventType || !bytes.Equal(got.Payload, e.Payload) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
		}
	}
}

func TestChecksumDetectsTamper(t *testing.T) {
	e := Entry{Sequence: 7, Timestamp: 123, EventType: "OrderCanceled", Payload: []byte("payload-bytes")}
	frame, err := Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Flip one byte at a time across the whole body between the length
	// prefix and the checksum (header, event_type, payload length and
	// payload) and confirm every single mutation is detected.
	for i := lengthPrefixSize; i < len(frame)-checksumSize; i++ {
		mutated := append([]byte(nil), frame...)
		mutated[i] ^= 0xFF
		if verifyChecksum(mutated) {
			t.Fatalf("mutation at byte %d went undetected", i)
		}
	}
}

func TestDecodeRejectsImplausibleLength(t *testing.T) {
	buf := make([]byte, 4)
	// u32_le body_len far beyond maxBodyLen.
	buf[0], buf[1], buf[2], buf[3] = 0xFF, 0xFF, 0xFF, 0x7F
	_, _, err := Decode(buf)
	if err == nil {
		t.Fatalf("expected error for implausible body length")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	e := Entry{Sequence: 1, Timestamp: 1, EventType: "X", Payload: []byte("y")}
	frame, _ := Encode(e)
	_, _, err := Decode(frame[:len(frame)-1])
	if err == nil {
		t.Fatalf("expected ErrShortBuffer for truncated frame")
	}
}
