package journal

import (
	"errors"
	"fmt"
	"testing"
)

func TestWriterMonotonicity(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	const n = 20
	for i := uint64(1); i <= n; i++ {
		e := Entry{Sequence: i, Timestamp: int64(i), EventType: fmt.Sprintf("Event%d", i%5), Payload: []byte{byte(i)}}
		if err := w.Append(e); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, corruptions, err := RecoverEntries(dir)
	if err != nil {
		t.Fatalf("RecoverEntries: %v", err)
	}
	if len(corruptions) != 0 {
		t.Fatalf("unexpected corruptions: %+v", corruptions)
	}
	if len(entries) != n {
		t.Fatalf("got %d entries, want %d", len(entries), n)
	}
	for i, e := range entries {
		want := entries[0].Sequence + uint64(i)
		if e.Sequence != want {
			t.Fatalf("entries[%d].Sequence = %d, want %d", i, e.Sequence, want)
		}
	}
}

func TestAppendRejectsSequenceViolation(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	defer w.Close()

	if err := w.Append(Entry{Sequence: 1, EventType: "A"}); err != nil {
		t.Fatalf("Append(1): %v", err)
	}
	err = w.Append(Entry{Sequence: 3, EventType: "A"})
	if !errors.Is(err, ErrSequence) {
		t.Fatalf("Append(3) after 1: got %v, want ErrSequence", err)
	}
}

// TestDiskFullRecovery mirrors scenario 5: a max_total_size ceiling causes
// appends to fail once crossed, and recovery recovers exactly the entries
// that succeeded.
func TestDiskFullRecovery(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.MaxTotalSize = 300
	w, err := OpenWriter(cfg)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	succeeded := 0
	var seq uint64 = 1
	for {
		e := Entry{Sequence: seq, Timestamp: int64(seq), EventType: "E", Payload: []byte{1, 2, 3, 4}}
		err := w.Append(e)
		if err != nil {
			if !errors.Is(err, ErrSizeLimitExceeded) {
				t.Fatalf("Append(%d): unexpected error %v", seq, err)
			}
			break
		}
		succeeded++
		seq++
		if seq > 10000 {
			t.Fatalf("size limit never triggered")
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, _, err := RecoverEntries(dir)
	if err != nil {
		t.Fatalf("RecoverEntries: %v", err)
	}
	if len(entries) != succeeded {
		t.Fatalf("recovered %d entries, want %d (the number of successful appends)", len(entries), succeeded)
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.MaxFileSize = 64 // tiny, forces rotation almost every append
	w, err := OpenWriter(cfg)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	for i := uint64(1); i <= 10; i++ {
		if err := w.Append(Entry{Sequence: i, EventType: "E", Payload: []byte("payload-data")}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	segments, err := listSegments(dir)
	if err != nil {
		t.Fatalf("listSegments: %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("expected rotation to produce multiple segments, got %d", len(segments))
	}

	entries, corruptions, err := RecoverEntries(dir)
	if err != nil {
		t.Fatalf("RecoverEntries: %v", err)
	}
	if len(corruptions) != 0 {
		t.Fatalf("unexpected corruptions: %+v", corruptions)
	}
	if len(entries) != 10 {
		t.Fatalf("got %d entries across segments, want 10", len(entries))
	}
	if err := ValidateSequences(entries); err != nil {
		t.Fatalf("ValidateSequences: %v", err)
	}
}

func TestWriterResumesAfterReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	for i := uint64(1); i <= 5; i++ {
		if err := w.Append(Entry{Sequence: i, EventType: "E"}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w2, err := OpenWriter(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen OpenWriter: %v", err)
	}
	if err := w2.SetNextSequence(6); err != nil {
		t.Fatalf("SetNextSequence: %v", err)
	}
	for i := uint64(6); i <= 10; i++ {
		if err := w2.Append(Entry{Sequence: i, EventType: "E"}); err != nil {
			t.Fatalf("Append(%d) after reopen: %v", i, err)
		}
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, _, err := RecoverEntries(dir)
	if err != nil {
		t.Fatalf("RecoverEntries: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("got %d entries, want 10", len(entries))
	}
	if err := ValidateSequences(entries); err != nil {
		t.Fatalf("ValidateSequences: %v", err)
	}
}
