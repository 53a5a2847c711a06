// reader.go implements the journal reader: sequential frame decoding,
// recovery-mode byte-by-byte resynchronization past corruption, seeking by
// sequence, and the two independent sequence-validation layers (§4.C).
// Readers open segment files read-only and are insensitive to concurrent
// writer progress (§5): they tolerate a truncated tail by treating it as
// the clean end of available data, never as an error.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// resyncScanLimit bounds the plausible body length accepted while
// resynchronizing after corruption (§4.C: "0 < len < 10 MiB").
const resyncScanLimit = 10 << 20

// CorruptionRecord describes one corrupted or unreadable frame encountered
// while reading, identified by segment and byte offset within it.
type CorruptionRecord struct {
	SegmentIndex uint64
	ByteOffset   int64
	Reason       string
}

// listSegments returns the sorted segment indices present in dir.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir %s: %w", dir, err)
	}
	var indices []uint64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if idx, ok := parseSegmentIndex(de.Name()); ok {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices, nil
}

func segmentPath(dir string, idx uint64) string {
	return filepath.Join(dir, segmentName(idx))
}

// Reader sequentially decodes frames from a journal directory's segment
// files, in ascending segment order.
type Reader struct {
	dir      string
	segments []uint64
	cur      int // index into segments; -1 before the first load
	data     []byte
	offset   int

	corruptions []CorruptionRecord
}

// OpenReader opens a journal directory for reading. It is valid to open a
// reader against a directory a writer is actively appending to.
func OpenReader(dir string) (*Reader, error) {
	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}
	return &Reader{dir: dir, segments: segments, cur: -1}, nil
}

// ensureData makes sure the reader has a non-exhausted segment loaded,
// advancing to the next segment file as needed. Returns false once all
// segments are exhausted.
func (r *Reader) ensureData() (bool, error) {
	for r.cur < 0 || r.offset >= len(r.data) {
		r.cur++
		if r.cur >= len(r.segments) {
			return false, nil
		}
		data, err := os.ReadFile(segmentPath(r.dir, r.segments[r.cur]))
		if err != nil {
			return false, fmt.Errorf("journal: read segment %d: %w", r.segments[r.cur], err)
		}
		r.data = data
		r.offset = 0
	}
	return true, nil
}

// NextEntry decodes and returns the next entry in sequence order, or
// (nil, nil) once every segment has been exhausted. A checksum or
// implausible-length failure is reported as an error and terminates
// normal reading at that point (§7); use RecoverEntries to continue past
// such a region.
func (r *Reader) NextEntry() (*Entry, error) {
	for {
		ok, err := r.ensureData()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}

		entry, n, err := Decode(r.data[r.offset:])
		if err != nil {
			if errors.Is(err, ErrShortBuffer) {
				// Partial trailing frame: this is either an in-progress
				// writer's unflushed tail or an abrupt-shutdown
				// truncation. Either way it is not corruption; treat it
				// as the clean end of this segment's available data.
				r.offset = len(r.data)
				continue
			}
			segIdx := uint64(0)
			if r.cur >= 0 && r.cur < len(r.segments) {
				segIdx = r.segments[r.cur]
			}
			r.corruptions = append(r.corruptions, CorruptionRecord{
				SegmentIndex: segIdx,
				ByteOffset:   int64(r.offset),
				Reason:       err.Error(),
			})
			return nil, fmt.Errorf("journal: corrupt frame at segment %d offset %d: %w", segIdx, r.offset, err)
		}

		r.offset += n
		return &entry, nil
	}
}

// SeekToSequence advances the reader past every frame whose sequence is
// below target, without consuming the first matching frame (§4.C): the
// caller receives it from the subsequent NextEntry call.
func (r *Reader) SeekToSequence(target uint64) error {
	for {
		ok, err := r.ensureData()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		entry, n, err := Decode(r.data[r.offset:])
		if err != nil {
			if errors.Is(err, ErrShortBuffer) {
				r.offset = len(r.data)
				continue
			}
			return fmt.Errorf("journal: seek hit corrupt frame: %w", err)
		}
		if entry.Sequence >= target {
			return nil
		}
		r.offset += n
	}
}

// Corruptions returns the structured corruption log accumulated by
// NextEntry calls so far.
func (r *Reader) Corruptions() []CorruptionRecord { return r.corruptions }

// Close releases any resources held by the reader. Segment data is read
// fully into memory per file, so there is no open file handle to close,
// but Close is provided for symmetry with Writer and future buffering
// changes.
func (r *Reader) Close() error { return nil }

// tryResync scans data starting at from for a byte offset that begins a
// decodable frame, used by RecoverEntries to resynchronize past a
// corrupted region. It accepts only plausible body lengths (0 < len <
// resyncScanLimit) whose bytes are actually present, and additionally
// requires the candidate to decode (checksum included) before accepting
// it, to avoid resyncing onto a coincidental 4-byte pattern.
func tryResync(data []byte, from int) (int, bool) {
	for cand := from; cand+lengthPrefixSize <= len(data); cand++ {
		bodyLen := int(binary.LittleEndian.Uint32(data[cand : cand+lengthPrefixSize]))
		if bodyLen <= 0 || bodyLen >= resyncScanLimit {
			continue
		}
		if cand+lengthPrefixSize+bodyLen > len(data) {
			continue
		}
		if _, _, err := Decode(data[cand:]); err == nil {
			return cand, true
		}
	}
	return 0, false
}

// RecoverEntries reads every segment in dir and returns the longest valid
// prefix of entries across the whole journal, plus a list of corruption
// records for any region it had to skip. A checksum-corrupted or
// implausible-length frame does not abort recovery: the reader
// resynchronizes byte-by-byte looking for the next decodable frame
// boundary within the same segment, and falls through to the next
// segment (which always begins on a frame boundary by construction) if
// none is found (§4.C).
func RecoverEntries(dir string) ([]Entry, []CorruptionRecord, error) {
	segments, err := listSegments(dir)
	if err != nil {
		return nil, nil, err
	}

	var entries []Entry
	var corruptions []CorruptionRecord

	for _, idx := range segments {
		data, err := os.ReadFile(segmentPath(dir, idx))
		if err != nil {
			return entries, corruptions, fmt.Errorf("journal: recover read segment %d: %w", idx, err)
		}

		offset := 0
		for offset < len(data) {
			entry, n, err := Decode(data[offset:])
			if err == nil {
				entries = append(entries, entry)
				offset += n
				continue
			}
			if errors.Is(err, ErrShortBuffer) {
				// Partial trailing frame; its bytes are ignored and
				// recovery moves to the next segment.
				break
			}

			corruptions = append(corruptions, CorruptionRecord{
				SegmentIndex: idx,
				ByteOffset:   int64(offset),
				Reason:       err.Error(),
			})
			newOffset, ok := tryResync(data, offset+1)
			if !ok {
				break
			}
			offset = newOffset
		}
	}

	return entries, corruptions, nil
}

// ValidateSequences rejects on any duplicate, any non-monotone pair, or
// any gap; it accepts iff entries form a strictly monotone run with
// step 1 (§4.C, testable property 4).
func ValidateSequences(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1].Sequence, entries[i].Sequence
		switch {
		case cur == prev:
			return fmt.Errorf("journal: duplicate sequence %d", cur)
		case cur < prev:
			return fmt.Errorf("journal: non-monotone sequence %d after %d", cur, prev)
		case cur != prev+1:
			return fmt.Errorf("journal: gap in sequence: %d after %d", cur, prev)
		}
	}
	return nil
}

// FindMissingSequences returns the sorted set of sequence numbers absent
// from entries over the contiguous range [lo, hi].
func FindMissingSequences(entries []Entry, lo, hi uint64) []uint64 {
	present := make(map[uint64]bool, len(entries))
	for _, e := range entries {
		if e.Sequence >= lo && e.Sequence <= hi {
			present[e.Sequence] = true
		}
	}
	var missing []uint64
	for s := lo; s <= hi; s++ {
		if !present[s] {
			missing = append(missing, s)
		}
	}
	return missing
}
