package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	natefinchatomic "github.com/natefinch/atomic"

	"github.com/acceptx/exchange-core/enginestate"
	"github.com/acceptx/exchange-core/log"
	"github.com/acceptx/exchange-core/metrics"
)

// DefaultInterval is the default event-count interval between snapshots
// (§4.D, §6).
const DefaultInterval uint64 = 1_000_000

// filenameDigits is the zero-padding width of a snapshot's sequence
// number, chosen so lexicographic order equals numeric order (§4.D).
const filenameDigits = 12

const (
	extUncompressed = ".snap"
	extCompressed   = ".snap.zst"
)

// Config configures a snapshot Store (§6).
type Config struct {
	Dir            string
	Interval       uint64 // default DefaultInterval
	RetentionCount int    // keep the most recent N snapshots by sequence; 0 = keep all
	Compress       bool
}

// DefaultConfig returns a Config with the §6-specified defaults.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, Interval: DefaultInterval, RetentionCount: 5, Compress: true}
}

// Store manages a directory of snapshot files.
type Store struct {
	cfg             Config
	lastSnapshotSeq uint64
	log             *log.Logger
}

// Open opens or creates a snapshot directory, recording the sequence of
// the latest existing snapshot (if any) so ShouldSnapshot's interval
// policy continues correctly across restarts.
func Open(cfg Config) (*Store, error) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", cfg.Dir, err)
	}

	st := &Store{cfg: cfg, log: log.Default().Module("snapshot")}
	if latest, err := st.latestSequence(); err == nil {
		st.lastSnapshotSeq = latest
	} else if err != ErrNotFound {
		return nil, err
	}
	return st, nil
}

// wireSnapshot is the gob-encoded on-disk body. State is stored in its
// canonical (sorted-slice) form so decoding back into a *State is
// straightforward and so the body's byte layout never depends on map
// iteration order.
type wireSnapshot struct {
	Version   uint32
	Sequence  uint64
	Timestamp int64
	Checksum  string
	State     enginestate.Canonical
}

func snapshotFilename(sequence uint64, compressed bool) string {
	ext := extUncompressed
	if compressed {
		ext = extCompressed
	}
	return fmt.Sprintf("snapshot-%0*d%s", filenameDigits, sequence, ext)
}

// parseSnapshotFilename extracts the sequence number and compression flag
// from a snapshot filename, or ok=false if it doesn't match the pattern.
func parseSnapshotFilename(name string) (sequence uint64, compressed bool, ok bool) {
	if !strings.HasPrefix(name, "snapshot-") {
		return 0, false, false
	}
	rest := strings.TrimPrefix(name, "snapshot-")
	switch {
	case strings.HasSuffix(rest, extCompressed):
		compressed = true
		rest = strings.TrimSuffix(rest, extCompressed)
	case strings.HasSuffix(rest, extUncompressed):
		rest = strings.TrimSuffix(rest, extUncompressed)
	default:
		return 0, false, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false, false
	}
	return n, compressed, true
}

// Write atomically persists snap via write-to-tmp + fsync + rename
// (github.com/natefinch/atomic), optionally zstd-compressing the body at
// level 3.
func (st *Store) Write(snap *Snapshot) error {
	start := time.Now()

	wire := wireSnapshot{
		Version:   snap.Version,
		Sequence:  snap.Sequence,
		Timestamp: snap.Timestamp,
		Checksum:  snap.Checksum,
		State:     snap.State.Canonical(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	body := buf.Bytes()

	if st.cfg.Compress {
		compressed, err := compressZstd(body)
		if err != nil {
			return fmt.Errorf("snapshot: compress: %w", err)
		}
		body = compressed
		snap.Compressed = true
	}

	path := filepath.Join(st.cfg.Dir, snapshotFilename(snap.Sequence, snap.Compressed))
	if err := natefinchatomic.WriteFile(path, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("snapshot: atomic write %s: %w", path, err)
	}

	st.lastSnapshotSeq = snap.Sequence
	metrics.SnapshotsWritten.Inc()
	metrics.SnapshotWriteLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	metrics.SnapshotBytesCompressed.Add(int64(len(body)))
	st.log.Info("snapshot written", "sequence", snap.Sequence, "bytes", len(body), "compressed", snap.Compressed)

	if st.cfg.RetentionCount > 0 {
		if err := st.cleanup(); err != nil {
			return err
		}
	}
	return nil
}

func compressZstd(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressZstd(body []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// listSnapshots returns (sequence, compressed) pairs sorted by ascending
// sequence.
func (st *Store) listSnapshots() ([]struct {
	sequence   uint64
	compressed bool
}, error) {
	entries, err := os.ReadDir(st.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read dir %s: %w", st.cfg.Dir, err)
	}
	var out []struct {
		sequence   uint64
		compressed bool
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		seq, compressed, ok := parseSnapshotFilename(de.Name())
		if !ok {
			continue
		}
		out = append(out, struct {
			sequence   uint64
			compressed bool
		}{seq, compressed})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sequence < out[j].sequence })
	return out, nil
}

func (st *Store) latestSequence() (uint64, error) {
	list, err := st.listSnapshots()
	if err != nil {
		return 0, err
	}
	if len(list) == 0 {
		return 0, ErrNotFound
	}
	return list[len(list)-1].sequence, nil
}

// LoadLatest loads the highest-sequence snapshot whose version is not
// newer than CurrentVersion, falling back to the next-older snapshot on a
// version-too-new or integrity failure (§7's named-but-unspecified
// fallback search order, resolved in DESIGN.md: descending sequence).
func (st *Store) LoadLatest() (*Snapshot, error) {
	list, err := st.listSnapshots()
	if err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		snap, err := st.load(list[i].sequence, list[i].compressed)
		if err == nil {
			return snap, nil
		}
		st.log.Warn("skipping unusable snapshot", "sequence", list[i].sequence, "error", err)
	}
	return nil, ErrNotFound
}

// Load loads the snapshot at the given sequence, trying both the
// compressed and uncompressed filename.
func (st *Store) Load(sequence uint64) (*Snapshot, error) {
	list, err := st.listSnapshots()
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		if e.sequence == sequence {
			return st.load(e.sequence, e.compressed)
		}
	}
	return nil, ErrNotFound
}

func (st *Store) load(sequence uint64, compressed bool) (*Snapshot, error) {
	path := filepath.Join(st.cfg.Dir, snapshotFilename(sequence, compressed))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	if compressed {
		raw, err = decompressZstd(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decompress %s: %w", path, err)
		}
	}

	var wire wireSnapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if wire.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d > %d", ErrVersionTooNew, wire.Version, CurrentVersion)
	}

	state := canonicalToState(wire.State)
	snap := &Snapshot{
		Version:    wire.Version,
		Sequence:   wire.Sequence,
		Timestamp:  wire.Timestamp,
		State:      state,
		Checksum:   wire.Checksum,
		Compressed: compressed,
	}

	if !snap.VerifyIntegrity() {
		metrics.SnapshotIntegrityFailures.Inc()
		return nil, fmt.Errorf("%w: sequence %d", ErrIntegrityFailure, sequence)
	}
	metrics.SnapshotsLoaded.Inc()
	return snap, nil
}

func canonicalToState(c enginestate.Canonical) *enginestate.State {
	s := enginestate.New()
	for _, a := range c.Accounts {
		s.Accounts[a.ID] = a
	}
	for _, o := range c.Orders {
		s.Orders[o.ID] = o
	}
	for _, p := range c.Positions {
		s.Positions[p.ID] = p
	}
	for _, b := range c.Balances {
		s.Balances[b.ID] = b
	}
	return s
}

// ShouldSnapshot reports whether a snapshot is due at currentSeq, iff
// currentSeq >= last_snapshot_seq + interval (§4.D).
func (st *Store) ShouldSnapshot(currentSeq uint64) bool {
	return currentSeq >= st.lastSnapshotSeq+st.cfg.Interval
}

// cleanup keeps the most recent RetentionCount snapshots by sequence and
// deletes the rest. It is idempotent (§4.D).
func (st *Store) cleanup() error {
	list, err := st.listSnapshots()
	if err != nil {
		return err
	}
	if len(list) <= st.cfg.RetentionCount {
		return nil
	}
	toDelete := list[:len(list)-st.cfg.RetentionCount]
	for _, e := range toDelete {
		path := filepath.Join(st.cfg.Dir, snapshotFilename(e.sequence, e.compressed))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("snapshot: cleanup remove %s: %w", path, err)
		}
		metrics.SnapshotsRetired.Inc()
	}
	return nil
}
