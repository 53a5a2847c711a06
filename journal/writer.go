// writer.go implements the journal writer: the sole mutator of a journal
// directory. It enforces sequence monotonicity, flush/fsync policy, file
// rotation, and the optional total-size ceiling, adapted from the
// teacher's freezerTable append path (WriteAt against an *os.File, a
// head/size cursor) but simplified from that package's indexed
// random-access table down to this package's sequential self-framed
// stream: there is no index file (§6).
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/acceptx/exchange-core/log"
	"github.com/acceptx/exchange-core/metrics"
)

// DefaultMaxFileSize is the default rotation threshold (§6).
const DefaultMaxFileSize uint64 = 64 << 20 // 64 MiB

// filenameDigits is the zero-padding width of the journal segment index.
const filenameDigits = 6

// FlushPolicyKind selects how the writer evicts its user-space buffer.
type FlushPolicyKind int

const (
	// FlushEveryWrite flushes the user-space buffer after every append.
	FlushEveryWrite FlushPolicyKind = iota
	// FlushEveryN flushes after every N appends.
	FlushEveryN
)

// FlushPolicy controls user-space buffer eviction (§4.B).
type FlushPolicy struct {
	Kind FlushPolicyKind
	N    int // used when Kind == FlushEveryN
}

// EveryWriteFlush flushes the buffer after every append.
func EveryWriteFlush() FlushPolicy { return FlushPolicy{Kind: FlushEveryWrite} }

// EveryNFlush flushes the buffer every n appends.
func EveryNFlush(n int) FlushPolicy { return FlushPolicy{Kind: FlushEveryN, N: n} }

// FsyncPolicyKind selects how the writer requests durable writes.
type FsyncPolicyKind int

const (
	// FsyncEveryWrite fsyncs after every append.
	FsyncEveryWrite FsyncPolicyKind = iota
	// FsyncEveryN fsyncs after every N appends.
	FsyncEveryN
	// FsyncOnRotation only fsyncs when a segment file rotates (and on
	// explicit Sync()/Close() calls).
	FsyncOnRotation
)

// FsyncPolicy controls the kernel-to-disk durability request (§4.B).
type FsyncPolicy struct {
	Kind FsyncPolicyKind
	N    int // used when Kind == FsyncEveryN
}

// EveryWriteFsync fsyncs after every append.
func EveryWriteFsync() FsyncPolicy { return FsyncPolicy{Kind: FsyncEveryWrite} }

// EveryNFsync fsyncs every n appends.
func EveryNFsync(n int) FsyncPolicy { return FsyncPolicy{Kind: FsyncEveryN, N: n} }

// OnRotationFsync only fsyncs when a segment rotates.
func OnRotationFsync() FsyncPolicy { return FsyncPolicy{Kind: FsyncOnRotation} }

// Config configures a journal writer and reader pair (§6 JournalConfig).
type Config struct {
	Dir          string
	MaxFileSize  uint64 // default DefaultMaxFileSize
	MaxTotalSize uint64 // 0 = unlimited
	FlushPolicy  FlushPolicy
	FsyncPolicy  FsyncPolicy
}

// DefaultConfig returns a Config with the §6-specified defaults.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:          dir,
		MaxFileSize:  DefaultMaxFileSize,
		MaxTotalSize: 0,
		FlushPolicy:  EveryWriteFlush(),
		FsyncPolicy:  EveryWriteFsync(),
	}
}

// segmentName returns the filename for segment index idx.
func segmentName(idx uint64) string {
	return fmt.Sprintf("journal-%0*d.bin", filenameDigits, idx)
}

// parseSegmentIndex extracts the numeric index from a segment filename, or
// ok=false if name does not match the expected pattern.
func parseSegmentIndex(name string) (idx uint64, ok bool) {
	if !strings.HasPrefix(name, "journal-") || !strings.HasSuffix(name, ".bin") {
		return 0, false
	}
	numPart := strings.TrimSuffix(strings.TrimPrefix(name, "journal-"), ".bin")
	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Writer appends entries to the active journal segment. The writer holds
// no lock: per §5, it is the sole mutator of a journal directory and is
// used by exactly one logical owner at a time, so internal state never
// needs synchronization. Concurrent callers must provide their own
// external serialization.
type Writer struct {
	dir          string
	maxFileSize  uint64
	maxTotalSize uint64
	flush        FlushPolicy
	fsync        FsyncPolicy

	file      *os.File
	buf       *bufio.Writer
	fileIndex uint64
	fileSize  uint64
	totalSize uint64

	nextExpected   uint64
	expectationSet bool

	sinceFlush int
	sinceFsync int

	closed bool
	log    *log.Logger
}

// OpenWriter opens or creates a journal directory, resuming at the
// highest-indexed segment file found (§4.B "discovery on open").
func OpenWriter(cfg Config) (*Writer, error) {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir %s: %w", cfg.Dir, err)
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir %s: %w", cfg.Dir, err)
	}

	var indices []uint64
	var totalSize uint64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		idx, ok := parseSegmentIndex(de.Name())
		if !ok {
			continue
		}
		indices = append(indices, idx)
		if info, err := de.Info(); err == nil {
			totalSize += uint64(info.Size())
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	var activeIdx uint64
	if len(indices) > 0 {
		activeIdx = indices[len(indices)-1]
	}

	path := filepath.Join(cfg.Dir, segmentName(activeIdx))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open segment %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: stat segment %s: %w", path, err)
	}

	w := &Writer{
		dir:          cfg.Dir,
		maxFileSize:  cfg.MaxFileSize,
		maxTotalSize: cfg.MaxTotalSize,
		flush:        cfg.FlushPolicy,
		fsync:        cfg.FsyncPolicy,
		file:         f,
		buf:          bufio.NewWriter(f),
		fileIndex:    activeIdx,
		fileSize:     uint64(stat.Size()),
		totalSize:    totalSize,
		log:          log.Default().Module("journal"),
	}
	return w, nil
}

// SetNextSequence performs the one-shot recovery-supplied cursor
// initialization (§4.B). It must be called before the first Append; a
// second call returns an error.
func (w *Writer) SetNextSequence(s uint64) error {
	if w.closed {
		return ErrClosed
	}
	if w.expectationSet {
		return fmt.Errorf("journal: next sequence already initialized to %d", w.nextExpected)
	}
	w.nextExpected = s
	w.expectationSet = true
	return nil
}

// Append writes entry as a framed record, applying the flush and fsync
// policies and rotating the active segment if it would otherwise cross
// MaxFileSize. Rotation is atomic with respect to Append: entry lands
// entirely in the pre-rotation segment or entirely in the post-rotation
// one, never split (§4.B).
func (w *Writer) Append(entry Entry) error {
	if w.closed {
		return ErrClosed
	}
	if w.expectationSet && entry.Sequence != w.nextExpected {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequence, w.nextExpected, entry.Sequence)
	}

	frame, err := Encode(entry)
	if err != nil {
		return fmt.Errorf("journal: encode sequence %d: %w", entry.Sequence, err)
	}
	frameLen := uint64(len(frame))

	if w.maxTotalSize > 0 && w.totalSize+frameLen > w.maxTotalSize {
		return fmt.Errorf("%w: would reach %d bytes (limit %d)", ErrSizeLimitExceeded, w.totalSize+frameLen, w.maxTotalSize)
	}

	if w.fileSize > 0 && w.fileSize+frameLen > w.maxFileSize {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	if _, err := w.buf.Write(frame); err != nil {
		return fmt.Errorf("journal: write sequence %d: %w", entry.Sequence, err)
	}
	w.fileSize += frameLen
	w.totalSize += frameLen
	w.nextExpected = entry.Sequence + 1
	w.expectationSet = true

	w.sinceFlush++
	w.sinceFsync++
	if err := w.applyFlushPolicy(); err != nil {
		return err
	}
	if err := w.applyFsyncPolicy(false); err != nil {
		return err
	}

	metrics.JournalAppended.Inc()
	metrics.JournalBytesWritten.Add(int64(frameLen))
	return nil
}

func (w *Writer) applyFlushPolicy() error {
	due := w.flush.Kind == FlushEveryWrite ||
		(w.flush.Kind == FlushEveryN && w.flush.N > 0 && w.sinceFlush >= w.flush.N)
	if !due {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	w.sinceFlush = 0
	return nil
}

// applyFsyncPolicy requests a durable write per policy. rotating is true
// when called as part of a rotation, in which case OnRotation always
// fires regardless of the N counter.
func (w *Writer) applyFsyncPolicy(rotating bool) error {
	due := w.fsync.Kind == FsyncEveryWrite ||
		(w.fsync.Kind == FsyncEveryN && w.fsync.N > 0 && w.sinceFsync >= w.fsync.N) ||
		(w.fsync.Kind == FsyncOnRotation && rotating)
	if !due {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("journal: flush before fsync: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("journal: fsync: %w", err)
	}
	w.sinceFsync = 0
	return nil
}

// rotate closes out the active segment (synced) and opens the next one.
func (w *Writer) rotate() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("journal: flush before rotation: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync before rotation: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("journal: close segment %d before rotation: %w", w.fileIndex, err)
	}

	newIdx := w.fileIndex + 1
	path := filepath.Join(w.dir, segmentName(newIdx))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open segment %s: %w", path, err)
	}

	w.file = f
	w.buf = bufio.NewWriter(f)
	w.fileIndex = newIdx
	w.fileSize = 0

	w.log.Info("journal segment rotated", "new_index", newIdx)
	metrics.JournalRotations.Inc()
	return nil
}

// Sync flushes the user-space buffer and requests a durable write,
// independent of the configured policies.
func (w *Writer) Sync() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("journal: fsync: %w", err)
	}
	w.sinceFlush = 0
	w.sinceFsync = 0
	return nil
}

// NextSequence returns the sequence the next Append must use, or 0 if
// SetNextSequence has not been called and no entry has been written yet.
func (w *Writer) NextSequence() uint64 { return w.nextExpected }

// TotalSize returns the cumulative bytes written across all segments.
func (w *Writer) TotalSize() uint64 { return w.totalSize }

// Close flushes, syncs, and closes the active segment file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("journal: flush on close: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync on close: %w", err)
	}
	return w.file.Close()
}
