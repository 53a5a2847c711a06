package marketdata

import (
	"fmt"

	"github.com/acceptx/exchange-core/journal"
	"github.com/acceptx/exchange-core/log"
	"github.com/acceptx/exchange-core/metrics"
)

// Outcome classifies the result of offering one entry to the ingestion
// gate (§4.F "Ingestion gate").
type Outcome int

const (
	// Accepted means the entry extended the contiguous run and is ready
	// to drain.
	Accepted Outcome = iota
	// Dropped means the entry's sequence was already seen (duplicate).
	Dropped
	// Gapped means the entry arrived ahead of the contiguous run; it is
	// buffered, and the gap before it is reported.
	Gapped
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Dropped:
		return "Dropped"
	case Gapped:
		return "Gapped"
	default:
		return "Unknown"
	}
}

// Gap names a missing range of sequences, inclusive on both ends
// (scenario 2: `GapDetected(from=3, to=4)`).
type Gap struct {
	From uint64
	To   uint64
}

// NonMonotonicError is returned when an entry's sequence falls behind the
// gate's already-accepted cursor (§7 "Sequence violation ... on write" has
// a producer-side analogue here on the read side).
type NonMonotonicError struct {
	Sequence    uint64
	LastApplied uint64
}

func (e *NonMonotonicError) Error() string {
	return fmt.Sprintf("marketdata: non-monotonic sequence %d (last applied %d)", e.Sequence, e.LastApplied)
}

// IngestResult is the outcome of one Ingest call.
type IngestResult struct {
	Outcome Outcome
	Gap     Gap // populated iff Outcome == Gapped
}

// dedupRing is a bounded FIFO set of recently seen sequences, used to
// detect duplicate entries without growing without bound.
type dedupRing struct {
	capacity int
	order    []uint64
	seen     map[uint64]struct{}
}

func newDedupRing(capacity int) *dedupRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &dedupRing{capacity: capacity, seen: make(map[uint64]struct{}, capacity)}
}

func (r *dedupRing) Contains(seq uint64) bool {
	_, ok := r.seen[seq]
	return ok
}

func (r *dedupRing) Add(seq uint64) {
	if r.Contains(seq) {
		return
	}
	if len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	r.order = append(r.order, seq)
	r.seen[seq] = struct{}{}
}

// Gate is the ingestion gate (§4.F): it classifies incoming entries as
// accepted, dropped (duplicate), or gapped, buffers out-of-order arrivals,
// and drains contiguous runs in sequence order.
type Gate struct {
	cfg         IngesterConfig
	lastApplied uint64
	seen        *dedupRing
	buffer      map[uint64]journal.Entry
	ready       []journal.Entry
	logger      *log.Logger
}

// NewGate creates an ingestion gate starting from lastApplied (0 for a
// fresh boot, or a snapshot's `last_sequence` on resume).
func NewGate(cfg IngesterConfig, lastApplied uint64) *Gate {
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultIngesterConfig().BufferCapacity
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultIngesterConfig().DedupWindow
	}
	return &Gate{
		cfg:         cfg,
		lastApplied: lastApplied,
		seen:        newDedupRing(cfg.DedupWindow),
		buffer:      make(map[uint64]journal.Entry),
		logger:      log.Default().Module("marketdata.ingest"),
	}
}

// LastApplied returns the highest sequence absorbed into the contiguous
// run so far.
func (g *Gate) LastApplied() uint64 { return g.lastApplied }

// Ingest classifies and, where relevant, buffers one entry (§4.F).
func (g *Gate) Ingest(e journal.Entry) (IngestResult, error) {
	if g.seen.Contains(e.Sequence) {
		metrics.MarketDataDuplicatesDropped.Inc()
		return IngestResult{Outcome: Dropped}, nil
	}
	switch {
	case e.Sequence < g.lastApplied+1:
		return IngestResult{}, &NonMonotonicError{Sequence: e.Sequence, LastApplied: g.lastApplied}
	case e.Sequence > g.lastApplied+1:
		g.seen.Add(e.Sequence)
		g.bufferEntry(e)
		gap := Gap{From: g.lastApplied + 1, To: e.Sequence - 1}
		metrics.MarketDataGapsDetected.Inc()
		return IngestResult{Outcome: Gapped, Gap: gap}, nil
	default:
		g.seen.Add(e.Sequence)
		g.absorb(e)
		return IngestResult{Outcome: Accepted}, nil
	}
}

// bufferEntry stores an out-of-order entry, evicting the lowest-sequence
// buffered entry if the bounded buffer is full (§6 "buffer_capacity
// protects against producer bursts").
func (g *Gate) bufferEntry(e journal.Entry) {
	if len(g.buffer) >= g.cfg.BufferCapacity {
		var oldest uint64
		first := true
		for seq := range g.buffer {
			if first || seq < oldest {
				oldest = seq
				first = false
			}
		}
		delete(g.buffer, oldest)
		g.logger.Warn("ingestion buffer full, evicting oldest entry", "evicted_sequence", oldest)
	}
	g.buffer[e.Sequence] = e
}

// absorb advances the contiguous run starting at e, pulling in any
// already-buffered successors, and appends each absorbed entry to the
// ready queue in sequence order.
func (g *Gate) absorb(e journal.Entry) {
	g.lastApplied = e.Sequence
	g.ready = append(g.ready, e)
	for {
		next, ok := g.buffer[g.lastApplied+1]
		if !ok {
			break
		}
		delete(g.buffer, g.lastApplied+1)
		g.lastApplied = next.Sequence
		g.ready = append(g.ready, next)
	}
}

// Drain returns every entry accepted into the contiguous run since the
// last Drain call, sorted by sequence (idempotent if already sorted, per
// §4.F), and clears the ready queue.
func (g *Gate) Drain() []journal.Entry {
	if len(g.ready) == 0 {
		return nil
	}
	out := g.ready
	g.ready = nil
	return out
}

// Pending returns the number of out-of-order entries currently buffered,
// awaiting the gap to close.
func (g *Gate) Pending() int { return len(g.buffer) }
