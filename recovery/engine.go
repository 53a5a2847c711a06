// Package recovery implements the boot-time recovery algorithm (§4.E):
// load the latest usable snapshot (if any), open the journal, seek past
// the snapshot's cursor, and replay every subsequent entry through a pure
// EventApplier. It is grounded on the teacher's state/snapshot package's
// own staleness/validation idiom and its sentinel-error style, adapted
// from a single execution-client state reconstruction into this spec's
// generic (snapshot, journal, applier) replay contract.
package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/acceptx/exchange-core/enginestate"
	"github.com/acceptx/exchange-core/journal"
	"github.com/acceptx/exchange-core/log"
	"github.com/acceptx/exchange-core/metrics"
	"github.com/acceptx/exchange-core/snapshot"
)

// Config configures one recovery run (§4.E step 1-2).
type Config struct {
	JournalDir    string
	SnapshotStore *snapshot.Store // nil skips snapshot loading entirely
	Applier       EventApplier
	ExpectedHash  string // empty skips the hash-divergence check (§4.E step 5)
}

// Result is the outcome of a successful recovery run.
type Result struct {
	State       *enginestate.State
	Sequence    uint64 // last sequence applied
	Hash        string
	ReplayCount uint64
	Log         *StageLog
}

// Run executes the recovery algorithm end to end (§4.E).
func Run(cfg Config) (*Result, error) {
	l := &StageLog{}
	logger := log.Default().Module("recovery")
	now := time.Now
	l.enter(StageStart, now())

	var state *enginestate.State
	var cursor uint64

	l.enter(StageSnapshotSearch, now())
	var snap *snapshot.Snapshot
	var err error
	if cfg.SnapshotStore != nil {
		snap, err = cfg.SnapshotStore.LoadLatest()
		if err != nil {
			if !errors.Is(err, snapshot.ErrNotFound) {
				l.enter(StageError, now())
				l.close(now())
				return nil, fmt.Errorf("recovery: snapshot search: %w", err)
			}
			snap = nil
		}
	}

	l.enter(StageSnapshotLoad, now())
	if snap != nil {
		state = snap.State
		cursor = snap.Sequence
		logger.Info("recovery loaded snapshot", "sequence", cursor)
	} else {
		state = enginestate.New()
		cursor = 0
		logger.Info("recovery starting from empty state")
	}

	l.enter(StageJournalOpen, now())
	reader, err := journal.OpenReader(cfg.JournalDir)
	if err != nil {
		l.enter(StageError, now())
		l.close(now())
		return nil, fmt.Errorf("recovery: open journal: %w", err)
	}
	defer reader.Close()

	l.enter(StageJournalSeek, now())
	if cursor > 0 {
		if err := reader.SeekToSequence(cursor + 1); err != nil {
			l.enter(StageError, now())
			l.close(now())
			return nil, fmt.Errorf("recovery: seek to %d: %w", cursor+1, err)
		}
	}

	l.enter(StageReplay, now())
	start := time.Now()
	var replayCount uint64
	var lastSeq uint64 = cursor
	for {
		entry, err := reader.NextEntry()
		if err != nil {
			l.enter(StageError, now())
			l.close(now())
			return nil, fmt.Errorf("recovery: replay: %w", err)
		}
		if entry == nil {
			break
		}
		if err := cfg.Applier(state, *entry); err != nil {
			l.enter(StageError, now())
			l.close(now())
			return nil, fmt.Errorf("recovery: apply entry %d: %w", entry.Sequence, err)
		}
		lastSeq = entry.Sequence
		replayCount++
	}
	metrics.RecoveryReplays.Inc()
	metrics.RecoveryEntriesReplayed.Add(int64(replayCount))
	metrics.RecoveryReplayDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)

	l.enter(StageValidation, now())
	hash, err := state.Hash()
	if err != nil {
		l.enter(StageError, now())
		l.close(now())
		return nil, fmt.Errorf("recovery: hash final state: %w", err)
	}
	if cfg.ExpectedHash != "" && cfg.ExpectedHash != hash {
		metrics.RecoveryDivergences.Inc()
		report := DivergenceReport{ExpectedHash: cfg.ExpectedHash, ActualHash: hash, Sequence: lastSeq}
		l.enter(StageError, now())
		l.close(now())
		return nil, report
	}

	l.enter(StageComplete, now())
	l.close(now())

	return &Result{
		State:       state,
		Sequence:    lastSeq,
		Hash:        hash,
		ReplayCount: replayCount,
		Log:         l,
	}, nil
}

