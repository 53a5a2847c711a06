// projector.go ties the ingestion gate, order-book mirror, delta
// generator, trade tape, and candle builders into the single pipeline
// §4.F describes, and implements "Replay / rebuild": consuming a journal
// from the start and producing byte-identical book/tape/candle state
// across runs, the market-data analogue of §4.E's replay contract.
package marketdata

import (
	"fmt"
	"time"

	"github.com/acceptx/exchange-core/events"
	"github.com/acceptx/exchange-core/journal"
	"github.com/acceptx/exchange-core/log"
	"github.com/acceptx/exchange-core/metrics"
)

// ProjectorConfig configures one symbol's projection pipeline.
type ProjectorConfig struct {
	Symbol        string
	Ingester      IngesterConfig
	TapeCapacity  int
	Timeframes    []Timeframe
	CandleHistory int
	MaxBatchSize  int // DeltaBatcher threshold; 0 disables auto-flush
}

// Projector is the per-symbol market-data pipeline: gate -> book mirror
// -> delta batcher, plus the trade tape and one candle builder per
// configured timeframe, all driven by the same ordered event stream.
type Projector struct {
	Symbol  string
	gate    *Gate
	book    *BookMirror
	batcher *DeltaBatcher
	tape    *TradeTape
	candles map[Timeframe]*CandleBuilder
	logger  *log.Logger
}

// NewProjector creates a projector starting from lastApplied (0 for a
// fresh boot, or a prior snapshot's last_sequence on resume).
func NewProjector(cfg ProjectorConfig, lastApplied uint64) *Projector {
	candles := make(map[Timeframe]*CandleBuilder, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		if ValidTimeframe(tf) {
			candles[tf] = NewCandleBuilder(cfg.Symbol, tf, cfg.CandleHistory)
		}
	}
	return &Projector{
		Symbol:  cfg.Symbol,
		gate:    NewGate(cfg.Ingester, lastApplied),
		book:    NewBookMirror(cfg.Symbol),
		batcher: NewDeltaBatcher(cfg.MaxBatchSize),
		tape:    NewTradeTape(cfg.Symbol, cfg.TapeCapacity),
		candles: candles,
		logger:  log.Default().Module("marketdata.projector").With("symbol", cfg.Symbol),
	}
}

// Book returns the projector's order-book mirror.
func (p *Projector) Book() *BookMirror { return p.book }

// Tape returns the projector's trade tape.
func (p *Projector) Tape() *TradeTape { return p.tape }

// Candles returns the candle builder for a timeframe, if configured.
func (p *Projector) Candles(tf Timeframe) (*CandleBuilder, bool) {
	cb, ok := p.candles[tf]
	return cb, ok
}

// Ingest offers one raw entry to the gate. Call Drain afterward (or let
// Feed do both) to advance the book/tape/candles with whatever became
// contiguous.
func (p *Projector) Ingest(entry journal.Entry) (IngestResult, error) {
	return p.gate.Ingest(entry)
}

// Feed ingests one entry and immediately applies any newly-contiguous
// entries it unblocked. It returns only the delta batches the batcher
// flushed along the way (a batch may hold deltas from earlier entries);
// deltas below the batch threshold stay pending until FlushDeltas, and
// recorded trades are not returned.
func (p *Projector) Feed(entry journal.Entry) ([]Delta, error) {
	result, err := p.Ingest(entry)
	if err != nil {
		return nil, err
	}
	if result.Outcome != Accepted {
		return nil, nil
	}
	return p.drainAndApply()
}

func (p *Projector) drainAndApply() ([]Delta, error) {
	var all []Delta
	for _, e := range p.gate.Drain() {
		deltas, err := p.applyOne(e)
		if err != nil {
			return nil, err
		}
		all = append(all, deltas...)
	}
	return all, nil
}

func (p *Projector) applyOne(entry journal.Entry) ([]Delta, error) {
	start := time.Now()
	defer func() {
		metrics.MarketDataEventProcessingLatency.Record(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	deltas, err := p.book.Apply(entry)
	if err != nil {
		return nil, fmt.Errorf("marketdata: project entry %d: %w", entry.Sequence, err)
	}
	if entry.EventType == events.TradeExecuted {
		var tp events.TradeExecutedPayload
		if err := events.Decode(entry.Payload, &tp); err != nil {
			return nil, fmt.Errorf("marketdata: decode TradeExecuted for tape: %w", err)
		}
		trade := p.tape.Record(tp, entry)
		for _, cb := range p.candles {
			if closed := cb.Record(trade.Price, trade.Qty, trade.Timestamp); closed != nil {
				metrics.MarketDataCandlesBuilt.Inc()
			}
		}
	}
	if len(deltas) > 0 {
		flushed := p.batcher.Add(deltas...)
		metrics.MarketDataDeltasEmitted.Add(int64(len(deltas)))
		if flushed != nil {
			return flushed, nil
		}
		return nil, nil
	}
	return nil, nil
}

// FlushDeltas force-flushes the pending delta batch (§4.F "Delta
// batcher": "flush ... on explicit call").
func (p *Projector) FlushDeltas() []Delta { return p.batcher.Flush() }

// Rebuild replays every entry a journal.Reader yields, in order, driving
// the book/tape/candles exactly as live Feed calls would. This is the
// boot-time "Replay / rebuild" path (§4.F); its result must be identical
// across repeated runs over the same journal.
func Rebuild(reader *journal.Reader, cfg ProjectorConfig) (*Projector, error) {
	p := NewProjector(cfg, 0)
	for {
		entry, err := reader.NextEntry()
		if err != nil {
			return nil, fmt.Errorf("marketdata: rebuild: %w", err)
		}
		if entry == nil {
			break
		}
		if _, err := p.Feed(*entry); err != nil {
			return nil, err
		}
	}
	p.FlushDeltas()
	return p, nil
}
