package marketdata

import (
	"github.com/google/btree"

	"github.com/acceptx/exchange-core/fixedpoint"
)

// Candle is one OHLCV bucket (§3 "Candle"). Invariant: `low <= {open,
// close} <= high` and `close_time = open_time + duration - 1`.
type Candle struct {
	Symbol     string
	Timeframe  Timeframe
	OpenTime   int64
	CloseTime  int64
	Open       fixedpoint.Decimal
	High       fixedpoint.Decimal
	Low        fixedpoint.Decimal
	Close      fixedpoint.Decimal
	Volume     fixedpoint.Decimal
	TradeCount int
}

func candleLess(a, b Candle) bool { return a.OpenTime < b.OpenTime }

// alignToBoundary computes `floor(timestamp / duration) * duration`
// (§4.F "Aligned"). Exchange-clock timestamps are non-negative, so Go's
// truncating integer division already implements floor here.
func alignToBoundary(timestamp, duration int64) int64 {
	return (timestamp / duration) * duration
}

// CandleBuilder tracks the currently open candle and a history of closed
// candles for one (symbol, timeframe) pair (§4.F "Candle builder").
type CandleBuilder struct {
	Symbol     string
	Timeframe  Timeframe
	duration   int64
	maxHistory int
	current    *Candle
	history    *btree.BTreeG[Candle]
}

// NewCandleBuilder creates a builder for one symbol/timeframe pair,
// retaining at most maxHistory closed candles.
func NewCandleBuilder(symbol string, tf Timeframe, maxHistory int) *CandleBuilder {
	return &CandleBuilder{
		Symbol:     symbol,
		Timeframe:  tf,
		duration:   tf.Duration(),
		maxHistory: maxHistory,
		history:    btree.NewG[Candle](btreeDegree, candleLess),
	}
}

func (c *CandleBuilder) newCandle(openTime int64, openPrice fixedpoint.Decimal) *Candle {
	return &Candle{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		OpenTime:  openTime,
		CloseTime: openTime + c.duration - 1,
		Open:      openPrice,
		High:      openPrice,
		Low:       openPrice,
		Close:     openPrice,
		Volume:    fixedpoint.Zero,
	}
}

// Record routes one trade into this builder's timeframe (§4.F "Each
// trade is routed to all configured timeframes" — the caller fans a
// trade out across one CandleBuilder per configured timeframe). It
// returns the candle that was closed by this trade, if any.
func (c *CandleBuilder) Record(price, qty fixedpoint.Decimal, timestamp int64) *Candle {
	openTime := alignToBoundary(timestamp, c.duration)

	var closed *Candle
	switch {
	case c.current == nil:
		c.current = c.newCandle(openTime, price)
	case openTime > c.current.OpenTime:
		prev := *c.current
		c.pushHistory(prev)
		c.backfillGap(prev, openTime)
		closed = &prev
		c.current = c.newCandle(openTime, price)
	}

	if price.GreaterThan(c.current.High) {
		c.current.High = price
	}
	if price.LessThan(c.current.Low) {
		c.current.Low = price
	}
	c.current.Close = price
	c.current.Volume = c.current.Volume.Add(qty)
	c.current.TradeCount++
	return closed
}

// backfillGap fills any whole buckets strictly between prev's close and
// nextOpenTime with zero-volume candles at prev's close price (§4.F
// "Backfill fills gaps ... with zero-volume candles at the prior close
// price").
func (c *CandleBuilder) backfillGap(prev Candle, nextOpenTime int64) {
	for t := prev.OpenTime + c.duration; t < nextOpenTime; t += c.duration {
		filler := c.newCandle(t, prev.Close)
		filler.TradeCount = 0
		c.pushHistory(*filler)
	}
}

// BackfillTo fills zero-volume candles from the last known close up to
// (but not including) endTime, without requiring a new trade to arrive.
// This is the standalone form of backfill §4.F describes for heartbeat
// gap-filling during quiet markets.
func (c *CandleBuilder) BackfillTo(endTime int64) []Candle {
	if c.current == nil {
		return nil
	}
	before := c.history.Len()
	c.backfillGap(*c.current, alignToBoundary(endTime, c.duration))
	if c.history.Len() == before {
		return nil
	}
	var added []Candle
	c.history.Ascend(func(cd Candle) bool {
		if cd.OpenTime >= c.current.OpenTime+c.duration {
			added = append(added, cd)
		}
		return true
	})
	return added
}

func (c *CandleBuilder) pushHistory(cd Candle) {
	c.history.ReplaceOrInsert(cd)
	for c.maxHistory > 0 && c.history.Len() > c.maxHistory {
		oldest, ok := c.history.Min()
		if !ok {
			break
		}
		c.history.Delete(oldest)
	}
}

// Current returns the currently open candle, if any.
func (c *CandleBuilder) Current() (Candle, bool) {
	if c.current == nil {
		return Candle{}, false
	}
	return *c.current, true
}

// History returns closed candles in ascending open_time order.
func (c *CandleBuilder) History() []Candle {
	var out []Candle
	c.history.Ascend(func(cd Candle) bool {
		out = append(out, cd)
		return true
	})
	return out
}
