package marketdata

import (
	"fmt"
	"strings"
)

// ChannelKind names the three channel families §6 enumerates.
type ChannelKind int

const (
	ChannelBook ChannelKind = iota
	ChannelTrades
	ChannelCandles
)

// Channel is a parsed subscription channel (§4.F / §6 "Channel strings":
// `book@<symbol>`, `trades@<symbol>`, `candles@<symbol>@<timeframe>`).
type Channel struct {
	Kind      ChannelKind
	Symbol    string
	Timeframe Timeframe // only set for ChannelCandles
}

// String reconstructs the canonical channel string.
func (c Channel) String() string {
	switch c.Kind {
	case ChannelBook:
		return "book@" + c.Symbol
	case ChannelTrades:
		return "trades@" + c.Symbol
	case ChannelCandles:
		return fmt.Sprintf("candles@%s@%s", c.Symbol, c.Timeframe)
	default:
		return ""
	}
}

// ParseChannel parses one channel string per §6. An unrecognized prefix,
// a missing symbol, or (for candles) an invalid timeframe is an error —
// channel parsing never panics on client input (§7).
func ParseChannel(s string) (Channel, error) {
	parts := strings.Split(s, "@")
	if len(parts) < 2 || parts[1] == "" {
		return Channel{}, fmt.Errorf("marketdata: malformed channel %q", s)
	}
	switch parts[0] {
	case "book":
		if len(parts) != 2 {
			return Channel{}, fmt.Errorf("marketdata: malformed book channel %q", s)
		}
		return Channel{Kind: ChannelBook, Symbol: parts[1]}, nil
	case "trades":
		if len(parts) != 2 {
			return Channel{}, fmt.Errorf("marketdata: malformed trades channel %q", s)
		}
		return Channel{Kind: ChannelTrades, Symbol: parts[1]}, nil
	case "candles":
		if len(parts) != 3 {
			return Channel{}, fmt.Errorf("marketdata: malformed candles channel %q", s)
		}
		tf := Timeframe(parts[2])
		if !ValidTimeframe(tf) {
			return Channel{}, fmt.Errorf("marketdata: unknown timeframe %q in channel %q", parts[2], s)
		}
		return Channel{Kind: ChannelCandles, Symbol: parts[1], Timeframe: tf}, nil
	default:
		return Channel{}, fmt.Errorf("marketdata: unknown channel kind %q", parts[0])
	}
}
