package marketdata

import "testing"

func TestParseChannelRoundTrips(t *testing.T) {
	cases := []string{"book@BTC-USD", "trades@BTC-USD", "candles@BTC-USD@M5"}
	for _, s := range cases {
		ch, err := ParseChannel(s)
		if err != nil {
			t.Fatalf("ParseChannel(%q): %v", s, err)
		}
		if ch.String() != s {
			t.Fatalf("ParseChannel(%q).String() = %q", s, ch.String())
		}
	}
}

func TestParseChannelRejectsUnknownTimeframe(t *testing.T) {
	if _, err := ParseChannel("candles@BTC-USD@M2"); err == nil {
		t.Fatalf("expected an error for an unrecognized timeframe")
	}
}

func TestParseChannelRejectsMalformed(t *testing.T) {
	for _, s := range []string{"book", "book@", "unknown@BTC-USD", "candles@BTC-USD"} {
		if _, err := ParseChannel(s); err == nil {
			t.Fatalf("ParseChannel(%q): expected an error", s)
		}
	}
}
