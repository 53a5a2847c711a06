// Package fixedpoint provides the exact decimal arithmetic used everywhere
// prices, quantities, balances, PnL, and fees are computed in exchange-core.
// No floating point is used anywhere in this package or its callers; every
// zero-equality check is exact, never tolerance-based.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal is an arbitrary-precision, exact fixed-point number. The zero
// value is a valid representation of zero.
type Decimal struct {
	inner decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{}

// New builds a Decimal from an integer mantissa and a base-10 exponent, such
// that the value equals value * 10^exp. This mirrors the scaled-integer
// representation used throughout the ecosystem's fixed-point columns.
func New(value int64, exp int32) Decimal {
	return Decimal{inner: decimal.New(value, exp)}
}

// NewFromString parses a decimal literal such as "51000.25".
func NewFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	return Decimal{inner: d}, nil
}

// MustNonNegative builds a Decimal from a literal and panics if it is
// negative. This is the one place this package panics: a negative
// quantity/price/balance constructed from a literal is a programmer error,
// never a runtime condition a caller should need to recover from.
func MustNonNegative(s string) Decimal {
	d, err := NewFromString(s)
	if err != nil {
		panic(err)
	}
	if d.IsNegative() {
		panic(fmt.Sprintf("fixedpoint: %q must not be negative", s))
	}
	return d
}

func (d Decimal) Add(o Decimal) Decimal { return Decimal{inner: d.inner.Add(o.inner)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{inner: d.inner.Sub(o.inner)} }
func (d Decimal) Mul(o Decimal) Decimal { return Decimal{inner: d.inner.Mul(o.inner)} }

// Div divides d by o. Division is never exact for fixed-point exchange
// arithmetic by construction of this codebase's callers (VWAP, average
// price); results are rounded to 18 decimal places, matching the precision
// shopspring/decimal uses internally for inexact division.
func (d Decimal) Div(o Decimal) Decimal { return Decimal{inner: d.inner.DivRound(o.inner, 18)} }

// Cmp compares d to o: -1, 0, or 1.
func (d Decimal) Cmp(o Decimal) int { return d.inner.Cmp(o.inner) }

// Equal reports exact equality (never a tolerance comparison).
func (d Decimal) Equal(o Decimal) bool { return d.inner.Equal(o.inner) }

// IsZero reports whether d is exactly zero.
func (d Decimal) IsZero() bool { return d.inner.IsZero() }

// IsNegative reports whether d is strictly less than zero.
func (d Decimal) IsNegative() bool { return d.inner.IsNegative() }

// IsPositive reports whether d is strictly greater than zero.
func (d Decimal) IsPositive() bool { return d.inner.IsPositive() }

// GreaterThan reports d > o.
func (d Decimal) GreaterThan(o Decimal) bool { return d.inner.GreaterThan(o.inner) }

// LessThan reports d < o.
func (d Decimal) LessThan(o Decimal) bool { return d.inner.LessThan(o.inner) }

// GreaterThanOrEqual reports d >= o.
func (d Decimal) GreaterThanOrEqual(o Decimal) bool { return d.inner.GreaterThanOrEqual(o.inner) }

// String renders the canonical decimal representation.
func (d Decimal) String() string { return d.inner.String() }

// Bytes returns a canonical, deterministic byte encoding suitable for
// hashing (used by the order-book snapshot checksum in marketdata).
func (d Decimal) Bytes() []byte { return []byte(d.inner.String()) }

// GobEncode implements gob.GobEncoder by delegating to the underlying
// shopspring/decimal encoding, which is itself deterministic (a decimal
// string), so that state serialized by the snapshot store hashes
// identically across machines and Go versions.
func (d Decimal) GobEncode() ([]byte, error) { return d.inner.GobEncode() }

// GobDecode implements gob.GobDecoder.
func (d *Decimal) GobDecode(data []byte) error { return d.inner.GobDecode(data) }

// MarshalJSON implements json.Marshaler for API/debug responses.
func (d Decimal) MarshalJSON() ([]byte, error) { return d.inner.MarshalJSON() }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decimal) UnmarshalJSON(data []byte) error { return d.inner.UnmarshalJSON(data) }
