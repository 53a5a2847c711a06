// Package enginestate defines the four keyed mappings (accounts, orders,
// positions, balances) that make up the snapshot payload (§3), and the
// canonical byte encoding that makes the resulting state hash
// deterministic regardless of Go's randomized map iteration order.
package enginestate

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"

	sha256simd "github.com/minio/sha256-simd"

	"github.com/acceptx/exchange-core/fixedpoint"
)

// Account is a ledger account keyed by account ID.
type Account struct {
	ID      string
	Balance fixedpoint.Decimal
}

// Order is a resting order keyed by order ID.
type Order struct {
	ID           string
	Symbol       string
	Side         string
	Price        fixedpoint.Decimal
	RemainingQty fixedpoint.Decimal
}

// Position is an account's net position in a symbol, keyed by
// "<account>:<symbol>".
type Position struct {
	ID            string
	AccountID     string
	Symbol        string
	Quantity      fixedpoint.Decimal
	AvgEntryPrice fixedpoint.Decimal
}

// Balance is an account's asset balance, keyed by "<account>:<asset>".
type Balance struct {
	ID        string
	AccountID string
	Asset     string
	Available fixedpoint.Decimal
	Locked    fixedpoint.Decimal
}

// State is the engine state snapshotted and replayed by this repository's
// persistence core (§3 "Engine state"). The maps are ordinary Go maps for
// cheap mutation during replay; determinism of the derived hash comes from
// Canonical(), not from map iteration order.
type State struct {
	Accounts  map[string]Account
	Orders    map[string]Order
	Positions map[string]Position
	Balances  map[string]Balance
}

// New returns an empty State, the starting point for a fresh boot with no
// snapshot (§4.E step 1).
func New() *State {
	return &State{
		Accounts:  make(map[string]Account),
		Orders:    make(map[string]Order),
		Positions: make(map[string]Position),
		Balances:  make(map[string]Balance),
	}
}

// Canonical is the deterministic, key-ordered encoding form of a State:
// four slices sorted lexicographically by key, so that gob-encoding (and
// therefore sha256-hashing) it is reproducible across processes and Go
// versions, unlike gob-encoding the maps directly.
type Canonical struct {
	Accounts  []Account
	Orders    []Order
	Positions []Position
	Balances  []Balance
}

// Canonical builds the sorted-slice encoding form of s.
func (s *State) Canonical() Canonical {
	return Canonical{
		Accounts:  sortedValues(s.Accounts),
		Orders:    sortedValues(s.Orders),
		Positions: sortedValues(s.Positions),
		Balances:  sortedValues(s.Balances),
	}
}

// sortedValues returns m's values ordered by key, lexicographically. This
// is what makes the canonical container's iteration order key-order "by
// construction" (§3), independent of Go's randomized map iteration.
func sortedValues[V any](m map[string]V) []V {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]V, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

// Bytes gob-encodes c. Because c's fields are already sorted slices (not
// maps), the result is byte-identical across runs for the same logical
// state.
func (c Canonical) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("enginestate: encode canonical form: %w", err)
	}
	return buf.Bytes(), nil
}

// Hash returns hex(sha256(gob(c))), the currency of divergence detection
// (§4.D, §4.E). sha256-simd dispatches to hardware SHA extensions where
// available.
func (c Canonical) Hash() (string, error) {
	b, err := c.Bytes()
	if err != nil {
		return "", err
	}
	sum := sha256simd.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Hash returns the canonical state hash of s.
func (s *State) Hash() (string, error) { return s.Canonical().Hash() }

// Clone deep-copies s, used by recovery's divergence comparison so two
// independently-replayed states can be compared without aliasing.
func (s *State) Clone() *State {
	out := New()
	for k, v := range s.Accounts {
		out.Accounts[k] = v
	}
	for k, v := range s.Orders {
		out.Orders[k] = v
	}
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	for k, v := range s.Balances {
		out.Balances[k] = v
	}
	return out
}
