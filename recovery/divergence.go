package recovery

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/acceptx/exchange-core/enginestate"
)

// DivergenceReport is emitted when replay's final state hash disagrees
// with an expected hash (§7 "Hash divergence on replay"). When both final
// states are at hand (VerifyDoubleReplay, VerifyIdempotency) it also flags
// which of the four keyed containers differ; Run compares against an
// expected hash only, so the reports it returns leave all four flags false.
type DivergenceReport struct {
	ExpectedHash string
	ActualHash   string
	Sequence     uint64
	Accounts     bool
	Orders       bool
	Positions    bool
	Balances     bool
}

// AnyContainerDiverged reports whether at least one of the four
// containers was found to differ.
func (r DivergenceReport) AnyContainerDiverged() bool {
	return r.Accounts || r.Orders || r.Positions || r.Balances
}

// Error implements the error interface so a DivergenceReport can be
// returned and wrapped directly by recovery's Run.
func (r DivergenceReport) Error() string {
	return fmt.Sprintf("recovery: hash divergence at sequence %d: expected %s, got %s",
		r.Sequence, r.ExpectedHash, r.ActualHash)
}

// Render produces an operator-facing text table (grounded on the
// teacher's log.TextFormatter's aligned, deterministic key=value style).
// cmd/exchange-core has no mode that prints it; the recovery tests use it
// in failure messages.
func (r DivergenceReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "divergence report (sequence=%d)\n", r.Sequence)
	fmt.Fprintf(&b, "  expected_hash: %s\n", r.ExpectedHash)
	fmt.Fprintf(&b, "  actual_hash:   %s\n", r.ActualHash)

	type row struct {
		name     string
		diverged bool
	}
	rows := []row{
		{"accounts", r.Accounts},
		{"orders", r.Orders},
		{"positions", r.Positions},
		{"balances", r.Balances},
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	b.WriteString("  containers:\n")
	for _, row := range rows {
		status := "ok"
		if row.diverged {
			status = "DIVERGED"
		}
		fmt.Fprintf(&b, "    %-10s %s\n", row.name, status)
	}
	return b.String()
}

// diffContainers compares two States' canonical (key-sorted) containers
// and reports which of the four differ, so DivergenceReport can name
// exactly which containers diverged rather than only the whole-state
// hash.
func diffContainers(want, got *enginestate.State) (accounts, orders, positions, balances bool) {
	wantCanon := want.Canonical()
	gotCanon := got.Canonical()
	return !reflect.DeepEqual(wantCanon.Accounts, gotCanon.Accounts),
		!reflect.DeepEqual(wantCanon.Orders, gotCanon.Orders),
		!reflect.DeepEqual(wantCanon.Positions, gotCanon.Positions),
		!reflect.DeepEqual(wantCanon.Balances, gotCanon.Balances)
}
