/*
Package cash provides the cash-tender reconciliation engine.

PURPOSE:
  This package holds the till-side arithmetic of a point-of-sale counter:
  deriving what a customer owes from a bill and its adjustments, turning the
  notes and coins they hand over into a denomination ledger update, working
  out the change the drawer can actually pay out, and reconciling the
  opening and closing counts of a business day.

KEY CONCEPTS IN THIS FILE (types.go):
  - Denomination: A currency unit value (500, 200, ... 1)
  - DenominationSet: The fixed, closed vocabulary of units a till accepts
  - Counts: Denomination -> number of notes/coins (the "ledger")
  - DrawerKey / DrawerSnapshot: The live till for one store/company/day

DESIGN PRINCIPLES:
  1. Precision: Money uses decimal.Decimal, counts are int64
  2. Closed vocabulary: Counts for units outside the set are rejected
  3. Copy on hand-off: Sessions work on clones, never on a shared map

USAGE:
  set := cash.DefaultDenominations()
  available := cash.Counts{500: 2, 100: 5}
  total := available.Total() // 1500

SEE ALSO:
  - change.go: Change breakdown over a ledger
  - session.go: Tender session state machine
  - daycash.go: Opening/closing reconciliation
*/
package cash

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DENOMINATION
// =============================================================================

// Denomination is a currency note or coin value in whole currency units.
type Denomination int64

// Value returns the denomination as a decimal amount.
func (d Denomination) Value() decimal.Decimal { return decimal.NewFromInt(int64(d)) }

func (d Denomination) String() string { return strconv.FormatInt(int64(d), 10) }

// DenominationSet is the closed set of denominations a till works with,
// always sorted descending.
type DenominationSet []Denomination

// DefaultDenominations returns the standard rupee note/coin set.
func DefaultDenominations() DenominationSet {
	return DenominationSet{500, 200, 100, 50, 20, 10, 5, 2, 1}
}

// NewDenominationSet builds a set from arbitrary values, rejecting
// non-positive and duplicate entries.
func NewDenominationSet(values ...int64) (DenominationSet, error) {
	if len(values) == 0 {
		return nil, &ValidationError{Field: "denominations", Reason: "at least one denomination is required"}
	}
	seen := make(map[int64]bool, len(values))
	set := make(DenominationSet, 0, len(values))
	for _, v := range values {
		if v <= 0 {
			return nil, &ValidationError{Field: "denominations", Value: strconv.FormatInt(v, 10), Reason: "must be positive"}
		}
		if seen[v] {
			return nil, &ValidationError{Field: "denominations", Value: strconv.FormatInt(v, 10), Reason: "duplicate"}
		}
		seen[v] = true
		set = append(set, Denomination(v))
	}
	sort.Slice(set, func(i, j int) bool { return set[i] > set[j] })
	return set, nil
}

// ParseDenominationSet parses a comma-separated list such as "500,200,100".
func ParseDenominationSet(csv string) (DenominationSet, error) {
	parts := strings.Split(csv, ",")
	values := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, &ValidationError{Field: "denominations", Value: p, Reason: "not a number"}
		}
		values = append(values, v)
	}
	return NewDenominationSet(values...)
}

// Contains reports whether d belongs to the set.
func (s DenominationSet) Contains(d Denomination) bool {
	for _, x := range s {
		if x == d {
			return true
		}
	}
	return false
}

// MaxCount is the largest number of pieces accepted for one denomination in
// any ledger, collection or issue.
const MaxCount int64 = 1_000_000

// Validate checks that every key of c is in the set and every count lies in
// [0, MaxCount].
func (s DenominationSet) Validate(c Counts) error {
	for d, n := range c {
		if !s.Contains(d) {
			return &ValidationError{Field: "denomination", Value: d.String(), Reason: "not in denomination set"}
		}
		if n < 0 {
			return &ValidationError{Field: "count", Value: strconv.FormatInt(n, 10), Reason: fmt.Sprintf("negative count for %s", d)}
		}
		if n > MaxCount {
			return &ValidationError{Field: "count", Value: strconv.FormatInt(n, 10), Reason: fmt.Sprintf("count for %s exceeds %d", d, MaxCount)}
		}
	}
	return nil
}

// =============================================================================
// COUNTS - Denomination ledger
// =============================================================================

// Counts maps a denomination to a number of notes or coins. It is the
// "ledger" of a till at a point in time, or a collected/issued breakdown.
type Counts map[Denomination]int64

// Total returns Σ d×count.
func (c Counts) Total() decimal.Decimal {
	sum := decimal.Zero
	for d, n := range c {
		sum = sum.Add(d.Value().Mul(decimal.NewFromInt(n)))
	}
	return sum
}

// Pieces returns the number of notes and coins.
func (c Counts) Pieces() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// Clone returns an independent copy, dropping zero entries.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for d, n := range c {
		if n != 0 {
			out[d] = n
		}
	}
	return out
}

// IsEmpty reports whether every count is zero.
func (c Counts) IsEmpty() bool {
	for _, n := range c {
		if n != 0 {
			return false
		}
	}
	return true
}

// Equal compares two ledgers ignoring zero entries.
func (c Counts) Equal(other Counts) bool {
	a, b := c.Clone(), other.Clone()
	if len(a) != len(b) {
		return false
	}
	for d, n := range a {
		if b[d] != n {
			return false
		}
	}
	return true
}

// Denominations returns the keys of c sorted descending.
func (c Counts) Denominations() []Denomination {
	ds := make([]Denomination, 0, len(c))
	for d := range c {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] > ds[j] })
	return ds
}

// =============================================================================
// DRAWER - The live till for one store/company/day
// =============================================================================

// DrawerKey identifies one physical till for one business day.
type DrawerKey struct {
	StoreCode   string
	CompanyCode string
	Date        BusinessDate
}

func (k DrawerKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.StoreCode, k.CompanyCode, k.Date)
}

// LockKey is the key drawer finalizations serialize on.
func (k DrawerKey) LockKey() string { return "drawer:" + k.String() }

// DrawerSnapshot is the available stock of a till as fetched from storage.
// Version increases by one on every committed change and backs the
// optimistic-concurrency check at persist time.
type DrawerSnapshot struct {
	Key       DrawerKey
	Available Counts
	Version   int64
	FetchedAt time.Time
}

// Clone returns a snapshot whose Available map is independent of s.
func (s DrawerSnapshot) Clone() DrawerSnapshot {
	s.Available = s.Available.Clone()
	return s
}

// =============================================================================
// BILL - Collaborator-provided bill header
// =============================================================================

// Bill is the bill header a tender is opened against.
type Bill struct {
	BillNo       string
	SalesmanName string
	Date         BusinessDate
	Amount       decimal.Decimal
}

// Instrument is a non-cash payment method.
type Instrument string

const (
	InstrumentUPI  Instrument = "upi"
	InstrumentCard Instrument = "card"
)
