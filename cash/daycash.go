/*
daycash.go - Opening/closing drawer reconciliation for a business day

PURPOSE:
  At the start of a day the operator counts the till (opening); at the end
  they count it again (closing). The record derives both totals and the
  variance between them. Variance is reported, never corrected.

PERSISTENCE:
  Each post appends a revision; the latest revision of each kind is the
  current value. Posting the opening count of a day whose drawer does not
  exist yet seeds the live drawer with those counts.

EXAMPLE:
  Opening 10×500 = 5,000; closing 14×500 + 3×100 = 7,300
  -> variance +2,300

SEE ALSO:
  - store.go: DayCashStore
  - tender.go: Tenders move the live drawer between the two counts
*/
package cash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY CASH RECORD
// =============================================================================

// DayCashRecord aggregates the two count snapshots of one drawer-day.
type DayCashRecord struct {
	Key DrawerKey

	Opening         Counts
	Closing         Counts
	OpeningRevision int
	ClosingRevision int

	set          DenominationSet
	openingTotal decimal.Decimal
	closingTotal decimal.Decimal
}

// DayCashSummary is the derived view of a DayCashRecord.
type DayCashSummary struct {
	OpeningTotal decimal.Decimal
	ClosingTotal decimal.Decimal
	Variance     decimal.Decimal
	HasOpening   bool
	HasClosing   bool
}

func NewDayCashRecord(key DrawerKey, set DenominationSet) *DayCashRecord {
	if len(set) == 0 {
		set = DefaultDenominations()
	}
	return &DayCashRecord{Key: key, set: set, openingTotal: decimal.Zero, closingTotal: decimal.Zero}
}

// RecordOpening replaces the opening snapshot.
func (r *DayCashRecord) RecordOpening(counts Counts) error {
	if err := r.set.Validate(counts); err != nil {
		return err
	}
	r.Opening = counts.Clone()
	r.openingTotal = r.Opening.Total()
	return nil
}

// RecordClosing replaces the closing snapshot.
func (r *DayCashRecord) RecordClosing(counts Counts) error {
	if err := r.set.Validate(counts); err != nil {
		return err
	}
	r.Closing = counts.Clone()
	r.closingTotal = r.Closing.Total()
	return nil
}

// Summary has no side effects.
func (r *DayCashRecord) Summary() DayCashSummary {
	return DayCashSummary{
		OpeningTotal: r.openingTotal,
		ClosingTotal: r.closingTotal,
		Variance:     r.closingTotal.Sub(r.openingTotal),
		HasOpening:   r.Opening != nil,
		HasClosing:   r.Closing != nil,
	}
}

// Discrepancy compares the declared closing count with the drawer the
// system expects (opening plus every committed tender). Positive entries
// mean more notes were counted than expected. Denominations that agree are
// left out.
func (r *DayCashRecord) Discrepancy(expected Counts) Counts {
	out := Counts{}
	for _, d := range r.set {
		if diff := r.Closing[d] - expected[d]; diff != 0 {
			out[d] = diff
		}
	}
	return out
}

// =============================================================================
// DAY CASH SERVICE
// =============================================================================

// DayCashService posts and reads day counts.
type DayCashService struct {
	Store   DayCashStore
	Drawers DrawerStore

	Denominations DenominationSet

	Log zerolog.Logger
	Now func() time.Time
}

func NewDayCashService(store Store) *DayCashService {
	return &DayCashService{
		Store:         store,
		Drawers:       store,
		Denominations: DefaultDenominations(),
		Log:           zerolog.Nop(),
		Now:           time.Now,
	}
}

func (s *DayCashService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Load builds the record from the latest revisions. It returns
// ErrDayCashNotFound when neither count was posted.
func (s *DayCashService) Load(ctx context.Context, key DrawerKey) (*DayCashRecord, error) {
	rec := NewDayCashRecord(key, s.Denominations)
	found := false

	opening, err := s.Store.LatestDayCash(ctx, key, CountOpening)
	switch {
	case err == nil:
		if err := rec.RecordOpening(opening.Counts); err != nil {
			return nil, err
		}
		rec.OpeningRevision = opening.Revision
		found = true
	case !errors.Is(err, ErrDayCashNotFound):
		return nil, err
	}

	closing, err := s.Store.LatestDayCash(ctx, key, CountClosing)
	switch {
	case err == nil:
		if err := rec.RecordClosing(closing.Counts); err != nil {
			return nil, err
		}
		rec.ClosingRevision = closing.Revision
		found = true
	case !errors.Is(err, ErrDayCashNotFound):
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("day cash %s: %w", key, ErrDayCashNotFound)
	}
	return rec, nil
}

func (s *DayCashService) loadOrNew(ctx context.Context, key DrawerKey) (*DayCashRecord, error) {
	rec, err := s.Load(ctx, key)
	if errors.Is(err, ErrDayCashNotFound) {
		return NewDayCashRecord(key, s.Denominations), nil
	}
	return rec, err
}

// PostOpening records the opening count. The first opening of a day also
// creates the live drawer.
func (s *DayCashService) PostOpening(ctx context.Context, key DrawerKey, counts Counts, recordedBy string) (*DayCashRecord, error) {
	rec, err := s.loadOrNew(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := rec.RecordOpening(counts); err != nil {
		return nil, err
	}

	// A failed seed must not leave an opening revision behind. A retry after
	// a failed append finds the drawer already seeded.
	if _, err := s.Drawers.LoadDrawer(ctx, key); errors.Is(err, ErrDrawerNotFound) {
		if _, err := s.Drawers.SaveDrawer(ctx, key, rec.Opening, 0); err != nil {
			return nil, fmt.Errorf("seed drawer %s: %w", key, err)
		}
		s.Log.Info().Str("drawer", key.String()).Msg("drawer seeded from opening count")
	} else if err != nil {
		return nil, err
	}

	rec.OpeningRevision++
	if err := s.append(ctx, key, CountOpening, rec.OpeningRevision, rec.Opening, recordedBy); err != nil {
		return nil, err
	}
	return rec, nil
}

// PostClosing records the closing count.
func (s *DayCashService) PostClosing(ctx context.Context, key DrawerKey, counts Counts, recordedBy string) (*DayCashRecord, error) {
	rec, err := s.loadOrNew(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := rec.RecordClosing(counts); err != nil {
		return nil, err
	}
	rec.ClosingRevision++
	if err := s.append(ctx, key, CountClosing, rec.ClosingRevision, rec.Closing, recordedBy); err != nil {
		return nil, err
	}

	sum := rec.Summary()
	s.Log.Info().
		Str("drawer", key.String()).
		Str("opening_total", sum.OpeningTotal.StringFixed(2)).
		Str("closing_total", sum.ClosingTotal.StringFixed(2)).
		Str("variance", sum.Variance.StringFixed(2)).
		Msg("closing count posted")
	return rec, nil
}

// Reconciliation is a day's summary plus the closing-vs-drawer discrepancy.
type Reconciliation struct {
	Record      *DayCashRecord
	Summary     DayCashSummary
	Discrepancy Counts
	// DrawerTotal is the live drawer's total, zero when no drawer exists.
	DrawerTotal decimal.Decimal
}

// Reconcile loads the day's counts and compares the closing count with the
// live drawer.
func (s *DayCashService) Reconcile(ctx context.Context, key DrawerKey) (Reconciliation, error) {
	rec, err := s.Load(ctx, key)
	if err != nil {
		return Reconciliation{}, err
	}
	out := Reconciliation{Record: rec, Summary: rec.Summary(), DrawerTotal: decimal.Zero}

	drawer, err := s.Drawers.LoadDrawer(ctx, key)
	switch {
	case err == nil:
		out.DrawerTotal = drawer.Available.Total()
		if rec.Closing != nil {
			out.Discrepancy = rec.Discrepancy(drawer.Available)
		}
	case !errors.Is(err, ErrDrawerNotFound):
		return Reconciliation{}, err
	}
	return out, nil
}

func (s *DayCashService) append(ctx context.Context, key DrawerKey, kind CountKind, revision int, counts Counts, by string) error {
	snap := DayCashSnapshot{
		Key:        key,
		Kind:       kind,
		Revision:   revision,
		Counts:     counts.Clone(),
		Total:      counts.Total(),
		RecordedBy: by,
		RecordedAt: s.now().UTC(),
	}
	if err := s.Store.AppendDayCash(ctx, snap); err != nil {
		return fmt.Errorf("append %s count %s: %w", kind, key, err)
	}
	return nil
}
