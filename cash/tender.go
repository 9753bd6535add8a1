/*
tender.go - Tender orchestration against a shared drawer

PURPOSE:
  Opens tender sessions against the live drawer and commits finalized
  tenders so that two registers sharing a till can never both compute
  change from the same stale stock.

FINALIZE SEQUENCE:
  1. Take the drawer lock (DrawerLocker, keyed by store/company/day)
  2. Reload the drawer and compare its version with the session's snapshot
     -> different: StaleLedgerError, the operator reloads and retries
  3. session.Finalize (underpaid / insufficient stock / max age checks)
  4. CommitTender: tender record + closing drawer, version-checked, atomic
     -> failure: the session goes back to Collecting
  5. Release the lock

  Aborting a session never reaches this file: nothing is written until
  step 4.

SEE ALSO:
  - session.go: The per-bill state machine
  - lock.go, lock/redislock.go: Drawer lock implementations
*/
package cash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TenderService wires sessions to their collaborators.
type TenderService struct {
	Drawers DrawerStore
	Tenders TenderStore
	Bills   BillSource
	Locker  DrawerLocker

	Denominations DenominationSet
	MaxLedgerAge  time.Duration
	LockTTL       time.Duration

	Log zerolog.Logger
	Now func() time.Time
}

// NewTenderService creates a service with an in-process drawer lock and the
// default denomination set.
func NewTenderService(store Store, bills BillSource) *TenderService {
	return &TenderService{
		Drawers:       store,
		Tenders:       store,
		Bills:         bills,
		Locker:        NewMutexLocker(),
		Denominations: DefaultDenominations(),
		LockTTL:       10 * time.Second,
		Log:           zerolog.Nop(),
		Now:           time.Now,
	}
}

func (s *TenderService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Open starts a session for billNo on the given drawer and loads the ledger.
func (s *TenderService) Open(ctx context.Context, billNo string, key DrawerKey) (*TenderSession, error) {
	if billNo == "" {
		return nil, &ValidationError{Field: "bill_no", Reason: "required"}
	}
	if _, err := s.Tenders.GetTender(ctx, billNo); err == nil {
		return nil, fmt.Errorf("open tender %s: %w", billNo, ErrDuplicateTender)
	} else if !errors.Is(err, ErrTenderNotFound) {
		return nil, err
	}

	bill, err := s.Bills.Bill(ctx, billNo)
	if err != nil {
		return nil, fmt.Errorf("open tender %s: %w", billNo, err)
	}

	session := NewTenderSession(billNo, key, NewBillState(bill.Amount), s.Denominations,
		WithMaxLedgerAge(s.MaxLedgerAge))
	if err := s.Reload(ctx, session); err != nil {
		return nil, err
	}

	s.Log.Debug().
		Str("bill_no", billNo).
		Str("drawer", key.String()).
		Str("net_amount", session.NetAmount().StringFixed(2)).
		Msg("tender opened")
	return session, nil
}

// Reload fetches the live drawer and installs it in the session.
func (s *TenderService) Reload(ctx context.Context, session *TenderSession) error {
	snap, err := s.Drawers.LoadDrawer(ctx, session.Drawer())
	if err != nil {
		return fmt.Errorf("load drawer %s: %w", session.Drawer(), err)
	}
	snap.FetchedAt = s.now()
	return session.LoadLedger(snap)
}

// ResolveDeduction applies a scrap or sales-return bill's amount to the
// session's adjustment chain.
func (s *TenderService) ResolveDeduction(ctx context.Context, session *TenderSession, kind DeductionKind, refBillNo string) error {
	if session.State().IsClosed() {
		return ErrSessionClosed
	}
	if refBillNo == session.BillNo() {
		return &ValidationError{Field: "ref_bill_no", Value: refBillNo, Reason: "cannot deduct a bill from itself"}
	}
	next, err := ResolveDeduction(ctx, s.Bills, session.Bill(), kind, refBillNo)
	if err != nil {
		return err
	}
	return session.SetBill(next)
}

// Finalize validates and commits the session under the drawer lock.
func (s *TenderService) Finalize(ctx context.Context, session *TenderSession) (TenderRecord, error) {
	key := session.Drawer()
	var rec TenderRecord

	err := s.Locker.WithLock(ctx, key.LockKey(), s.LockTTL, func(ctx context.Context) error {
		ledger, ok := session.Ledger()
		if !ok {
			return ErrLedgerNotLoaded
		}
		current, err := s.Drawers.LoadDrawer(ctx, key)
		if err != nil {
			return fmt.Errorf("load drawer %s: %w", key, err)
		}
		if current.Version != ledger.Version {
			return &StaleLedgerError{
				Key:            key,
				SessionVersion: ledger.Version,
				CurrentVersion: current.Version,
				FetchedAt:      ledger.FetchedAt,
			}
		}

		rec, err = session.Finalize(s.now())
		if err != nil {
			return err
		}
		if err := s.Tenders.CommitTender(ctx, rec, ledger.Version); err != nil {
			session.reopen()
			return fmt.Errorf("commit tender %s: %w", rec.BillNo, err)
		}
		return nil
	})
	if err != nil {
		s.Log.Info().Err(err).
			Str("bill_no", session.BillNo()).
			Str("drawer", key.String()).
			Msg("tender finalize rejected")
		return TenderRecord{}, err
	}

	s.Log.Info().
		Str("bill_no", rec.BillNo).
		Str("drawer", key.String()).
		Str("net_amount", rec.NetAmount.StringFixed(2)).
		Str("collected", rec.CollectedTotal.StringFixed(2)).
		Str("issued", rec.IssuedTotal.StringFixed(2)).
		Str("shortfall", rec.Shortfall.StringFixed(2)).
		Int64("ledger_version", rec.LedgerVersion).
		Msg("tender finalized")
	return rec, nil
}
