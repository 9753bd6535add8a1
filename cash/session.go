/*
session.go - Tender session state machine

PURPOSE:
  A TenderSession is one bill being paid at the counter. It holds the bill's
  adjustment chain, the notes the operator counts in, the non-cash
  instruments, the change plan and the resulting closing ledger.

STATE MACHINE:
  Open -> Collecting -> Finalized
       \            \-> Aborted
        \-> Aborted

  - Open: created for a bill; the drawer ledger may not be loaded yet
  - Collecting: at least one collection or instrument entered
  - Finalized: tender record produced; the session accepts no more input
  - Aborted: all collected/issue state discarded; nothing was persisted

DERIVED VALUES (recomputed after every input):
  CollectedTotal = Σ collected[d]×d
  CashDue        = NetAmount − UPI − Card
  Balance        = CollectedTotal − CashDue
  Issue          = ComputeChange(Balance, available)  when Balance > 0, else {}
  Shortfall      = Balance − Σ issue[d]×d             when Balance > 0, else 0
  Closing[d]     = available[d] + collected[d] − issue[d]

  With no instruments CashDue equals NetAmount, so Balance is the plain
  collected-minus-net figure. Change is only ever paid in whole currency
  units; a fractional balance leaves the paise in Shortfall.

INVARIANTS:
  - Closing[d] >= 0 for every d (issue never exceeds available stock)
  - Σ issue[d]×d + Shortfall == Balance
  - Input is rejected before the ledger is loaded, never applied to a
    defaulted or zeroed ledger

SEE ALSO:
  - tender.go: Serialized finalize + persist
  - change.go: Change breakdown
  - adjustment.go: Net amount derivation
*/
package cash

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionState is the lifecycle state of a TenderSession.
type SessionState string

const (
	StateOpen       SessionState = "open"
	StateCollecting SessionState = "collecting"
	StateFinalized  SessionState = "finalized"
	StateAborted    SessionState = "aborted"
)

// IsClosed reports whether the state is terminal.
func (s SessionState) IsClosed() bool { return s == StateFinalized || s == StateAborted }

// TenderRecord is what a finalized session hands to persistence and to the
// receipt printer.
type TenderRecord struct {
	ID             string
	BillNo         string
	Drawer         DrawerKey
	NetAmount      decimal.Decimal
	CollectedTotal decimal.Decimal
	IssuedTotal    decimal.Decimal
	UPIAmount      decimal.Decimal
	CardAmount     decimal.Decimal
	// Shortfall is non-zero only when the operator accepted a partial payout.
	Shortfall     decimal.Decimal
	Collected     Counts
	Issue         Counts
	ClosingLedger Counts
	LedgerVersion int64
	FinalizedAt   time.Time
}

// SessionOption configures a TenderSession.
type SessionOption func(*TenderSession)

// WithMaxLedgerAge makes Finalize reject ledgers fetched longer ago than d.
// Zero disables the age check.
func WithMaxLedgerAge(d time.Duration) SessionOption {
	return func(s *TenderSession) { s.maxLedgerAge = d }
}

// TenderSession is not safe for concurrent use; callers serialize access.
type TenderSession struct {
	billNo string
	drawer DrawerKey
	set    DenominationSet
	bill   BillState

	ledger *DrawerSnapshot

	collected Counts
	issue     Counts
	closing   Counts
	upi       decimal.Decimal
	card      decimal.Decimal

	collectedTotal    decimal.Decimal
	balance           decimal.Decimal
	shortfall         decimal.Decimal
	shortfallAccepted bool

	state        SessionState
	maxLedgerAge time.Duration
}

// NewTenderSession opens a session for a bill against a drawer. The ledger
// must be loaded with LoadLedger before collections are accepted.
func NewTenderSession(billNo string, drawer DrawerKey, bill BillState, set DenominationSet, opts ...SessionOption) *TenderSession {
	if len(set) == 0 {
		set = DefaultDenominations()
	}
	s := &TenderSession{
		billNo:    billNo,
		drawer:    drawer,
		set:       set,
		bill:      Recompute(bill),
		collected: Counts{},
		issue:     Counts{},
		closing:   Counts{},
		state:     StateOpen,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recompute()
	return s
}

// =============================================================================
// INPUTS
// =============================================================================

// LoadLedger installs (or replaces, after a stale-ledger rejection) the
// drawer snapshot the session computes against.
func (s *TenderSession) LoadLedger(snap DrawerSnapshot) error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	if snap.Key != s.drawer {
		return &ValidationError{Field: "drawer", Value: snap.Key.String(), Reason: "does not match session drawer " + s.drawer.String()}
	}
	if err := s.set.Validate(snap.Available); err != nil {
		return err
	}
	clone := snap.Clone()
	s.ledger = &clone
	s.shortfallAccepted = false
	s.recompute()
	return nil
}

// ApplyCollection records that count notes/coins of denom were collected.
// The count replaces any earlier entry for denom.
func (s *TenderSession) ApplyCollection(denom Denomination, count int64) error {
	return s.ApplyCollections(Counts{denom: count})
}

// ApplyCollections applies several collection entries at once. Either all
// entries are valid and applied, or the session is left unchanged.
func (s *TenderSession) ApplyCollections(entries Counts) error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	if s.ledger == nil {
		return ErrLedgerNotLoaded
	}
	if err := s.set.Validate(entries); err != nil {
		return err
	}
	for d, n := range entries {
		if n == 0 {
			delete(s.collected, d)
			continue
		}
		s.collected[d] = n
	}
	s.state = StateCollecting
	s.shortfallAccepted = false
	s.recompute()
	return nil
}

// SetInstrument records the amount paid through a non-cash instrument.
func (s *TenderSession) SetInstrument(kind Instrument, amount decimal.Decimal) error {
	upi, card := s.upi, s.card
	switch kind {
	case InstrumentUPI:
		upi = amount
	case InstrumentCard:
		card = amount
	default:
		return &ValidationError{Field: "instrument", Value: string(kind), Reason: "expected upi or card"}
	}
	return s.SetInstruments(upi, card)
}

// SetInstruments replaces both non-cash amounts at once.
func (s *TenderSession) SetInstruments(upi, card decimal.Decimal) error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	if upi.IsNegative() {
		return &ValidationError{Field: string(InstrumentUPI), Value: upi.String(), Reason: "must not be negative"}
	}
	if card.IsNegative() {
		return &ValidationError{Field: string(InstrumentCard), Value: card.String(), Reason: "must not be negative"}
	}
	upi, card = round2(upi), round2(card)
	if err := s.checkNonCash(upi, card); err != nil {
		return err
	}
	s.upi, s.card = upi, card
	s.state = StateCollecting
	s.shortfallAccepted = false
	s.recompute()
	return nil
}

// ApplyAdjustment changes one input of the bill's adjustment chain.
func (s *TenderSession) ApplyAdjustment(field Field, value decimal.Decimal) error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	next, err := Apply(s.bill, field, value)
	if err != nil {
		return err
	}
	return s.SetBill(next)
}

// SetBill replaces the whole bill state (already recomputed by the caller,
// e.g. through ResolveDeduction).
func (s *TenderSession) SetBill(bill BillState) error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	s.bill = bill
	s.shortfallAccepted = false
	s.recompute()
	return nil
}

// AcceptShortfall records the operator's decision to pay out only what the
// drawer holds. It applies to the current amounts only; any later input
// withdraws it.
func (s *TenderSession) AcceptShortfall() error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	if !s.shortfall.IsPositive() {
		return ErrInvalidTransition
	}
	s.shortfallAccepted = true
	return nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Finalize validates the tender and moves the session to Finalized.
func (s *TenderSession) Finalize(now time.Time) (TenderRecord, error) {
	if s.state.IsClosed() {
		return TenderRecord{}, ErrSessionClosed
	}
	if s.state != StateCollecting {
		return TenderRecord{}, ErrInvalidTransition
	}
	if s.ledger == nil {
		return TenderRecord{}, ErrLedgerNotLoaded
	}
	if s.maxLedgerAge > 0 && now.Sub(s.ledger.FetchedAt) > s.maxLedgerAge {
		return TenderRecord{}, &StaleLedgerError{
			Key:            s.drawer,
			SessionVersion: s.ledger.Version,
			FetchedAt:      s.ledger.FetchedAt,
			MaxAge:         s.maxLedgerAge,
		}
	}
	if err := s.checkNonCash(s.upi, s.card); err != nil {
		return TenderRecord{}, err
	}
	if s.balance.IsNegative() {
		return TenderRecord{}, &UnderpaidError{
			CashDue:   s.CashDue(),
			Collected: s.collectedTotal,
			Due:       s.balance.Neg(),
		}
	}
	if s.shortfall.IsPositive() && !s.shortfallAccepted {
		return TenderRecord{}, &InsufficientStockError{
			Balance:   s.balance,
			Issued:    s.issue.Total(),
			Shortfall: s.shortfall,
		}
	}

	s.state = StateFinalized
	return TenderRecord{
		ID:             uuid.NewString(),
		BillNo:         s.billNo,
		Drawer:         s.drawer,
		NetAmount:      s.bill.NetAmount,
		CollectedTotal: s.collectedTotal,
		IssuedTotal:    s.issue.Total(),
		UPIAmount:      s.upi,
		CardAmount:     s.card,
		Shortfall:      s.shortfall,
		Collected:      s.collected.Clone(),
		Issue:          s.issue.Clone(),
		ClosingLedger:  s.Closing(),
		LedgerVersion:  s.ledger.Version,
		FinalizedAt:    now.UTC(),
	}, nil
}

// reopen undoes Finalize when the record could not be persisted.
func (s *TenderSession) reopen() {
	if s.state == StateFinalized {
		s.state = StateCollecting
	}
}

// Abort discards all collected and issue state. Nothing was persisted, so
// nothing needs undoing in storage.
func (s *TenderSession) Abort() error {
	if s.state.IsClosed() {
		return ErrSessionClosed
	}
	s.collected = Counts{}
	s.upi, s.card = decimal.Zero, decimal.Zero
	s.shortfallAccepted = false
	s.state = StateAborted
	s.recompute()
	return nil
}

// =============================================================================
// DERIVATION
// =============================================================================

func (s *TenderSession) recompute() {
	s.collectedTotal = s.collected.Total()
	s.balance = s.collectedTotal.Sub(s.CashDue())
	s.issue = Counts{}
	s.shortfall = decimal.Zero

	var available Counts
	if s.ledger != nil {
		available = s.ledger.Available
	}
	if s.balance.IsPositive() {
		plan, _ := ComputeChange(s.balance.Floor().IntPart(), available)
		s.issue = plan
		s.shortfall = s.balance.Sub(plan.Total())
	}

	s.closing = Counts{}
	if s.ledger == nil {
		return
	}
	for _, d := range s.set {
		s.closing[d] = available[d] + s.collected[d] - s.issue[d]
	}
}

func (s *TenderSession) checkNonCash(upi, card decimal.Decimal) error {
	net := s.bill.NetAmount
	if nonCash := upi.Add(card); nonCash.IsPositive() && nonCash.GreaterThan(decimal.Max(net, decimal.Zero)) {
		return &ValidationError{Field: "instruments", Value: nonCash.StringFixed(2), Reason: "non-cash payment exceeds net amount " + net.StringFixed(2)}
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (s *TenderSession) BillNo() string { return s.billNo }
func (s *TenderSession) Drawer() DrawerKey { return s.drawer }
func (s *TenderSession) State() SessionState { return s.state }
func (s *TenderSession) Bill() BillState { return s.bill }
func (s *TenderSession) NetAmount() decimal.Decimal { return s.bill.NetAmount }
func (s *TenderSession) UPIAmount() decimal.Decimal { return s.upi }
func (s *TenderSession) CardAmount() decimal.Decimal { return s.card }
func (s *TenderSession) CollectedTotal() decimal.Decimal { return s.collectedTotal }
func (s *TenderSession) Balance() decimal.Decimal { return s.balance }
func (s *TenderSession) Shortfall() decimal.Decimal { return s.shortfall }
func (s *TenderSession) ShortfallAccepted() bool { return s.shortfallAccepted }
func (s *TenderSession) IssuedTotal() decimal.Decimal { return s.issue.Total() }
func (s *TenderSession) Collected() Counts { return s.collected.Clone() }
func (s *TenderSession) Issue() Counts { return s.issue.Clone() }
func (s *TenderSession) Denominations() DenominationSet { return s.set }
func (s *TenderSession) LedgerLoaded() bool { return s.ledger != nil }

// CashDue is the part of the net amount to be settled in cash.
func (s *TenderSession) CashDue() decimal.Decimal {
	return s.bill.NetAmount.Sub(s.upi).Sub(s.card)
}

// Closing returns the ledger that results from this tender, one entry per
// denomination in the set (zero counts included).
func (s *TenderSession) Closing() Counts {
	out := make(Counts, len(s.closing))
	for d, n := range s.closing {
		out[d] = n
	}
	return out
}

// Ledger returns a copy of the loaded drawer snapshot.
func (s *TenderSession) Ledger() (DrawerSnapshot, bool) {
	if s.ledger == nil {
		return DrawerSnapshot{}, false
	}
	return s.ledger.Clone(), true
}
