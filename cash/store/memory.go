// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/tender-engine/cash"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps guarded by one RWMutex.
type Memory struct {
	mu      sync.RWMutex
	drawers map[cash.DrawerKey]drawerRow
	tenders map[string]cash.TenderRecord
	dayCash map[dayKey][]cash.DayCashSnapshot
	bills   map[string]cash.Bill
}

type drawerRow struct {
	counts  cash.Counts
	version int64
}

type dayKey struct {
	Drawer cash.DrawerKey
	Kind   cash.CountKind
}

func NewMemory() *Memory {
	return &Memory{
		drawers: make(map[cash.DrawerKey]drawerRow),
		tenders: make(map[string]cash.TenderRecord),
		dayCash: make(map[dayKey][]cash.DayCashSnapshot),
		bills:   make(map[string]cash.Bill),
	}
}

// =============================================================================
// DRAWERS
// =============================================================================

func (m *Memory) LoadDrawer(_ context.Context, key cash.DrawerKey) (cash.DrawerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.drawers[key]
	if !ok {
		return cash.DrawerSnapshot{}, fmt.Errorf("%s: %w", key, cash.ErrDrawerNotFound)
	}
	return cash.DrawerSnapshot{
		Key:       key,
		Available: row.counts.Clone(),
		Version:   row.version,
		FetchedAt: time.Now(),
	}, nil
}

func (m *Memory) SaveDrawer(_ context.Context, key cash.DrawerKey, counts cash.Counts, expectedVersion int64) (cash.DrawerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkVersionLocked(key, expectedVersion); err != nil {
		return cash.DrawerSnapshot{}, err
	}
	row := drawerRow{counts: counts.Clone(), version: expectedVersion + 1}
	m.drawers[key] = row
	return cash.DrawerSnapshot{Key: key, Available: row.counts.Clone(), Version: row.version, FetchedAt: time.Now()}, nil
}

func (m *Memory) checkVersionLocked(key cash.DrawerKey, expected int64) error {
	row, ok := m.drawers[key]
	current := int64(0)
	if ok {
		current = row.version
	}
	if current != expected {
		if !ok {
			return fmt.Errorf("%s: %w", key, cash.ErrDrawerNotFound)
		}
		return &cash.StaleLedgerError{Key: key, SessionVersion: expected, CurrentVersion: current}
	}
	return nil
}

// =============================================================================
// TENDERS
// =============================================================================

// CommitTender stores the record and the closing drawer atomically.
func (m *Memory) CommitTender(_ context.Context, rec cash.TenderRecord, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tenders[rec.BillNo]; exists {
		return cash.ErrDuplicateTender
	}
	if err := m.checkVersionLocked(rec.Drawer, expectedVersion); err != nil {
		return err
	}
	m.drawers[rec.Drawer] = drawerRow{counts: rec.ClosingLedger.Clone(), version: expectedVersion + 1}
	m.tenders[rec.BillNo] = rec
	return nil
}

func (m *Memory) GetTender(_ context.Context, billNo string) (cash.TenderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.tenders[billNo]
	if !ok {
		return cash.TenderRecord{}, fmt.Errorf("%s: %w", billNo, cash.ErrTenderNotFound)
	}
	return rec, nil
}

func (m *Memory) ListTenders(_ context.Context, key cash.DrawerKey) ([]cash.TenderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []cash.TenderRecord
	for _, rec := range m.tenders {
		if rec.Drawer == key {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LedgerVersion < result[j].LedgerVersion
	})
	return result, nil
}

// =============================================================================
// DAY CASH
// =============================================================================

func (m *Memory) AppendDayCash(_ context.Context, snap cash.DayCashSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := dayKey{Drawer: snap.Key, Kind: snap.Kind}
	revs := m.dayCash[k]
	if snap.Revision != len(revs)+1 {
		return &cash.StaleLedgerError{Key: snap.Key, SessionVersion: int64(snap.Revision - 1), CurrentVersion: int64(len(revs))}
	}
	snap.Counts = snap.Counts.Clone()
	m.dayCash[k] = append(revs, snap)
	return nil
}

func (m *Memory) LatestDayCash(_ context.Context, key cash.DrawerKey, kind cash.CountKind) (cash.DayCashSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	revs := m.dayCash[dayKey{Drawer: key, Kind: kind}]
	if len(revs) == 0 {
		return cash.DayCashSnapshot{}, fmt.Errorf("%s %s: %w", key, kind, cash.ErrDayCashNotFound)
	}
	return revs[len(revs)-1], nil
}

func (m *Memory) DayCashHistory(_ context.Context, key cash.DrawerKey) ([]cash.DayCashSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []cash.DayCashSnapshot
	for _, kind := range []cash.CountKind{cash.CountOpening, cash.CountClosing} {
		result = append(result, m.dayCash[dayKey{Drawer: key, Kind: kind}]...)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result, nil
}

// =============================================================================
// BILLS
// =============================================================================

// SaveBill registers a bill header.
func (m *Memory) SaveBill(_ context.Context, bill cash.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bills[bill.BillNo] = bill
	return nil
}

func (m *Memory) Bill(_ context.Context, billNo string) (cash.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bills[billNo]
	if !ok {
		return cash.Bill{}, fmt.Errorf("%s: %w", billNo, cash.ErrBillNotFound)
	}
	return b, nil
}

// TenderAmountForBill returns the committed net amount when the bill was
// tendered, and the bill amount otherwise.
func (m *Memory) TenderAmountForBill(ctx context.Context, billNo string) (decimal.Decimal, error) {
	m.mu.RLock()
	rec, tendered := m.tenders[billNo]
	m.mu.RUnlock()
	if tendered {
		return rec.NetAmount, nil
	}
	b, err := m.Bill(ctx, billNo)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Amount, nil
}

// Reset deletes all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.drawers = make(map[cash.DrawerKey]drawerRow)
	m.tenders = make(map[string]cash.TenderRecord)
	m.dayCash = make(map[dayKey][]cash.DayCashSnapshot)
	m.bills = make(map[string]cash.Bill)
	return nil
}
