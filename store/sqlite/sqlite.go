/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the tender engine's persistence interfaces (DrawerStore,
  TenderStore, DayCashStore) and the BillSource lookup using SQLite. The same
  SQL works on PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  cash.DrawerStore:  Live till per store/company/day (versioned)
  cash.TenderStore:  Tender records + closing drawer, atomic
  cash.DayCashStore: Opening/closing count revisions (append-only)
  cash.BillSource:   Bill headers, tender amounts for deductions

OPTIMISTIC CONCURRENCY:
  drawers.version is checked in the WHERE clause of every update:

    UPDATE drawers SET counts_json = ?, version = version + 1
    WHERE store_code = ? AND company_code = ? AND business_date = ? AND version = ?

  Zero rows affected means someone else committed first -> StaleLedgerError.

APPEND-ONLY DAY CASH:
  day_cash_snapshots has no UPDATE or DELETE statements. A correction is a
  new revision; the unique index on (drawer, kind, revision) rejects two
  writers posting the same revision.

KEY TABLES:
  drawers:            Live till counts + version
  tender_records:     Finalized tenders (one per bill)
  day_cash_snapshots: Opening/closing count revisions
  bills:              Bill headers (stand-in for the back-office bill service)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single writer.

USAGE:
  store, err := sqlite.New("./data/tender.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := cash.NewTenderService(store, store)

SEE ALSO:
  - cash/store.go: Interface definitions
  - cash/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/tender-engine/cash"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Live drawers (one per store/company/day)
	CREATE TABLE IF NOT EXISTS drawers (
		store_code TEXT NOT NULL,
		company_code TEXT NOT NULL,
		business_date TEXT NOT NULL,
		counts_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (store_code, company_code, business_date)
	);

	-- Finalized tenders
	CREATE TABLE IF NOT EXISTS tender_records (
		id TEXT PRIMARY KEY,
		bill_no TEXT NOT NULL,
		store_code TEXT NOT NULL,
		company_code TEXT NOT NULL,
		business_date TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		collected_total TEXT NOT NULL,
		issued_total TEXT NOT NULL,
		upi_amount TEXT NOT NULL,
		card_amount TEXT NOT NULL,
		shortfall TEXT NOT NULL,
		collected_json TEXT NOT NULL,
		issue_json TEXT NOT NULL,
		closing_json TEXT NOT NULL,
		ledger_version INTEGER NOT NULL,
		finalized_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tender_records_bill
		ON tender_records(bill_no);

	CREATE INDEX IF NOT EXISTS idx_tender_records_drawer
		ON tender_records(store_code, company_code, business_date, ledger_version);

	-- Day cash count revisions (append-only)
	CREATE TABLE IF NOT EXISTS day_cash_snapshots (
		store_code TEXT NOT NULL,
		company_code TEXT NOT NULL,
		business_date TEXT NOT NULL,
		kind TEXT NOT NULL,
		revision INTEGER NOT NULL,
		counts_json TEXT NOT NULL,
		total TEXT NOT NULL,
		recorded_by TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_day_cash_revision
		ON day_cash_snapshots(store_code, company_code, business_date, kind, revision);

	-- Bills
	CREATE TABLE IF NOT EXISTS bills (
		bill_no TEXT PRIMARY KEY,
		salesman_name TEXT,
		bill_date TEXT NOT NULL,
		amount TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// DRAWER STORE (cash.DrawerStore interface)
// =============================================================================

// LoadDrawer returns the live till for key.
func (s *Store) LoadDrawer(ctx context.Context, key cash.DrawerKey) (cash.DrawerSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		countsJSON string
		version    int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT counts_json, version FROM drawers
		WHERE store_code = ? AND company_code = ? AND business_date = ?
	`, key.StoreCode, key.CompanyCode, key.Date.String()).Scan(&countsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return cash.DrawerSnapshot{}, fmt.Errorf("%s: %w", key, cash.ErrDrawerNotFound)
	}
	if err != nil {
		return cash.DrawerSnapshot{}, fmt.Errorf("failed to load drawer: %w", err)
	}

	counts, err := decodeCounts(countsJSON)
	if err != nil {
		return cash.DrawerSnapshot{}, err
	}
	return cash.DrawerSnapshot{Key: key, Available: counts, Version: version, FetchedAt: time.Now()}, nil
}

// SaveDrawer creates (expectedVersion 0) or replaces a drawer's counts.
func (s *Store) SaveDrawer(ctx context.Context, key cash.DrawerKey, counts cash.Counts, expectedVersion int64) (cash.DrawerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeDrawer(ctx, s.db, key, counts, expectedVersion); err != nil {
		return cash.DrawerSnapshot{}, err
	}
	return cash.DrawerSnapshot{Key: key, Available: counts.Clone(), Version: expectedVersion + 1, FetchedAt: time.Now()}, nil
}

func (s *Store) writeDrawer(ctx context.Context, db execer, key cash.DrawerKey, counts cash.Counts, expectedVersion int64) error {
	countsJSON, err := encodeCounts(counts)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	if expectedVersion == 0 {
		_, err := db.ExecContext(ctx, `
			INSERT INTO drawers (store_code, company_code, business_date, counts_json, version, updated_at)
			VALUES (?, ?, ?, ?, 1, ?)
		`, key.StoreCode, key.CompanyCode, key.Date.String(), countsJSON, now)
		if isUniqueConstraintError(err) {
			return &cash.StaleLedgerError{Key: key, SessionVersion: 0, CurrentVersion: currentVersion(ctx, db, key)}
		}
		if err != nil {
			return fmt.Errorf("failed to create drawer: %w", err)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE drawers SET counts_json = ?, version = version + 1, updated_at = ?
		WHERE store_code = ? AND company_code = ? AND business_date = ? AND version = ?
	`, countsJSON, now, key.StoreCode, key.CompanyCode, key.Date.String(), expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update drawer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update drawer: %w", err)
	}
	if n == 0 {
		current := currentVersion(ctx, db, key)
		if current == 0 {
			return fmt.Errorf("%s: %w", key, cash.ErrDrawerNotFound)
		}
		return &cash.StaleLedgerError{Key: key, SessionVersion: expectedVersion, CurrentVersion: current}
	}
	return nil
}

// currentVersion is best effort and only feeds error messages.
func currentVersion(ctx context.Context, db execer, key cash.DrawerKey) int64 {
	var v int64
	_ = db.QueryRowContext(ctx, `
		SELECT version FROM drawers WHERE store_code = ? AND company_code = ? AND business_date = ?
	`, key.StoreCode, key.CompanyCode, key.Date.String()).Scan(&v)
	return v
}

// =============================================================================
// TENDER STORE (cash.TenderStore interface)
// =============================================================================

// CommitTender writes the tender record and the closing drawer in one
// database transaction.
func (s *Store) CommitTender(ctx context.Context, rec cash.TenderRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.insertTender(ctx, sqlTx, rec); err != nil {
		return err
	}
	if err := s.writeDrawer(ctx, sqlTx, rec.Drawer, rec.ClosingLedger, expectedVersion); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) insertTender(ctx context.Context, db execer, rec cash.TenderRecord) error {
	collected, err := encodeCounts(rec.Collected)
	if err != nil {
		return err
	}
	issue, err := encodeCounts(rec.Issue)
	if err != nil {
		return err
	}
	closing, err := encodeCounts(rec.ClosingLedger)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tender_records
		(id, bill_no, store_code, company_code, business_date, net_amount, collected_total,
		 issued_total, upi_amount, card_amount, shortfall, collected_json, issue_json,
		 closing_json, ledger_version, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.BillNo,
		rec.Drawer.StoreCode,
		rec.Drawer.CompanyCode,
		rec.Drawer.Date.String(),
		rec.NetAmount.String(),
		rec.CollectedTotal.String(),
		rec.IssuedTotal.String(),
		rec.UPIAmount.String(),
		rec.CardAmount.String(),
		rec.Shortfall.String(),
		collected,
		issue,
		closing,
		rec.LedgerVersion,
		rec.FinalizedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueConstraintError(err) {
		return cash.ErrDuplicateTender
	}
	if err != nil {
		return fmt.Errorf("failed to insert tender record: %w", err)
	}
	return nil
}

const tenderColumns = `id, bill_no, store_code, company_code, business_date, net_amount, collected_total,
	issued_total, upi_amount, card_amount, shortfall, collected_json, issue_json,
	closing_json, ledger_version, finalized_at`

// GetTender returns the tender record for a bill.
func (s *Store) GetTender(ctx context.Context, billNo string) (cash.TenderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.queryTenders(ctx, `SELECT `+tenderColumns+` FROM tender_records WHERE bill_no = ?`, billNo)
	if err != nil {
		return cash.TenderRecord{}, err
	}
	if len(recs) == 0 {
		return cash.TenderRecord{}, fmt.Errorf("%s: %w", billNo, cash.ErrTenderNotFound)
	}
	return recs[0], nil
}

// ListTenders returns a drawer's tenders in commit order.
func (s *Store) ListTenders(ctx context.Context, key cash.DrawerKey) ([]cash.TenderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTenders(ctx, `
		SELECT `+tenderColumns+` FROM tender_records
		WHERE store_code = ? AND company_code = ? AND business_date = ?
		ORDER BY ledger_version ASC
	`, key.StoreCode, key.CompanyCode, key.Date.String())
}

func (s *Store) queryTenders(ctx context.Context, query string, args ...any) ([]cash.TenderRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tender records: %w", err)
	}
	defer rows.Close()

	var records []cash.TenderRecord
	for rows.Next() {
		rec, err := scanTender(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanTender(rows *sql.Rows) (cash.TenderRecord, error) {
	var (
		rec                                   cash.TenderRecord
		date                                  string
		net, collectedTotal, issuedTotal      string
		upi, card, shortfall                  string
		collectedJSON, issueJSON, closingJSON string
		finalizedAt                           string
	)
	err := rows.Scan(
		&rec.ID, &rec.BillNo, &rec.Drawer.StoreCode, &rec.Drawer.CompanyCode, &date,
		&net, &collectedTotal, &issuedTotal, &upi, &card, &shortfall,
		&collectedJSON, &issueJSON, &closingJSON, &rec.LedgerVersion, &finalizedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("failed to scan tender record: %w", err)
	}

	if rec.Drawer.Date, err = cash.ParseBusinessDate(date); err != nil {
		return rec, err
	}
	rec.NetAmount = parseDecimal(net)
	rec.CollectedTotal = parseDecimal(collectedTotal)
	rec.IssuedTotal = parseDecimal(issuedTotal)
	rec.UPIAmount = parseDecimal(upi)
	rec.CardAmount = parseDecimal(card)
	rec.Shortfall = parseDecimal(shortfall)
	if rec.Collected, err = decodeCounts(collectedJSON); err != nil {
		return rec, err
	}
	if rec.Issue, err = decodeCounts(issueJSON); err != nil {
		return rec, err
	}
	if rec.ClosingLedger, err = decodeCounts(closingJSON); err != nil {
		return rec, err
	}
	rec.FinalizedAt, _ = time.Parse(time.RFC3339Nano, finalizedAt)
	return rec, nil
}

// =============================================================================
// DAY CASH STORE (cash.DayCashStore interface)
// =============================================================================

// AppendDayCash inserts the next revision of an opening or closing count.
func (s *Store) AppendDayCash(ctx context.Context, snap cash.DayCashSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(revision), 0) FROM day_cash_snapshots
		WHERE store_code = ? AND company_code = ? AND business_date = ? AND kind = ?
	`, snap.Key.StoreCode, snap.Key.CompanyCode, snap.Key.Date.String(), snap.Kind).Scan(&latest)
	if err != nil {
		return fmt.Errorf("failed to read day cash revision: %w", err)
	}
	if snap.Revision != latest+1 {
		return &cash.StaleLedgerError{Key: snap.Key, SessionVersion: int64(snap.Revision - 1), CurrentVersion: int64(latest)}
	}

	countsJSON, err := encodeCounts(snap.Counts)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO day_cash_snapshots
		(store_code, company_code, business_date, kind, revision, counts_json, total, recorded_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.Key.StoreCode,
		snap.Key.CompanyCode,
		snap.Key.Date.String(),
		snap.Kind,
		snap.Revision,
		countsJSON,
		snap.Total.String(),
		nullString(snap.RecordedBy),
		snap.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if isUniqueConstraintError(err) {
		return &cash.StaleLedgerError{Key: snap.Key, SessionVersion: int64(snap.Revision - 1), CurrentVersion: int64(snap.Revision)}
	}
	if err != nil {
		return fmt.Errorf("failed to append day cash: %w", err)
	}
	return nil
}

const dayCashColumns = `store_code, company_code, business_date, kind, revision, counts_json, total, recorded_by, recorded_at`

// LatestDayCash returns the highest revision of kind for a day.
func (s *Store) LatestDayCash(ctx context.Context, key cash.DrawerKey, kind cash.CountKind) (cash.DayCashSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps, err := s.queryDayCash(ctx, `
		SELECT `+dayCashColumns+` FROM day_cash_snapshots
		WHERE store_code = ? AND company_code = ? AND business_date = ? AND kind = ?
		ORDER BY revision DESC LIMIT 1
	`, key.StoreCode, key.CompanyCode, key.Date.String(), kind)
	if err != nil {
		return cash.DayCashSnapshot{}, err
	}
	if len(snaps) == 0 {
		return cash.DayCashSnapshot{}, fmt.Errorf("%s %s: %w", key, kind, cash.ErrDayCashNotFound)
	}
	return snaps[0], nil
}

// DayCashHistory returns every revision for a day in posting order.
func (s *Store) DayCashHistory(ctx context.Context, key cash.DrawerKey) ([]cash.DayCashSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDayCash(ctx, `
		SELECT `+dayCashColumns+` FROM day_cash_snapshots
		WHERE store_code = ? AND company_code = ? AND business_date = ?
		ORDER BY recorded_at ASC, rowid ASC
	`, key.StoreCode, key.CompanyCode, key.Date.String())
}

func (s *Store) queryDayCash(ctx context.Context, query string, args ...any) ([]cash.DayCashSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day cash: %w", err)
	}
	defer rows.Close()

	var snaps []cash.DayCashSnapshot
	for rows.Next() {
		var (
			snap       cash.DayCashSnapshot
			date       string
			countsJSON string
			total      string
			recordedBy sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&snap.Key.StoreCode, &snap.Key.CompanyCode, &date, &snap.Kind,
			&snap.Revision, &countsJSON, &total, &recordedBy, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan day cash: %w", err)
		}
		if snap.Key.Date, err = cash.ParseBusinessDate(date); err != nil {
			return nil, err
		}
		if snap.Counts, err = decodeCounts(countsJSON); err != nil {
			return nil, err
		}
		snap.Total = parseDecimal(total)
		snap.RecordedBy = recordedBy.String
		snap.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// =============================================================================
// BILLS (cash.BillSource interface)
// =============================================================================

// SaveBill inserts or replaces a bill header.
func (s *Store) SaveBill(ctx context.Context, b cash.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO bills (bill_no, salesman_name, bill_date, amount)
		VALUES (?, ?, ?, ?)
	`, b.BillNo, nullString(b.SalesmanName), b.Date.String(), b.Amount.String())
	if err != nil {
		return fmt.Errorf("failed to save bill: %w", err)
	}
	return nil
}

// Bill returns a bill header.
func (s *Store) Bill(ctx context.Context, billNo string) (cash.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		b        cash.Bill
		salesman sql.NullString
		date     string
		amount   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT bill_no, salesman_name, bill_date, amount FROM bills WHERE bill_no = ?
	`, billNo).Scan(&b.BillNo, &salesman, &date, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return cash.Bill{}, fmt.Errorf("%s: %w", billNo, cash.ErrBillNotFound)
	}
	if err != nil {
		return cash.Bill{}, fmt.Errorf("failed to get bill: %w", err)
	}
	b.SalesmanName = salesman.String
	if b.Date, err = cash.ParseBusinessDate(date); err != nil {
		return cash.Bill{}, err
	}
	b.Amount = parseDecimal(amount)
	return b, nil
}

// TenderAmountForBill returns the committed net amount of a tendered bill,
// falling back to the bill amount.
func (s *Store) TenderAmountForBill(ctx context.Context, billNo string) (decimal.Decimal, error) {
	rec, err := s.GetTender(ctx, billNo)
	if err == nil {
		return rec.NetAmount, nil
	}
	if !errors.Is(err, cash.ErrTenderNotFound) {
		return decimal.Zero, err
	}
	b, err := s.Bill(ctx, billNo)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Amount, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data. Used by demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"tender_records", "day_cash_snapshots", "drawers", "bills"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func encodeCounts(c cash.Counts) (string, error) {
	if c == nil {
		c = cash.Counts{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode counts: %w", err)
	}
	return string(b), nil
}

func decodeCounts(s string) (cash.Counts, error) {
	c := cash.Counts{}
	if s == "" {
		return c, nil
	}
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil, fmt.Errorf("failed to decode counts: %w", err)
	}
	return c, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
