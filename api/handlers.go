/*
handlers.go - HTTP API handlers for the tender engine

PURPOSE:
  Exposes tender sessions, drawers and day-cash counts via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the cash
  package.

ENDPOINTS:
  Drawers & bills:
    GET    /api/denominations                       Configured note/coin set
    GET    /api/drawers/{store}/{company}/{date}    Live till
    POST   /api/bills                               Register a bill
    GET    /api/bills/{billNo}                      Bill header

  Tender sessions:
    POST   /api/tenders                             Open a session for a bill
    GET    /api/tenders/{id}                        Session state
    POST   /api/tenders/{id}/collections            Record collected notes
    POST   /api/tenders/{id}/adjustments            Change an adjustment input
    POST   /api/tenders/{id}/deductions             Apply scrap/sales-return bill
    POST   /api/tenders/{id}/instruments            Set UPI/card amounts
    POST   /api/tenders/{id}/reload                 Re-fetch the drawer
    POST   /api/tenders/{id}/accept-shortfall       Accept a partial payout
    POST   /api/tenders/{id}/finalize               Commit the tender
    POST   /api/tenders/{id}/abort                  Discard the session
    GET    /api/tender-records/{billNo}             Finalized tender

  Day cash:
    POST   /api/daycash/opening                     Post opening count
    POST   /api/daycash/closing                     Post closing count
    GET    /api/daycash/{store}/{company}/{date}    Counts + reconciliation

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Tenders / DayCash: cash services
  - Store: persistence (SQLite or memory)
  - Sessions: open tender sessions, one mutex each

ERROR HANDLING:
  Errors are returned as {"error", "code", "details"} with HTTP status:
  - 400: Validation errors, invalid input
  - 404: Bill, drawer, session, tender or day cash not found
  - 409: Stale ledger, duplicate tender, closed session, bad transition
  - 422: Underpaid, insufficient stock for change
  - 503: Drawer lock not acquired in time
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - sessions.go: Session registry
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/tender-engine/cash"
	"github.com/warp/tender-engine/obs"
)

// Backend is the persistence the handlers need: the cash stores plus the
// stand-in bill registry.
type Backend interface {
	cash.Store
	cash.BillSource
	SaveBill(ctx context.Context, b cash.Bill) error
	Reset(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Backend
	Tenders  *cash.TenderService
	DayCash  *cash.DayCashService
	Sessions *SessionRegistry
	Metrics  *obs.Metrics
	Log      zerolog.Logger

	validate *validator.Validate

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a handler whose services share store.
func NewHandler(store Backend, tenders *cash.TenderService, dayCash *cash.DayCashService) *Handler {
	return &Handler{
		Store:    store,
		Tenders:  tenders,
		DayCash:  dayCash,
		Sessions: NewSessionRegistry(),
		Log:      zerolog.Nop(),
		validate: newValidator(),
	}
}

// decode reads and validates a JSON body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body: " + err.Error(), Code: "invalid_body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Request validation failed",
			Code:    "validation",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

func drawerKeyFromPath(r *http.Request) (cash.DrawerKey, error) {
	return DrawerKeyDTO{
		StoreCode:   chi.URLParam(r, "store"),
		CompanyCode: chi.URLParam(r, "company"),
		Date:        chi.URLParam(r, "date"),
	}.key()
}

// =============================================================================
// DRAWERS & BILLS
// =============================================================================

// ListDenominations returns the configured denomination set.
// GET /api/denominations
func (h *Handler) ListDenominations(w http.ResponseWriter, r *http.Request) {
	set := h.Tenders.Denominations
	out := DenominationsDTO{Denominations: make([]int64, len(set))}
	for i, d := range set {
		out.Denominations[i] = int64(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetDrawer returns the live till.
// GET /api/drawers/{store}/{company}/{date}
func (h *Handler) GetDrawer(w http.ResponseWriter, r *http.Request) {
	key, err := drawerKeyFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.Store.LoadDrawer(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDrawerDTO(snap))
}

// CreateBill registers a bill header.
// POST /api/bills
func (h *Handler) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := cash.ParseBusinessDate(req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	bill := cash.Bill{BillNo: req.BillNo, SalesmanName: req.SalesmanName, Date: date, Amount: req.Amount}
	if err := h.Store.SaveBill(r.Context(), bill); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillDTO(bill))
}

// GetBill returns a bill header.
// GET /api/bills/{billNo}
func (h *Handler) GetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := h.Store.Bill(r.Context(), chi.URLParam(r, "billNo"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(bill))
}

// =============================================================================
// TENDER SESSIONS
// =============================================================================

// OpenTender opens a session for a bill and loads the drawer.
// POST /api/tenders
func (h *Handler) OpenTender(w http.ResponseWriter, r *http.Request) {
	var req OpenTenderRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, err := req.key()
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := h.Tenders.Open(r.Context(), req.BillNo, key)
	if err != nil {
		writeError(w, err)
		return
	}
	id := h.Sessions.Add(session)
	writeJSON(w, http.StatusCreated, toSessionDTO(id, session))
}

// GetTender returns a session's state.
// GET /api/tenders/{id}
func (h *Handler) GetTender(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(*cash.TenderSession) error { return nil })
}

// ApplyCollection records collected notes.
// POST /api/tenders/{id}/collections
func (h *Handler) ApplyCollection(w http.ResponseWriter, r *http.Request) {
	var req CollectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(s *cash.TenderSession) error {
		return s.ApplyCollections(req.entries())
	})
}

// ApplyAdjustment changes one input of the adjustment chain.
// POST /api/tenders/{id}/adjustments
func (h *Handler) ApplyAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	field, err := cash.ParseField(req.Field)
	if err != nil {
		writeError(w, err)
		return
	}
	h.withSession(w, r, func(s *cash.TenderSession) error {
		return s.ApplyAdjustment(field, req.Value)
	})
}

// ApplyDeduction resolves a scrap or sales-return bill into the chain.
// POST /api/tenders/{id}/deductions
func (h *Handler) ApplyDeduction(w http.ResponseWriter, r *http.Request) {
	var req DeductionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(s *cash.TenderSession) error {
		return h.Tenders.ResolveDeduction(r.Context(), s, cash.DeductionKind(req.Kind), req.RefBillNo)
	})
}

// SetInstruments records UPI and card amounts.
// POST /api/tenders/{id}/instruments
func (h *Handler) SetInstruments(w http.ResponseWriter, r *http.Request) {
	var req InstrumentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(s *cash.TenderSession) error {
		upi, card := s.UPIAmount(), s.CardAmount()
		if req.UPI != nil {
			upi = *req.UPI
		}
		if req.Card != nil {
			card = *req.Card
		}
		return s.SetInstruments(upi, card)
	})
}

// ReloadLedger re-fetches the drawer into the session.
// POST /api/tenders/{id}/reload
func (h *Handler) ReloadLedger(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *cash.TenderSession) error {
		return h.Tenders.Reload(r.Context(), s)
	})
}

// AcceptShortfall accepts paying out less change than owed.
// POST /api/tenders/{id}/accept-shortfall
func (h *Handler) AcceptShortfall(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *cash.TenderSession) error {
		return s.AcceptShortfall()
	})
}

// FinalizeTender commits the session under the drawer lock.
// POST /api/tenders/{id}/finalize
func (h *Handler) FinalizeTender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var rec cash.TenderRecord
	err := h.Sessions.With(id, func(s *cash.TenderSession) error {
		var err error
		rec, err = h.Tenders.Finalize(r.Context(), s)
		return err
	})
	h.Metrics.ObserveFinalize(finalizeResult(err), rec.Shortfall)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Sessions.Remove(id)
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// AbortTender discards the session.
// POST /api/tenders/{id}/abort
func (h *Handler) AbortTender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var dto TenderSessionDTO
	err := h.Sessions.With(id, func(s *cash.TenderSession) error {
		if err := s.Abort(); err != nil {
			return err
		}
		dto = toSessionDTO(id, s)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.Sessions.Remove(id)
	writeJSON(w, http.StatusOK, dto)
}

// GetTenderRecord returns a finalized tender by bill number.
// GET /api/tender-records/{billNo}
func (h *Handler) GetTenderRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetTender(r.Context(), chi.URLParam(r, "billNo"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// withSession runs fn on the session named in the URL and responds with the
// session's state.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(*cash.TenderSession) error) {
	id := chi.URLParam(r, "id")
	var dto TenderSessionDTO
	err := h.Sessions.With(id, func(s *cash.TenderSession) error {
		if err := fn(s); err != nil {
			return err
		}
		dto = toSessionDTO(id, s)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// DAY CASH
// =============================================================================

// PostOpening records the opening count; the first one seeds the drawer.
// POST /api/daycash/opening
func (h *Handler) PostOpening(w http.ResponseWriter, r *http.Request) {
	h.postDayCash(w, r, h.DayCash.PostOpening)
}

// PostClosing records the closing count.
// POST /api/daycash/closing
func (h *Handler) PostClosing(w http.ResponseWriter, r *http.Request) {
	h.postDayCash(w, r, func(ctx context.Context, key cash.DrawerKey, counts cash.Counts, by string) (*cash.DayCashRecord, error) {
		rec, err := h.DayCash.PostClosing(ctx, key, counts, by)
		if err == nil && rec.Opening != nil {
			h.Metrics.ObserveVariance(rec.Summary().Variance)
		}
		return rec, err
	})
}

type postFunc func(ctx context.Context, key cash.DrawerKey, counts cash.Counts, recordedBy string) (*cash.DayCashRecord, error)

func (h *Handler) postDayCash(w http.ResponseWriter, r *http.Request, post postFunc) {
	var req DayCashRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, err := req.key()
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := post(r.Context(), key, req.Counts, req.RecordedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDayCashDTO(rec))
}

// GetDayCash returns a day's counts with the closing-vs-drawer discrepancy.
// GET /api/daycash/{store}/{company}/{date}
func (h *Handler) GetDayCash(w http.ResponseWriter, r *http.Request) {
	key, err := drawerKeyFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recon, err := h.DayCash.Reconcile(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	dto := toDayCashDTO(recon.Record)
	if len(recon.Discrepancy) > 0 {
		dto.Discrepancy = recon.Discrepancy
	}
	dto.DrawerTotal = money(recon.DrawerTotal)
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var (
		short *cash.InsufficientStockError
		under *cash.UnderpaidError
		stale *cash.StaleLedgerError
		verr  *cash.ValidationError
	)
	switch {
	case errors.As(err, &short):
		resp.Details = map[string]string{
			"balance":   money(short.Balance),
			"issued":    money(short.Issued),
			"shortfall": money(short.Shortfall),
		}
	case errors.As(err, &under):
		resp.Details = map[string]string{
			"cash_due":  money(under.CashDue),
			"collected": money(under.Collected),
			"due":       money(under.Due),
		}
	case errors.As(err, &stale):
		resp.Details = map[string]int64{
			"session_version": stale.SessionVersion,
			"current_version": stale.CurrentVersion,
		}
	case errors.As(err, &verr):
		resp.Details = []ValidationDetail{{Field: verr.Field, Message: verr.Reason}}
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, cash.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case cash.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, cash.ErrStaleLedger):
		return http.StatusConflict, "stale_ledger"
	case errors.Is(err, cash.ErrDuplicateTender):
		return http.StatusConflict, "duplicate_tender"
	case errors.Is(err, cash.ErrSessionClosed):
		return http.StatusConflict, "session_closed"
	case errors.Is(err, cash.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, cash.ErrLedgerNotLoaded):
		return http.StatusConflict, "ledger_not_loaded"
	case errors.Is(err, cash.ErrUnderpaid):
		return http.StatusUnprocessableEntity, "underpaid"
	case errors.Is(err, cash.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, cash.ErrLockTimeout):
		return http.StatusServiceUnavailable, "lock_timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func finalizeResult(err error) string {
	if err == nil {
		return "ok"
	}
	_, code := classify(err)
	return code
}
