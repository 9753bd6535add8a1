/*
scenarios.go - Demo till scenarios for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a drawer,
	bills and (where useful) an open tender session, so an operator can walk
	through the common counter situations from the UI or with curl.

AVAILABLE SCENARIOS:

	clean-change:  Discounted bill, drawer has the change
	short-drawer:  Drawer lacks the notes to pay change
	underpaid:     Customer hands over less than the net amount
	deductions:    Sales-return and scrap bills settled against a sale
	day-close:     Opening and closing counts with a variance

HOW SCENARIOS WORK:
 1. Reset database (clear all data) and drop open sessions
 2. Register bills
 3. Post the opening count (seeds the live drawer)
 4. Optionally open a tender session and pre-enter inputs

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "short-drawer"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Tender and day-cash handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/tender-engine/cash"
)

const (
	demoStore   = "STORE-01"
	demoCompany = "CO-01"
	demoCashier = "demo"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "clean-change",
		Name:        "Clean Change",
		Description: "Bill 1000 with 10% discount; drawer {500:2, 100:5}. Pay 500 + 5×100 and get one 100 back.",
	},
	{
		ID:          "short-drawer",
		Name:        "Short Drawer",
		Description: "Drawer holds a single 50. Customer pays 1000 against 900 and is owed 100.",
	},
	{
		ID:          "underpaid",
		Name:        "Underpaid",
		Description: "800 collected against a net amount of 900; finalize is blocked.",
	},
	{
		ID:          "deductions",
		Name:        "Sales Return & Scrap",
		Description: "Sale of 1000 settled against a 150 sales return and 40 of scrap.",
	},
	{
		ID:          "day-close",
		Name:        "Day Close",
		Description: "Opening 10×500 = 5,000; closing 14×500 + 3×100 = 7,300; variance +2,300.",
	},
}

// scenarioResult is what a loader hands back to the client.
type scenarioResult struct {
	Status   string `json:"status"`
	Scenario string `json:"scenario"`
	TenderID string `json:"tender_id,omitempty"`
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context, cash.DrawerKey) (string, error){
		"clean-change": h.loadCleanChangeScenario,
		"short-drawer": h.loadShortDrawerScenario,
		"underpaid":    h.loadUnderpaidScenario,
		"deductions":   h.loadDeductionsScenario,
		"day-close":    h.loadDayCloseScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, &cash.ValidationError{Field: "scenario_id", Value: req.ScenarioID, Reason: "unknown scenario"})
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, err)
		return
	}

	key := cash.DrawerKey{StoreCode: demoStore, CompanyCode: demoCompany, Date: cash.Today()}
	tenderID, err := load(ctx, key)
	if err != nil {
		writeError(w, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, scenarioResult{Status: "loaded", Scenario: req.ScenarioID, TenderID: tenderID})
}

// ResetDatabase clears all data and open sessions.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	h.Sessions.Clear()
	h.currentScenario = ""
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadCleanChangeScenario(ctx context.Context, key cash.DrawerKey) (string, error) {
	if err := h.seed(ctx, key, cash.Counts{500: 2, 100: 5}, cash.Bill{BillNo: "B-1001", SalesmanName: "Ravi", Amount: decimal.NewFromInt(1000)}); err != nil {
		return "", err
	}
	return h.openDemoTender(ctx, key, "B-1001", func(s *cash.TenderSession) error {
		return s.ApplyAdjustment(cash.FieldDiscountPercent, decimal.NewFromInt(10))
	})
}

func (h *Handler) loadShortDrawerScenario(ctx context.Context, key cash.DrawerKey) (string, error) {
	if err := h.seed(ctx, key, cash.Counts{50: 1}, cash.Bill{BillNo: "B-2001", SalesmanName: "Meena", Amount: decimal.NewFromInt(900)}); err != nil {
		return "", err
	}
	return h.openDemoTender(ctx, key, "B-2001", func(s *cash.TenderSession) error {
		return s.ApplyCollections(cash.Counts{500: 2})
	})
}

func (h *Handler) loadUnderpaidScenario(ctx context.Context, key cash.DrawerKey) (string, error) {
	if err := h.seed(ctx, key, cash.Counts{500: 2, 100: 5}, cash.Bill{BillNo: "B-3001", SalesmanName: "Ravi", Amount: decimal.NewFromInt(900)}); err != nil {
		return "", err
	}
	return h.openDemoTender(ctx, key, "B-3001", func(s *cash.TenderSession) error {
		return s.ApplyCollections(cash.Counts{500: 1, 100: 3})
	})
}

func (h *Handler) loadDeductionsScenario(ctx context.Context, key cash.DrawerKey) (string, error) {
	bills := []cash.Bill{
		{BillNo: "B-4001", SalesmanName: "Meena", Amount: decimal.NewFromInt(1000)},
		{BillNo: "R-4001", SalesmanName: "Meena", Amount: decimal.NewFromInt(150)},
		{BillNo: "S-4001", SalesmanName: "Meena", Amount: decimal.NewFromInt(40)},
	}
	if err := h.seed(ctx, key, cash.Counts{500: 2, 100: 5, 50: 2, 10: 5}, bills...); err != nil {
		return "", err
	}
	return h.openDemoTender(ctx, key, "B-4001", func(s *cash.TenderSession) error {
		if err := h.Tenders.ResolveDeduction(ctx, s, cash.DeductionSalesReturn, "R-4001"); err != nil {
			return err
		}
		return h.Tenders.ResolveDeduction(ctx, s, cash.DeductionScrap, "S-4001")
	})
}

func (h *Handler) loadDayCloseScenario(ctx context.Context, key cash.DrawerKey) (string, error) {
	if err := h.seed(ctx, key, cash.Counts{500: 10}); err != nil {
		return "", err
	}
	if _, err := h.DayCash.PostClosing(ctx, key, cash.Counts{500: 14, 100: 3}, demoCashier); err != nil {
		return "", err
	}
	return "", nil
}

// seed registers bills and posts the opening count, which creates the drawer.
func (h *Handler) seed(ctx context.Context, key cash.DrawerKey, opening cash.Counts, bills ...cash.Bill) error {
	for _, b := range bills {
		b.Date = key.Date
		if err := h.Store.SaveBill(ctx, b); err != nil {
			return err
		}
	}
	_, err := h.DayCash.PostOpening(ctx, key, opening, demoCashier)
	return err
}

func (h *Handler) openDemoTender(ctx context.Context, key cash.DrawerKey, billNo string, prepare func(*cash.TenderSession) error) (string, error) {
	session, err := h.Tenders.Open(ctx, billNo, key)
	if err != nil {
		return "", err
	}
	if err := prepare(session); err != nil {
		return "", err
	}
	return h.Sessions.Add(session), nil
}
