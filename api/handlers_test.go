package api_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/tender-engine/api"
	"github.com/warp/tender-engine/cash"
)

// =============================================================================
// TENDER FLOW
// =============================================================================

func TestAPI_TenderHappyPath(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: Drawer {500:2, 100:5} and a bill of 1000
	ts.seed(map[string]int64{"500": 2, "100": 5}, "B-1", "1000")
	session := ts.open("B-1")
	assert.Equal(t, "open", session.State)
	assert.Equal(t, int64(1), session.LedgerVersion)

	// WHEN: 10% discount, then 500 + 5×100 collected
	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "adjustments"),
		map[string]any{"field": "discount_percent", "value": "10"}, &dto)
	assert.Equal(t, "900.00", dto.Bill.NetAmount)
	assert.Equal(t, "100.00", dto.Bill.DiscountAmount)

	var collected api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"counts": map[string]int64{"500": 1, "100": 5}}, &collected)

	// THEN: One 100 note is due back
	assert.Equal(t, "collecting", collected.State)
	assert.Equal(t, "1000.00", collected.CollectedTotal)
	assert.Equal(t, "100.00", collected.Balance)
	assert.Equal(t, cash.Counts{100: 1}, collected.Issue)
	assert.True(t, collected.Closing.Equal(cash.Counts{500: 3, 100: 9}), "closing %v", collected.Closing)

	// WHEN: Finalized
	var rec api.TenderRecordDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "finalize"), nil, &rec)
	assert.Equal(t, "B-1", rec.BillNo)
	assert.Equal(t, "100.00", rec.IssuedTotal)

	// THEN: The drawer moved and the session is gone
	var drawer api.DrawerDTO
	ts.expect(http.StatusOK, http.MethodGet, "/api/drawers/S1/C1/"+testDate, nil, &drawer)
	assert.Equal(t, int64(2), drawer.Version)
	assert.True(t, drawer.Available.Equal(cash.Counts{500: 3, 100: 9}))
	assert.Equal(t, "2400.00", drawer.Total)

	ts.expect(http.StatusOK, http.MethodGet, "/api/tender-records/B-1", nil, &rec)

	var errResp api.ErrorResponse
	ts.expect(http.StatusNotFound, http.MethodGet, tenderPath(session.ID, ""), nil, &errResp)
	assert.Equal(t, "session_not_found", errResp.Code)
	assert.Equal(t, 0, ts.handler.Sessions.Len())
}

func TestAPI_SingleCollectionEntry(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	session := ts.open("B-1")

	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"denomination": 500, "count": 2}, &dto)
	assert.Equal(t, cash.Counts{500: 2}, dto.Collected)

	// A zero count removes the entry
	var cleared api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"denomination": 500, "count": 0}, &cleared)
	assert.Empty(t, cleared.Collected)
	assert.Equal(t, "-900.00", cleared.Balance)
}

func TestAPI_UnderpaidBlocksFinalize(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"500": 2, "100": 5}, "B-1", "900")
	session := ts.open("B-1")
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"counts": map[string]int64{"500": 1, "100": 3}}, nil)

	var errResp struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	ts.expect(http.StatusUnprocessableEntity, http.MethodPost, tenderPath(session.ID, "finalize"), nil, &errResp)
	assert.Equal(t, "underpaid", errResp.Code)
	assert.Equal(t, "100.00", errResp.Details["due"])

	// The session survives for another try
	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodGet, tenderPath(session.ID, ""), nil, &dto)
	assert.Equal(t, "collecting", dto.State)
}

func TestAPI_ShortDrawerNeedsAcceptance(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"50": 1}, "B-1", "900")
	session := ts.open("B-1")
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"counts": map[string]int64{"500": 2}}, nil)

	var errResp struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	ts.expect(http.StatusUnprocessableEntity, http.MethodPost, tenderPath(session.ID, "finalize"), nil, &errResp)
	assert.Equal(t, "insufficient_stock", errResp.Code)
	assert.Equal(t, "50.00", errResp.Details["shortfall"])

	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "accept-shortfall"), nil, &dto)
	assert.True(t, dto.ShortfallAccepted)

	var rec api.TenderRecordDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "finalize"), nil, &rec)
	assert.Equal(t, "50.00", rec.Shortfall)
}

func TestAPI_InstrumentsAndDeductions(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "1000")
	ts.addBill("R-1", "150")
	session := ts.open("B-1")

	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "deductions"),
		map[string]any{"kind": "sales_return", "ref_bill_no": "R-1"}, &dto)
	assert.Equal(t, "850.00", dto.Bill.NetAmount)

	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "instruments"),
		map[string]any{"upi": "350"}, &dto)
	assert.Equal(t, "350.00", dto.UPI)
	assert.Equal(t, "500.00", dto.CashDue)

	// Card is added without touching UPI
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "instruments"),
		map[string]any{"card": 100}, &dto)
	assert.Equal(t, "350.00", dto.UPI)
	assert.Equal(t, "400.00", dto.CashDue)

	var errResp api.ErrorResponse
	ts.expect(http.StatusBadRequest, http.MethodPost, tenderPath(session.ID, "instruments"),
		map[string]any{"card": 600}, &errResp)
	assert.Equal(t, "validation", errResp.Code)
}

func TestAPI_StaleLedgerAndReload(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	ts.addBill("B-2", "900")

	first := ts.open("B-1")
	second := ts.open("B-2")
	for _, id := range []string{first.ID, second.ID} {
		ts.expect(http.StatusOK, http.MethodPost, tenderPath(id, "collections"),
			map[string]any{"counts": map[string]int64{"500": 2}}, nil)
	}
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(first.ID, "finalize"), nil, nil)

	var errResp struct {
		Code    string           `json:"code"`
		Details map[string]int64 `json:"details"`
	}
	ts.expect(http.StatusConflict, http.MethodPost, tenderPath(second.ID, "finalize"), nil, &errResp)
	assert.Equal(t, "stale_ledger", errResp.Code)
	assert.Equal(t, int64(2), errResp.Details["current_version"])

	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(second.ID, "reload"), nil, &dto)
	assert.Equal(t, int64(2), dto.LedgerVersion)
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(second.ID, "finalize"), nil, nil)
}

func TestAPI_Abort(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	session := ts.open("B-1")
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"counts": map[string]int64{"500": 2}}, nil)

	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "abort"), nil, &dto)
	assert.Equal(t, "aborted", dto.State)
	assert.Empty(t, dto.Collected)

	var drawer api.DrawerDTO
	ts.expect(http.StatusOK, http.MethodGet, "/api/drawers/S1/C1/"+testDate, nil, &drawer)
	assert.Equal(t, int64(1), drawer.Version, "abort writes nothing")

	// The bill can be tendered again
	ts.open("B-1")
}

// =============================================================================
// ERRORS
// =============================================================================

func TestAPI_RequestValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	session := ts.open("B-1")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", "/api/tenders", "{", http.StatusBadRequest, "invalid_body"},
		{"missing bill", "/api/tenders", drawerBody(nil), http.StatusBadRequest, "validation"},
		{"bad date", "/api/tenders", map[string]any{"bill_no": "B-1", "store_code": "S1", "company_code": "C1", "date": "01/03/2024"}, http.StatusBadRequest, "validation"},
		{"unknown bill", "/api/tenders", drawerBody(map[string]any{"bill_no": "NOPE"}), http.StatusNotFound, "not_found"},
		{"unknown denomination", tenderPath(session.ID, "collections"), map[string]any{"denomination": 3, "count": 1}, http.StatusBadRequest, "validation"},
		{"negative count", tenderPath(session.ID, "collections"), map[string]any{"counts": map[string]int64{"100": -1}}, http.StatusBadRequest, "validation"},
		{"empty collection", tenderPath(session.ID, "collections"), map[string]any{}, http.StatusBadRequest, "validation"},
		{"huge count", tenderPath(session.ID, "collections"), map[string]any{"denomination": 500, "count": int64(1) << 62}, http.StatusBadRequest, "validation"},
		{"huge counts entry", tenderPath(session.ID, "collections"), map[string]any{"counts": map[string]int64{"500": 1_000_001}}, http.StatusBadRequest, "validation"},
		{"huge opening count", "/api/daycash/opening", drawerBody(map[string]any{"counts": map[string]int64{"500": 1 << 62}}), http.StatusBadRequest, "validation"},
		{"unknown field", tenderPath(session.ID, "adjustments"), map[string]any{"field": "tip", "value": 1}, http.StatusBadRequest, "validation"},
		{"percent over 100", tenderPath(session.ID, "adjustments"), map[string]any{"field": "discount_percent", "value": 101}, http.StatusBadRequest, "validation"},
		{"unknown session", tenderPath("nope", "collections"), map[string]any{"denomination": 500, "count": 1}, http.StatusNotFound, "session_not_found"},
		{"finalize without input", tenderPath(session.ID, "finalize"), nil, http.StatusConflict, "invalid_transition"},
		{"nothing to accept", tenderPath(session.ID, "accept-shortfall"), nil, http.StatusConflict, "invalid_transition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp api.ErrorResponse
			ts.expect(tt.status, http.MethodPost, tt.path, tt.body, &errResp)
			assert.Equal(t, tt.code, errResp.Code)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestAPI_ValidationDetailsUseJSONNames(t *testing.T) {
	ts := newTestServer(t)

	var errResp struct {
		Code    string                 `json:"code"`
		Details []api.ValidationDetail `json:"details"`
	}
	ts.expect(http.StatusBadRequest, http.MethodPost, "/api/bills", map[string]any{"date": testDate}, &errResp)
	require.NotEmpty(t, errResp.Details)
	assert.Equal(t, "bill_no", errResp.Details[0].Field)
	assert.Equal(t, "This field is required", errResp.Details[0].Message)
}

func TestAPI_CountCeilingDetail(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	session := ts.open("B-1")

	var errResp struct {
		Code    string                 `json:"code"`
		Details []api.ValidationDetail `json:"details"`
	}
	ts.expect(http.StatusBadRequest, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"denomination": 500, "count": 1_000_001}, &errResp)
	require.Len(t, errResp.Details, 1)
	assert.Equal(t, "count", errResp.Details[0].Field)
	assert.Equal(t, "Must be less than or equal to 1000000", errResp.Details[0].Message)

	// The session never saw the entry
	var dto api.TenderSessionDTO
	ts.expect(http.StatusOK, http.MethodGet, tenderPath(session.ID, ""), nil, &dto)
	assert.Empty(t, dto.Collected)
}

func TestAPI_DuplicateTender(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	session := ts.open("B-1")
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"counts": map[string]int64{"500": 2}}, nil)
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "finalize"), nil, nil)

	var errResp api.ErrorResponse
	ts.expect(http.StatusConflict, http.MethodPost, "/api/tenders", drawerBody(map[string]any{"bill_no": "B-1"}), &errResp)
	assert.Equal(t, "duplicate_tender", errResp.Code)
}

// =============================================================================
// DAY CASH, DENOMINATIONS, METRICS
// =============================================================================

func TestAPI_DayCash(t *testing.T) {
	ts := newTestServer(t)

	var dto api.DayCashDTO
	ts.expect(http.StatusCreated, http.MethodPost, "/api/daycash/opening",
		drawerBody(map[string]any{"counts": map[string]int64{"500": 10}, "recorded_by": "asha"}), &dto)
	assert.Equal(t, 1, dto.OpeningRevision)
	assert.Equal(t, "5000.00", dto.OpeningTotal)

	ts.expect(http.StatusCreated, http.MethodPost, "/api/daycash/closing",
		drawerBody(map[string]any{"counts": map[string]int64{"500": 14, "100": 3}}), &dto)
	assert.Equal(t, "7300.00", dto.ClosingTotal)
	assert.Equal(t, "2300.00", dto.Variance)

	var day api.DayCashDTO
	ts.expect(http.StatusOK, http.MethodGet, "/api/daycash/S1/C1/"+testDate, nil, &day)
	assert.Equal(t, "2300.00", day.Variance)
	assert.Equal(t, "5000.00", day.DrawerTotal)
	assert.Equal(t, cash.Counts{500: 4, 100: 3}, day.Discrepancy)

	var errResp api.ErrorResponse
	ts.expect(http.StatusNotFound, http.MethodGet, "/api/daycash/S1/C1/2024-03-02", nil, &errResp)
	assert.Equal(t, "not_found", errResp.Code)
	ts.expect(http.StatusBadRequest, http.MethodGet, "/api/daycash/S1/C1/yesterday", nil, &errResp)
	assert.Equal(t, "validation", errResp.Code)
}

func TestAPI_Denominations(t *testing.T) {
	ts := newTestServer(t)

	var dto api.DenominationsDTO
	ts.expect(http.StatusOK, http.MethodGet, "/api/denominations", nil, &dto)
	assert.Equal(t, []int64{500, 200, 100, 50, 20, 10, 5, 2, 1}, dto.Denominations)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(map[string]int64{"100": 5}, "B-1", "900")
	session := ts.open("B-1")
	ts.expect(http.StatusOK, http.MethodPost, tenderPath(session.ID, "collections"),
		map[string]any{"counts": map[string]int64{"500": 1}}, nil)
	ts.expect(http.StatusUnprocessableEntity, http.MethodPost, tenderPath(session.ID, "finalize"), nil, nil)

	rec := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tender_tenders_finalized_total{result="underpaid"} 1`)
	assert.True(t, strings.Contains(body, "tender_http_requests_total"))
}
