package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/warp/tender-engine/api"
	"github.com/warp/tender-engine/cash"
	"github.com/warp/tender-engine/cash/store"
	"github.com/warp/tender-engine/obs"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testDate = "2024-03-01"

type testServer struct {
	t       *testing.T
	router  http.Handler
	handler *api.Handler
	store   *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	reg := prometheus.NewRegistry()

	h := api.NewHandler(mem, cash.NewTenderService(mem, mem), cash.NewDayCashService(mem))
	h.Metrics = obs.NewMetrics("tender", reg)

	return &testServer{
		t:       t,
		router:  api.NewRouter(h, api.RouterOptions{Gatherer: reg}),
		handler: h,
		store:   mem,
	}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

// expect performs the request, checks the status and decodes the body into out.
func (ts *testServer) expect(status int, method, path string, body any, out any) {
	ts.t.Helper()
	rec := ts.do(method, path, body)
	require.Equal(ts.t, status, rec.Code, "body: %s", rec.Body.String())
	if out != nil {
		require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func drawerBody(extra map[string]any) map[string]any {
	body := map[string]any{"store_code": "S1", "company_code": "C1", "date": testDate}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

// seed posts an opening count and registers a bill.
func (ts *testServer) seed(opening map[string]int64, billNo string, amount string) {
	ts.t.Helper()
	ts.expect(http.StatusCreated, http.MethodPost, "/api/daycash/opening", drawerBody(map[string]any{"counts": opening}), nil)
	ts.addBill(billNo, amount)
}

func (ts *testServer) addBill(billNo, amount string) {
	ts.t.Helper()
	ts.expect(http.StatusCreated, http.MethodPost, "/api/bills",
		map[string]any{"bill_no": billNo, "date": testDate, "amount": amount}, nil)
}

func (ts *testServer) open(billNo string) api.TenderSessionDTO {
	ts.t.Helper()
	var dto api.TenderSessionDTO
	ts.expect(http.StatusCreated, http.MethodPost, "/api/tenders", drawerBody(map[string]any{"bill_no": billNo}), &dto)
	return dto
}

func tenderPath(id, action string) string {
	if action == "" {
		return "/api/tenders/" + id
	}
	return "/api/tenders/" + id + "/" + action
}
