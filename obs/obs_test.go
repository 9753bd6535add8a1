package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLoggerWritesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "debug")

	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Get("/api/tenders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenders/abc", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "/api/tenders/{id}", line["route"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.Equal(t, "http_request", line["message"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "nonsense")

	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestMetricsObserveFinalize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("tender", reg)

	m.ObserveFinalize("ok", decimal.Zero)
	m.ObserveFinalize("ok", decimal.NewFromInt(20))
	m.ObserveFinalize("underpaid", decimal.Zero)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TendersFinalized.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TendersFinalized.WithLabelValues("underpaid")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.ChangeShortfall))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveFinalize("ok", decimal.NewFromInt(1))
	m.ObserveVariance(decimal.NewFromInt(1))
}
