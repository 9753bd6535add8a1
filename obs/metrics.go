package obs

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics groups the Prometheus collectors of the tender server.
type Metrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec

	// TendersFinalized counts finalize attempts by result
	// (ok, underpaid, insufficient_stock, stale, ...).
	TendersFinalized *prometheus.CounterVec
	// ChangeShortfall sums the change that could not be paid out on
	// finalized tenders.
	ChangeShortfall prometheus.Counter
	// DayCashVariance observes closing minus opening totals.
	DayCashVariance prometheus.Histogram
}

// NewMetrics registers and returns the collectors under namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		TendersFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenders_finalized_total",
			Help:      "Tender finalize attempts by result.",
		}, []string{"result"}),
		ChangeShortfall: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_shortfall_total",
			Help:      "Change owed to customers that the drawer could not pay out.",
		}),
		DayCashVariance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_cash_variance",
			Help:      "Closing minus opening drawer total per posted closing count.",
			Buckets:   []float64{-10000, -1000, -100, 0, 100, 1000, 10000, 100000},
		}),
	}
	for _, c := range []prometheus.Collector{m.ReqTotal, m.ReqDur, m.TendersFinalized, m.ChangeShortfall, m.DayCashVariance} {
		if err := reg.Register(c); err != nil {
			panic(fmt.Errorf("register metric: %w", err))
		}
	}
	return m
}

// ObserveFinalize records one finalize attempt.
func (m *Metrics) ObserveFinalize(result string, shortfall decimal.Decimal) {
	if m == nil {
		return
	}
	m.TendersFinalized.WithLabelValues(result).Inc()
	if shortfall.IsPositive() {
		m.ChangeShortfall.Add(shortfall.InexactFloat64())
	}
}

// ObserveVariance records a day's closing variance.
func (m *Metrics) ObserveVariance(variance decimal.Decimal) {
	if m == nil {
		return
	}
	m.DayCashVariance.Observe(variance.InexactFloat64())
}

// Middleware instruments request/response lifecycle with counters and histograms.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.Status())).Inc()
		m.ReqDur.WithLabelValues(r.Method, route).Observe(float64(time.Since(start)) / float64(time.Millisecond))
	})
}
