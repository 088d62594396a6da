package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	ledgerPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_points_total",
			Help: "Absolute points moved by committed transactions, by transaction type.",
		},
		[]string{"type"},
	)
	ledgerPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_publish_failures_total",
			Help: "Committed ledger changes that could not be handed to the broker.",
		},
	)
)

// NewMetricsMiddleware Creates HTTP middleware for collecting Prometheus metrics.
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				// Route patterns keep label cardinality bounded.
				path := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					path = rctx.RoutePattern()
				}

				httpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(duration.Seconds())
				httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(ww.Status())).Inc()
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RecordLedgerOperation counts one ledger operation; outcome is the error text class.
func RecordLedgerOperation(operation, outcome string) {
	ledgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

func RecordPointsMoved(txType string, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	ledgerPointsTotal.WithLabelValues(txType).Add(float64(amount))
}

func RecordPublishFailure() {
	ledgerPublishFailures.Inc()
}
