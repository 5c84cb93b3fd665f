// Package metrics provides Prometheus instrumentation for the metal engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metal_trades_total",
		Help: "Total number of trades executed",
	}, []string{"action"})

	// TradeLatency is a histogram of trade execution latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metal_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// TradeRejections counts refused trades by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metal_trade_rejections_total",
		Help: "Trades rejected before execution",
	}, []string{"reason"})

	// ListedMetals tracks the number of metals in the catalog.
	ListedMetals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metal_listed_metals",
		Help: "Number of metals currently listed",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "metal_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metal_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metal_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Rejection reasons used with TradeRejections.
const (
	ReasonUnauthorized         = "unauthorized"
	ReasonInvalidQuantity      = "invalid_quantity"
	ReasonInsufficientStock    = "insufficient_stock"
	ReasonInsufficientHoldings = "insufficient_holdings"
	ReasonLockTimeout          = "lock_timeout"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
