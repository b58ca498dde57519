// Package metrics provides Prometheus instrumentation for the feed engine.
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
	// EventsPublished counts events accepted by a broker channel.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsense_events_published_total",
		Help: "Events published to a broker channel",
	}, []string{"channel"})

	// EventsDropped counts events evicted by the drop-oldest policy.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsense_events_dropped_total",
		Help: "Events evicted from a full broker channel",
	}, []string{"channel"})

	// PaymentsProcessed counts evaluated payments.
	PaymentsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finsense_payments_processed_total",
		Help: "Payment events run through anomaly detection",
	})

	// AnomaliesDetected counts flagged payments by severity tier.
	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsense_anomalies_detected_total",
		Help: "Payments flagged as anomalous",
	}, []string{"severity"})

	// SanctionsMatches counts transfers whose recipient was flagged.
	SanctionsMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finsense_sanctions_matches_total",
		Help: "Payments whose recipient matched the sanctions registry",
	})

	// ProducerErrors counts recovered producer-loop failures.
	ProducerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsense_producer_errors_total",
		Help: "Recovered feed producer iteration failures",
	}, []string{"producer"})

	// WebSocketClients tracks connected WebSocket clients per stream.
	WebSocketClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "finsense_websocket_clients",
		Help: "Number of connected WebSocket clients",
	}, []string{"stream"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finsense_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finsense_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
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

		// Use the raw path for the label; the API surface is small and
		// fixed, so cardinality stays bounded.
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
