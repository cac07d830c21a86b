// Package metrics holds the Prometheus collectors for the account, the
// orchestrator and the demo HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartaccount"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	// Executions counts Execute calls by caller role and result.
	Executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "executions_total",
			Help:      "Total number of execute dispatches by caller role and result.",
		},
		[]string{"role", "result"},
	)

	// Validations counts ValidateOperation outcomes.
	Validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "validations_total",
			Help:      "Total number of operation validations by status.",
		},
		[]string{"status"},
	)

	// SettlementFailures counts prefund transfers whose failure was discarded.
	SettlementFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "account",
			Name:      "settlement_failures_total",
			Help:      "Prefund settlement transfers that failed and were ignored.",
		},
	)

	// Operations counts operations handled by the orchestrator.
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entrypoint",
			Name:      "operations_total",
			Help:      "Total number of operations handled by result.",
		},
		[]string{"result"},
	)

	operationGas = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "entrypoint",
			Name:      "operation_gas_used",
			Help:      "Gas charged per handled operation.",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 10),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		Executions,
		Validations,
		SettlementFailures,
		Operations,
		operationGas,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordExecution records one Execute call.
func RecordExecution(role string, success bool) {
	if role == "" {
		role = "unknown"
	}
	Executions.WithLabelValues(role, resultLabel(success)).Inc()
}

// RecordValidation records one ValidateOperation outcome.
func RecordValidation(status string) {
	Validations.WithLabelValues(status).Inc()
}

// RecordSettlementFailure records a discarded prefund transfer failure.
func RecordSettlementFailure() {
	SettlementFailures.Inc()
}

// RecordOperation records an operation handled by the orchestrator.
func RecordOperation(success bool, gasUsed uint64) {
	Operations.WithLabelValues(resultLabel(success)).Inc()
	if gasUsed > 0 {
		operationGas.Observe(float64(gasUsed))
	}
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "accounts" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/accounts"
	}
	return "/accounts/:account"
}
