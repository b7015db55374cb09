package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	GatewayRequests    *prometheus.CounterVec
	GatewayLatency     *prometheus.HistogramVec
	StoreOperations    *prometheus.CounterVec
	DashboardFailures  *prometheus.CounterVec
	LicenseTransitions *prometheus.CounterVec
	PaymentOutcomes    *prometheus.CounterVec
	Uploads            *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total outbound gateway requests by gateway, endpoint and status.",
			}, []string{"gateway", "endpoint", "status"}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Latency distribution for outbound gateway requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"gateway", "endpoint", "status"}),
			StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Resource store operations by resource, operation and outcome.",
			}, []string{"resource", "op", "outcome"}),
			DashboardFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_subquery_failures_total",
				Help:      "Dashboard sub-queries that failed and were reported as zero.",
			}, []string{"kind", "query"}),
			LicenseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "license_transitions_total",
				Help:      "License connection state transitions by target state and outcome.",
			}, []string{"state", "outcome"}),
			PaymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_outcomes_total",
				Help:      "Checkout starts and returns by outcome.",
			}, []string{"stage", "outcome"}),
			Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "File uploads by bucket driver and outcome.",
			}, []string{"driver", "outcome"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.GatewayRequests,
			metricsInstance.GatewayLatency,
			metricsInstance.StoreOperations,
			metricsInstance.DashboardFailures,
			metricsInstance.LicenseTransitions,
			metricsInstance.PaymentOutcomes,
			metricsInstance.Uploads,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

// Outcome maps an error to the "ok" / "error" label used by the counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
