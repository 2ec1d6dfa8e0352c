// README: Prometheus registry and collectors for detector and policy activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	TicksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telemetry_ticks_total", Help: "Location ticks processed per outcome."},
		[]string{"outcome"}, // processed, dropped, malformed
	)
	ViolationsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "violations_opened_total", Help: "Violation episodes opened by type."},
		[]string{"type"},
	)
	ViolationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "violations_recorded_total", Help: "Safety violations persisted by type and severity."},
		[]string{"type", "severity"},
	)
	StrikesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "strikes_issued_total", Help: "Strikes issued."},
	)
	SuspensionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "suspensions_started_total", Help: "Suspensions started by type."},
		[]string{"type"},
	)
	EscrowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "escrow_transitions_total", Help: "Escrow state transitions."},
		[]string{"to"},
	)
	EmergencyAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "emergency_alerts_total", Help: "Emergency alerts raised by type."},
		[]string{"type"},
	)
	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notification_failures_total", Help: "Notification delivery failures by channel."},
		[]string{"channel"},
	)
	PersistRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "persist_retries_total", Help: "Retried event persistence attempts."},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(TicksProcessed)
		Registry.MustRegister(ViolationsOpened)
		Registry.MustRegister(ViolationsRecorded)
		Registry.MustRegister(StrikesIssued)
		Registry.MustRegister(SuspensionsStarted)
		Registry.MustRegister(EscrowTransitions)
		Registry.MustRegister(EmergencyAlerts)
		Registry.MustRegister(NotifyFailures)
		Registry.MustRegister(PersistRetries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
