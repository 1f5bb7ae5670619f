// Package metrics exposes Prometheus metrics for Gray Logic Notify.
//
// All collectors register on Registry, which the API serves at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all notify metrics
const namespace = "graylogic_notify"

// Registry is the Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo exposes the running version as a label (value is always 1)
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version"},
)

// Fan-out metrics
var (
	// FanOutOutcomes counts per-subscriber fan-out results
	FanOutOutcomes = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_outcomes_total",
			Help:      "Per-subscriber fan-out outcomes",
		},
		[]string{"subscriber_type", "status"}, // status: delivered|pruned|failed
	)

	// FanOutDuration records the wall time of a whole fan-out
	FanOutDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_duration_seconds",
			Help:      "Duration of a fan-out to all subscribers of an entity",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// RegistryOperations counts subscribe and unsubscribe calls
	RegistryOperations = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_operations_total",
			Help:      "Subscription registry operations",
		},
		[]string{"operation", "result"}, // operation: subscribe|unsubscribe, result: ok|error
	)
)

// Auth metrics
var (
	// AuthAttempts counts register, login and token verification results
	AuthAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by operation and result",
		},
		[]string{"operation", "result"},
	)
)

// Connection metrics
var (
	// WebSocketConnections tracks currently open WebSocket connections
	WebSocketConnections = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Currently open WebSocket connections",
		},
	)

	// LifecycleEvents counts connection lifecycle events by route and result
	LifecycleEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_events_total",
			Help:      "Connection lifecycle events by route key and result",
		},
		[]string{"route", "result"},
	)

	// StateMessages counts state-change messages received over MQTT
	StateMessages = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_messages_total",
			Help:      "State-change messages received over MQTT",
		},
		[]string{"result"},
	)
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

var initOnce sync.Once

// Init registers runtime collectors and sets version information.
// Collectors are registered once per process.
func Init(version string) {
	initOnce.Do(func() {
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		Registry.MustRegister(mqttCollector{})
	})
	AppInfo.WithLabelValues(version).Set(1)
}
