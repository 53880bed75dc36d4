package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeInvalid     = "invalid"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
	OutcomeNotFound    = "not_found"
	OutcomeFatal       = "fatal"
	OutcomeUnroutable  = "unroutable"
)

// Collector owns every series the gateway and broker emit. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	connectionsActive   prometheus.Gauge
	connectionsTotal    prometheus.Counter
	framesMalformed     prometheus.Counter
	serializationErrors prometheus.Counter
	internalErrors      prometheus.Counter
	heartbeatTerminated prometheus.Counter
	authAttempts        *prometheus.CounterVec
	requests            *prometheus.CounterVec
	backendDuration     *prometheus.HistogramVec
	transfers           *prometheus.CounterVec
	offlineNotifyErrors prometheus.Counter
	directoryErrors     prometheus.Counter
}

// NewCollector registers the gateway series on registry. A nil registry
// gets a fresh one.
func NewCollector(namespace string, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "gate"
	}

	c := &Collector{
		registry: registry,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "WebSocket connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "connections_total",
			Help: "WebSocket connections accepted.",
		}),
		framesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_malformed_total",
			Help: "Inbound frames dropped because they were not valid JSON.",
		}),
		serializationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "serialization_errors_total",
			Help: "Outbound messages replaced by an internal error frame because they could not be encoded.",
		}),
		internalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "internal_errors_total",
			Help: "Handler failures caught at the gateway boundary.",
		}),
		heartbeatTerminated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeat_terminations_total",
			Help: "Connections terminated by the heartbeat sweep.",
		}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_attempts_total",
			Help: "Authenticate requests by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total",
			Help: "Routed client requests by destination service and outcome.",
		}, []string{"service", "outcome"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "backend_duration_seconds",
			Help:    "Latency of internal gate calls.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transfers_total",
			Help: "Push deliveries requested by backends, by outcome.",
		}, []string{"outcome"}),
		offlineNotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "offline_notify_errors_total",
			Help: "Failed offline notifications to the default service.",
		}),
		directoryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "directory_errors_total",
			Help: "Failed channel directory writes.",
		}),
	}

	registry.MustRegister(
		c.connectionsActive,
		c.connectionsTotal,
		c.framesMalformed,
		c.serializationErrors,
		c.internalErrors,
		c.heartbeatTerminated,
		c.authAttempts,
		c.requests,
		c.backendDuration,
		c.transfers,
		c.offlineNotifyErrors,
		c.directoryErrors,
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

func (c *Collector) FrameMalformed() {
	if c == nil {
		return
	}
	c.framesMalformed.Inc()
}

func (c *Collector) SerializationError() {
	if c == nil {
		return
	}
	c.serializationErrors.Inc()
}

func (c *Collector) InternalError() {
	if c == nil {
		return
	}
	c.internalErrors.Inc()
}

func (c *Collector) HeartbeatTerminated() {
	if c == nil {
		return
	}
	c.heartbeatTerminated.Inc()
}

func (c *Collector) AuthAttempt(outcome string) {
	if c == nil {
		return
	}
	c.authAttempts.WithLabelValues(outcome).Inc()
}

// Request records a routed request. service is empty for unroutable calls.
func (c *Collector) Request(service, outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(service, outcome).Inc()
}

func (c *Collector) BackendCall(service string, d time.Duration) {
	if c == nil {
		return
	}
	c.backendDuration.WithLabelValues(service).Observe(d.Seconds())
}

func (c *Collector) Transfer(outcome string) {
	if c == nil {
		return
	}
	c.transfers.WithLabelValues(outcome).Inc()
}

func (c *Collector) OfflineNotifyError() {
	if c == nil {
		return
	}
	c.offlineNotifyErrors.Inc()
}

func (c *Collector) DirectoryError() {
	if c == nil {
		return
	}
	c.directoryErrors.Inc()
}
