package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "dmsocket"

// Config contains metrics configuration.
type Config struct {
	// Namespace is the prometheus namespace for all metrics. If empty, defaults to "dmsocket".
	Namespace string
	// ConstLabels are labels that will be added to all metrics as constant labels.
	ConstLabels map[string]string
	// Registerer is the prometheus registerer to use. If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer
}

// Registry holds all client metrics. A nil *Registry is valid and records nothing,
// so components can be constructed without metrics in tests.
type Registry struct {
	config Config

	// Connection metrics
	connectAttemptsTotal *prometheus.CounterVec
	reconnectsScheduled  *prometheus.CounterVec
	connectionState      *prometheus.GaugeVec

	// Feed metrics
	inboundEventsTotal    *prometheus.CounterVec
	subscriberPanicsTotal *prometheus.CounterVec

	// Outbound metrics
	outboundEmitsTotal   *prometheus.CounterVec
	ackDurationHistogram *prometheus.HistogramVec
	ackErrorsTotal       *prometheus.CounterVec

	// REST metrics
	restRequestsTotal *prometheus.CounterVec
}

// New creates all metrics and registers them with the configured registerer.
func New(cfg Config) (*Registry, error) {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	metricsNamespace := cfg.Namespace
	if metricsNamespace == "" {
		metricsNamespace = defaultMetricsNamespace
	}

	constLabels := prometheus.Labels(cfg.ConstLabels)

	m := &Registry{
		config: cfg,
	}

	// Connection metrics
	m.connectAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "connect_attempts_total",
		Help:        "Number of transport connect attempts by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.reconnectsScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "reconnects_total",
		Help:        "Number of reconnect decisions by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.connectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "connection",
		Name:        "state",
		Help:        "Current connection state, 1 for the active state label.",
		ConstLabels: constLabels,
	}, []string{"state"})

	// Feed metrics
	m.inboundEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "feed",
		Name:        "events_total",
		Help:        "Number of events published to feeds.",
		ConstLabels: constLabels,
	}, []string{"feed"})

	m.subscriberPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "feed",
		Name:        "subscriber_panics_total",
		Help:        "Number of recovered subscriber panics.",
		ConstLabels: constLabels,
	}, []string{"feed"})

	// Outbound metrics
	m.outboundEmitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "transport",
		Name:        "emits_total",
		Help:        "Number of outbound wire events.",
		ConstLabels: constLabels,
	}, []string{"event"})

	m.ackDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "transport",
		Name:        "ack_duration_seconds",
		Buckets:     prometheus.DefBuckets,
		Help:        "Histogram of time until a server acknowledgement.",
		ConstLabels: constLabels,
	}, []string{"op"})

	m.ackErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "transport",
		Name:        "ack_errors_total",
		Help:        "Number of failed acknowledged operations.",
		ConstLabels: constLabels,
	}, []string{"op", "reason"})

	// REST metrics
	m.restRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "rest",
		Name:        "requests_total",
		Help:        "Number of REST API requests.",
		ConstLabels: constLabels,
	}, []string{"endpoint", "status"})

	var alreadyRegistered prometheus.AlreadyRegisteredError

	collectors := []prometheus.Collector{
		m.connectAttemptsTotal,
		m.reconnectsScheduled,
		m.connectionState,
		m.inboundEventsTotal,
		m.subscriberPanicsTotal,
		m.outboundEmitsTotal,
		m.ackDurationHistogram,
		m.ackErrorsTotal,
		m.restRequestsTotal,
	}

	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			// Ignore if already registered (allows re-initialization in tests)
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
		}
	}

	return m, nil
}
