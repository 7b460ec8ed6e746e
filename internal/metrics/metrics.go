package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertgateway"

// Outcome labels shared by counters.
const (
	OutcomeAck     = "ack"
	OutcomeNak     = "nak"
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeCached  = "cached"
)

// Registry owns process collectors exposed on the metrics endpoint.
// A nil *Registry is valid and records nothing.
type Registry struct {
	reg           *prometheus.Registry
	messages      *prometheus.CounterVec
	handleSeconds *prometheus.HistogramVec
	deliveries    *prometheus.CounterVec
	tokenRequests *prometheus.CounterVec
	published     *prometheus.CounterVec
	poolLeases    prometheus.Gauge
	lookupMisses  prometheus.Counter
	unknownKinds  prometheus.Counter
}

// New builds registry with runtime collectors and gateway counters.
// Params: none.
// Returns: registry ready for Handler.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Queue messages settled by the consumer, by queue and outcome.",
		}, []string{"queue", "outcome"}),
		handleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_handle_seconds",
			Help:      "Time spent routing one queue message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"queue"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Channel deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zoom_token_requests_total",
			Help:      "Zoom credential requests by outcome (cached, success, error).",
		}, []string{"outcome"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_alerts_total",
			Help:      "Alerts published to queues through the API.",
		}, []string{"queue"}),
		poolLeases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_pool_leases",
			Help:      "Broker connections currently leased from the pool.",
		}),
		lookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_lookup_misses_total",
			Help:      "Service ids in message headers that matched no configured destination.",
		}),
		unknownKinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_service_kinds_total",
			Help:      "Destinations skipped because their kind has no sender.",
		}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.messages,
		r.handleSeconds,
		r.deliveries,
		r.tokenRequests,
		r.published,
		r.poolLeases,
		r.lookupMisses,
		r.unknownKinds,
	)
	return r
}

// Handler exposes registry in prometheus text format.
// Params: none.
// Returns: HTTP handler (404 for nil registry).
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// MessageSettled counts one ack/nak decision.
// Params: queue name, outcome (OutcomeAck/OutcomeNak), and handling duration.
// Returns: none.
func (r *Registry) MessageSettled(queue, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(queue, outcome).Inc()
	r.handleSeconds.WithLabelValues(queue).Observe(took.Seconds())
}

// Delivery counts one channel send.
func (r *Registry) Delivery(channel, outcome string) {
	if r == nil {
		return
	}
	r.deliveries.WithLabelValues(channel, outcome).Inc()
}

// TokenRequest counts one credential cache lookup.
func (r *Registry) TokenRequest(outcome string) {
	if r == nil {
		return
	}
	r.tokenRequests.WithLabelValues(outcome).Inc()
}

// Published counts one alert accepted by the publish path.
func (r *Registry) Published(queue string) {
	if r == nil {
		return
	}
	r.published.WithLabelValues(queue).Inc()
}

// LeaseAcquired and LeaseReleased track pool occupancy.
func (r *Registry) LeaseAcquired() {
	if r == nil {
		return
	}
	r.poolLeases.Inc()
}

func (r *Registry) LeaseReleased() {
	if r == nil {
		return
	}
	r.poolLeases.Dec()
}

// LookupMiss counts one unmatched service id.
func (r *Registry) LookupMiss() {
	if r == nil {
		return
	}
	r.lookupMisses.Inc()
}

// UnknownKind counts one destination skipped for unsupported kind.
func (r *Registry) UnknownKind() {
	if r == nil {
		return
	}
	r.unknownKinds.Inc()
}
