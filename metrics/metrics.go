// Package metrics exposes Prometheus collectors for leaderboard round trips,
// mutation events and the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rankkit/core"
	"rankkit/leaderboard"
)

// Option applies a configuration option to the Recorder.
type Option func(*Recorder)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// WithBuckets sets custom histogram buckets (seconds) for latency metrics.
func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// Recorder owns every collector of the service.
type Recorder struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	roundTrips       *prometheus.CounterVec
	roundTripLatency *prometheus.HistogramVec
	events           *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// New creates a Recorder on a fresh registry unless WithRegistry is given.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "rankkit",
		buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.roundTrips = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "oracle",
		Name:      "round_trips_total",
		Help:      "Store round trips by procedure and result",
	}, []string{"procedure", "result"})

	r.roundTripLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "oracle",
		Name:      "round_trip_seconds",
		Help:      "Store round trip latency by procedure",
		Buckets:   r.buckets,
	}, []string{"procedure"})

	r.events = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "board",
		Name:      "events_total",
		Help:      "Mutation events published by board and type",
	}, []string{"board", "type"})

	r.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code",
	}, []string{"method", "route", "code"})

	r.httpLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route",
		Buckets:   r.buckets,
	}, []string{"method", "route"})

	return r
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveRoundTrip implements leaderboard.Observer.
func (r *Recorder) ObserveRoundTrip(procedure string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.roundTrips.WithLabelValues(procedure, result).Inc()
	r.roundTripLatency.WithLabelValues(procedure).Observe(elapsed.Seconds())
}

// OnEvent counts a published mutation event. It has the event bus handler signature.
func (r *Recorder) OnEvent(_ context.Context, ev core.Event) {
	r.events.WithLabelValues(ev.Board, string(ev.Type)).Inc()
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(method, route string, code int, elapsed time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// WatchGauge registers a gauge sampled from fn at scrape time.
func (r *Recorder) WatchGauge(subsystem, name, help string, fn func() float64) {
	promauto.With(r.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ leaderboard.Observer = (*Recorder)(nil)
