package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors exported by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	sideEffectFailures  *prometheus.CounterVec
	feedFetches         *prometheus.CounterVec
	realtimeDropped     *prometheus.CounterVec
	liveFeeds           prometheus.Gauge
}

// New constructs and registers the service collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fitfriends",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fitfriends",
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		sideEffectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fitfriends",
				Name:      "side_effect_failures_total",
				Help:      "Best-effort steps that failed after the primary write succeeded",
			},
			[]string{"operation", "stage"},
		),
		feedFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fitfriends",
				Name:      "feed_fetches_total",
				Help:      "Feed page fetches by outcome",
			},
			[]string{"kind", "outcome"},
		),
		realtimeDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fitfriends",
				Name:      "realtime_dropped_changes_total",
				Help:      "Change events dropped because a subscriber was not keeping up",
			},
			[]string{"table"},
		),
		liveFeeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fitfriends",
			Name:      "live_feeds",
			Help:      "Feeds currently attached to the change stream",
		}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpRequestDuration,
		m.sideEffectFailures,
		m.feedFetches,
		m.realtimeDropped,
		m.liveFeeds,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records a completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// SideEffectFailed counts a logged-only failure such as a notification that could not be delivered.
func (m *Metrics) SideEffectFailed(operation, stage string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(operation, stage).Inc()
}

// FeedFetched counts a feed page fetch.
func (m *Metrics) FeedFetched(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.feedFetches.WithLabelValues(kind, outcome).Inc()
}

// ChangeDropped counts a change event a subscriber never received.
func (m *Metrics) ChangeDropped(table string) {
	if m == nil {
		return
	}
	m.realtimeDropped.WithLabelValues(table).Inc()
}

// FeedAttached tracks live feed subscriptions.
func (m *Metrics) FeedAttached(delta int) {
	if m == nil {
		return
	}
	m.liveFeeds.Add(float64(delta))
}
