package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitea.kood.tech/petrkubec/dev-radar/backend/radar"
)

// Metrics holds the radar's Prometheus collectors on a private registry so tests can build as
// many servers as they like.
type Metrics struct {
	registry *prometheus.Registry

	LiveSessions      prometheus.Gauge
	Searches          *prometheus.CounterVec
	Matches           prometheus.Counter
	Notifications     *prometheus.CounterVec
	PassDuration      prometheus.Histogram
	CreationEvents    *prometheus.CounterVec
	ClientMessages    *prometheus.CounterVec
	GraphQLOperations *prometheus.CounterVec
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devradar_live_sessions",
			Help: "Number of connected live sessions",
		}),
		Searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devradar_searches_total",
			Help: "Radius searches by outcome",
		}, []string{"outcome"}),
		Matches: factory.NewCounter(prometheus.CounterOpts{
			Name: "devradar_matches_total",
			Help: "Sessions matched by newly created devs",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devradar_notifications_total",
			Help: "newDevs deliveries by result",
		}, []string{"result"}),
		PassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "devradar_match_pass_duration_seconds",
			Help:    "Duration of one match and dispatch pass",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		CreationEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devradar_creation_events_total",
			Help: "Creation events consumed by feed source",
		}, []string{"source"}),
		ClientMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devradar_client_messages_total",
			Help: "Live client messages by type",
		}, []string{"type"}),
		GraphQLOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devradar_graphql_operations_total",
			Help: "GraphQL operations by outcome",
		}, []string{"outcome"}),
	}
}

// observePass records the outcome of one notifier pass.
func (m *Metrics) observePass(_ radar.Record, matched []string, res radar.DispatchResult, elapsed time.Duration) {
	m.Matches.Add(float64(len(matched)))
	m.Notifications.WithLabelValues("delivered").Add(float64(res.Delivered))
	m.Notifications.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.Notifications.WithLabelValues("failed").Add(float64(res.Failed))
	m.PassDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) searchOutcome(err error) {
	switch {
	case err == nil:
		m.Searches.WithLabelValues("ok").Inc()
	case radar.IsKind(err, radar.KindInvalidArgument):
		m.Searches.WithLabelValues("invalid").Inc()
	default:
		m.Searches.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
