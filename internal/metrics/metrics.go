// Package metrics provides Prometheus metrics for totdbot.
//
// Every method is safe on a nil *Manager, so components can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "totdbot"

// Manager owns a private registry and every metric the bot exports.
type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	broadcastSends     *prometheus.CounterVec
	broadcastPauses    prometheus.Counter
	broadcastDuration  prometheus.Histogram
	subscriptionsGauge prometheus.Gauge
	subscriptionsGone  prometheus.Counter

	cacheRequests *prometheus.CounterVec
	cacheRefresh  *prometheus.HistogramVec

	contentRequests *prometheus.CounterVec

	reactions  *prometheus.CounterVec
	bingoVotes *prometheus.CounterVec
	bingoWins  prometheus.Counter

	rollovers        *prometheus.CounterVec
	rolloverDuration prometheus.Histogram

	tasks *prometheus.CounterVec
}

type Option func(*Manager)

func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

func WithHistogramBuckets(b []float64) Option {
	return func(m *Manager) {
		if len(b) > 0 {
			m.buckets = b
		}
	}
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(m *Manager) {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.broadcastSends = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "broadcast", Name: "sends_total",
		Help: "Announcement sends by outcome (sent, permanent, transient, unknown)",
	}, []string{"outcome"})
	m.broadcastPauses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "broadcast", Name: "pauses_total",
		Help: "Inter-batch pauses taken while distributing",
	})
	m.broadcastDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "broadcast", Name: "duration_seconds",
		Help: "Wall time of one full distribution", Buckets: m.buckets,
	})
	m.subscriptionsGauge = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "subscriptions", Name: "active",
		Help: "Subscriptions seen by the last distribution",
	})
	m.subscriptionsGone = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "subscriptions", Name: "removed_total",
		Help: "Subscriptions removed after a permanent delivery failure",
	})

	m.cacheRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "cache", Name: "requests_total",
		Help: "Cache lookups by key and result (hit, refresh, empty, error)",
	}, []string{"key", "result"})
	m.cacheRefresh = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "cache", Name: "refresh_seconds",
		Help: "Duration of upstream fetches behind a cache refresh", Buckets: m.buckets,
	}, []string{"key"})

	m.contentRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "content", Name: "requests_total",
		Help: "Upstream content API requests by endpoint and status class",
	}, []string{"endpoint", "status"})

	m.reactions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "rating", Name: "reactions_total",
		Help: "Rating reactions applied to the current tally",
	}, []string{"direction"})
	m.bingoVotes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "bingo", Name: "votes_total",
		Help: "Bingo cell votes by transition (started, checked, still_open)",
	}, []string{"outcome"})
	m.bingoWins = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "bingo", Name: "wins_total",
		Help: "Boards that completed a line",
	})

	m.rollovers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "rollover", Name: "runs_total",
		Help: "Daily rollover runs by result (ok, skipped, error)",
	}, []string{"result"})
	m.rolloverDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "rollover", Name: "duration_seconds",
		Help: "Wall time of a completed daily rollover", Buckets: m.buckets,
	})

	m.tasks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "engine", Name: "tasks_total",
		Help: "Finished engine tasks by name and result",
	}, []string{"task", "result"})
}

// Registry exposes the private registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) BroadcastSend(outcome string) {
	if m == nil {
		return
	}
	m.broadcastSends.WithLabelValues(outcome).Inc()
}

func (m *Manager) BroadcastPause() {
	if m == nil {
		return
	}
	m.broadcastPauses.Inc()
}

func (m *Manager) BroadcastFinished(subs int, d time.Duration) {
	if m == nil {
		return
	}
	m.subscriptionsGauge.Set(float64(subs))
	m.broadcastDuration.Observe(d.Seconds())
}

func (m *Manager) SubscriptionRemoved() {
	if m == nil {
		return
	}
	m.subscriptionsGone.Inc()
}

func (m *Manager) CacheResult(key, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(key, result).Inc()
}

func (m *Manager) CacheRefresh(key string, d time.Duration) {
	if m == nil {
		return
	}
	m.cacheRefresh.WithLabelValues(key).Observe(d.Seconds())
}

func (m *Manager) ContentRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.contentRequests.WithLabelValues(endpoint, status).Inc()
}

func (m *Manager) Reaction(added bool) {
	if m == nil {
		return
	}
	dir := "remove"
	if added {
		dir = "add"
	}
	m.reactions.WithLabelValues(dir).Inc()
}

func (m *Manager) BingoVote(outcome string) {
	if m == nil {
		return
	}
	m.bingoVotes.WithLabelValues(outcome).Inc()
}

func (m *Manager) BingoWin() {
	if m == nil {
		return
	}
	m.bingoWins.Inc()
}

func (m *Manager) Rollover(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.rollovers.WithLabelValues(result).Inc()
	if result == "ok" {
		m.rolloverDuration.Observe(d.Seconds())
	}
}

func (m *Manager) TaskFinished(task, result string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, result).Inc()
}
