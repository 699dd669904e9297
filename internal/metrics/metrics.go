package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackmichael/crossfeed/internal/domain"
)

const namespace = "crossfeed"

// Metrics is the Prometheus implementation of domain.Metrics. Each instance
// owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	filterDecisions *prometheus.CounterVec
	resolverCache   *prometheus.CounterVec
	postsIngested   *prometheus.CounterVec
	timelineUpserts *prometheus.CounterVec
}

var _ domain.Metrics = (*Metrics)(nil)

// New registers the pipeline counters plus the Go runtime and process
// collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		filterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_decisions_total",
			Help:      "Feed filter decisions by platform, outcome and reason.",
		}, []string{"platform", "include", "reason"}),
		resolverCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_target_cache_lookups_total",
			Help:      "Reply target cache lookups by result.",
		}, []string{"result"}),
		postsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_ingested_total",
			Help:      "Posts received from each platform before filtering.",
		}, []string{"platform"}),
		timelineUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_upserts_total",
			Help:      "Timeline entry writes by source context.",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.filterDecisions,
		m.resolverCache,
		m.postsIngested,
		m.timelineUpserts,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveFilterDecision(platform domain.Platform, decision domain.Decision) {
	m.filterDecisions.WithLabelValues(string(platform), strconv.FormatBool(decision.Include), string(decision.Reason)).Inc()
}

func (m *Metrics) ObserveResolverCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.resolverCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePostIngested(platform domain.Platform) {
	m.postsIngested.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) ObserveTimelineUpsert(source string) {
	m.timelineUpserts.WithLabelValues(source).Inc()
}
