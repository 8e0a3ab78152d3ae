// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/agendagraph/graph"
	"github.com/brunobiangulo/agendagraph/linker"
	"github.com/brunobiangulo/agendagraph/router"
)

const namespace = "agendagraph"

// Document outcomes.
const (
	OutcomeLinked   = "linked"
	OutcomeUnlinked = "unlinked"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors on a dedicated registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	meetings     prometheus.Counter
	documents    *prometheus.CounterVec
	graphWrites  *prometheus.CounterVec
	routes       *prometheus.CounterVec
	queries      *prometheus.HistogramVec
	enhancements *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		meetings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meetings_processed_total",
			Help:      "Agendas processed into the graph.",
		}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Candidate documents by linking outcome and strategy.",
		}, []string{"outcome", "strategy"}),
		graphWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_writes_total",
			Help:      "Graph writes by kind (vertex, edge, skipped, failed).",
		}, []string{"kind"}),
		routes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Routed questions by method and intent.",
		}, []string{"method", "intent"}),
		queries: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end question answering latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"method"}),
		enhancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enhancements_total",
			Help:      "Answers checked by the completeness enhancer, by whether a listing was appended.",
		}, []string{"applied"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.meetings, m.documents, m.graphWrites, m.routes, m.queries, m.enhancements,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MeetingProcessed counts one processed agenda.
func (m *Metrics) MeetingProcessed() {
	if m == nil {
		return
	}
	m.meetings.Inc()
}

// ObserveLinks counts each document of a linking run by outcome.
func (m *Metrics) ObserveLinks(ml *linker.MeetingLinks) {
	if m == nil || ml == nil {
		return
	}
	for _, docs := range ml.Items {
		for _, d := range docs {
			m.documents.WithLabelValues(OutcomeLinked, d.Strategy).Inc()
		}
	}
	if n := len(ml.Unlinked); n > 0 {
		m.documents.WithLabelValues(OutcomeUnlinked, "").Add(float64(n))
	}
	if n := len(ml.Failed); n > 0 {
		m.documents.WithLabelValues(OutcomeFailed, "").Add(float64(n))
	}
}

// ObserveGraph adds the counts of a graph build.
func (m *Metrics) ObserveGraph(s graph.Stats) {
	if m == nil {
		return
	}
	m.graphWrites.WithLabelValues("vertex").Add(float64(s.Vertices))
	m.graphWrites.WithLabelValues("edge").Add(float64(s.Edges))
	m.graphWrites.WithLabelValues("skipped").Add(float64(s.Skipped))
	m.graphWrites.WithLabelValues("failed").Add(float64(s.Failed))
}

// ObserveRoute counts a routing decision.
func (m *Metrics) ObserveRoute(r router.Route) {
	if m == nil {
		return
	}
	m.routes.WithLabelValues(string(r.Method), string(r.Intent)).Inc()
}

// ObserveQuery records how long answering a question took.
func (m *Metrics) ObserveQuery(method router.Method, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(string(method)).Observe(d.Seconds())
}

// ObserveEnhancement counts an enhancer decision.
func (m *Metrics) ObserveEnhancement(applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.enhancements.WithLabelValues(label).Inc()
}
