package observability

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds metrics and renders them in the Prometheus text
// exposition format.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

// Histogram tracks a distribution over fixed upper bounds.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, not cumulative
	sum    float64
	count  uint64
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram registers a histogram. Nil buckets use DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns latency buckets in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records v in the first bucket whose bound it does not exceed.
// Values above every bound only count toward +Inf.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
			return
		}
	}
}

func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Handler serves the registry for Prometheus scraping.
func (r *MetricsRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WritePrometheus(w)
	})
}

// WritePrometheus writes all metrics sorted by name so output is stable.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(w, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(w, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}
	for _, name := range sortedKeys(r.histos) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(w, h)
		h.mu.Unlock()
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func writeMetric(w io.Writer, name, kind, help string, labels map[string]string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(labels), formatFloat(value))
}

func writeHistogram(w io.Writer, h *Histogram) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += h.counts[i]
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(withLabel(h.labels, "le", formatFloat(bound))), cumulative)
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, formatLabels(withLabel(h.labels, "le", "+Inf")), h.count)
	fmt.Fprintf(w, "%s_sum%s %s\n", h.name, formatLabels(h.labels), formatFloat(h.sum))
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, formatLabels(h.labels), h.count)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, k := range sortedKeys(labels) {
		parts = append(parts, k+"="+strconv.Quote(labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for lk, lv := range labels {
		out[lk] = lv
	}
	out[k] = v
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// RAGMetrics groups the metrics recorded by retrieval, the assistant and
// ingestion.
type RAGMetrics struct {
	Registry *MetricsRegistry

	RetrievalsTotal      *Counter
	EmptyRetrievalsTotal *Counter
	FragmentsTotal       *Counter
	CollaboratorErrors   *Counter
	RetrievalDuration    *Histogram

	LLMRequestsTotal *Counter
	LLMErrorsTotal   *Counter
	LLMDuration      *Histogram

	RecordsIngested *Counter
	RecordsDeleted  *Counter

	HTTPInFlight *Gauge
	HTTPDuration *Histogram
}

// NewRAGMetrics registers all lexrag metrics on a fresh registry.
func NewRAGMetrics() *RAGMetrics {
	r := NewMetricsRegistry()
	return &RAGMetrics{
		Registry: r,

		RetrievalsTotal:      r.NewCounter("lexrag_retrievals_total", "Total retrieval requests", nil),
		EmptyRetrievalsTotal: r.NewCounter("lexrag_retrievals_empty_total", "Retrievals that found no grounding", nil),
		FragmentsTotal:       r.NewCounter("lexrag_fragments_total", "Context fragments returned", nil),
		CollaboratorErrors:   r.NewCounter("lexrag_collaborator_errors_total", "Embedding or index failures during retrieval", nil),
		RetrievalDuration:    r.NewHistogram("lexrag_retrieval_duration_seconds", "Retrieval latency", nil, nil),

		LLMRequestsTotal: r.NewCounter("lexrag_llm_requests_total", "Total chat completions", nil),
		LLMErrorsTotal:   r.NewCounter("lexrag_llm_errors_total", "Failed chat completions", nil),
		LLMDuration:      r.NewHistogram("lexrag_llm_duration_seconds", "Chat completion latency", nil, nil),

		RecordsIngested: r.NewCounter("lexrag_records_ingested_total", "Articles upserted into the index", nil),
		RecordsDeleted:  r.NewCounter("lexrag_records_deleted_total", "Stale articles deleted from the index", nil),

		HTTPInFlight: r.NewGauge("lexrag_http_requests_in_flight", "HTTP requests being served", nil),
		HTTPDuration: r.NewHistogram("lexrag_http_request_duration_seconds", "HTTP request latency", nil, nil),
	}
}

func (m *RAGMetrics) Handler() http.Handler {
	return m.Registry.Handler()
}

// RecordRetrieval records one retrieval. Nil receivers are ignored so
// components can run without metrics.
func (m *RAGMetrics) RecordRetrieval(d time.Duration, fragments int, err error) {
	if m == nil {
		return
	}
	m.RetrievalsTotal.Inc()
	m.RetrievalDuration.Observe(d.Seconds())
	switch {
	case err != nil:
		m.CollaboratorErrors.Inc()
	case fragments == 0:
		m.EmptyRetrievalsTotal.Inc()
	default:
		m.FragmentsTotal.Add(float64(fragments))
	}
}

// RecordLLM records one chat completion.
func (m *RAGMetrics) RecordLLM(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.Inc()
	m.LLMDuration.Observe(d.Seconds())
	if err != nil {
		m.LLMErrorsTotal.Inc()
	}
}

// RecordIngest adds upserted and deleted record counts.
func (m *RAGMetrics) RecordIngest(upserted, deleted int) {
	if m == nil {
		return
	}
	m.RecordsIngested.Add(float64(upserted))
	m.RecordsDeleted.Add(float64(deleted))
}

// TrackRequest marks an HTTP request as in flight. The returned func ends it.
func (m *RAGMetrics) TrackRequest() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.HTTPInFlight.Inc()
	return func() {
		m.HTTPInFlight.Dec()
		m.HTTPDuration.ObserveDuration(start)
	}
}
