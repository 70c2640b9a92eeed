// Package metrics provides ports.Metrics sinks: Prometheus for running
// stages and an in-memory recorder for tests.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fvgtrader"

// Prometheus registers metrics lazily on first use. The label names of a
// metric are fixed by its first observation; later observations fill
// missing labels with "" and ignore unknown ones.
type Prometheus struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	labelNames map[string][]string
}

// NewPrometheus creates a sink with its own registry, including the Go
// runtime and process collectors.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &Prometheus{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		labelNames: make(map[string][]string),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// IncCounter implements ports.Metrics.
func (p *Prometheus) IncCounter(name string, labels map[string]string) {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      "Counter " + name + ".",
		}, p.names(name, labels))
		p.registry.MustRegister(vec)
		p.counters[name] = vec
	}
	values := p.values(name, labels)
	p.mu.Unlock()
	vec.WithLabelValues(values...).Inc()
}

// ObserveDuration implements ports.Metrics. Durations are recorded in seconds.
func (p *Prometheus) ObserveDuration(name string, d time.Duration, labels map[string]string) {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      "Duration of " + name + ".",
			Buckets:   prometheus.DefBuckets,
		}, p.names(name, labels))
		p.registry.MustRegister(vec)
		p.histograms[name] = vec
	}
	values := p.values(name, labels)
	p.mu.Unlock()
	vec.WithLabelValues(values...).Observe(d.Seconds())
}

// SetGauge implements ports.Metrics.
func (p *Prometheus) SetGauge(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      "Gauge " + name + ".",
		}, p.names(name, labels))
		p.registry.MustRegister(vec)
		p.gauges[name] = vec
	}
	values := p.values(name, labels)
	p.mu.Unlock()
	vec.WithLabelValues(values...).Set(value)
}

// names fixes the label set of a metric on first use. Caller holds p.mu.
func (p *Prometheus) names(name string, labels map[string]string) []string {
	if names, ok := p.labelNames[name]; ok {
		return names
	}
	names := sortedKeys(labels)
	p.labelNames[name] = names
	return names
}

// values orders label values to match the metric's label names. Caller holds p.mu.
func (p *Prometheus) values(name string, labels map[string]string) []string {
	names := p.labelNames[name]
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = labels[n]
	}
	return values
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
