package prometrics

import (
	"fmt"
	"sync"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry owns the Prometheus vectors behind the observability.Metrics port.
type Registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.RWMutex
	counters   map[observability.MetricKey]*prometheus.CounterVec
	histograms map[observability.MetricKey]*prometheus.HistogramVec
}

// New returns a registry writing to reg. A nil reg means the default registerer.
func New(reg prometheus.Registerer, namespace, subsystem string) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[observability.MetricKey]*prometheus.CounterVec),
		histograms: make(map[observability.MetricKey]*prometheus.HistogramVec),
	}
}

// Register creates and registers every vector in the given specs. Keys already known are skipped.
func (r *Registry) Register(counters, histograms []observability.MetricSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range counters {
		if _, ok := r.counters[s.Key]; ok {
			continue
		}
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: string(s.Key), Help: s.Help,
		}, s.Labels)
		if err := r.reg.Register(cv); err != nil {
			return fmt.Errorf("prometrics: register %s: %w", s.Key, err)
		}
		r.counters[s.Key] = cv
	}
	for _, s := range histograms {
		if _, ok := r.histograms[s.Key]; ok {
			continue
		}
		buckets := s.Buckets
		if buckets == nil {
			buckets = prometheus.DefBuckets
		}
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace, Subsystem: r.subsystem, Name: string(s.Key), Help: s.Help, Buckets: buckets,
		}, s.Labels)
		if err := r.reg.Register(hv); err != nil {
			return fmt.Errorf("prometrics: register %s: %w", s.Key, err)
		}
		r.histograms[s.Key] = hv
	}
	return nil
}

// Counter returns the registered counter, or a no-op for unknown keys.
func (r *Registry) Counter(name observability.MetricKey) observability.Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cv, ok := r.counters[name]; ok {
		return &counter{v: cv}
	}
	return observability.NopCounter()
}

// Histogram returns the registered histogram, or a no-op for unknown keys.
func (r *Registry) Histogram(name observability.MetricKey) observability.Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if hv, ok := r.histograms[name]; ok {
		return &histogram{v: hv}
	}
	return observability.NopHistogram()
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return &boundCounter{c: c.v.With(labelMap(labels))}
}

type boundCounter struct{ c prometheus.Counter }

func (c *boundCounter) Add(d float64) { c.c.Add(d) }

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return &boundHistogram{o: h.v.With(labelMap(labels))}
}

type boundHistogram struct{ o prometheus.Observer }

func (h *boundHistogram) Observe(v float64) { h.o.Observe(v) }

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
