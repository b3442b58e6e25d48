// Package prometheus implements ports.Metrics with the Prometheus client.
// Metric names use dots as separators ("userstore.get.success") and are
// exported as {namespace}_userstore_get_success. A collector is created on
// first use; its label names are fixed from the tags of that first call.
package prometheus

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/hicsail/kidney-web/internal/application/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe for concurrent use. Copies made by WithTags share the
// underlying collectors.
type Metrics struct {
	reg  *registry
	tags map[string]string
}

type registry struct {
	mu         sync.Mutex
	namespace  string
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
	labels     map[string][]string
}

// NewMetrics creates metrics registered on registerer under namespace.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	return &Metrics{
		reg: &registry{
			namespace:  sanitize(namespace),
			registerer: registerer,
			counters:   map[string]*prometheus.CounterVec{},
			histograms: map[string]*prometheus.HistogramVec{},
			gauges:     map[string]*prometheus.GaugeVec{},
			labels:     map[string][]string{},
		},
		tags: map[string]string{},
	}
}

func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	all := m.merge(tags)
	vec, labels := m.reg.counter(name, all)
	if vec == nil {
		return
	}
	vec.WithLabelValues(values(labels, all)...).Inc()
}

// RecordHistogram observes value. Names ending in "_ms" or "duration" get
// millisecond-scale buckets, "size_bytes" gets byte-scale buckets.
func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {
	all := m.merge(tags)
	vec, labels := m.reg.histogram(name, all)
	if vec == nil {
		return
	}
	vec.WithLabelValues(values(labels, all)...).Observe(value)
}

func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	all := m.merge(tags)
	vec, labels := m.reg.gauge(name, all)
	if vec == nil {
		return
	}
	vec.WithLabelValues(values(labels, all)...).Set(value)
}

func (m *Metrics) WithTags(tags map[string]string) ports.Metrics {
	return &Metrics{reg: m.reg, tags: m.merge(tags)}
}

func (m *Metrics) merge(tags map[string]string) map[string]string {
	out := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		out[sanitize(k)] = v
	}
	for k, v := range tags {
		out[sanitize(k)] = v
	}
	return out
}

func (r *registry) counter(name string, tags map[string]string) (*prometheus.CounterVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name) + "_total"
	if vec, ok := r.counters[full]; ok {
		return vec, r.labels[full]
	}
	labels := keys(tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: full, Help: "Counter " + name}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, nil
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, nil
		}
		vec = existing
	}
	r.counters[full] = vec
	r.labels[full] = labels
	return vec, labels
}

func (r *registry) histogram(name string, tags map[string]string) (*prometheus.HistogramVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if vec, ok := r.histograms[full]; ok {
		return vec, r.labels[full]
	}
	labels := keys(tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    full,
		Help:    "Histogram " + name,
		Buckets: bucketsFor(name),
	}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, nil
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, nil
		}
		vec = existing
	}
	r.histograms[full] = vec
	r.labels[full] = labels
	return vec, labels
}

func (r *registry) gauge(name string, tags map[string]string) (*prometheus.GaugeVec, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	full := r.fullName(name)
	if vec, ok := r.gauges[full]; ok {
		return vec, r.labels[full]
	}
	labels := keys(tags)
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: full, Help: "Gauge " + name}, labels)
	if err := r.registerer.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, nil
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, nil
		}
		vec = existing
	}
	r.gauges[full] = vec
	r.labels[full] = labels
	return vec, labels
}

func (r *registry) fullName(name string) string {
	if r.namespace == "" {
		return sanitize(name)
	}
	return r.namespace + "_" + sanitize(name)
}

func bucketsFor(name string) []float64 {
	switch {
	case strings.HasSuffix(name, "size_bytes"):
		// 1KB .. 1GB
		return prometheus.ExponentialBuckets(1024, 10, 7)
	case strings.HasSuffix(name, "_ms"), strings.HasSuffix(name, "duration"):
		// 1ms .. ~16s
		return prometheus.ExponentialBuckets(1, 2, 15)
	}
	return prometheus.DefBuckets
}

func keys(tags map[string]string) []string {
	out := make([]string, 0, len(tags))
	for k := range tags {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// values lines tags up with labels; missing labels get "" and tags unknown
// to the collector are dropped.
func values(labels []string, tags map[string]string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = tags[l]
	}
	return out
}

func sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
