// Prometheus text exposition
//
// Counters, gauges and histograms keyed by label sets, gathered from a
// Registry in registration order.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MetricType represents the type of metric
type MetricType int

const (
	TypeCounter MetricType = iota
	TypeGauge
	TypeHistogram
)

func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels represents metric labels as key-value pairs
type Labels map[string]string

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Key returns a canonical identifier for the label set.
func (l Labels) Key() string {
	var sb strings.Builder
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

// String returns labels in Prometheus format
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", k, l[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// with returns a copy of l with one extra label.
func (l Labels) with(k, v string) Labels {
	out := make(Labels, len(l)+1)
	for key, val := range l {
		out[key] = val
	}
	out[k] = v
	return out
}

// Metric is the interface for all metric types
type Metric interface {
	Name() string
	Help() string
	Type() MetricType
	Write(sb *strings.Builder)
}

// family holds the per label set values of one metric, kept in the order
// the label sets were first seen.
type family[T any] struct {
	name, help string

	mu     sync.Mutex
	order  []string
	labels map[string]Labels
	values map[string]*T
}

func (f *family[T]) init(name, help string) {
	f.name, f.help = name, help
	f.labels = make(map[string]Labels)
	f.values = make(map[string]*T)
}

func zero[T any]() *T { return new(T) }

// get returns the value for labels, creating it with mk. Caller holds mu.
func (f *family[T]) get(labels Labels, mk func() *T) *T {
	key := labels.Key()
	v, ok := f.values[key]
	if !ok {
		v = mk()
		f.values[key] = v
		f.labels[key] = labels
		f.order = append(f.order, key)
	}
	return v
}

func (f *family[T]) header(sb *strings.Builder, kind MetricType) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", f.name, f.help, f.name, kind)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Counter is a monotonically increasing metric
type Counter struct {
	family[uint64]
}

// NewCounter creates a new counter metric
func NewCounter(name, help string) *Counter {
	c := &Counter{}
	c.init(name, help)
	return c
}

func (c *Counter) Name() string     { return c.name }
func (c *Counter) Help() string     { return c.help }
func (c *Counter) Type() MetricType { return TypeCounter }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the counter by delta.
func (c *Counter) Add(labels Labels, delta uint64) {
	c.mu.Lock()
	*c.get(labels, zero[uint64]) += delta
	c.mu.Unlock()
}

// Get returns the current counter value for labels
func (c *Counter) Get(labels Labels) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[labels.Key()]; ok {
		return *v
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header(sb, TypeCounter)
	for _, key := range c.order {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, c.labels[key], *c.values[key])
	}
}

// Gauge is a metric that can go up and down
type Gauge struct {
	family[float64]
}

// NewGauge creates a new gauge metric
func NewGauge(name, help string) *Gauge {
	g := &Gauge{}
	g.init(name, help)
	return g
}

func (g *Gauge) Name() string     { return g.name }
func (g *Gauge) Help() string     { return g.help }
func (g *Gauge) Type() MetricType { return TypeGauge }

// Set sets the gauge to the given value
func (g *Gauge) Set(labels Labels, value float64) {
	g.mu.Lock()
	*g.get(labels, zero[float64]) = value
	g.mu.Unlock()
}

// Add adds delta to the gauge.
func (g *Gauge) Add(labels Labels, delta float64) {
	g.mu.Lock()
	*g.get(labels, zero[float64]) += delta
	g.mu.Unlock()
}

// Get returns the current gauge value for labels
func (g *Gauge) Get(labels Labels) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v, ok := g.values[labels.Key()]; ok {
		return *v
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.header(sb, TypeGauge)
	for _, key := range g.order {
		fmt.Fprintf(sb, "%s%s %s\n", g.name, g.labels[key], formatFloat(*g.values[key]))
	}
}

type histogramValue struct {
	count   uint64
	sum     float64
	buckets []uint64 // non-cumulative
}

// Histogram tracks the distribution of observations
type Histogram struct {
	family[histogramValue]
	bounds []float64
}

// NewHistogram creates a histogram with the given upper bounds.
func NewHistogram(name, help string, bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{bounds: sorted}
	h.init(name, help)
	return h
}

// LinearBuckets creates count buckets starting at start with width intervals
func LinearBuckets(start, width float64, count int) []float64 {
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start + float64(i)*width
	}
	return buckets
}

func (h *Histogram) Name() string     { return h.name }
func (h *Histogram) Help() string     { return h.help }
func (h *Histogram) Type() MetricType { return TypeHistogram }

// Observe records a value in the histogram
func (h *Histogram) Observe(labels Labels, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hv := h.get(labels, func() *histogramValue {
		return &histogramValue{buckets: make([]uint64, len(h.bounds))}
	})
	hv.count++
	hv.sum += value
	for i, bound := range h.bounds {
		if value <= bound {
			hv.buckets[i]++
			break
		}
	}
}

// HistogramSnapshot is a point-in-time copy of one label set.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64 // cumulative
}

// GetSnapshot returns a snapshot of histogram values for the given labels
func (h *Histogram) GetSnapshot(labels Labels) HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.bounds))}
	hv, ok := h.values[labels.Key()]
	if !ok {
		return snap
	}
	snap.Count, snap.Sum = hv.count, hv.sum
	var cumulative uint64
	for i, bound := range h.bounds {
		cumulative += hv.buckets[i]
		snap.Buckets[bound] = cumulative
	}
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header(sb, TypeHistogram)
	for _, key := range h.order {
		hv, labels := h.values[key], h.labels[key]
		var cumulative uint64
		for i, bound := range h.bounds {
			cumulative += hv.buckets[i]
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, labels.with("le", formatFloat(bound)), cumulative)
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, labels.with("le", "+Inf"), hv.count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, labels, formatFloat(hv.sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, labels, hv.count)
	}
}

// Registry holds all registered metrics
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric to the registry
func (r *Registry) Register(metric Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := metric.Name()
	if _, exists := r.metrics[name]; exists {
		return fmt.Errorf("metric %q already registered", name)
	}
	r.metrics[name] = metric
	r.order = append(r.order, name)
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(metric Metric) {
	if err := r.Register(metric); err != nil {
		panic(err)
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather collects all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
