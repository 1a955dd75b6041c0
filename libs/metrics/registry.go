// Package metrics exposes the simulator's prometheus instrumentation.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all agora metrics
	Namespace = "agora"
)

// Registry wraps prometheus.Registry with agora-specific helpers
type Registry struct {
	reg *prometheus.Registry
	mu  sync.Mutex

	counters  map[string]prometheus.Counter
	gauges    map[string]prometheus.Gauge
	gaugeVecs map[string]*prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		reg:       prometheus.NewRegistry(),
		counters:  make(map[string]prometheus.Counter),
		gauges:    make(map[string]prometheus.Gauge),
		gaugeVecs: make(map[string]*prometheus.GaugeVec),
	}
}

// Prometheus returns the underlying prometheus registry
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// Handler returns an http handler serving the registry in the prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Counter creates or retrieves a counter metric
func (r *Registry) Counter(name, help string) prometheus.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if counter, exists := r.counters[name]; exists {
		return counter
	}

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
	r.reg.MustRegister(counter)
	r.counters[name] = counter
	return counter
}

// Gauge creates or retrieves a gauge metric
func (r *Registry) Gauge(name, help string) prometheus.Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gauge, exists := r.gauges[name]; exists {
		return gauge
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	})
	r.reg.MustRegister(gauge)
	r.gauges[name] = gauge
	return gauge
}

// GaugeVec creates or retrieves a labeled gauge metric
func (r *Registry) GaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gauge, exists := r.gaugeVecs[name]; exists {
		return gauge
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(gauge)
	r.gaugeVecs[name] = gauge
	return gauge
}
