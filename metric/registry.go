package metric

import (
	stderrors "errors"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/force-h2020/wfmanager/errors"
)

// MetricsRegistrar is the registration side of a MetricsRegistry. Packages
// that own optional metrics (worker pools, dispatchers) depend on this
// rather than on the concrete registry.
type MetricsRegistrar interface {
	Register(owner, name string, c prometheus.Collector) error
	Unregister(owner, name string) bool
}

type collectorKey struct {
	owner, name string
}

func (k collectorKey) String() string { return k.owner + "." + k.name }

// MetricsRegistry is a private Prometheus registry preloaded with the core
// metrics and the Go runtime collectors. Additional collectors are tracked
// per owner so they can be removed again.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics

	mu    sync.Mutex
	owned map[collectorKey]prometheus.Collector
}

// NewMetricsRegistry creates a registry holding the core metrics.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		Metrics:            NewMetrics(),
		owned:              make(map[collectorKey]prometheus.Collector),
	}

	r.prometheusRegistry.MustRegister(r.Metrics.collectors()...)
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Register adds c under (owner, name). Registering the same pair twice, or
// a collector whose descriptors clash with one already registered, is an
// invalid error.
func (r *MetricsRegistry) Register(owner, name string, c prometheus.Collector) error {
	key := collectorKey{owner: owner, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owned[key]; exists {
		return errors.WrapInvalid(fmt.Errorf("%w: metric %s", errors.ErrConflict, key),
			"MetricsRegistry", "Register", "duplicate check")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for %s", key))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register with prometheus")
	}

	r.owned[key] = c
	return nil
}

// Unregister removes the collector registered under (owner, name) and
// reports whether there was one.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	key := collectorKey{owner: owner, name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.owned[key]
	if !exists || !r.prometheusRegistry.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}

// Owned returns the "owner.name" keys of the collectors added through
// Register, sorted.
func (r *MetricsRegistry) Owned() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.owned))
	for k := range r.owned {
		keys = append(keys, k.String())
	}
	slices.Sort(keys)
	return keys
}
