// Package metric holds the Prometheus metrics of the workflow manager.
//
// MetricsRegistry wraps a private Prometheus registry that already carries
// the core metrics (Metrics) plus the Go runtime collectors. Components that
// own extra collectors register them through the MetricsRegistrar interface,
// which rejects a duplicate (owner, name) pair instead of panicking:
//
//	registry := metric.NewMetricsRegistry()
//	tree, _ := workflowtree.New(wf, resolver, workflowtree.WithMetrics(registry.CoreMetrics()))
//
// Every Record method on a nil *Metrics is a no-op, so components can take
// metrics as an optional dependency.
//
// Server exposes the registry over HTTP at /metrics for `wfmanager listen`.
package metric
