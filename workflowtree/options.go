package workflowtree

import (
	"log/slog"

	"github.com/force-h2020/wfmanager/metric"
)

// Option configures a WorkflowTree.
type Option func(*WorkflowTree)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *WorkflowTree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics records verification metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(t *WorkflowTree) {
		t.metrics = m
	}
}
