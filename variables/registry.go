package variables

import (
	"log/slog"

	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/workflow"
)

// Registry holds the current stack of a workflow and serves cumulative views
// of it. The views are pure functions of the stack and are cached until the
// next successful Recompute.
type Registry struct {
	wf       *workflow.Workflow
	resolver factory.Resolver
	logger   *slog.Logger

	stack      [][]Variable
	generation uint64
	lastErr    error

	cacheGen  uint64
	available [][]Variable
	byType    []map[string][]string
}

// NewRegistry creates a registry for wf. Call Recompute (or Bind) before
// reading from it.
func NewRegistry(wf *workflow.Workflow, resolver factory.Resolver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		wf:       wf,
		resolver: resolver,
		logger:   logger.With("component", "variables"),
		stack:    [][]Variable{{}},
	}
}

// Recompute rebuilds the stack from the workflow. On failure the previous
// stack is kept and the error returned.
func (r *Registry) Recompute() error {
	stack, err := ComputeStack(r.wf, r.resolver, r.logger)
	r.lastErr = err
	if err != nil {
		return err
	}
	r.stack = stack
	r.generation++
	r.logger.Debug("Variable stack recomputed",
		"generation", r.generation,
		"layers", len(stack)-1)
	return nil
}

// Bind recomputes now and on every subsequent change whose kind is in
// Triggers. The returned function stops listening. Errors raised by
// recomputes triggered from changes are available from Err.
func (r *Registry) Bind() func() {
	_ = r.Recompute()
	return r.wf.Subscribe(func(c workflow.Change) {
		if Triggered(c.Kind) {
			_ = r.Recompute()
		}
	})
}

// Err returns the error of the last Recompute, if any.
func (r *Registry) Err() error { return r.lastErr }

// Generation increases by one on every successful Recompute.
func (r *Registry) Generation() uint64 { return r.generation }

// Stack returns a copy of the raw stack.
func (r *Registry) Stack() [][]Variable {
	out := make([][]Variable, len(r.stack))
	for i, entry := range r.stack {
		out[i] = append([]Variable{}, entry...)
	}
	return out
}

func (r *Registry) refresh() {
	if r.available != nil && r.cacheGen == r.generation {
		return
	}

	r.available = make([][]Variable, len(r.stack))
	r.byType = make([]map[string][]string, len(r.stack))
	var acc []Variable
	for k, entry := range r.stack {
		acc = append(acc, entry...)
		r.available[k] = append([]Variable{}, acc...)

		index := make(map[string][]string)
		for _, v := range r.available[k] {
			index[v.Type] = append(index[v.Type], v.Name)
		}
		r.byType[k] = index
	}
	r.cacheGen = r.generation
}

func (r *Registry) clamp(k int) int {
	if k >= len(r.stack) {
		return len(r.stack) - 1
	}
	return k
}

// Available returns every variable visible to layer k, in declaration order
// and without de-duplication. k == len(layers) is the view after the last
// layer, which is what KPIs are evaluated against. Indices past the end are
// clamped; negative indices yield nil.
func (r *Registry) Available(k int) []Variable {
	if k < 0 {
		return nil
	}
	r.refresh()
	return append([]Variable{}, r.available[r.clamp(k)]...)
}

// AvailableNames returns the names of Available(k).
func (r *Registry) AvailableNames(k int) []string {
	vars := r.Available(k)
	if vars == nil {
		return nil
	}
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// AvailableByType returns the names of Available(k) grouped by type.
func (r *Registry) AvailableByType(k int) map[string][]string {
	if k < 0 {
		return nil
	}
	r.refresh()
	out := make(map[string][]string, len(r.byType[r.clamp(k)]))
	for typ, names := range r.byType[r.clamp(k)] {
		out[typ] = append([]string{}, names...)
	}
	return out
}

// DataSourceOutputs returns the named outputs of all layers in order.
func (r *Registry) DataSourceOutputs() []Variable {
	out := []Variable{}
	for _, entry := range r.stack[1:] {
		out = append(out, entry...)
	}
	return out
}

// MCOParameterNames returns the names of the named MCO parameters.
func (r *Registry) MCOParameterNames() []string {
	names := make([]string, 0, len(r.stack[0]))
	for _, v := range r.stack[0] {
		names = append(names, v.Name)
	}
	return names
}
