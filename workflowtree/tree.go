// Package workflowtree is the editing controller of a workflow. It keeps the
// variable registry and the view tree in step with the workflow, re-verifies
// after every change, and maintains a cursor over the resulting errors.
//
// All methods must be called from a single goroutine, the same one that
// mutates the workflow.
package workflowtree

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/modelview"
	"github.com/force-h2020/wfmanager/variables"
	"github.com/force-h2020/wfmanager/verifier"
	"github.com/force-h2020/wfmanager/workflow"
)

// ErrorLocation is one line of error text and the node that owns it.
type ErrorLocation struct {
	Node modelview.Node
	Line string
}

// WorkflowTree is the controller of one editing session.
type WorkflowTree struct {
	wf       *workflow.Workflow
	resolver factory.Resolver
	logger   *slog.Logger
	metrics  *metric.Metrics

	registry *variables.Registry
	builder  *modelview.Builder
	root     *modelview.WorkflowView

	issues []verifier.Issue
	errs   []ErrorLocation
	cursor int

	// err is the structural error of the last change, if any.
	err error
	// stale holds the error of a failed rebuild. While set, root lags behind
	// the workflow and every change retries the rebuild.
	stale error
	handled int

	handling    bool
	pending     []workflow.Change
	unsubscribe func()
	closed      bool
}

// New builds the controller for wf, verifies it and starts reacting to its
// changes. A structural error (corrupted slot bindings, plugin failure)
// prevents construction.
func New(wf *workflow.Workflow, resolver factory.Resolver, opts ...Option) (*WorkflowTree, error) {
	t := &WorkflowTree{
		wf:       wf,
		resolver: resolver,
		logger:   slog.Default(),
		cursor:   -1,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "workflowtree")

	t.registry = variables.NewRegistry(wf, resolver, t.logger)
	if err := t.registry.Recompute(); err != nil {
		return nil, err
	}
	t.builder = modelview.NewBuilder(resolver, t.registry, t.logger)

	root, err := t.builder.Workflow(wf)
	if err != nil {
		return nil, err
	}
	t.root = root

	if err := t.Verify(); err != nil {
		return nil, err
	}
	t.unsubscribe = wf.Subscribe(t.onChange)
	return t, nil
}

// Workflow returns the edited workflow.
func (t *WorkflowTree) Workflow() *workflow.Workflow { return t.wf }

// Root returns the current view tree. The tree is replaced on structural
// changes, so callers should not hold on to it across mutations.
func (t *WorkflowTree) Root() *modelview.WorkflowView { return t.root }

// Registry returns the variable registry.
func (t *WorkflowTree) Registry() *variables.Registry { return t.registry }

// Issues returns the issues of the last verification pass.
func (t *WorkflowTree) Issues() []verifier.Issue {
	return append([]verifier.Issue(nil), t.issues...)
}

// Err returns the structural error raised while handling the last change.
func (t *WorkflowTree) Err() error { return t.err }

// Valid reports whether the workflow can be run: the last verification found
// no issues and no structural error is outstanding.
func (t *WorkflowTree) Valid() bool {
	return t.err == nil && t.stale == nil && len(t.issues) == 0 && t.root.Valid()
}

// Close stops reacting to workflow changes. It is idempotent.
func (t *WorkflowTree) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.unsubscribe()
}

func (t *WorkflowTree) onChange(c workflow.Change) {
	if t.closed {
		return
	}
	if t.handling {
		t.pending = append(t.pending, c)
		return
	}

	t.handling = true
	defer func() { t.handling = false }()

	queue := []workflow.Change{c}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		t.handled++

		err := t.apply(next)
		if verr := t.Verify(); err == nil {
			err = verr
		}
		t.err = err
		if t.err != nil {
			t.logger.Error("Failed to handle workflow change", "change", next.Kind.String(), "error", t.err)
		}

		queue = append(queue, t.pending...)
		t.pending = nil
	}
}

func (t *WorkflowTree) apply(c workflow.Change) error {
	if c.Kind == workflow.ChangeSlots {
		ds, ok := c.Subject.(*workflow.DataSourceModel)
		if ok {
			if view := t.root.DataSource(ds); view != nil {
				if err := t.builder.ResetSlots(view); err != nil {
					return err
				}
			}
		}
	}

	rebuild := c.Kind == workflow.ChangeStructure || t.stale != nil
	if !rebuild && !variables.Triggered(c.Kind) {
		return nil
	}
	if err := t.registry.Recompute(); err != nil {
		return err
	}

	if rebuild {
		root, err := t.builder.Workflow(t.wf)
		if err != nil {
			t.stale = err
			return err
		}
		t.root = root
		t.stale = nil
		return nil
	}
	t.builder.RefreshChoices(t.root)
	return nil
}

// Verify runs a full verification pass and annotates the tree. A plugin
// failure aborts the pass, leaves the previous annotations in place and is
// returned.
func (t *WorkflowTree) Verify() error {
	start := time.Now()
	issues, err := verifier.Verify(t.wf, t.resolver, t.logger)
	if err != nil {
		t.metrics.RecordVerification(time.Since(start), nil, err)
		return err
	}

	modelview.Annotate(t.root, issues)
	t.issues = issues

	var selected *ErrorLocation
	if loc, ok := t.CurrentError(); ok {
		selected = &loc
	}
	t.errs = t.errs[:0]
	modelview.Walk(t.root, func(n modelview.Node) bool {
		for _, line := range n.Messages() {
			t.errs = append(t.errs, ErrorLocation{Node: n, Line: line})
		}
		return true
	})
	t.cursor = -1
	if selected != nil {
		for i, loc := range t.errs {
			if loc.Node.Model() == selected.Node.Model() && loc.Line == selected.Line {
				t.cursor = i
				break
			}
		}
	}

	counts := make(map[string]int)
	for _, issue := range issues {
		counts[string(issue.Type)]++
	}
	t.metrics.RecordVerification(time.Since(start), counts, nil)

	t.logger.Debug("Workflow verified",
		"valid", t.root.Valid(),
		"issues", len(issues),
		"duration", time.Since(start))
	return nil
}

// Errors returns every error line in tree order.
func (t *WorkflowTree) Errors() []ErrorLocation {
	return append([]ErrorLocation(nil), t.errs...)
}

func (t *WorkflowTree) move(to int) bool {
	if to < 0 || to >= len(t.errs) {
		return false
	}
	t.cursor = to
	return true
}

// FirstError selects the first error.
func (t *WorkflowTree) FirstError() bool { return t.move(0) }

// LastError selects the last error.
func (t *WorkflowTree) LastError() bool { return t.move(len(t.errs) - 1) }

// NextError selects the error after the current one, or the first error if
// none is selected. At the last error it returns false and keeps the
// selection.
func (t *WorkflowTree) NextError() bool { return t.move(t.cursor + 1) }

// PreviousError selects the error before the current one, or the last error
// if none is selected. At the first error it returns false and keeps the
// selection.
func (t *WorkflowTree) PreviousError() bool {
	if t.cursor < 0 {
		return t.LastError()
	}
	return t.move(t.cursor - 1)
}

// CurrentError returns the selected error.
func (t *WorkflowTree) CurrentError() (ErrorLocation, bool) {
	if t.cursor < 0 || t.cursor >= len(t.errs) {
		return ErrorLocation{}, false
	}
	return t.errs[t.cursor], true
}

// Select selects the first error of the node mirroring model.
func (t *WorkflowTree) Select(model any) bool {
	for i, loc := range t.errs {
		if loc.Node.Model() == model {
			t.cursor = i
			return true
		}
	}
	return false
}

// SelectedErrorMessage returns the full error text of the selected node, or
// "" when nothing is selected.
func (t *WorkflowTree) SelectedErrorMessage() string {
	loc, ok := t.CurrentError()
	if !ok {
		return ""
	}
	return loc.Node.ErrorMessage()
}

func notFound(method, what string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, what),
		"WorkflowTree", method, "locate "+what)
}
