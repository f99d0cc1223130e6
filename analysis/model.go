// Package analysis holds the results of a run as the UI presents them: one
// column per MCO parameter and KPI, one row per optimal point reported.
//
// A Model has a single writer. Events arriving from the notification server
// reach it through a Dispatcher, which applies them one at a time on its own
// goroutine.
package analysis

import (
	"fmt"
	"slices"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
)

// StepCounter numbers result rows. Each Model owns one.
type StepCounter struct {
	next int
}

// Next returns the next step number, starting at 1.
func (c *StepCounter) Next() int {
	c.next++
	return c.next
}

// Reset restarts numbering at 1.
func (c *StepCounter) Reset() {
	c.next = 0
}

// Row is one evaluated point.
type Row struct {
	Step    int
	Values  []any
	Weights []float64
}

// Model is the results table of the current run.
type Model struct {
	columns  []string
	rows     []Row
	steps    StepCounter
	running  bool
	finished bool
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// Columns returns the parameter names followed by the KPI names.
func (m *Model) Columns() []string {
	return slices.Clone(m.columns)
}

// Rows returns the rows in arrival order.
func (m *Model) Rows() []Row {
	return slices.Clone(m.rows)
}

// Running reports whether a run has started and not yet finished.
func (m *Model) Running() bool { return m.running }

// Finished reports whether the last run sent its FinishEvent.
func (m *Model) Finished() bool { return m.finished }

// Clear removes every row and column and restarts step numbering.
func (m *Model) Clear() {
	m.columns = nil
	m.rows = nil
	m.steps.Reset()
	m.running = false
	m.finished = false
}

// Apply updates the model with ev. A StartEvent clears the previous run.
func (m *Model) Apply(ev event.Event) error {
	switch e := ev.(type) {
	case *event.StartEvent:
		m.Clear()
		m.columns = append(slices.Clone(e.ParameterNames), e.KPINames...)
		m.running = true
	case *event.ProgressEvent:
		return m.addRow(e)
	case *event.FinishEvent:
		m.running = false
		m.finished = true
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unsupported event %T", errors.ErrInvalidData, ev),
			"Model", "Apply", "event dispatch")
	}
	return nil
}

func (m *Model) addRow(e *event.ProgressEvent) error {
	if !m.running {
		return errors.WrapInvalid(errors.ErrNotStarted, "Model", "Apply", "progress before start")
	}

	values := make([]any, 0, len(e.OptimalPoint)+len(e.OptimalKPIs))
	for _, dv := range e.OptimalPoint {
		values = append(values, dv.Value)
	}
	for _, dv := range e.OptimalKPIs {
		values = append(values, dv.Value)
	}
	if len(values) != len(m.columns) {
		return errors.WrapInvalid(
			fmt.Errorf("%w: got %d values for %d columns", errors.ErrInvalidData, len(values), len(m.columns)),
			"Model", "Apply", "row shape check")
	}

	m.rows = append(m.rows, Row{
		Step:    m.steps.Next(),
		Values:  values,
		Weights: slices.Clone(e.Weights),
	})
	return nil
}
