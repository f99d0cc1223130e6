package analysis_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/analysis"
	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/event"
	"github.com/force-h2020/wfmanager/metric"
)

var logger = slog.New(slog.DiscardHandler)

func start(names ...string) *event.StartEvent {
	return &event.StartEvent{ParameterNames: names[:1], KPINames: names[1:]}
}

func progress(point, kpi float64) *event.ProgressEvent {
	return &event.ProgressEvent{
		OptimalPoint: []event.DataValue{{Type: "NUMBER", Value: point, Name: "x"}},
		OptimalKPIs:  []event.DataValue{{Type: "NUMBER", Value: kpi, Name: "y"}},
		Weights:      []float64{1},
	}
}

func TestModel_Run(t *testing.T) {
	m := analysis.NewModel()

	require.NoError(t, m.Apply(start("x", "y")))
	assert.Equal(t, []string{"x", "y"}, m.Columns())
	assert.True(t, m.Running())

	require.NoError(t, m.Apply(progress(1, 2)))
	require.NoError(t, m.Apply(progress(3, 4)))
	require.NoError(t, m.Apply(&event.FinishEvent{}))

	rows := m.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, analysis.Row{Step: 1, Values: []any{1.0, 2.0}, Weights: []float64{1}}, rows[0])
	assert.Equal(t, 2, rows[1].Step)
	assert.False(t, m.Running())
	assert.True(t, m.Finished())
}

func TestModel_StepsRestartOnClear(t *testing.T) {
	m := analysis.NewModel()
	require.NoError(t, m.Apply(start("x", "y")))
	require.NoError(t, m.Apply(progress(1, 2)))
	require.NoError(t, m.Apply(progress(1, 2)))

	// A new run clears the table.
	require.NoError(t, m.Apply(start("x", "y")))
	assert.Empty(t, m.Rows())
	require.NoError(t, m.Apply(progress(5, 6)))
	assert.Equal(t, 1, m.Rows()[0].Step)

	m.Clear()
	assert.Empty(t, m.Columns())
	assert.False(t, m.Finished())
}

func TestModel_CountersAreNotShared(t *testing.T) {
	a, b := analysis.NewModel(), analysis.NewModel()
	for _, m := range []*analysis.Model{a, b} {
		require.NoError(t, m.Apply(start("x", "y")))
	}
	require.NoError(t, a.Apply(progress(1, 1)))
	require.NoError(t, a.Apply(progress(1, 1)))
	require.NoError(t, b.Apply(progress(1, 1)))

	assert.Equal(t, 1, b.Rows()[0].Step)
}

func TestModel_Rejects(t *testing.T) {
	m := analysis.NewModel()

	err := m.Apply(progress(1, 2))
	assert.ErrorIs(t, err, errors.ErrNotStarted)

	require.NoError(t, m.Apply(start("x", "y", "z")))
	err = m.Apply(progress(1, 2))
	assert.ErrorIs(t, err, errors.ErrInvalidData)
	assert.True(t, errors.IsInvalid(err))
	assert.Empty(t, m.Rows())
}

func TestStepCounter(t *testing.T) {
	var c analysis.StepCounter
	assert.Equal(t, 1, c.Next())
	assert.Equal(t, 2, c.Next())
	c.Reset()
	assert.Equal(t, 1, c.Next())
}

func TestDispatcher(t *testing.T) {
	var mu sync.Mutex
	var applied []string

	d := analysis.NewDispatcher(analysis.NewModel(), metric.NewMetricsRegistry(),
		analysis.WithLogger(logger),
		analysis.OnApply(func(_ *analysis.Model, ev event.Event) {
			mu.Lock()
			defer mu.Unlock()
			switch ev.(type) {
			case *event.StartEvent:
				applied = append(applied, "start")
			case *event.ProgressEvent:
				applied = append(applied, "progress")
			case *event.FinishEvent:
				applied = append(applied, "finish")
			}
		}))
	require.NoError(t, d.Start(context.Background()))

	// Events come from several goroutines, but the model sees them one at a
	// time.
	d.Dispatch(start("x", "y"))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(progress(float64(i), 0))
		}()
	}
	wg.Wait()
	d.Dispatch(&event.FinishEvent{})
	require.NoError(t, d.Stop(time.Second))

	model := d.Model()
	require.Len(t, model.Rows(), 20)
	for i, row := range model.Rows() {
		assert.Equal(t, i+1, row.Step)
	}
	assert.True(t, model.Finished())
	assert.Equal(t, "start", applied[0])
	assert.Equal(t, "finish", applied[len(applied)-1])
}

func TestDispatcher_SkipsRejectedEvents(t *testing.T) {
	calls := 0
	d := analysis.NewDispatcher(analysis.NewModel(), nil,
		analysis.WithLogger(logger),
		analysis.OnApply(func(*analysis.Model, event.Event) { calls++ }))
	require.NoError(t, d.Start(context.Background()))

	d.Dispatch(progress(1, 2))
	d.Dispatch(start("x", "y"))
	require.NoError(t, d.Stop(time.Second))

	assert.Equal(t, 1, calls)
	assert.Empty(t, d.Model().Rows())
}
