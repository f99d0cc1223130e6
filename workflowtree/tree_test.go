package workflowtree_test

import (
	"log/slog"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/metric"
	"github.com/force-h2020/wfmanager/testutil"
	"github.com/force-h2020/wfmanager/workflow"
	"github.com/force-h2020/wfmanager/workflowtree"
)

var logger = slog.New(slog.DiscardHandler)

func newTree(t *testing.T, wf *workflow.Workflow, opts ...workflowtree.Option) *workflowtree.WorkflowTree {
	t.Helper()
	opts = append(opts, workflowtree.WithLogger(logger))
	tree, err := workflowtree.New(wf, testutil.NewRegistry(), opts...)
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func valid() *workflow.Workflow {
	return testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"y"})).
		Build()
}

func lines(tree *workflowtree.WorkflowTree) []string {
	var out []string
	for _, loc := range tree.Errors() {
		out = append(out, loc.Line)
	}
	return out
}

func TestNew_Valid(t *testing.T) {
	tree := newTree(t, valid())
	assert.True(t, tree.Valid())
	assert.Empty(t, tree.Errors())
	assert.Empty(t, tree.Issues())
	assert.Equal(t, "", tree.SelectedErrorMessage())
}

func TestNew_CorruptedFile(t *testing.T) {
	wf := testutil.NewWorkflow().
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"a", "b"}, []string{"c"})).
		Build()

	_, err := workflowtree.New(wf, testutil.NewRegistry(), workflowtree.WithLogger(logger))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSlotMismatch)
	assert.Contains(t, err.Error(), "input slots")
}

func TestParameterRoundTrip(t *testing.T) {
	wf := testutil.NewWorkflow().Parameter("", "").Build()
	tree := newTree(t, wf)

	assert.False(t, tree.Valid())
	assert.Contains(t, tree.Root().ErrorMessage(), "Undefined name for MCO parameter")

	p := wf.MCO().Parameters()[0]
	p.SetName("x")
	p.SetType(testutil.TypeNumber)

	paramView := tree.Root().MCO.Parameters[0]
	assert.True(t, paramView.Valid())
	assert.Equal(t, "", paramView.ErrorMessage())
	assert.NotContains(t, tree.Root().ErrorMessage(), "Undefined")
}

func TestErrorCursor(t *testing.T) {
	first := testutil.DataSource(testutil.TwoToOneID, []string{"", ""}, []string{"a"})
	second := testutil.DataSource(testutil.OneToOneID, []string{""}, []string{"y"})
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(first).
		Layer(second).
		Build()
	tree := newTree(t, wf)

	require.Equal(t, []string{"Input slot 1-2 is unbound", "Input slot 1 is unbound"}, lines(tree))

	_, ok := tree.CurrentError()
	assert.False(t, ok, "nothing selected initially")

	require.True(t, tree.FirstError())
	loc, ok := tree.CurrentError()
	require.True(t, ok)
	assert.Same(t, first, loc.Node.Model())
	assert.Equal(t, "Input slot 1-2 is unbound", tree.SelectedErrorMessage())

	assert.False(t, tree.PreviousError(), "no wrap at the start")
	loc, _ = tree.CurrentError()
	assert.Same(t, first, loc.Node.Model())

	require.True(t, tree.NextError())
	loc, _ = tree.CurrentError()
	assert.Same(t, second, loc.Node.Model())

	assert.False(t, tree.NextError(), "no wrap at the end")
	require.True(t, tree.FirstError())
	require.True(t, tree.LastError())
	loc, _ = tree.CurrentError()
	assert.Same(t, second, loc.Node.Model())

	assert.True(t, tree.Select(first))
	assert.False(t, tree.Select(wf))
}

func TestErrorCursor_FollowsSelectionAcrossVerify(t *testing.T) {
	first := testutil.DataSource(testutil.OneToOneID, []string{""}, []string{"a"})
	second := testutil.DataSource(testutil.OneToOneID, []string{""}, []string{"y"})
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(first).
		Layer(second).
		Build()
	tree := newTree(t, wf)

	require.True(t, tree.LastError())
	require.NoError(t, first.SetInputSlotName(0, "x"))

	loc, ok := tree.CurrentError()
	require.True(t, ok)
	assert.Same(t, second, loc.Node.Model())
	assert.Len(t, tree.Errors(), 1)

	require.NoError(t, second.SetInputSlotName(0, "a"))
	_, ok = tree.CurrentError()
	assert.False(t, ok)
	assert.True(t, tree.Valid())
	assert.False(t, tree.NextError())
	assert.False(t, tree.PreviousError())
}

func TestSlotsChangedRebuildsRows(t *testing.T) {
	ds := testutil.DataSource(testutil.VariableID, nil, nil)
	ds.SetConfigValue("n_inputs", 1)
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(ds).
		Build()
	tree := newTree(t, wf)

	view := tree.Root().DataSource(ds)
	require.Len(t, view.Inputs, 1)
	require.NoError(t, view.Inputs[0].SetName("x"))
	require.NoError(t, view.Outputs[0].SetName("y"))
	require.True(t, tree.Valid())

	ds.SetConfigValue("n_inputs", 3)
	view = tree.Root().DataSource(ds)
	assert.Len(t, view.Inputs, 3)
	assert.Equal(t, []workflow.InputSlotInfo{{}, {}, {}}, ds.InputSlotInfo())
	assert.Equal(t, "y", ds.OutputSlotInfo()[0].Name, "output length unchanged")
	assert.Equal(t, []string{"Input slot 1-3 is unbound"}, view.Messages())
	assert.False(t, tree.Valid())
}

func TestRenameRefreshesChoices(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("b").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"a"})).
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"a"}, []string{"b"})).
		Build()
	tree := newTree(t, wf)
	require.True(t, tree.Valid())

	downstream := tree.Root().Layers[1].DataSources[0]
	assert.Equal(t, []string{"", "x", "a"}, downstream.Inputs[0].Choices())

	upstream := wf.ExecutionLayers()[0].DataSources()[0]
	require.NoError(t, upstream.SetOutputSlotName(0, "renamed"))

	downstream = tree.Root().Layers[1].DataSources[0]
	assert.Equal(t, []string{"", "x", "renamed"}, downstream.Inputs[0].Choices())
	assert.Equal(t, "", downstream.Inputs[0].Name(), "stale binding displays as unbound")
	assert.False(t, tree.Valid())
	assert.Contains(t, tree.Root().ErrorMessage(), "Input slot 1 is bound to undefined variable 'a'")
}

func TestMutations(t *testing.T) {
	wf := valid()
	tree := newTree(t, wf)

	layer := workflow.NewExecutionLayer()
	require.NoError(t, tree.AddExecutionLayer(layer))
	assert.Len(t, tree.Root().Layers, 2)
	assert.Contains(t, lines(tree), "Execution layer has no data sources")

	ds := workflow.NewDataSourceModel(testutil.OneToOneID, nil)
	require.NoError(t, tree.AddDataSource(layer, ds))
	require.Len(t, tree.Root().Layers[1].DataSources, 1)
	assert.Equal(t, []string{"Input slot 1 is unbound"}, lines(tree))

	require.NoError(t, tree.RemoveDataSource(ds))
	require.NoError(t, tree.RemoveExecutionLayer(layer))
	assert.True(t, tree.Valid())

	kpi := workflow.NewKPISpecification("x", workflow.Maximise)
	require.NoError(t, tree.AddKPI(kpi))
	require.NoError(t, tree.RemoveKPI(kpi))

	p := workflow.NewParameter("fixed", "z", testutil.TypeNumber)
	require.NoError(t, tree.AddParameter(p))
	assert.Len(t, tree.Root().MCO.Parameters, 2)
	require.NoError(t, tree.RemoveParameter(p))

	l := workflow.NewNotificationListenerModel(testutil.ListenerID, "id", "pub", "sync")
	require.NoError(t, tree.AddNotificationListener(l))
	assert.Len(t, tree.Root().Listeners, 1)
	require.NoError(t, tree.RemoveNotificationListener(l))
	assert.True(t, tree.Valid())

	require.NoError(t, tree.RemoveMCO())
	assert.Contains(t, lines(tree), "Workflow has no MCO")
	require.NoError(t, tree.SetMCO(workflow.NewMCOModel(testutil.MCOID)))
	assert.Contains(t, lines(tree), "The MCO has no defined parameters")
}

func TestMutations_NotFound(t *testing.T) {
	tree := newTree(t, valid())

	tests := []struct {
		name string
		fn   func() error
	}{
		{"parameter", func() error { return tree.RemoveParameter(workflow.NewParameter("f", "n", "t")) }},
		{"kpi", func() error { return tree.RemoveKPI(workflow.NewKPISpecification("k", workflow.Minimise)) }},
		{"layer", func() error { return tree.RemoveExecutionLayer(workflow.NewExecutionLayer()) }},
		{"data source", func() error { return tree.RemoveDataSource(workflow.NewDataSourceModel("f", nil)) }},
		{"foreign layer", func() error {
			return tree.AddDataSource(workflow.NewExecutionLayer(), workflow.NewDataSourceModel("f", nil))
		}},
		{"listener", func() error {
			return tree.RemoveNotificationListener(workflow.NewNotificationListenerModel("f", "", "", ""))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrKeyNotFound)
		})
	}

	require.NoError(t, tree.RemoveMCO())
	assert.ErrorIs(t, tree.RemoveMCO(), errors.ErrKeyNotFound)
	assert.ErrorIs(t, tree.AddKPI(workflow.NewKPISpecification("k", workflow.Minimise)), errors.ErrKeyNotFound)
}

func TestFailedRebuildStaysInvalid(t *testing.T) {
	wf := valid()
	tree := newTree(t, wf)
	layer := wf.ExecutionLayers()[0]
	p := wf.MCO().Parameters()[0]

	corrupt := testutil.DataSource(testutil.OneToOneID, []string{"x", "x"}, []string{"z"})
	err := tree.AddDataSource(layer, corrupt)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSlotMismatch)
	assert.False(t, tree.Valid())

	p.SetName("x2")
	p.SetName("x")
	assert.False(t, tree.Valid())
	assert.ErrorIs(t, tree.Err(), errors.ErrSlotMismatch, "rebuild retried on later changes")
	require.Len(t, tree.Issues(), 1)
	assert.False(t, tree.Root().Valid())
	assert.Contains(t, tree.Root().ErrorMessage(),
		"The number of input slots of data source 'test.ds.one_to_one' in layer 1 is incorrect")

	require.NoError(t, tree.RemoveDataSource(corrupt))
	assert.NoError(t, tree.Err())
	assert.True(t, tree.Valid())
	assert.Len(t, tree.Root().Layers[0].DataSources, 1)
}

func TestPluginFailure(t *testing.T) {
	wf := valid()
	tree := newTree(t, wf)

	err := tree.AddDataSource(wf.ExecutionLayers()[0], testutil.DataSource(testutil.BrokenID, nil, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPluginFailure)
	assert.False(t, tree.Valid())
	assert.Error(t, tree.Err())
}

func TestClose(t *testing.T) {
	wf := valid()
	tree := newTree(t, wf)
	tree.Close()
	tree.Close()

	wf.MCO().Parameters()[0].SetName("")
	assert.True(t, tree.Valid(), "no longer reacting")
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := registry.CoreMetrics()

	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{""}, []string{"y"})).
		Build()
	newTree(t, wf, workflowtree.WithMetrics(m))

	assert.Equal(t, 1.0, prom.ToFloat64(m.VerificationRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, prom.ToFloat64(m.VerificationIssues.WithLabelValues("unbound_input")))
}

func TestMutationWithoutChangeVerifies(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := registry.CoreMetrics()

	wf := valid()
	tree := newTree(t, wf, workflowtree.WithMetrics(m))
	require.Equal(t, 1.0, prom.ToFloat64(m.VerificationRuns.WithLabelValues("ok")))

	require.NoError(t, tree.SetMCO(wf.MCO()))
	assert.Equal(t, 2.0, prom.ToFloat64(m.VerificationRuns.WithLabelValues("ok")))
	assert.True(t, tree.Valid())

	p := wf.MCO().Parameters()[0]
	require.NoError(t, tree.RemoveParameter(p))
	assert.Equal(t, 3.0, prom.ToFloat64(m.VerificationRuns.WithLabelValues("ok")), "one pass per emitted change")
}
