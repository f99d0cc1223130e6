package modelview_test

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/modelview"
	"github.com/force-h2020/wfmanager/testutil"
	"github.com/force-h2020/wfmanager/variables"
	"github.com/force-h2020/wfmanager/verifier"
	"github.com/force-h2020/wfmanager/workflow"
)

var logger = slog.New(slog.DiscardHandler)

func numberSlots(n int) []factory.Slot {
	out := make([]factory.Slot, n)
	for i := range out {
		out[i] = factory.Slot{Type: testutil.TypeNumber}
	}
	return out
}

func TestBuildSlotTable(t *testing.T) {
	t.Run("initialises empty bindings", func(t *testing.T) {
		ds := workflow.NewDataSourceModel(testutil.TwoToOneID, nil)
		in, out, err := modelview.BuildSlotTable(ds, numberSlots(2), numberSlots(1))
		require.NoError(t, err)
		assert.Len(t, in, 2)
		assert.Len(t, out, 1)
		assert.Equal(t, []workflow.InputSlotInfo{{}, {}}, ds.InputSlotInfo())
		assert.Equal(t, []workflow.OutputSlotInfo{{}}, ds.OutputSlotInfo())
	})

	t.Run("matching length keeps bindings", func(t *testing.T) {
		ds := testutil.DataSource(testutil.TwoToOneID, []string{"a", "b"}, []string{"c"})
		in, _, err := modelview.BuildSlotTable(ds, numberSlots(2), numberSlots(1))
		require.NoError(t, err)
		require.Len(t, in, 2)
		assert.Equal(t, "b", ds.InputSlotInfo()[1].Name)
	})

	t.Run("too many input bindings", func(t *testing.T) {
		ds := testutil.DataSource(testutil.TwoToOneID, []string{"a", "b", "c"}, []string{"c"})
		_, _, err := modelview.BuildSlotTable(ds, numberSlots(2), numberSlots(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrSlotMismatch)
		assert.True(t, errors.IsFatal(err))
		assert.Contains(t, err.Error(), "input slots")
		assert.Contains(t, err.Error(),
			"The number of input slots (3) does not match the number of slots (2) declared by the data source. "+
				"This is likely due to a corrupted file.")
		assert.Len(t, ds.InputSlotInfo(), 3, "model untouched")
	})

	t.Run("output mismatch", func(t *testing.T) {
		ds := testutil.DataSource(testutil.TwoToOneID, []string{"a", "b"}, []string{"c", "d"})
		_, _, err := modelview.BuildSlotTable(ds, numberSlots(2), numberSlots(1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "output slots (2)")
	})
}

func TestResetSlots(t *testing.T) {
	ds := testutil.DataSource(testutil.VariableID, []string{"a", "b"}, []string{"c"})

	in, out, err := modelview.ResetSlots(ds, numberSlots(3), numberSlots(1))
	require.NoError(t, err)
	assert.Len(t, in, 3)
	assert.Len(t, out, 1)
	assert.Equal(t, []workflow.InputSlotInfo{{}, {}, {}}, ds.InputSlotInfo(), "changed length discards")
	assert.Equal(t, "c", ds.OutputSlotInfo()[0].Name, "unchanged length keeps")
}

func TestSlotRows(t *testing.T) {
	ds := testutil.DataSource(testutil.TwoToOneID, []string{"a", "gone"}, []string{"c"})
	in, out, err := modelview.BuildSlotTable(ds, numberSlots(2), numberSlots(1))
	require.NoError(t, err)

	for _, row := range in {
		row.SetChoices([]string{"a", "b"})
	}
	assert.Equal(t, []string{"", "a", "b"}, in[0].Choices())
	assert.Equal(t, "a", in[0].Name())
	assert.Equal(t, "", in[1].Name(), "unknown binding shows as unbound")
	assert.Equal(t, "gone", ds.InputSlotInfo()[1].Name)

	require.NoError(t, in[1].SetName("b"))
	assert.Equal(t, "b", ds.InputSlotInfo()[1].Name)

	err = in[1].SetName("nope")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Rows follow the model both ways.
	require.NoError(t, ds.SetInputSlotName(0, "b"))
	assert.Equal(t, "b", in[0].Name())
	require.NoError(t, out[0].SetName("renamed"))
	assert.Equal(t, "renamed", ds.OutputSlotInfo()[0].Name)
	require.NoError(t, ds.SetOutputSlotName(0, "again"))
	assert.Equal(t, "again", out[0].Name())
}

func build(t *testing.T, wf *workflow.Workflow) *modelview.WorkflowView {
	t.Helper()
	resolver := testutil.NewRegistry()
	reg := variables.NewRegistry(wf, resolver, logger)
	require.NoError(t, reg.Recompute())
	root, err := modelview.Build(wf, resolver, reg, logger)
	require.NoError(t, err)
	return root
}

func TestBuild(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"y"})).
		Layer(workflow.NewDataSourceModel(testutil.TwoToOneID, nil)).
		Listener("session").
		Build()

	root := build(t, wf)

	kinds := []modelview.NodeKind{}
	modelview.Walk(root, func(n modelview.Node) bool {
		kinds = append(kinds, n.Kind())
		return true
	})
	assert.Equal(t, []modelview.NodeKind{
		modelview.KindWorkflow,
		modelview.KindMCO,
		modelview.KindParameter,
		modelview.KindKPI,
		modelview.KindExecutionLayer,
		modelview.KindDataSource,
		modelview.KindExecutionLayer,
		modelview.KindDataSource,
		modelview.KindNotificationListener,
	}, kinds)

	second := root.Layers[1].DataSources[0]
	assert.Len(t, second.Inputs, 2, "fresh model initialised")
	assert.Equal(t, []string{"", "x", "y"}, second.Inputs[0].Choices())
	assert.Equal(t, "Layer 2", root.Layers[1].Label())
	assert.Equal(t, "Parameter: x", root.MCO.Parameters[0].Label())
	assert.Same(t, second, root.DataSource(wf.ExecutionLayers()[1].DataSources()[0]))
}

func TestBuild_CorruptedFile(t *testing.T) {
	wf := testutil.NewWorkflow().
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"a", "b"}, []string{"c"})).
		Build()

	resolver := testutil.NewRegistry()
	reg := variables.NewRegistry(wf, resolver, logger)
	require.NoError(t, reg.Recompute())
	_, err := modelview.Build(wf, resolver, reg, logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSlotMismatch)
}

func TestAnnotate(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.VariableID, []string{"", "", ""}, []string{"y"})).
		Build()
	ds := wf.ExecutionLayers()[0].DataSources()[0]
	ds.SetConfigValue("n_inputs", 3)

	root := build(t, wf)
	issues, err := verifier.Verify(wf, testutil.NewRegistry(), logger)
	require.NoError(t, err)
	modelview.Annotate(root, issues)

	dsView := root.Layers[0].DataSources[0]
	assert.False(t, dsView.Valid())
	assert.Equal(t, []string{"Input slot 1-3 is unbound"}, dsView.Messages())
	assert.Equal(t, "Input slot 1-3 is unbound", dsView.ErrorMessage())

	assert.False(t, root.Layers[0].Valid())
	assert.Empty(t, root.Layers[0].Messages())
	assert.False(t, root.Valid())
	assert.True(t, strings.Contains(root.ErrorMessage(), "Input slot 1-3 is unbound"))
	assert.True(t, root.MCO.Valid())
	assert.Equal(t, "", root.MCO.ErrorMessage())

	// A clean pass clears everything.
	modelview.Annotate(root, nil)
	assert.True(t, root.Valid())
	assert.True(t, dsView.Valid())
}

func TestAnnotate_UnmirroredSubject(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"y"})).
		Build()
	root := build(t, wf)

	extra := testutil.DataSource(testutil.OneToOneID, []string{"x", "x"}, []string{"z"})
	wf.ExecutionLayers()[0].AddDataSource(extra)
	require.Nil(t, modelview.Find(root, extra))

	issues, err := verifier.Verify(wf, testutil.NewRegistry(), logger)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	modelview.Annotate(root, issues)

	assert.False(t, root.Valid())
	assert.Contains(t, root.Messages(),
		"The number of input slots of data source 'test.ds.one_to_one' in layer 1 is incorrect")
	assert.True(t, root.Layers[0].Valid())
}

func TestAnnotate_ChildrenBeforeOwn(t *testing.T) {
	wf := testutil.NewWorkflow().Parameter("", testutil.TypeNumber).Build()
	root := build(t, wf)

	issues, err := verifier.Verify(wf, testutil.NewRegistry(), logger)
	require.NoError(t, err)
	modelview.Annotate(root, issues)

	assert.Equal(t, "Undefined name for MCO parameter\nThe MCO has no defined KPIs", root.MCO.ErrorMessage())
	assert.Equal(t,
		"Undefined name for MCO parameter\nThe MCO has no defined KPIs\nWorkflow has no execution layers",
		root.ErrorMessage())
	assert.Same(t, root.MCO, modelview.Find(root, wf.MCO()))
}
