package verifier_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/testutil"
	"github.com/force-h2020/wfmanager/verifier"
	"github.com/force-h2020/wfmanager/workflow"
)

var logger = slog.New(slog.DiscardHandler)

func verify(t *testing.T, wf *workflow.Workflow) []verifier.Issue {
	t.Helper()
	issues, err := verifier.Verify(wf, testutil.NewRegistry(), logger)
	require.NoError(t, err)
	return issues
}

func messagesFor(issues []verifier.Issue, subject any) []string {
	var out []string
	for _, issue := range issues {
		if issue.Subject == subject {
			out = append(out, issue.Message)
		}
	}
	return out
}

func codes(issues []verifier.Issue) []verifier.Code {
	out := make([]verifier.Code, len(issues))
	for i, issue := range issues {
		out[i] = issue.Type
	}
	return out
}

func valid() *workflow.Workflow {
	return testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"y"})).
		Build()
}

func TestVerify_ValidWorkflow(t *testing.T) {
	assert.Empty(t, verify(t, valid()))
}

func TestVerify_EmptyWorkflow(t *testing.T) {
	wf := workflow.New()
	issues := verify(t, wf)
	assert.Equal(t, []string{"Workflow has no MCO", "Workflow has no execution layers"}, messagesFor(issues, wf))
}

func TestVerify_MCO(t *testing.T) {
	wf := workflow.New()
	mco := workflow.NewMCOModel("no.such.mco")
	wf.SetMCO(mco)

	issues := verify(t, wf)
	assert.Equal(t, []string{
		"Unknown MCO factory 'no.such.mco'",
		"The MCO has no defined parameters",
		"The MCO has no defined KPIs",
	}, messagesFor(issues, mco))
}

func TestVerify_Parameters(t *testing.T) {
	tests := []struct {
		name   string
		params [][2]string
		want   []verifier.Code
	}{
		{"unnamed", [][2]string{{"", testutil.TypeNumber}}, []verifier.Code{verifier.CodeUnnamedParameter}},
		{"untyped", [][2]string{{"x", ""}}, []verifier.Code{verifier.CodeUntypedParameter}},
		{"unsupported type", [][2]string{{"x", "COLOUR"}}, []verifier.Code{verifier.CodeUnsupportedType}},
		{"duplicate", [][2]string{{"x", testutil.TypeNumber}, {"x", testutil.TypeNumber}}, []verifier.Code{verifier.CodeDuplicateParameter}},
		{"fine", [][2]string{{"x", testutil.TypeNumber}, {"p", testutil.TypePressure}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewWorkflow().KPI("x")
			for _, p := range tt.params {
				b.Parameter(p[0], p[1])
			}
			b.Layer(testutil.DataSource(testutil.SourceID, nil, []string{"a", "b"}))

			var got []verifier.Code
			for _, issue := range verify(t, b.Build()) {
				if _, ok := issue.Subject.(*workflow.Parameter); ok {
					got = append(got, issue.Type)
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerify_ParameterRoundTrip(t *testing.T) {
	wf := testutil.NewWorkflow().Parameter("", "").Build()
	p := wf.MCO().Parameters()[0]

	assert.Equal(t, []string{"Undefined name for MCO parameter", "Undefined type for MCO parameter"},
		messagesFor(verify(t, wf), p))

	p.SetName("x")
	p.SetType(testutil.TypeNumber)
	assert.Empty(t, messagesFor(verify(t, wf), p))
}

func TestVerify_KPIs(t *testing.T) {
	wf := valid()
	kpi := wf.MCO().KPIs()[0]

	kpi.SetName("missing")
	assert.Equal(t, []string{"KPI 'missing' does not correspond to any available variable"},
		messagesFor(verify(t, wf), kpi))

	kpi.SetName("x")
	assert.Empty(t, messagesFor(verify(t, wf), kpi), "parameters are valid KPI targets")

	kpi.SetName("")
	kpi.SetObjective("SIDEWAYS")
	kpi.SetScaleFactor(0)
	assert.Equal(t, []string{"KPI is not named", "Invalid objective 'SIDEWAYS'", "Scale factor must be positive"},
		messagesFor(verify(t, wf), kpi))
}

func TestVerify_Layers(t *testing.T) {
	wf := valid()
	empty := workflow.NewExecutionLayer()
	wf.AddExecutionLayer(empty)

	assert.Equal(t, []string{"Execution layer has no data sources"}, messagesFor(verify(t, wf), empty))
}

func TestVerify_InputSlots(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		Parameter("p", testutil.TypePressure).
		KPI("c").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"a"})).
		Build()

	ds := testutil.DataSource(testutil.TwoToOneID, []string{"", "later"}, []string{"c"})
	wf.AddExecutionLayer(workflow.NewExecutionLayer(ds))
	wf.AddExecutionLayer(workflow.NewExecutionLayer(
		testutil.DataSource(testutil.OneToOneID, []string{"a"}, []string{"later"})))

	assert.Equal(t, []string{
		"Input slot 1 is unbound",
		"Input slot 2 is bound to undefined variable 'later'",
	}, messagesFor(verify(t, wf), ds))

	require.NoError(t, ds.SetInputSlotName(0, "p"))
	require.NoError(t, ds.SetInputSlotName(1, "a"))
	assert.Equal(t, []string{
		"Input slot 1 expects type 'NUMBER' but 'p' has type 'PRESSURE'",
	}, messagesFor(verify(t, wf), ds))
}

func TestVerify_OwnLayerOutputsNotVisible(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("b").
		Layer(
			testutil.DataSource(testutil.OneToOneID, []string{"x"}, []string{"a"}),
			testutil.DataSource(testutil.OneToOneID, []string{"a"}, []string{"b"}),
		).
		Build()

	second := wf.ExecutionLayers()[0].DataSources()[1]
	assert.Equal(t, []string{"Input slot 1 is bound to undefined variable 'a'"}, messagesFor(verify(t, wf), second))
}

func TestVerify_SlotCountMismatch(t *testing.T) {
	ds := testutil.DataSource(testutil.TwoToOneID, []string{"x", "x", "x"}, []string{"y"})
	wf := testutil.NewWorkflow().Parameter("x", testutil.TypeNumber).KPI("y").Layer(ds).Build()

	issues := verify(t, wf)
	assert.Equal(t, []verifier.Code{verifier.CodeSlotCount}, codes(issues))
	assert.Contains(t, issues[0].Message, "input slots (3)")
}

func TestVerify_UnknownDataSourceFactory(t *testing.T) {
	ds := testutil.DataSource("no.such.ds", nil, nil)
	wf := testutil.NewWorkflow().Parameter("x", testutil.TypeNumber).KPI("x").Layer(ds).Build()

	assert.Equal(t, []string{"Unknown data source factory 'no.such.ds'"}, messagesFor(verify(t, wf), ds))
}

func TestVerify_Listeners(t *testing.T) {
	wf := valid()
	l := workflow.NewNotificationListenerModel("no.such.listener", "", "", "")
	wf.AddNotificationListener(l)

	assert.Equal(t, []verifier.Code{
		verifier.CodeUnknownFactory,
		verifier.CodeListenerIdentifier,
		verifier.CodeListenerURLs,
	}, codes(verify(t, wf)))
}

func TestVerify_PluginFailureAborts(t *testing.T) {
	wf := valid()
	wf.ExecutionLayers()[0].AddDataSource(testutil.DataSource(testutil.BrokenID, nil, nil))

	issues, err := verifier.Verify(wf, testutil.NewRegistry(), logger)
	require.Error(t, err)
	assert.Nil(t, issues)
	assert.ErrorIs(t, err, errors.ErrPluginFailure)
}

func TestVerify_GlobalMessagesLocateTheProblem(t *testing.T) {
	wf := testutil.NewWorkflow().
		Parameter("x", testutil.TypeNumber).
		KPI("y").
		Layer(testutil.DataSource(testutil.OneToOneID, []string{""}, []string{"y"})).
		Build()

	issues := verify(t, wf)
	require.Len(t, issues, 1)
	assert.Equal(t, "Input slot 1 of data source 'test.ds.one_to_one' in layer 1 is unbound", issues[0].GlobalMessage)
}
