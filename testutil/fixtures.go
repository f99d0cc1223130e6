package testutil

import (
	"github.com/force-h2020/wfmanager/workflow"
)

// WorkflowBuilder assembles workflows for tests.
type WorkflowBuilder struct {
	wf *workflow.Workflow
}

// NewWorkflow starts an empty workflow.
func NewWorkflow() *WorkflowBuilder {
	return &WorkflowBuilder{wf: workflow.New()}
}

func (b *WorkflowBuilder) mco() *workflow.MCOModel {
	if b.wf.MCO() == nil {
		b.wf.SetMCO(workflow.NewMCOModel(MCOID))
	}
	return b.wf.MCO()
}

// MCO sets an MCO model for factoryID.
func (b *WorkflowBuilder) MCO(factoryID string) *WorkflowBuilder {
	b.wf.SetMCO(workflow.NewMCOModel(factoryID))
	return b
}

// Parameter adds an MCO parameter, creating a test MCO if needed.
func (b *WorkflowBuilder) Parameter(name, typ string) *WorkflowBuilder {
	b.mco().AddParameter(workflow.NewParameter("fixed", name, typ))
	return b
}

// KPI adds a minimised KPI, creating a test MCO if needed.
func (b *WorkflowBuilder) KPI(name string) *WorkflowBuilder {
	b.mco().AddKPI(workflow.NewKPISpecification(name, workflow.Minimise))
	return b
}

// Layer appends an execution layer holding sources.
func (b *WorkflowBuilder) Layer(sources ...*workflow.DataSourceModel) *WorkflowBuilder {
	b.wf.AddExecutionLayer(workflow.NewExecutionLayer(sources...))
	return b
}

// Listener attaches a notification listener.
func (b *WorkflowBuilder) Listener(identifier string) *WorkflowBuilder {
	b.wf.AddNotificationListener(
		workflow.NewNotificationListenerModel(ListenerID, identifier, "wf.pub", "wf.sync"))
	return b
}

// Build returns the workflow.
func (b *WorkflowBuilder) Build() *workflow.Workflow {
	return b.wf
}

// DataSource creates a data source model with the given bindings. Nil slices
// leave the corresponding list empty so the slot table initialises it.
func DataSource(factoryID string, inputs, outputs []string) *workflow.DataSourceModel {
	ds := workflow.NewDataSourceModel(factoryID, nil)
	in := make([]workflow.InputSlotInfo, len(inputs))
	for i, name := range inputs {
		in[i].Name = name
	}
	out := make([]workflow.OutputSlotInfo, len(outputs))
	for i, name := range outputs {
		out[i].Name = name
	}
	ds.ReplaceSlotInfo(in, out)
	return ds
}
