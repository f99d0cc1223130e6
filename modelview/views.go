package modelview

import (
	"fmt"

	"github.com/force-h2020/wfmanager/workflow"
)

// WorkflowView is the root of the tree.
type WorkflowView struct {
	status
	model     *workflow.Workflow
	MCO       *MCOView
	Layers    []*ExecutionLayerView
	Listeners []*NotificationListenerView
}

func (v *WorkflowView) Kind() NodeKind { return KindWorkflow }
func (v *WorkflowView) Label() string  { return "Workflow" }
func (v *WorkflowView) Model() any     { return v.model }

func (v *WorkflowView) Children() []Node {
	var out []Node
	if v.MCO != nil {
		out = append(out, v.MCO)
	}
	for _, l := range v.Layers {
		out = append(out, l)
	}
	for _, l := range v.Listeners {
		out = append(out, l)
	}
	return out
}

// DataSource returns the view of ds, or nil.
func (v *WorkflowView) DataSource(ds *workflow.DataSourceModel) *DataSourceView {
	for _, layer := range v.Layers {
		for _, view := range layer.DataSources {
			if view.model == ds {
				return view
			}
		}
	}
	return nil
}

// MCOView mirrors the MCO model.
type MCOView struct {
	status
	model      *workflow.MCOModel
	name       string
	Parameters []*ParameterView
	KPIs       []*KPIView
}

func (v *MCOView) Kind() NodeKind { return KindMCO }
func (v *MCOView) Label() string  { return v.name }
func (v *MCOView) Model() any     { return v.model }

func (v *MCOView) Children() []Node {
	out := make([]Node, 0, len(v.Parameters)+len(v.KPIs))
	for _, p := range v.Parameters {
		out = append(out, p)
	}
	for _, k := range v.KPIs {
		out = append(out, k)
	}
	return out
}

// ParameterView mirrors one MCO parameter.
type ParameterView struct {
	status
	model *workflow.Parameter
}

func (v *ParameterView) Kind() NodeKind { return KindParameter }
func (v *ParameterView) Model() any     { return v.model }
func (v *ParameterView) Children() []Node {
	return nil
}

func (v *ParameterView) Label() string {
	if v.model.Name() == "" {
		return "Undefined parameter"
	}
	return fmt.Sprintf("Parameter: %s", v.model.Name())
}

// KPIView mirrors one KPI specification.
type KPIView struct {
	status
	model *workflow.KPISpecification
}

func (v *KPIView) Kind() NodeKind   { return KindKPI }
func (v *KPIView) Model() any       { return v.model }
func (v *KPIView) Children() []Node { return nil }

func (v *KPIView) Label() string {
	if v.model.Name() == "" {
		return "KPI"
	}
	return fmt.Sprintf("KPI: %s (%s)", v.model.Name(), v.model.Objective())
}

// ExecutionLayerView mirrors an execution layer.
type ExecutionLayerView struct {
	status
	model       *workflow.ExecutionLayer
	index       int
	DataSources []*DataSourceView
}

func (v *ExecutionLayerView) Kind() NodeKind { return KindExecutionLayer }
func (v *ExecutionLayerView) Label() string  { return fmt.Sprintf("Layer %d", v.index+1) }
func (v *ExecutionLayerView) Model() any     { return v.model }

// Index is the zero-based position of the layer in the workflow.
func (v *ExecutionLayerView) Index() int { return v.index }

func (v *ExecutionLayerView) Children() []Node {
	out := make([]Node, len(v.DataSources))
	for i, ds := range v.DataSources {
		out[i] = ds
	}
	return out
}

// DataSourceView mirrors a data source or KPI calculator and owns its slot
// rows.
type DataSourceView struct {
	status
	model   *workflow.DataSourceModel
	name    string
	layer   int
	Inputs  []*InputSlotRow
	Outputs []*OutputSlotRow
}

func (v *DataSourceView) Kind() NodeKind   { return KindDataSource }
func (v *DataSourceView) Label() string    { return v.name }
func (v *DataSourceView) Model() any       { return v.model }
func (v *DataSourceView) Children() []Node { return nil }

// Layer is the index of the layer holding the data source.
func (v *DataSourceView) Layer() int { return v.layer }

// SetChoices restricts every input row to names.
func (v *DataSourceView) SetChoices(names []string) {
	for _, row := range v.Inputs {
		row.SetChoices(names)
	}
}

// NotificationListenerView mirrors a notification listener model.
type NotificationListenerView struct {
	status
	model *workflow.NotificationListenerModel
	name  string
}

func (v *NotificationListenerView) Kind() NodeKind   { return KindNotificationListener }
func (v *NotificationListenerView) Label() string    { return v.name }
func (v *NotificationListenerView) Model() any       { return v.model }
func (v *NotificationListenerView) Children() []Node { return nil }
