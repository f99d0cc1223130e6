// Package variables computes which named variables are visible to each
// execution layer of a workflow.
//
// The raw stack has one entry per layer boundary: entry 0 holds the named MCO
// parameters, entry i holds the named outputs of layer i-1. A variable is
// visible to layer k iff it appears in some entry <= k. Re-declaring a name in
// a later layer is legal; both copies stay visible.
package variables

import (
	"log/slog"
	"slices"

	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/workflow"
)

// Variable is a named, typed value produced by a parameter or an output slot.
type Variable struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Triggers lists the change kinds that invalidate the stack. Input slot
// bindings and KPI edits are deliberately absent: they consume variables but
// never produce them.
var Triggers = []workflow.ChangeKind{
	workflow.ChangeParameterName,
	workflow.ChangeParameterType,
	workflow.ChangeOutputSlotName,
	workflow.ChangeSlots,
	workflow.ChangeStructure,
}

// Triggered reports whether a change of kind invalidates the stack.
func Triggered(kind workflow.ChangeKind) bool {
	return slices.Contains(Triggers, kind)
}

// ComputeStack builds the raw stack for wf from scratch. It has
// len(wf.ExecutionLayers())+1 entries. Output types come from the slot shape
// each data source's factory declares; data sources with an unknown factory
// contribute nothing. A plugin failure aborts the computation and is
// returned.
func ComputeStack(wf *workflow.Workflow, resolver factory.Resolver, logger *slog.Logger) ([][]Variable, error) {
	layers := wf.ExecutionLayers()
	stack := make([][]Variable, 0, len(layers)+1)

	params := []Variable{}
	if mco := wf.MCO(); mco != nil {
		for _, p := range mco.Parameters() {
			if p.Name() != "" {
				params = append(params, Variable{Name: p.Name(), Type: p.Type()})
			}
		}
	}
	stack = append(stack, params)

	for li, layer := range layers {
		entry := []Variable{}
		for _, ds := range layer.DataSources() {
			if _, ok := resolver.DataSource(ds.FactoryID); !ok {
				logger.Debug("Skipping data source with unknown factory",
					"factory_id", ds.FactoryID, "layer", li)
				continue
			}
			_, outputs, err := factory.QuerySlots(resolver, ds, logger)
			if err != nil {
				return nil, err
			}
			for i, info := range ds.OutputSlotInfo() {
				if i >= len(outputs) {
					break
				}
				if info.Name != "" {
					entry = append(entry, Variable{Name: info.Name, Type: outputs[i].Type})
				}
			}
		}
		stack = append(stack, entry)
	}

	return stack, nil
}
