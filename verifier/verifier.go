// Package verifier checks a workflow for user-input problems.
//
// Verify is a pure function of the workflow and the factory registry. The
// problems it finds are returned as Issue values, never as errors; the only
// error it returns is a plugin failure, which aborts the pass.
package verifier

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/variables"
	"github.com/force-h2020/wfmanager/workflow"
)

type verifier struct {
	resolver factory.Resolver
	logger   *slog.Logger
	stack    [][]variables.Variable
	issues   []Issue
}

// Verify returns the issues found in wf, in tree order.
func Verify(wf *workflow.Workflow, resolver factory.Resolver, logger *slog.Logger) ([]Issue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stack, err := variables.ComputeStack(wf, resolver, logger)
	if err != nil {
		return nil, err
	}

	v := &verifier{resolver: resolver, logger: logger, stack: stack}

	if wf.MCO() == nil {
		v.add(wf, CodeNoMCO, "Workflow has no MCO", "Workflow has no MCO")
	} else {
		v.mco(wf.MCO())
	}

	layers := wf.ExecutionLayers()
	if len(layers) == 0 {
		v.add(wf, CodeNoLayers, "Workflow has no execution layers", "Workflow has no execution layers")
	}
	for i, layer := range layers {
		if err := v.layer(i, layer); err != nil {
			return nil, err
		}
	}

	for i, l := range wf.NotificationListeners() {
		v.listener(i, l)
	}

	logger.Debug("Workflow verified", "issues", len(v.issues))
	return v.issues, nil
}

func (v *verifier) add(subject any, code Code, local, global string) {
	v.issues = append(v.issues, Issue{Subject: subject, Type: code, Message: local, GlobalMessage: global})
}

// visible returns the variables available to layer k.
func (v *verifier) visible(k int) []variables.Variable {
	var out []variables.Variable
	for _, entry := range v.stack[:min(k, len(v.stack)-1)+1] {
		out = append(out, entry...)
	}
	return out
}

func (v *verifier) mco(m *workflow.MCOModel) {
	reg, known := v.resolver.MCO(m.FactoryID)
	if !known {
		msg := fmt.Sprintf("Unknown MCO factory '%s'", m.FactoryID)
		v.add(m, CodeUnknownFactory, msg, msg)
	}

	params := m.Parameters()
	if len(params) == 0 {
		v.add(m, CodeNoParameters, "The MCO has no defined parameters", "The MCO has no defined parameters")
	}
	seen := make(map[string]int)
	for i, p := range params {
		n := i + 1
		if p.Name() == "" {
			v.add(p, CodeUnnamedParameter, "Undefined name for MCO parameter",
				fmt.Sprintf("MCO parameter %d has no name", n))
		} else {
			seen[p.Name()]++
			if seen[p.Name()] == 2 {
				v.add(p, CodeDuplicateParameter,
					fmt.Sprintf("Parameter name '%s' is already in use", p.Name()),
					fmt.Sprintf("MCO parameter name '%s' is defined more than once", p.Name()))
			}
		}
		switch {
		case p.Type() == "":
			v.add(p, CodeUntypedParameter, "Undefined type for MCO parameter",
				fmt.Sprintf("MCO parameter %d has no type", n))
		case known && !reg.SupportsType(p.Type()):
			v.add(p, CodeUnsupportedType,
				fmt.Sprintf("Type '%s' is not supported by the MCO", p.Type()),
				fmt.Sprintf("MCO parameter %d has type '%s' which the MCO does not support", n, p.Type()))
		}
	}

	kpis := m.KPIs()
	if len(kpis) == 0 {
		v.add(m, CodeNoKPIs, "The MCO has no defined KPIs", "The MCO has no defined KPIs")
	}
	names := make(map[string]bool)
	for _, variable := range v.visible(len(v.stack) - 1) {
		names[variable.Name] = true
	}
	for i, k := range kpis {
		n := i + 1
		if k.Name() == "" {
			v.add(k, CodeUnnamedKPI, "KPI is not named", fmt.Sprintf("KPI %d is not named", n))
		} else if !names[k.Name()] {
			msg := fmt.Sprintf("KPI '%s' does not correspond to any available variable", k.Name())
			v.add(k, CodeUndefinedKPI, msg, msg)
		}
		if !k.Objective().Valid() {
			v.add(k, CodeInvalidObjective,
				fmt.Sprintf("Invalid objective '%s'", k.Objective()),
				fmt.Sprintf("KPI %d has invalid objective '%s'", n, k.Objective()))
		}
		if k.ScaleFactor() <= 0 {
			v.add(k, CodeInvalidScale, "Scale factor must be positive",
				fmt.Sprintf("KPI %d has a non-positive scale factor", n))
		}
	}
}

func (v *verifier) layer(index int, layer *workflow.ExecutionLayer) error {
	sources := layer.DataSources()
	if len(sources) == 0 {
		v.add(layer, CodeEmptyLayer, "Execution layer has no data sources",
			fmt.Sprintf("Layer %d has no data sources", index+1))
	}
	for _, ds := range sources {
		if err := v.dataSource(index, ds); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) dataSource(index int, ds *workflow.DataSourceModel) error {
	where := fmt.Sprintf("data source '%s' in layer %d", ds.FactoryID, index+1)

	if _, ok := v.resolver.DataSource(ds.FactoryID); !ok {
		msg := fmt.Sprintf("Unknown data source factory '%s'", ds.FactoryID)
		v.add(ds, CodeUnknownFactory, msg, msg)
		return nil
	}

	inputs, outputs, err := factory.QuerySlots(v.resolver, ds, v.logger)
	if err != nil {
		return err
	}

	bindings := ds.InputSlotInfo()
	if len(bindings) != len(inputs) {
		v.add(ds, CodeSlotCount,
			fmt.Sprintf("The number of input slots (%d) does not match the number of slots (%d) declared by the data source",
				len(bindings), len(inputs)),
			fmt.Sprintf("The number of input slots of %s is incorrect", where))
		bindings = nil
	}
	if names := ds.OutputSlotInfo(); len(names) != len(outputs) {
		v.add(ds, CodeSlotCount,
			fmt.Sprintf("The number of output slots (%d) does not match the number of slots (%d) declared by the data source",
				len(names), len(outputs)),
			fmt.Sprintf("The number of output slots of %s is incorrect", where))
	}

	visible := v.visible(index)
	for i, binding := range bindings {
		n := i + 1
		if binding.Name == "" {
			v.add(ds, CodeUnboundInput, fmt.Sprintf("Input slot %d is unbound", n),
				fmt.Sprintf("Input slot %d of %s is unbound", n, where))
			continue
		}

		var types []string
		for _, variable := range visible {
			if variable.Name == binding.Name {
				types = append(types, variable.Type)
			}
		}
		switch {
		case len(types) == 0:
			v.add(ds, CodeUndefinedInput,
				fmt.Sprintf("Input slot %d is bound to undefined variable '%s'", n, binding.Name),
				fmt.Sprintf("Input slot %d of %s is bound to undefined variable '%s'", n, where, binding.Name))
		case inputs[i].Type != "" && !slices.Contains(types, inputs[i].Type):
			v.add(ds, CodeTypeMismatch,
				fmt.Sprintf("Input slot %d expects type '%s' but '%s' has type '%s'",
					n, inputs[i].Type, binding.Name, types[len(types)-1]),
				fmt.Sprintf("Input slot %d of %s has a type mismatch", n, where))
		}
	}
	return nil
}

func (v *verifier) listener(index int, l *workflow.NotificationListenerModel) {
	n := index + 1
	if _, ok := v.resolver.NotificationListener(l.FactoryID); !ok {
		msg := fmt.Sprintf("Unknown notification listener factory '%s'", l.FactoryID)
		v.add(l, CodeUnknownFactory, msg, msg)
	}
	if l.Identifier() == "" {
		v.add(l, CodeListenerIdentifier, "Notification listener has no identifier",
			fmt.Sprintf("Notification listener %d has no identifier", n))
	}
	if l.PubURL() == "" || l.SyncURL() == "" {
		v.add(l, CodeListenerURLs, "Notification listener URLs are not set",
			fmt.Sprintf("Notification listener %d URLs are not set", n))
	}
}
