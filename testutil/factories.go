package testutil

import (
	stderrors "errors"
	"fmt"

	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/workflow"
)

// Slot types used by the fake factories
const (
	TypeNumber   = "NUMBER"
	TypePressure = "PRESSURE"
)

// Fake factory ids
const (
	PluginID = "test.plugin"

	MCOID        = "test.mco"
	OneToOneID   = "test.ds.one_to_one"
	TwoToOneID   = "test.ds.two_to_one"
	SourceID     = "test.ds.source"
	VariableID   = "test.ds.variable"
	KPIID        = "test.kpi"
	BrokenID     = "test.ds.broken"
	ListenerID   = "test.listener"
	PressureInID = "test.ds.pressure_in"
)

// ErrBrokenPlugin is returned by the BrokenID factory.
var ErrBrokenPlugin = stderrors.New("broken plugin")

// FakeDataSource declares a fixed slot shape.
type FakeDataSource struct {
	Inputs  []string
	Outputs []string
}

// Slots implements factory.DataSource
func (f FakeDataSource) Slots(*workflow.DataSourceModel) ([]factory.Slot, []factory.Slot, error) {
	return slots(f.Inputs), slots(f.Outputs), nil
}

func slots(types []string) []factory.Slot {
	out := make([]factory.Slot, len(types))
	for i, t := range types {
		out[i] = factory.Slot{Type: t}
	}
	return out
}

// DataSourceFactory returns a registration whose executable declares the
// given input and output types.
func DataSourceFactory(id string, inputs, outputs []string) factory.DataSourceRegistration {
	return factory.DataSourceRegistration{
		ID:       id,
		PluginID: PluginID,
		Name:     id,
		Create: func(map[string]any) (factory.DataSource, error) {
			return FakeDataSource{Inputs: inputs, Outputs: outputs}, nil
		},
	}
}

// variableFactory declares n_inputs NUMBER inputs and one NUMBER output.
func variableFactory() factory.DataSourceRegistration {
	return factory.DataSourceRegistration{
		ID:            VariableID,
		PluginID:      PluginID,
		Name:          "variable",
		DefaultConfig: map[string]any{"n_inputs": 1},
		Create: func(config map[string]any) (factory.DataSource, error) {
			n, ok := config["n_inputs"].(int)
			if !ok {
				return nil, fmt.Errorf("n_inputs must be an int, got %T", config["n_inputs"])
			}
			inputs := make([]string, n)
			for i := range inputs {
				inputs[i] = TypeNumber
			}
			return FakeDataSource{Inputs: inputs, Outputs: []string{TypeNumber}}, nil
		},
	}
}

// NewRegistry returns a registry holding every fake factory.
func NewRegistry() *factory.Registry {
	r := factory.NewRegistry()

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(r.RegisterMCO(factory.MCORegistration{
		ID:             MCOID,
		PluginID:       PluginID,
		Name:           "test mco",
		ParameterTypes: []string{TypeNumber, TypePressure},
	}))
	must(r.RegisterDataSource(DataSourceFactory(OneToOneID, []string{TypeNumber}, []string{TypeNumber})))
	must(r.RegisterDataSource(DataSourceFactory(TwoToOneID, []string{TypeNumber, TypeNumber}, []string{TypeNumber})))
	must(r.RegisterDataSource(DataSourceFactory(SourceID, nil, []string{TypeNumber, TypePressure})))
	must(r.RegisterDataSource(DataSourceFactory(PressureInID, []string{TypePressure}, []string{TypeNumber})))
	must(r.RegisterDataSource(variableFactory()))

	kpi := DataSourceFactory(KPIID, []string{TypeNumber}, []string{TypeNumber})
	kpi.Kind = factory.KindKPICalculator
	must(r.RegisterDataSource(kpi))

	must(r.RegisterDataSource(factory.DataSourceRegistration{
		ID:       BrokenID,
		PluginID: PluginID,
		Name:     "broken",
		Create: func(map[string]any) (factory.DataSource, error) {
			return nil, ErrBrokenPlugin
		},
	}))

	must(r.RegisterNotificationListener(factory.NotificationListenerRegistration{
		ID:       ListenerID,
		PluginID: PluginID,
		Name:     "test listener",
	}))

	return r
}
