// Package builtin is the plugin shipped with the workflow manager: a random
// search optimizer, a few arithmetic data sources, a threshold KPI calculator
// and the UI notification listener.
package builtin

import (
	"fmt"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/workflow"
)

// PluginID identifies this plugin in factory registrations.
const PluginID = "wfmanager.builtin"

// TypeNumber is the only slot type the built-in factories declare.
const TypeNumber = "NUMBER"

// Factory ids
const (
	RandomSearchID   = PluginID + ".mco.random_search"
	SumID            = PluginID + ".data_source.sum"
	ScaleID          = PluginID + ".data_source.scale"
	SplitID          = PluginID + ".data_source.split"
	ThresholdID      = PluginID + ".kpi_calculator.threshold"
	UINotificationID = PluginID + ".notification_listener.ui_notification"
)

// Register adds every built-in factory to registry.
func Register(registry *factory.Registry) error {
	if registry == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "builtin", "Register", "registry validation")
	}

	if err := registry.RegisterMCO(factory.MCORegistration{
		ID:             RandomSearchID,
		PluginID:       PluginID,
		Name:           "Random search",
		Description:    "Samples parameters uniformly and keeps the Pareto front",
		ParameterTypes: []string{TypeNumber},
	}); err != nil {
		return errors.Wrap(err, "builtin", "Register", "random search registration")
	}

	dataSources := []factory.DataSourceRegistration{
		{
			ID:            SumID,
			Name:          "Sum",
			Description:   "Adds n_inputs numbers",
			Kind:          factory.KindDataSource,
			DefaultConfig: map[string]any{"n_inputs": 2},
			Create:        newSum,
		},
		{
			ID:            ScaleID,
			Name:          "Scale",
			Description:   "Multiplies a number by a constant factor",
			Kind:          factory.KindDataSource,
			DefaultConfig: map[string]any{"factor": 1.0},
			Create:        fixedShape(1, 1),
		},
		{
			ID:          SplitID,
			Name:        "Split",
			Description: "Copies a number to two outputs",
			Kind:        factory.KindDataSource,
			Create:      fixedShape(1, 2),
		},
		{
			ID:            ThresholdID,
			Name:          "Threshold",
			Description:   "Distance of a value above a threshold",
			Kind:          factory.KindKPICalculator,
			DefaultConfig: map[string]any{"threshold": 0.0},
			Create:        fixedShape(1, 1),
		},
	}
	for _, reg := range dataSources {
		reg.PluginID = PluginID
		if err := registry.RegisterDataSource(reg); err != nil {
			return errors.Wrap(err, "builtin", "Register", reg.Name+" registration")
		}
	}

	if err := registry.RegisterNotificationListener(factory.NotificationListenerRegistration{
		ID:          UINotificationID,
		PluginID:    PluginID,
		Name:        "UI notification",
		Description: "Forwards run events to the workflow manager UI",
	}); err != nil {
		return errors.Wrap(err, "builtin", "Register", "UI notification registration")
	}

	return nil
}

// shape is a data source with a fixed number of NUMBER slots.
type shape struct {
	inputs, outputs int
}

func (s shape) Slots(*workflow.DataSourceModel) ([]factory.Slot, []factory.Slot, error) {
	return numbers(s.inputs), numbers(s.outputs), nil
}

func fixedShape(inputs, outputs int) func(map[string]any) (factory.DataSource, error) {
	return func(map[string]any) (factory.DataSource, error) {
		return shape{inputs: inputs, outputs: outputs}, nil
	}
}

func numbers(n int) []factory.Slot {
	slots := make([]factory.Slot, n)
	for i := range slots {
		slots[i] = factory.Slot{Type: TypeNumber}
	}
	return slots
}

// newSum declares one input per summand; the count comes from n_inputs.
func newSum(config map[string]any) (factory.DataSource, error) {
	n, err := intValue(config, "n_inputs", 2)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("n_inputs must be at least 1, got %d", n)
	}
	return shape{inputs: n, outputs: 1}, nil
}

func intValue(config map[string]any, key string, def int) (int, error) {
	raw, ok := config[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
}
