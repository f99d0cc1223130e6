package factory

import (
	"fmt"
	"log/slog"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/workflow"
)

// QuerySlots instantiates the executable form of model and asks it for its
// slot shape. An unknown factory is an invalid-input error wrapping
// errors.ErrUnknownFactory. Any failure inside the plugin, including a panic,
// is logged with the factory and plugin ids and returned as a fatal error
// wrapping errors.ErrPluginFailure.
func QuerySlots(resolver Resolver, model *workflow.DataSourceModel, logger *slog.Logger) (inputs, outputs []Slot, err error) {
	reg, ok := resolver.DataSource(model.FactoryID)
	if !ok {
		return nil, nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownFactory, model.FactoryID),
			"factory", "QuerySlots", "factory lookup")
	}

	fail := func(action string, cause error) error {
		logger.Error("Data source plugin failed",
			"factory_id", reg.ID,
			"plugin_id", reg.PluginID,
			"action", action,
			"error", cause)
		return errors.WrapFatal(
			fmt.Errorf("%w: factory %s of plugin %s: %w", errors.ErrPluginFailure, reg.ID, reg.PluginID, cause),
			"factory", "QuerySlots", action)
	}

	defer func() {
		if r := recover(); r != nil {
			inputs, outputs = nil, nil
			err = fail("query slots", fmt.Errorf("panic: %v", r))
		}
	}()

	ds, cerr := reg.Create(model.Config())
	if cerr != nil {
		return nil, nil, fail("create data source", cerr)
	}
	inputs, outputs, err = ds.Slots(model)
	if err != nil {
		return nil, nil, fail("query slots", err)
	}
	return inputs, outputs, nil
}
