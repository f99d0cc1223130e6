// Package pluginregistry registers every plugin compiled into the workflow
// manager with a factory registry.
package pluginregistry

import (
	stderrors "errors"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/plugins/builtin"
)

// Register registers all plugins with the provided registry:
//   - wfmanager.builtin: random search MCO, sum/scale/split data sources,
//     threshold KPI calculator, UI notification listener
//
// Third-party plugins register themselves from their own modules.
func Register(registry *factory.Registry) error {
	if registry == nil {
		return errors.WrapFatal(
			stderrors.New("registry cannot be nil"),
			"PluginRegistry", "Register", "registry validation")
	}

	if err := builtin.Register(registry); err != nil {
		return errors.WrapInvalid(err, "PluginRegistry", "Register", "builtin plugin registration")
	}

	return nil
}

// NewDefault returns a registry with all plugins registered.
func NewDefault() (*factory.Registry, error) {
	registry := factory.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
