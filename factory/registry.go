// Package factory holds the capability providers a workflow refers to by id:
// MCO factories, data source and KPI calculator factories, and notification
// listener factories contributed by plugins.
package factory

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/workflow"
)

// Kind distinguishes plain data sources from KPI calculators. Both are
// placed in execution layers and share the slot contract.
type Kind string

// Data source kinds
const (
	KindDataSource    Kind = "data_source"
	KindKPICalculator Kind = "kpi_calculator"
)

// Slot describes one input or output connection point of a data source.
type Slot struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// DataSource is the executable form of a data source. Slots declares the
// input and output slot shape for the given model's configuration.
type DataSource interface {
	Slots(model *workflow.DataSourceModel) (inputs, outputs []Slot, err error)
}

// DataSourceRegistration holds the factory and metadata of a data source or
// KPI calculator.
type DataSourceRegistration struct {
	ID            string         `json:"id"`
	PluginID      string         `json:"plugin_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Kind          Kind           `json:"kind"`
	DefaultConfig map[string]any `json:"default_config,omitempty"`
	// Create builds the executable form for a model configuration. It must not
	// perform I/O.
	Create func(config map[string]any) (DataSource, error) `json:"-"`
}

// MCORegistration describes an optimizer factory. ParameterTypes lists the
// parameter types the optimizer can drive; empty means any type.
type MCORegistration struct {
	ID             string   `json:"id"`
	PluginID       string   `json:"plugin_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	ParameterTypes []string `json:"parameter_types,omitempty"`
}

// SupportsType reports whether parameters of type typ can be used with the MCO.
func (r *MCORegistration) SupportsType(typ string) bool {
	return len(r.ParameterTypes) == 0 || slices.Contains(r.ParameterTypes, typ)
}

// NotificationListenerRegistration describes a notification listener factory.
type NotificationListenerRegistration struct {
	ID          string `json:"id"`
	PluginID    string `json:"plugin_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Resolver is the read side of the registry.
type Resolver interface {
	DataSource(id string) (*DataSourceRegistration, bool)
	MCO(id string) (*MCORegistration, bool)
	NotificationListener(id string) (*NotificationListenerRegistration, bool)
}

// Registry is a thread-safe store of factory registrations keyed by id.
type Registry struct {
	mu          sync.RWMutex
	dataSources map[string]*DataSourceRegistration
	mcos        map[string]*MCORegistration
	listeners   map[string]*NotificationListenerRegistration
}

var _ Resolver = (*Registry)(nil)

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		dataSources: make(map[string]*DataSourceRegistration),
		mcos:        make(map[string]*MCORegistration),
		listeners:   make(map[string]*NotificationListenerRegistration),
	}
}

func checkIDs(method, id, pluginID string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", method, "factory id validation")
	}
	if pluginID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", method, "plugin id validation")
	}
	return nil
}

func duplicate(method, id string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: factory '%s' is already registered", errors.ErrInvalidConfig, id),
		"Registry", method, "duplicate factory check")
}

// RegisterDataSource registers a data source or KPI calculator factory.
func (r *Registry) RegisterDataSource(reg DataSourceRegistration) error {
	if err := checkIDs("RegisterDataSource", reg.ID, reg.PluginID); err != nil {
		return err
	}
	if reg.Create == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterDataSource", "create function validation")
	}
	if reg.Kind == "" {
		reg.Kind = KindDataSource
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dataSources[reg.ID]; exists {
		return duplicate("RegisterDataSource", reg.ID)
	}
	r.dataSources[reg.ID] = &reg
	return nil
}

// RegisterMCO registers an optimizer factory.
func (r *Registry) RegisterMCO(reg MCORegistration) error {
	if err := checkIDs("RegisterMCO", reg.ID, reg.PluginID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mcos[reg.ID]; exists {
		return duplicate("RegisterMCO", reg.ID)
	}
	r.mcos[reg.ID] = &reg
	return nil
}

// RegisterNotificationListener registers a notification listener factory.
func (r *Registry) RegisterNotificationListener(reg NotificationListenerRegistration) error {
	if err := checkIDs("RegisterNotificationListener", reg.ID, reg.PluginID); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.listeners[reg.ID]; exists {
		return duplicate("RegisterNotificationListener", reg.ID)
	}
	r.listeners[reg.ID] = &reg
	return nil
}

// DataSource looks up a data source factory.
func (r *Registry) DataSource(id string) (*DataSourceRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.dataSources[id]
	return reg, ok
}

// MCO looks up an optimizer factory.
func (r *Registry) MCO(id string) (*MCORegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.mcos[id]
	return reg, ok
}

// NotificationListener looks up a notification listener factory.
func (r *Registry) NotificationListener(id string) (*NotificationListenerRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.listeners[id]
	return reg, ok
}

// DataSources returns all data source registrations sorted by id.
func (r *Registry) DataSources() []*DataSourceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByID(slices.Collect(maps.Values(r.dataSources)), func(d *DataSourceRegistration) string { return d.ID })
}

// MCOs returns all optimizer registrations sorted by id.
func (r *Registry) MCOs() []*MCORegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByID(slices.Collect(maps.Values(r.mcos)), func(m *MCORegistration) string { return m.ID })
}

// NotificationListeners returns all listener registrations sorted by id.
func (r *Registry) NotificationListeners() []*NotificationListenerRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedByID(slices.Collect(maps.Values(r.listeners)),
		func(n *NotificationListenerRegistration) string { return n.ID })
}

func sortedByID[T any](items []T, id func(T) string) []T {
	slices.SortFunc(items, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	return items
}

// NewDataSourceModel creates a model for factory id initialised with the
// factory's default configuration.
func (r *Registry) NewDataSourceModel(id string) (*workflow.DataSourceModel, error) {
	reg, ok := r.DataSource(id)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnknownFactory, id),
			"Registry", "NewDataSourceModel", "factory lookup")
	}
	return workflow.NewDataSourceModel(reg.ID, reg.DefaultConfig), nil
}
