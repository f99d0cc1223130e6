package workflow

import (
	"fmt"
	"slices"

	"github.com/force-h2020/wfmanager/errors"
)

// InputSlotInfo binds one input slot to an upstream variable name. An empty
// name means the slot is unbound.
type InputSlotInfo struct {
	Name string `json:"name"`
}

// OutputSlotInfo assigns a variable name to one output slot. An empty name
// means the output is not exported to later layers.
type OutputSlotInfo struct {
	Name string `json:"name"`
}

// DataSourceModel is a data source or KPI calculator instance inside an
// execution layer. The slot lists must match the slot shape its factory
// declares for the current configuration.
type DataSourceModel struct {
	FactoryID string

	config  map[string]any
	inputs  []InputSlotInfo
	outputs []OutputSlotInfo
	emit    emitFunc
}

// NewDataSourceModel creates a detached data source model with no slot
// bindings. Bindings are initialised the first time its slot table is built.
func NewDataSourceModel(factoryID string, config map[string]any) *DataSourceModel {
	return &DataSourceModel{FactoryID: factoryID, config: cloneConfig(config)}
}

// Config returns a copy of the configuration.
func (d *DataSourceModel) Config() map[string]any {
	return cloneConfig(d.config)
}

// SetConfig replaces the configuration. Configuration drives the slot shape,
// so observers receive ChangeSlots.
func (d *DataSourceModel) SetConfig(config map[string]any) {
	d.config = cloneConfig(config)
	d.notify(ChangeSlots)
}

// SetConfigValue sets a single configuration key.
func (d *DataSourceModel) SetConfigValue(key string, value any) {
	if d.config == nil {
		d.config = map[string]any{}
	}
	d.config[key] = value
	d.notify(ChangeSlots)
}

// InputSlotInfo returns a copy of the input bindings.
func (d *DataSourceModel) InputSlotInfo() []InputSlotInfo {
	return slices.Clone(d.inputs)
}

// OutputSlotInfo returns a copy of the output names.
func (d *DataSourceModel) OutputSlotInfo() []OutputSlotInfo {
	return slices.Clone(d.outputs)
}

// SetInputSlotName binds input slot i to the named variable.
func (d *DataSourceModel) SetInputSlotName(i int, name string) error {
	if i < 0 || i >= len(d.inputs) {
		return errors.WrapInvalid(
			fmt.Errorf("input slot %d of %d: %w", i, len(d.inputs), errors.ErrIndexOutOfRange),
			"DataSourceModel", "SetInputSlotName", "slot lookup")
	}
	if d.inputs[i].Name == name {
		return nil
	}
	d.inputs[i].Name = name
	d.notify(ChangeInputSlotName)
	return nil
}

// SetOutputSlotName names output slot i.
func (d *DataSourceModel) SetOutputSlotName(i int, name string) error {
	if i < 0 || i >= len(d.outputs) {
		return errors.WrapInvalid(
			fmt.Errorf("output slot %d of %d: %w", i, len(d.outputs), errors.ErrIndexOutOfRange),
			"DataSourceModel", "SetOutputSlotName", "slot lookup")
	}
	if d.outputs[i].Name == name {
		return nil
	}
	d.outputs[i].Name = name
	d.notify(ChangeOutputSlotName)
	return nil
}

// ReplaceSlotInfo swaps both binding lists without notifying observers. It is
// used when the slot table is (re)built in response to a change that has
// already been delivered.
func (d *DataSourceModel) ReplaceSlotInfo(inputs []InputSlotInfo, outputs []OutputSlotInfo) {
	d.inputs = slices.Clone(inputs)
	d.outputs = slices.Clone(outputs)
}

func (d *DataSourceModel) attach(fn emitFunc) { d.emit = fn }

func (d *DataSourceModel) notify(kind ChangeKind) {
	if d.emit != nil {
		d.emit(Change{Kind: kind, Subject: d})
	}
}

// ExecutionLayer is an ordered pipeline stage. Outputs of its data sources
// are visible to strictly later layers only.
type ExecutionLayer struct {
	dataSources []*DataSourceModel
	emit        emitFunc
}

// NewExecutionLayer creates a layer holding the given data sources.
func NewExecutionLayer(dataSources ...*DataSourceModel) *ExecutionLayer {
	return &ExecutionLayer{dataSources: slices.Clone(dataSources)}
}

// DataSources returns the data sources in execution order.
func (l *ExecutionLayer) DataSources() []*DataSourceModel {
	return slices.Clone(l.dataSources)
}

// AddDataSource appends ds to the layer.
func (l *ExecutionLayer) AddDataSource(ds *DataSourceModel) {
	ds.attach(l.emit)
	l.dataSources = append(l.dataSources, ds)
	l.notify()
}

// RemoveDataSource removes ds. It reports false if ds is not in the layer.
func (l *ExecutionLayer) RemoveDataSource(ds *DataSourceModel) bool {
	i := slices.Index(l.dataSources, ds)
	if i < 0 {
		return false
	}
	l.dataSources = slices.Delete(l.dataSources, i, i+1)
	ds.attach(nil)
	l.notify()
	return true
}

func (l *ExecutionLayer) attach(fn emitFunc) {
	l.emit = fn
	for _, ds := range l.dataSources {
		ds.attach(fn)
	}
}

func (l *ExecutionLayer) notify() {
	if l.emit != nil {
		l.emit(Change{Kind: ChangeStructure, Subject: l})
	}
}
