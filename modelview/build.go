package modelview

import (
	"log/slog"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/variables"
	"github.com/force-h2020/wfmanager/workflow"
)

// Builder creates views for the models of one workflow.
type Builder struct {
	resolver factory.Resolver
	registry *variables.Registry
	logger   *slog.Logger
}

// NewBuilder returns a builder resolving factories through resolver and
// drawing input choices from registry.
func NewBuilder(resolver factory.Resolver, registry *variables.Registry, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{resolver: resolver, registry: registry, logger: logger}
}

// Build mirrors wf. Slot tables are built for every data source whose
// factory is known; a slot count mismatch or plugin failure aborts the build.
func Build(wf *workflow.Workflow, resolver factory.Resolver, registry *variables.Registry, logger *slog.Logger) (*WorkflowView, error) {
	return NewBuilder(resolver, registry, logger).Workflow(wf)
}

// Workflow builds the whole tree.
func (b *Builder) Workflow(wf *workflow.Workflow) (*WorkflowView, error) {
	root := &WorkflowView{model: wf}

	if m := wf.MCO(); m != nil {
		root.MCO = b.MCO(m)
	}
	for i, layer := range wf.ExecutionLayers() {
		view, err := b.Layer(i, layer)
		if err != nil {
			return nil, err
		}
		root.Layers = append(root.Layers, view)
	}
	for _, l := range wf.NotificationListeners() {
		root.Listeners = append(root.Listeners, b.Listener(l))
	}
	return root, nil
}

// MCO builds the MCO subtree.
func (b *Builder) MCO(m *workflow.MCOModel) *MCOView {
	view := &MCOView{model: m, name: m.FactoryID}
	if reg, ok := b.resolver.MCO(m.FactoryID); ok && reg.Name != "" {
		view.name = reg.Name
	}
	for _, p := range m.Parameters() {
		view.Parameters = append(view.Parameters, &ParameterView{model: p})
	}
	for _, k := range m.KPIs() {
		view.KPIs = append(view.KPIs, &KPIView{model: k})
	}
	return view
}

// Layer builds the view of the layer at index.
func (b *Builder) Layer(index int, layer *workflow.ExecutionLayer) (*ExecutionLayerView, error) {
	view := &ExecutionLayerView{model: layer, index: index}
	for _, ds := range layer.DataSources() {
		dsView, err := b.DataSource(index, ds)
		if err != nil {
			return nil, err
		}
		view.DataSources = append(view.DataSources, dsView)
	}
	return view, nil
}

// DataSource builds the view of ds, which sits in layer index.
func (b *Builder) DataSource(index int, ds *workflow.DataSourceModel) (*DataSourceView, error) {
	view := &DataSourceView{model: ds, name: ds.FactoryID, layer: index}
	reg, ok := b.resolver.DataSource(ds.FactoryID)
	if !ok {
		return view, nil
	}
	if reg.Name != "" {
		view.name = reg.Name
	}
	if err := b.slots(view, BuildSlotTable); err != nil {
		return nil, err
	}
	return view, nil
}

// ResetSlots rebuilds the rows of view after its data source changed shape.
func (b *Builder) ResetSlots(view *DataSourceView) error {
	if _, ok := b.resolver.DataSource(view.model.FactoryID); !ok {
		view.Inputs, view.Outputs = nil, nil
		return nil
	}
	return b.slots(view, ResetSlots)
}

type tableFunc func(*workflow.DataSourceModel, []factory.Slot, []factory.Slot) ([]*InputSlotRow, []*OutputSlotRow, error)

func (b *Builder) slots(view *DataSourceView, build tableFunc) error {
	inputs, outputs, err := factory.QuerySlots(b.resolver, view.model, b.logger)
	if err != nil {
		return err
	}
	in, out, err := build(view.model, inputs, outputs)
	if err != nil {
		if errors.Is(err, errors.ErrSlotMismatch) {
			b.logger.Error("Slot table does not match data source",
				"factory_id", view.model.FactoryID, "layer", view.layer, "error", err)
		}
		return err
	}
	view.Inputs, view.Outputs = in, out
	view.SetChoices(b.registry.AvailableNames(view.layer))
	return nil
}

// Listener builds the view of a notification listener.
func (b *Builder) Listener(l *workflow.NotificationListenerModel) *NotificationListenerView {
	view := &NotificationListenerView{model: l, name: l.FactoryID}
	if reg, ok := b.resolver.NotificationListener(l.FactoryID); ok && reg.Name != "" {
		view.name = reg.Name
	}
	return view
}

// RefreshChoices updates the input choices of every data source view from
// the builder's registry.
func (b *Builder) RefreshChoices(root *WorkflowView) {
	for _, layer := range root.Layers {
		names := b.registry.AvailableNames(layer.index)
		for _, ds := range layer.DataSources {
			ds.SetChoices(names)
		}
	}
}
