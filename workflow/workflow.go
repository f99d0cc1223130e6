package workflow

import "slices"

// Workflow is the root aggregate: at most one MCO, an ordered list of
// execution layers and the notification listeners attached for a run.
//
// Every mutation of the workflow or of an attached child is delivered to
// subscribers as a Change. A Workflow is owned by a single editing session
// and is not safe for concurrent mutation.
type Workflow struct {
	mco       *MCOModel
	layers    []*ExecutionLayer
	listeners []*NotificationListenerModel

	observers observers
}

// New creates an empty workflow.
func New() *Workflow {
	return &Workflow{}
}

// Subscribe registers fn for every subsequent change and returns a function
// that cancels the subscription.
func (w *Workflow) Subscribe(fn func(Change)) func() {
	return w.observers.subscribe(fn)
}

func (w *Workflow) emit(c Change) {
	w.observers.notify(c)
}

func (w *Workflow) structureChanged() {
	w.emit(Change{Kind: ChangeStructure, Subject: w})
}

// MCO returns the optimizer model or nil.
func (w *Workflow) MCO() *MCOModel { return w.mco }

// SetMCO replaces the optimizer model. A nil model removes it.
func (w *Workflow) SetMCO(m *MCOModel) {
	if w.mco == m {
		return
	}
	if w.mco != nil {
		w.mco.attach(nil)
	}
	w.mco = m
	if m != nil {
		m.attach(w.emit)
	}
	w.structureChanged()
}

// ExecutionLayers returns the layers in execution order.
func (w *Workflow) ExecutionLayers() []*ExecutionLayer {
	return slices.Clone(w.layers)
}

// LayerIndex returns the position of l, or -1.
func (w *Workflow) LayerIndex(l *ExecutionLayer) int {
	return slices.Index(w.layers, l)
}

// AddExecutionLayer appends l.
func (w *Workflow) AddExecutionLayer(l *ExecutionLayer) {
	l.attach(w.emit)
	w.layers = append(w.layers, l)
	w.structureChanged()
}

// RemoveExecutionLayer removes l. It reports false if l is not a layer of w.
func (w *Workflow) RemoveExecutionLayer(l *ExecutionLayer) bool {
	i := slices.Index(w.layers, l)
	if i < 0 {
		return false
	}
	w.layers = slices.Delete(w.layers, i, i+1)
	l.attach(nil)
	w.structureChanged()
	return true
}

// NotificationListeners returns the attached listener models.
func (w *Workflow) NotificationListeners() []*NotificationListenerModel {
	return slices.Clone(w.listeners)
}

// AddNotificationListener attaches n.
func (w *Workflow) AddNotificationListener(n *NotificationListenerModel) {
	n.attach(w.emit)
	w.listeners = append(w.listeners, n)
	w.structureChanged()
}

// RemoveNotificationListener detaches n. It reports false if n is not
// attached to w.
func (w *Workflow) RemoveNotificationListener(n *NotificationListenerModel) bool {
	i := slices.Index(w.listeners, n)
	if i < 0 {
		return false
	}
	w.listeners = slices.Delete(w.listeners, i, i+1)
	n.attach(nil)
	w.structureChanged()
	return true
}

// FindDataSource returns the layer index and position of ds, or -1, -1.
func (w *Workflow) FindDataSource(ds *DataSourceModel) (layer, pos int) {
	for li, l := range w.layers {
		if i := slices.Index(l.dataSources, ds); i >= 0 {
			return li, i
		}
	}
	return -1, -1
}
