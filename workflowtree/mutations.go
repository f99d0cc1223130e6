package workflowtree

import (
	"github.com/force-h2020/wfmanager/workflow"
)

// mutate runs fn and returns the structural error raised while the
// resulting changes were handled. Mutations that emit nothing still end in a
// verification pass.
func (t *WorkflowTree) mutate(fn func() error) error {
	t.err = nil
	before := t.handled
	err := fn()
	if t.closed {
		return err
	}
	if err != nil || t.handled == before {
		if verr := t.Verify(); verr != nil {
			t.err = verr
			return verr
		}
	}
	if err != nil {
		return err
	}
	return t.err
}

// SetMCO sets the MCO model, replacing any existing one.
func (t *WorkflowTree) SetMCO(m *workflow.MCOModel) error {
	return t.mutate(func() error {
		t.wf.SetMCO(m)
		return nil
	})
}

// RemoveMCO removes the MCO model.
func (t *WorkflowTree) RemoveMCO() error {
	return t.mutate(func() error {
		if t.wf.MCO() == nil {
			return notFound("RemoveMCO", "MCO")
		}
		t.wf.SetMCO(nil)
		return nil
	})
}

// AddParameter appends p to the MCO.
func (t *WorkflowTree) AddParameter(p *workflow.Parameter) error {
	return t.mutate(func() error {
		m := t.wf.MCO()
		if m == nil {
			return notFound("AddParameter", "MCO")
		}
		m.AddParameter(p)
		return nil
	})
}

// RemoveParameter removes p from the MCO.
func (t *WorkflowTree) RemoveParameter(p *workflow.Parameter) error {
	return t.mutate(func() error {
		m := t.wf.MCO()
		if m == nil || !m.RemoveParameter(p) {
			return notFound("RemoveParameter", "parameter")
		}
		return nil
	})
}

// AddKPI appends k to the MCO.
func (t *WorkflowTree) AddKPI(k *workflow.KPISpecification) error {
	return t.mutate(func() error {
		m := t.wf.MCO()
		if m == nil {
			return notFound("AddKPI", "MCO")
		}
		m.AddKPI(k)
		return nil
	})
}

// RemoveKPI removes k from the MCO.
func (t *WorkflowTree) RemoveKPI(k *workflow.KPISpecification) error {
	return t.mutate(func() error {
		m := t.wf.MCO()
		if m == nil || !m.RemoveKPI(k) {
			return notFound("RemoveKPI", "KPI")
		}
		return nil
	})
}

// AddExecutionLayer appends l to the workflow.
func (t *WorkflowTree) AddExecutionLayer(l *workflow.ExecutionLayer) error {
	return t.mutate(func() error {
		t.wf.AddExecutionLayer(l)
		return nil
	})
}

// RemoveExecutionLayer removes l from the workflow.
func (t *WorkflowTree) RemoveExecutionLayer(l *workflow.ExecutionLayer) error {
	return t.mutate(func() error {
		if !t.wf.RemoveExecutionLayer(l) {
			return notFound("RemoveExecutionLayer", "execution layer")
		}
		return nil
	})
}

// AddDataSource appends ds to layer l, which must belong to the workflow.
func (t *WorkflowTree) AddDataSource(l *workflow.ExecutionLayer, ds *workflow.DataSourceModel) error {
	return t.mutate(func() error {
		if t.wf.LayerIndex(l) < 0 {
			return notFound("AddDataSource", "execution layer")
		}
		l.AddDataSource(ds)
		return nil
	})
}

// RemoveDataSource removes ds from whichever layer holds it.
func (t *WorkflowTree) RemoveDataSource(ds *workflow.DataSourceModel) error {
	return t.mutate(func() error {
		layer, _ := t.wf.FindDataSource(ds)
		if layer < 0 {
			return notFound("RemoveDataSource", "data source")
		}
		t.wf.ExecutionLayers()[layer].RemoveDataSource(ds)
		return nil
	})
}

// AddNotificationListener attaches l to the workflow.
func (t *WorkflowTree) AddNotificationListener(l *workflow.NotificationListenerModel) error {
	return t.mutate(func() error {
		t.wf.AddNotificationListener(l)
		return nil
	})
}

// RemoveNotificationListener detaches l from the workflow.
func (t *WorkflowTree) RemoveNotificationListener(l *workflow.NotificationListenerModel) error {
	return t.mutate(func() error {
		if !t.wf.RemoveNotificationListener(l) {
			return notFound("RemoveNotificationListener", "notification listener")
		}
		return nil
	})
}
