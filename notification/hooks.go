package notification

import (
	"slices"

	"github.com/google/uuid"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/plugins/builtin"
	"github.com/force-h2020/wfmanager/workflow"
	"github.com/force-h2020/wfmanager/workflowtree"
)

// HookManager attaches a UI notification listener to the workflow for the
// duration of a run.
type HookManager struct {
	tree  *workflowtree.WorkflowTree
	cfg   Config
	newID func() string

	model *workflow.NotificationListenerModel
}

// NewHookManager creates hooks that edit the workflow through tree.
func NewHookManager(tree *workflowtree.WorkflowTree, cfg Config) *HookManager {
	return &HookManager{
		tree:  tree,
		cfg:   cfg,
		newID: uuid.NewString,
	}
}

// BeforeExecution attaches a listener model with a fresh session identifier
// and returns it.
func (h *HookManager) BeforeExecution() (*workflow.NotificationListenerModel, error) {
	if h.model != nil {
		return nil, errors.WrapInvalid(errors.ErrAlreadyStarted, "HookManager", "BeforeExecution", "listener check")
	}

	model := workflow.NewNotificationListenerModel(builtin.UINotificationID, h.newID(),
		h.cfg.PubSubject, h.cfg.SyncSubject)
	if err := h.tree.AddNotificationListener(model); err != nil {
		if slices.Contains(h.tree.Workflow().NotificationListeners(), model) {
			// The failed verification repeats on removal; the model is gone either way.
			_ = h.tree.RemoveNotificationListener(model)
		}
		return nil, errors.Wrap(err, "HookManager", "BeforeExecution", "attach listener")
	}
	h.model = model
	return model, nil
}

// AfterExecution removes the listener attached by BeforeExecution. It is a
// no-op when nothing is attached.
func (h *HookManager) AfterExecution() error {
	if h.model == nil {
		return nil
	}
	model := h.model
	h.model = nil
	if err := h.tree.RemoveNotificationListener(model); err != nil {
		return errors.Wrap(err, "HookManager", "AfterExecution", "detach listener")
	}
	return nil
}
