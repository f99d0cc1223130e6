// Package modelview mirrors a workflow as a tree of view nodes that carry the
// validation state of each model.
//
// Nodes form a closed set: WorkflowView, MCOView, ParameterView, KPIView,
// ExecutionLayerView, DataSourceView and NotificationListenerView. Data
// source views additionally hold one row per input and output slot. Error
// text is written only by Annotate.
package modelview

// NodeKind tags a view node variant.
type NodeKind string

// Node kinds
const (
	KindWorkflow             NodeKind = "workflow"
	KindMCO                  NodeKind = "mco"
	KindParameter            NodeKind = "parameter"
	KindKPI                  NodeKind = "kpi"
	KindExecutionLayer       NodeKind = "execution_layer"
	KindDataSource           NodeKind = "data_source"
	KindNotificationListener NodeKind = "notification_listener"
)

// Node is implemented by every view variant.
type Node interface {
	Kind() NodeKind
	Label() string
	// Model returns the workflow model the node mirrors.
	Model() any
	// Valid is false iff ErrorMessage is non-empty.
	Valid() bool
	// ErrorMessage is the node's own messages preceded by those of its
	// descendants, one per line.
	ErrorMessage() string
	// Messages returns the node's own collapsed messages.
	Messages() []string
	Children() []Node

	setStatus(own []string, full string)
}

type status struct {
	own  []string
	full string
}

func (s *status) Valid() bool          { return s.full == "" }
func (s *status) ErrorMessage() string { return s.full }

func (s *status) Messages() []string {
	return append([]string(nil), s.own...)
}

func (s *status) setStatus(own []string, full string) {
	s.own = own
	s.full = full
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn stops the walk.
func Walk(n Node, fn func(Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Children() {
		if !Walk(child, fn) {
			return false
		}
	}
	return true
}

// Find returns the node whose model is model, or nil.
func Find(root Node, model any) Node {
	var found Node
	Walk(root, func(n Node) bool {
		if n.Model() == model {
			found = n
			return false
		}
		return true
	})
	return found
}
