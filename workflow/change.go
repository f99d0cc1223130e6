package workflow

import "sync"

// ChangeKind identifies which observable property of a model changed.
type ChangeKind int

// Change kinds emitted by model setters and structural mutators.
const (
	ChangeParameterName ChangeKind = iota
	ChangeParameterType
	ChangeOutputSlotName
	ChangeInputSlotName
	// ChangeSlots means the slot shape declared by the data source's factory
	// may have changed and its bindings must be rebuilt.
	ChangeSlots
	ChangeKPI
	ChangeListener
	// ChangeStructure is emitted when a child is added to or removed from a
	// container. The subject is the container.
	ChangeStructure
)

// String returns the string representation of ChangeKind
func (k ChangeKind) String() string {
	switch k {
	case ChangeParameterName:
		return "parameter_name"
	case ChangeParameterType:
		return "parameter_type"
	case ChangeOutputSlotName:
		return "output_slot_name"
	case ChangeInputSlotName:
		return "input_slot_name"
	case ChangeSlots:
		return "slots"
	case ChangeKPI:
		return "kpi"
	case ChangeListener:
		return "listener"
	case ChangeStructure:
		return "structure"
	default:
		return "unknown"
	}
}

// Change describes a single mutation. Subject is the model that changed:
// one of *Workflow, *MCOModel, *Parameter, *KPISpecification,
// *ExecutionLayer, *DataSourceModel or *NotificationListenerModel.
type Change struct {
	Kind    ChangeKind
	Subject any
}

type emitFunc func(Change)

type subscriber struct {
	id int
	fn func(Change)
}

// observers is the subscription list owned by a Workflow. Delivery is
// synchronous and in subscription order.
type observers struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func (o *observers) subscribe(fn func(Change)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) notify(c Change) {
	o.mu.Lock()
	subs := make([]subscriber, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(c)
	}
}
