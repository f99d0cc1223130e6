// Package event defines the runtime events relayed from a running optimiser
// to the workflow manager, their JSON codec and the text frames that carry
// them.
//
// An encoded event looks like
//
//	{"module": "wfmanager.events", "type": "ProgressEvent", "model_data": {...}}
//
// and travels inside a MESSAGE frame on the publish channel. HELLO and
// GOODBYE frames on the sync channel bracket a run.
package event

// Module is the module tag of the built-in events.
const Module = "wfmanager.events"

// Event is a runtime event. The set of built-in variants is closed; plugins
// can add their own by embedding Base.
type Event interface {
	isEvent()
}

// Base marks a struct as an Event.
type Base struct{}

func (Base) isEvent() {}

// DataValue is a named, typed value reported by the optimiser. Value holds
// nil, a bool, a string, an int or a float64; other numeric types decode as
// one of the latter two.
type DataValue struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
	Name  string `json:"name"`
}

// StartEvent opens a run and names the columns of its results.
type StartEvent struct {
	Base
	ParameterNames []string `json:"parameter_names"`
	KPINames       []string `json:"kpi_names"`
}

// ProgressEvent reports a point on the optimal front.
type ProgressEvent struct {
	Base
	OptimalPoint []DataValue `json:"optimal_point"`
	OptimalKPIs  []DataValue `json:"optimal_kpis"`
	Weights      []float64   `json:"weights"`
}

// FinishEvent closes a run.
type FinishEvent struct {
	Base
}
