package verifier

import "fmt"

// Code classifies an issue for metrics and programmatic filtering.
type Code string

// Issue codes
const (
	CodeNoMCO              Code = "no_mco"
	CodeNoLayers           Code = "no_layers"
	CodeUnknownFactory     Code = "unknown_factory"
	CodeNoParameters       Code = "no_parameters"
	CodeNoKPIs             Code = "no_kpis"
	CodeUnnamedParameter   Code = "unnamed_parameter"
	CodeUntypedParameter   Code = "untyped_parameter"
	CodeDuplicateParameter Code = "duplicate_parameter"
	CodeUnsupportedType    Code = "unsupported_type"
	CodeUnnamedKPI         Code = "unnamed_kpi"
	CodeUndefinedKPI       Code = "undefined_kpi"
	CodeInvalidObjective   Code = "invalid_objective"
	CodeInvalidScale       Code = "invalid_scale_factor"
	CodeEmptyLayer         Code = "empty_layer"
	CodeSlotCount          Code = "slot_count"
	CodeUnboundInput       Code = "unbound_input"
	CodeUndefinedInput     Code = "undefined_input"
	CodeTypeMismatch       Code = "type_mismatch"
	CodeListenerIdentifier Code = "listener_identifier"
	CodeListenerURLs       Code = "listener_urls"
)

// Issue is a single validation problem attached to a model. Message is the
// text shown on the offending node; GlobalMessage locates the problem in the
// whole workflow.
type Issue struct {
	Subject       any
	Type          Code
	Message       string
	GlobalMessage string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Type, i.GlobalMessage)
}
