package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/force-h2020/wfmanager/errors"
)

// versionKey is bookkeeping state some event types carry; it never goes on
// the wire.
const versionKey = "__version__"

// SerializerError reports an event that cannot be encoded.
type SerializerError struct {
	Reason string
	Err    error
}

func (e *SerializerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event serializer: %s: %v", e.Reason, e.Err)
	}
	return "event serializer: " + e.Reason
}

// Unwrap exposes errors.ErrInvalidData and the cause.
func (e *SerializerError) Unwrap() []error {
	return []error{errors.ErrInvalidData, e.Err}
}

// DeserializerError reports a payload that cannot be decoded into an event.
type DeserializerError struct {
	Reason string
	Err    error
}

func (e *DeserializerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event deserializer: %s: %v", e.Reason, e.Err)
	}
	return "event deserializer: " + e.Reason
}

// Unwrap exposes errors.ErrInvalidData and the cause.
func (e *DeserializerError) Unwrap() []error {
	return []error{errors.ErrInvalidData, e.Err}
}

type envelope struct {
	Module    *string         `json:"module"`
	Type      *string         `json:"type"`
	ModelData json.RawMessage `json:"model_data"`
}

// Serializer encodes events.
type Serializer struct {
	registry *TypeRegistry
}

// NewSerializer returns a serializer resolving tags through registry, or
// through the built-in registry when registry is nil.
func NewSerializer(registry *TypeRegistry) *Serializer {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &Serializer{registry: registry}
}

// Serialize encodes ev. Values that are not registered events are rejected
// with a *SerializerError.
func (s *Serializer) Serialize(ev any) ([]byte, error) {
	if _, ok := ev.(Event); !ok {
		return nil, &SerializerError{Reason: fmt.Sprintf("%T is not an event", ev)}
	}
	reg, ok := s.registry.Tag(ev)
	if !ok {
		return nil, &SerializerError{Reason: fmt.Sprintf("event type %T is not registered", ev)}
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, &SerializerError{Reason: "encode model data", Err: err}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &SerializerError{Reason: "flatten model data", Err: err}
	}
	delete(fields, versionKey)

	return json.Marshal(map[string]any{
		"module":     reg.Module,
		"type":       reg.Type,
		"model_data": fields,
	})
}

// Deserializer decodes events.
type Deserializer struct {
	registry *TypeRegistry
}

// NewDeserializer returns a deserializer resolving tags through registry,
// or through the built-in registry when registry is nil.
func NewDeserializer(registry *TypeRegistry) *Deserializer {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	return &Deserializer{registry: registry}
}

// Deserialize decodes data into a freshly constructed event. Every failure
// is a *DeserializerError.
func (d *Deserializer) Deserialize(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DeserializerError{Reason: "malformed payload", Err: err}
	}
	if env.Module == nil {
		return nil, &DeserializerError{Reason: "missing module key"}
	}
	if env.Type == nil {
		return nil, &DeserializerError{Reason: "missing type key"}
	}

	reg, ok := d.registry.Lookup(*env.Module, *env.Type)
	if !ok {
		return nil, &DeserializerError{Reason: fmt.Sprintf("unknown event type %s.%s", *env.Module, *env.Type)}
	}
	instance := reg.Factory()
	ev, ok := instance.(Event)
	if !ok {
		return nil, &DeserializerError{Reason: fmt.Sprintf("type %s resolves to %T, which is not an event", reg.Key(), instance)}
	}

	if len(env.ModelData) == 0 || bytes.Equal(env.ModelData, []byte("null")) {
		return nil, &DeserializerError{Reason: "missing model_data"}
	}

	if p, ok := ev.(*ProgressEvent); ok {
		if err := decodeProgress(env.ModelData, p); err != nil {
			return nil, &DeserializerError{Reason: "invalid model_data for " + reg.Key(), Err: err}
		}
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(env.ModelData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ev); err != nil {
		return nil, &DeserializerError{Reason: "invalid model_data for " + reg.Key(), Err: err}
	}
	return ev, nil
}

// decodeProgress accepts either DataValue objects or bare primitives in the
// two value lists; primitives are wrapped.
func decodeProgress(data []byte, p *ProgressEvent) error {
	var raw struct {
		OptimalPoint []json.RawMessage `json:"optimal_point"`
		OptimalKPIs  []json.RawMessage `json:"optimal_kpis"`
		Weights      []float64         `json:"weights"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	var err error
	if p.OptimalPoint, err = dataValues(raw.OptimalPoint); err != nil {
		return fmt.Errorf("optimal_point: %w", err)
	}
	if p.OptimalKPIs, err = dataValues(raw.OptimalKPIs); err != nil {
		return fmt.Errorf("optimal_kpis: %w", err)
	}
	p.Weights = raw.Weights
	return nil
}

func dataValues(items []json.RawMessage) ([]DataValue, error) {
	if items == nil {
		return nil, nil
	}
	out := make([]DataValue, len(items))
	for i, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			if err := json.Unmarshal(trimmed, &out[i]); err != nil {
				return nil, err
			}
			continue
		}
		v, err := decodeValue(trimmed)
		if err != nil {
			return nil, err
		}
		if v != nil {
			switch reflect.TypeOf(v).Kind() {
			case reflect.Slice, reflect.Map:
				return nil, fmt.Errorf("item %d is not a primitive", i)
			}
		}
		out[i] = DataValue{Value: v}
	}
	return out, nil
}

type wireDataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
	Name  string          `json:"name"`
}

// MarshalJSON writes floating point values with a fraction or exponent so
// that integral floats and integers stay distinguishable on the wire.
func (v DataValue) MarshalJSON() ([]byte, error) {
	value, err := json.Marshal(v.Value)
	if err != nil {
		return nil, err
	}
	switch v.Value.(type) {
	case float32, float64:
		if !bytes.ContainsAny(value, ".eE") {
			value = append(value, ".0"...)
		}
	}
	return json.Marshal(wireDataValue{Type: v.Type, Value: value, Name: v.Name})
}

// UnmarshalJSON decodes integer literals as int and other numbers as
// float64.
func (v *DataValue) UnmarshalJSON(data []byte) error {
	var wire wireDataValue
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	value, err := decodeValue(wire.Value)
	if err != nil {
		return err
	}
	*v = DataValue{Type: wire.Type, Value: value, Name: wire.Name}
	return nil
}

func decodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := strconv.Atoi(n.String()); err == nil {
			return i, nil
		}
	}
	return n.Float64()
}
