package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/force-h2020/wfmanager/errors"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{"start", &StartEvent{ParameterNames: []string{"x", "p"}, KPINames: []string{"y"}}},
		{"progress", &ProgressEvent{
			OptimalPoint: []DataValue{{Type: "NUMBER", Value: 1.5, Name: "x"}},
			OptimalKPIs:  []DataValue{{Type: "NUMBER", Value: 10.0, Name: "y"}, {Value: "n/a"}},
			Weights:      []float64{0.5, 0.5},
		}},
		{"progress integral values", &ProgressEvent{
			OptimalPoint: []DataValue{
				{Type: "NUMBER", Value: 3, Name: "n"},
				{Type: "NUMBER", Value: 3.0, Name: "f"},
				{Type: "NUMBER", Value: -7, Name: "neg"},
			},
			OptimalKPIs: []DataValue{
				{Type: "BOOL", Value: true, Name: "ok"},
				{Type: "BOOL", Value: false, Name: "failed"},
				{Value: nil},
			},
			Weights: []float64{1},
		}},
		{"finish", &FinishEvent{}},
	}

	ser := NewSerializer(nil)
	de := NewDeserializer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ser.Serialize(tt.ev)
			require.NoError(t, err)

			got, err := de.Deserialize(data)
			require.NoError(t, err)
			assert.Equal(t, tt.ev, got)
		})
	}
}

func TestDataValue_Numbers(t *testing.T) {
	tests := []struct {
		name  string
		value any
		wire  string
		want  any
	}{
		{"int", 3, `3`, 3},
		{"int64", int64(42), `42`, 42},
		{"integral float", 10.0, `10.0`, 10.0},
		{"fraction", 1.5, `1.5`, 1.5},
		{"large float", 1e21, `1e+21`, 1e21},
		{"float32", float32(2), `2.0`, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(DataValue{Type: "NUMBER", Value: tt.value})
			require.NoError(t, err)
			assert.JSONEq(t, `{"type":"NUMBER","value":`+tt.wire+`,"name":""}`, string(data))
			assert.Contains(t, string(data), `"value":`+tt.wire)

			var got DataValue
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, tt.want, got.Value)
		})
	}
}

func TestDeserialize_BarePrimitiveNumbers(t *testing.T) {
	payload := `{"module":"wfmanager.events","type":"ProgressEvent","model_data":` +
		`{"optimal_point":[2, 2.5, 2.0],"optimal_kpis":[true],"weights":[1]}}`

	ev, err := NewDeserializer(nil).Deserialize([]byte(payload))
	require.NoError(t, err)
	p := ev.(*ProgressEvent)
	assert.Equal(t, []DataValue{{Value: 2}, {Value: 2.5}, {Value: 2.0}}, p.OptimalPoint)
	assert.Equal(t, []DataValue{{Value: true}}, p.OptimalKPIs)
}

func TestSerialize_Envelope(t *testing.T) {
	data, err := NewSerializer(nil).Serialize(StartEvent{ParameterNames: []string{"x"}, KPINames: []string{"y"}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Module, decoded["module"])
	assert.Equal(t, "StartEvent", decoded["type"])
	assert.Equal(t, map[string]any{
		"parameter_names": []any{"x"},
		"kpi_names":       []any{"y"},
	}, decoded["model_data"])
}

type versionedEvent struct {
	Base
	Version int    `json:"__version__"`
	Label   string `json:"label"`
}

func TestSerialize_StripsVersion(t *testing.T) {
	registry := NewDefaultRegistry()
	require.NoError(t, registry.Register(&Registration{
		Module: "plugin.events", Type: "Versioned",
		Factory: func() any { return &versionedEvent{} },
	}))

	data, err := NewSerializer(registry).Serialize(&versionedEvent{Version: 3, Label: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"module":"plugin.events","type":"Versioned","model_data":{"label":"hi"}}`, string(data))

	ev, err := NewDeserializer(registry).Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, &versionedEvent{Label: "hi"}, ev)
}

type unregistered struct{ Base }

func TestSerialize_Rejects(t *testing.T) {
	ser := NewSerializer(nil)
	for name, v := range map[string]any{
		"not an event": struct{ A int }{1},
		"nil":          nil,
		"unregistered": &unregistered{},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ser.Serialize(v)
			var serr *SerializerError
			require.ErrorAs(t, err, &serr)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

type notAnEvent struct {
	A int `json:"a"`
}

func TestDeserialize_Rejects(t *testing.T) {
	registry := NewDefaultRegistry()
	require.NoError(t, registry.Register(&Registration{
		Module: Module, Type: "NotAnEvent",
		Factory: func() any { return &notAnEvent{} },
	}))
	de := NewDeserializer(registry)

	tests := []struct {
		name   string
		data   string
		reason string
	}{
		{"malformed", `{"module":`, "malformed payload"},
		{"missing module", `{"type":"StartEvent","model_data":{}}`, "missing module key"},
		{"missing type", `{"module":"wfmanager.events","model_data":{}}`, "missing type key"},
		{"unknown type", `{"module":"wfmanager.events","type":"Nope","model_data":{}}`, "unknown event type wfmanager.events.Nope"},
		{"not an event", `{"module":"wfmanager.events","type":"NotAnEvent","model_data":{"a":1}}`, "type wfmanager.events.NotAnEvent resolves to *event.notAnEvent, which is not an event"},
		{"missing model_data", `{"module":"wfmanager.events","type":"StartEvent"}`, "missing model_data"},
		{"unknown field", `{"module":"wfmanager.events","type":"StartEvent","model_data":{"bogus":1}}`, "invalid model_data for wfmanager.events.StartEvent"},
		{"nested progress value", `{"module":"wfmanager.events","type":"ProgressEvent","model_data":{"optimal_point":[[1]]}}`, "invalid model_data for wfmanager.events.ProgressEvent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := de.Deserialize([]byte(tt.data))
			var derr *DeserializerError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.reason, derr.Reason)
			assert.ErrorIs(t, err, errors.ErrInvalidData)
		})
	}
}

func TestDeserialize_ProgressAcceptsPrimitives(t *testing.T) {
	data := `{"module":"wfmanager.events","type":"ProgressEvent","model_data":{
		"optimal_point":[1, {"type":"NUMBER","value":2,"name":"b"}],
		"optimal_kpis":["high", null],
		"weights":[1]}}`

	ev, err := NewDeserializer(nil).Deserialize([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, &ProgressEvent{
		OptimalPoint: []DataValue{{Value: 1}, {Type: "NUMBER", Value: 2, Name: "b"}},
		OptimalKPIs:  []DataValue{{Value: "high"}, {}},
		Weights:      []float64{1},
	}, ev)
}

func TestTypeRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	assert.Equal(t, []string{
		"wfmanager.events.FinishEvent",
		"wfmanager.events.ProgressEvent",
		"wfmanager.events.StartEvent",
	}, r.Keys())

	err := r.Register(&Registration{Module: Module, Type: "StartEvent", Factory: func() any { return &StartEvent{} }})
	assert.ErrorIs(t, err, errors.ErrConflict)

	err = r.Register(&Registration{Module: Module, Type: "Value", Factory: func() any { return StartEvent{} }})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	err = r.Register(&Registration{Type: "NoModule", Factory: func() any { return &FinishEvent{} }})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
