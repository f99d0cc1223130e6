package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/force-h2020/wfmanager/errors"
)

// DocumentVersion is the version written by Encode.
const DocumentVersion = "1"

type document struct {
	Version  string      `json:"version"`
	Workflow workflowDoc `json:"workflow"`
}

type workflowDoc struct {
	MCO                   *entityDoc    `json:"mco,omitempty"`
	ExecutionLayers       [][]entityDoc `json:"execution_layers"`
	NotificationListeners []entityDoc   `json:"notification_listeners"`
}

type entityDoc struct {
	ID        string          `json:"id"`
	ModelData json.RawMessage `json:"model_data"`
}

type mcoData struct {
	Parameters []entityDoc `json:"parameters"`
	KPIs       []kpiData   `json:"kpis"`
}

type kpiData struct {
	Name        string    `json:"name"`
	Objective   Objective `json:"objective"`
	ScaleFactor *float64  `json:"scale_factor,omitempty"`
}

type parameterData struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type dataSourceData struct {
	InputSlotInfo  []InputSlotInfo  `json:"input_slot_info"`
	OutputSlotInfo []OutputSlotInfo `json:"output_slot_info"`
}

type listenerData struct {
	Identifier string `json:"identifier"`
	PubURL     string `json:"pub_url"`
	SyncURL    string `json:"sync_url"`
}

var (
	mcoKeys        = []string{"parameters", "kpis"}
	parameterKeys  = []string{"name", "type"}
	dataSourceKeys = []string{"input_slot_info", "output_slot_info"}
)

// Encode serialises wf into the persisted document format.
func Encode(wf *Workflow) ([]byte, error) {
	doc := document{
		Version: DocumentVersion,
		Workflow: workflowDoc{
			ExecutionLayers:       make([][]entityDoc, 0, len(wf.layers)),
			NotificationListeners: make([]entityDoc, 0, len(wf.listeners)),
		},
	}

	if wf.mco != nil {
		entity, err := encodeMCO(wf.mco)
		if err != nil {
			return nil, err
		}
		doc.Workflow.MCO = &entity
	}

	for _, layer := range wf.layers {
		entities := make([]entityDoc, 0, len(layer.dataSources))
		for _, ds := range layer.dataSources {
			data := dataSourceData{
				InputSlotInfo:  nonNil(ds.inputs),
				OutputSlotInfo: nonNil(ds.outputs),
			}
			entity, err := encodeEntity(ds.FactoryID, data, ds.config)
			if err != nil {
				return nil, err
			}
			entities = append(entities, entity)
		}
		doc.Workflow.ExecutionLayers = append(doc.Workflow.ExecutionLayers, entities)
	}

	for _, n := range wf.listeners {
		data := listenerData{Identifier: n.identifier, PubURL: n.pubURL, SyncURL: n.syncURL}
		entity, err := encodeEntity(n.FactoryID, data, nil)
		if err != nil {
			return nil, err
		}
		doc.Workflow.NotificationListeners = append(doc.Workflow.NotificationListeners, entity)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.WrapFatal(err, "workflow", "Encode", "marshal document")
	}
	return out, nil
}

func encodeMCO(m *MCOModel) (entityDoc, error) {
	data := mcoData{
		Parameters: make([]entityDoc, 0, len(m.parameters)),
		KPIs:       make([]kpiData, 0, len(m.kpis)),
	}
	for _, p := range m.parameters {
		entity, err := encodeEntity(p.FactoryID, parameterData{Name: p.name, Type: p.typ}, p.Config)
		if err != nil {
			return entityDoc{}, err
		}
		data.Parameters = append(data.Parameters, entity)
	}
	for _, k := range m.kpis {
		sf := k.scaleFactor
		data.KPIs = append(data.KPIs, kpiData{Name: k.name, Objective: k.objective, ScaleFactor: &sf})
	}
	return encodeEntity(m.FactoryID, data, m.Config)
}

// encodeEntity merges the free-form config with the typed fields of data.
// Typed fields win on key collisions.
func encodeEntity(id string, data any, config map[string]any) (entityDoc, error) {
	typed, err := json.Marshal(data)
	if err != nil {
		return entityDoc{}, errors.WrapFatal(err, "workflow", "Encode", "marshal model data")
	}

	merged := cloneConfig(config)
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return entityDoc{}, errors.WrapFatal(err, "workflow", "Encode", "merge model data")
	}
	for k, v := range fields {
		merged[k] = v
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return entityDoc{}, errors.WrapFatal(err, "workflow", "Encode", "marshal model data")
	}
	return entityDoc{ID: id, ModelData: raw}, nil
}

// Decode parses a persisted document. The document is checked against
// DocumentSchema first; any failure is classified invalid and wraps
// errors.ErrInvalidData.
func Decode(data []byte) (*Workflow, error) {
	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalid("unmarshal document", err)
	}

	wf := New()
	if doc.Workflow.MCO != nil {
		m, err := decodeMCO(*doc.Workflow.MCO)
		if err != nil {
			return nil, err
		}
		wf.SetMCO(m)
	}

	for li, entities := range doc.Workflow.ExecutionLayers {
		layer := NewExecutionLayer()
		for di, entity := range entities {
			var typed dataSourceData
			config, err := decodeEntity(entity, &typed, dataSourceKeys)
			if err != nil {
				return nil, invalid(fmt.Sprintf("decode data source %d of layer %d", di, li), err)
			}
			ds := NewDataSourceModel(entity.ID, config)
			ds.ReplaceSlotInfo(typed.InputSlotInfo, typed.OutputSlotInfo)
			layer.AddDataSource(ds)
		}
		wf.AddExecutionLayer(layer)
	}

	for i, entity := range doc.Workflow.NotificationListeners {
		var typed listenerData
		if _, err := decodeEntity(entity, &typed, nil); err != nil {
			return nil, invalid(fmt.Sprintf("decode notification listener %d", i), err)
		}
		wf.AddNotificationListener(
			NewNotificationListenerModel(entity.ID, typed.Identifier, typed.PubURL, typed.SyncURL))
	}

	return wf, nil
}

func decodeMCO(entity entityDoc) (*MCOModel, error) {
	var typed mcoData
	config, err := decodeEntity(entity, &typed, mcoKeys)
	if err != nil {
		return nil, invalid("decode mco", err)
	}

	m := NewMCOModel(entity.ID)
	m.Config = config
	for i, pe := range typed.Parameters {
		var pd parameterData
		pcfg, err := decodeEntity(pe, &pd, parameterKeys)
		if err != nil {
			return nil, invalid(fmt.Sprintf("decode parameter %d", i), err)
		}
		p := NewParameter(pe.ID, pd.Name, pd.Type)
		if len(pcfg) > 0 {
			p.Config = pcfg
		}
		m.AddParameter(p)
	}
	for _, kd := range typed.KPIs {
		objective := kd.Objective
		if objective == "" {
			objective = Minimise
		}
		k := NewKPISpecification(kd.Name, objective)
		if kd.ScaleFactor != nil {
			k.scaleFactor = *kd.ScaleFactor
		}
		m.AddKPI(k)
	}
	return m, nil
}

// decodeEntity fills typed from model_data and returns the remaining keys as
// free-form configuration.
func decodeEntity(entity entityDoc, typed any, known []string) (map[string]any, error) {
	if len(entity.ModelData) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(entity.ModelData, typed); err != nil {
		return nil, err
	}
	var config map[string]any
	if err := json.Unmarshal(entity.ModelData, &config); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(config, k)
	}
	if config == nil {
		config = map[string]any{}
	}
	return config, nil
}

func invalid(action string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "workflow", "Decode", action)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
