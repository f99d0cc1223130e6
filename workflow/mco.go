package workflow

import (
	"maps"
	"slices"
)

// Objective is the optimisation direction of a KPI.
type Objective string

// Supported objectives
const (
	Minimise Objective = "MINIMISE"
	Maximise Objective = "MAXIMISE"
)

// Valid reports whether o is a supported objective.
func (o Objective) Valid() bool {
	return o == Minimise || o == Maximise
}

// Parameter is a single MCO parameter. Name and Type are observable.
type Parameter struct {
	FactoryID string
	Config    map[string]any

	name string
	typ  string
	emit emitFunc
}

// NewParameter creates a detached parameter.
func NewParameter(factoryID, name, typ string) *Parameter {
	return &Parameter{FactoryID: factoryID, name: name, typ: typ}
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Type returns the declared parameter type.
func (p *Parameter) Type() string { return p.typ }

// SetName renames the parameter.
func (p *Parameter) SetName(name string) {
	if p.name == name {
		return
	}
	p.name = name
	p.notify(ChangeParameterName)
}

// SetType changes the declared type of the parameter.
func (p *Parameter) SetType(typ string) {
	if p.typ == typ {
		return
	}
	p.typ = typ
	p.notify(ChangeParameterType)
}

func (p *Parameter) attach(fn emitFunc) { p.emit = fn }

func (p *Parameter) notify(kind ChangeKind) {
	if p.emit != nil {
		p.emit(Change{Kind: kind, Subject: p})
	}
}

// KPISpecification names a variable the MCO optimises.
type KPISpecification struct {
	name        string
	objective   Objective
	scaleFactor float64
	emit        emitFunc
}

// NewKPISpecification creates a detached KPI with a scale factor of 1.
func NewKPISpecification(name string, objective Objective) *KPISpecification {
	return &KPISpecification{name: name, objective: objective, scaleFactor: 1}
}

// Name returns the name of the variable the KPI refers to.
func (k *KPISpecification) Name() string { return k.name }

// Objective returns the optimisation direction.
func (k *KPISpecification) Objective() Objective { return k.objective }

// ScaleFactor returns the scale factor applied to the KPI value.
func (k *KPISpecification) ScaleFactor() float64 { return k.scaleFactor }

// SetName points the KPI at another variable.
func (k *KPISpecification) SetName(name string) {
	if k.name == name {
		return
	}
	k.name = name
	k.notify()
}

// SetObjective changes the optimisation direction.
func (k *KPISpecification) SetObjective(o Objective) {
	if k.objective == o {
		return
	}
	k.objective = o
	k.notify()
}

// SetScaleFactor changes the scale factor.
func (k *KPISpecification) SetScaleFactor(f float64) {
	if k.scaleFactor == f {
		return
	}
	k.scaleFactor = f
	k.notify()
}

func (k *KPISpecification) attach(fn emitFunc) { k.emit = fn }

func (k *KPISpecification) notify() {
	if k.emit != nil {
		k.emit(Change{Kind: ChangeKPI, Subject: k})
	}
}

// MCOModel is the optimizer definition of a workflow.
type MCOModel struct {
	FactoryID string
	Config    map[string]any

	parameters []*Parameter
	kpis       []*KPISpecification
	emit       emitFunc
}

// NewMCOModel creates an empty MCO model for the given factory.
func NewMCOModel(factoryID string) *MCOModel {
	return &MCOModel{FactoryID: factoryID, Config: map[string]any{}}
}

// Parameters returns the parameters in declaration order.
func (m *MCOModel) Parameters() []*Parameter {
	return slices.Clone(m.parameters)
}

// KPIs returns the KPI specifications in declaration order.
func (m *MCOModel) KPIs() []*KPISpecification {
	return slices.Clone(m.kpis)
}

// AddParameter appends p and starts forwarding its changes.
func (m *MCOModel) AddParameter(p *Parameter) {
	p.attach(m.emit)
	m.parameters = append(m.parameters, p)
	m.notify()
}

// RemoveParameter removes p. It reports false if p is not a parameter of m.
func (m *MCOModel) RemoveParameter(p *Parameter) bool {
	i := slices.Index(m.parameters, p)
	if i < 0 {
		return false
	}
	m.parameters = slices.Delete(m.parameters, i, i+1)
	p.attach(nil)
	m.notify()
	return true
}

// AddKPI appends k and starts forwarding its changes.
func (m *MCOModel) AddKPI(k *KPISpecification) {
	k.attach(m.emit)
	m.kpis = append(m.kpis, k)
	m.notify()
}

// RemoveKPI removes k. It reports false if k is not a KPI of m.
func (m *MCOModel) RemoveKPI(k *KPISpecification) bool {
	i := slices.Index(m.kpis, k)
	if i < 0 {
		return false
	}
	m.kpis = slices.Delete(m.kpis, i, i+1)
	k.attach(nil)
	m.notify()
	return true
}

func (m *MCOModel) attach(fn emitFunc) {
	m.emit = fn
	for _, p := range m.parameters {
		p.attach(fn)
	}
	for _, k := range m.kpis {
		k.attach(fn)
	}
}

func (m *MCOModel) notify() {
	if m.emit != nil {
		m.emit(Change{Kind: ChangeStructure, Subject: m})
	}
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	return maps.Clone(cfg)
}
