package modelview

import (
	"fmt"
	"slices"

	"github.com/force-h2020/wfmanager/errors"
	"github.com/force-h2020/wfmanager/factory"
	"github.com/force-h2020/wfmanager/workflow"
)

// InputSlotRow edits the binding of one input slot. The row reads and writes
// through the model, so it never holds a stale name.
type InputSlotRow struct {
	model       *workflow.DataSourceModel
	index       int
	Type        string
	Description string
	choices     []string
}

// Index is the zero-based slot index.
func (r *InputSlotRow) Index() int { return r.index }

// Choices returns the legal bindings: the empty (unbound) choice followed by
// the variable names visible to the data source.
func (r *InputSlotRow) Choices() []string {
	return append([]string{""}, r.choices...)
}

// SetChoices replaces the visible variable names.
func (r *InputSlotRow) SetChoices(names []string) {
	r.choices = slices.Clone(names)
}

// Name returns the displayed binding. A binding to a name that is not among
// the choices is displayed as unbound; the model keeps it.
func (r *InputSlotRow) Name() string {
	name := r.model.InputSlotInfo()[r.index].Name
	if name != "" && !slices.Contains(r.choices, name) {
		return ""
	}
	return name
}

// SetName binds the slot to name, which must be one of the choices.
func (r *InputSlotRow) SetName(name string) error {
	if name != "" && !slices.Contains(r.choices, name) {
		return errors.WrapInvalid(fmt.Errorf("%w: variable %q is not available", errors.ErrInvalidData, name),
			"InputSlotRow", "SetName", "bind input slot")
	}
	return r.model.SetInputSlotName(r.index, name)
}

// OutputSlotRow edits the name of one output slot.
type OutputSlotRow struct {
	model       *workflow.DataSourceModel
	index       int
	Type        string
	Description string
}

// Index is the zero-based slot index.
func (r *OutputSlotRow) Index() int { return r.index }

// Name returns the name currently held by the model.
func (r *OutputSlotRow) Name() string {
	return r.model.OutputSlotInfo()[r.index].Name
}

// SetName renames the output slot on the model.
func (r *OutputSlotRow) SetName(name string) error {
	return r.model.SetOutputSlotName(r.index, name)
}

func mismatch(direction string, have, declared int) error {
	return errors.WrapFatal(
		fmt.Errorf("%w: The number of %s slots (%d) does not match the number of slots (%d) declared by the data source. "+
			"This is likely due to a corrupted file.", errors.ErrSlotMismatch, direction, have, declared),
		"modelview", "BuildSlotTable", "build slot table")
}

// BuildSlotTable creates one row per declared slot. Empty binding lists are
// initialised with one unbound entry per slot; non-empty lists must already
// have the declared length, otherwise a fatal error wrapping
// errors.ErrSlotMismatch is returned and the model is left unchanged.
func BuildSlotTable(model *workflow.DataSourceModel, inputs, outputs []factory.Slot) ([]*InputSlotRow, []*OutputSlotRow, error) {
	in := model.InputSlotInfo()
	out := model.OutputSlotInfo()

	switch {
	case len(in) == 0:
		in = make([]workflow.InputSlotInfo, len(inputs))
	case len(in) != len(inputs):
		return nil, nil, mismatch("input", len(in), len(inputs))
	}
	switch {
	case len(out) == 0:
		out = make([]workflow.OutputSlotInfo, len(outputs))
	case len(out) != len(outputs):
		return nil, nil, mismatch("output", len(out), len(outputs))
	}
	model.ReplaceSlotInfo(in, out)

	inRows := make([]*InputSlotRow, len(inputs))
	for i, s := range inputs {
		inRows[i] = &InputSlotRow{model: model, index: i, Type: s.Type, Description: s.Description}
	}
	outRows := make([]*OutputSlotRow, len(outputs))
	for i, s := range outputs {
		outRows[i] = &OutputSlotRow{model: model, index: i, Type: s.Type, Description: s.Description}
	}
	return inRows, outRows, nil
}

// ResetSlots rebuilds the slot table after the data source's shape changed.
// Binding lists whose length still matches are kept; the others are
// discarded.
func ResetSlots(model *workflow.DataSourceModel, inputs, outputs []factory.Slot) ([]*InputSlotRow, []*OutputSlotRow, error) {
	in := model.InputSlotInfo()
	if len(in) != len(inputs) {
		in = nil
	}
	out := model.OutputSlotInfo()
	if len(out) != len(outputs) {
		out = nil
	}
	model.ReplaceSlotInfo(in, out)
	return BuildSlotTable(model, inputs, outputs)
}
