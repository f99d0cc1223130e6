package event

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/force-h2020/wfmanager/errors"
)

// Factory returns a fresh, zero-valued instance of a registered type. It
// returns any so that a misregistered non-event type is caught when
// decoding rather than at registration.
type Factory func() any

// Registration binds a (module, type) tag to a Go type.
type Registration struct {
	Module      string
	Type        string
	Description string
	Factory     Factory
}

// Key returns "module.type".
func (r *Registration) Key() string {
	return r.Module + "." + r.Type
}

// TypeRegistry maps wire tags to Go types and back.
type TypeRegistry struct {
	mu     sync.RWMutex
	byKey  map[string]*Registration
	byType map[reflect.Type]*Registration
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byKey:  make(map[string]*Registration),
		byType: make(map[reflect.Type]*Registration),
	}
}

// NewDefaultRegistry returns a registry holding the built-in events.
func NewDefaultRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	for _, reg := range []*Registration{
		{Module: Module, Type: "StartEvent", Description: "Run started", Factory: func() any { return &StartEvent{} }},
		{Module: Module, Type: "ProgressEvent", Description: "Optimal point found", Factory: func() any { return &ProgressEvent{} }},
		{Module: Module, Type: "FinishEvent", Description: "Run finished", Factory: func() any { return &FinishEvent{} }},
	} {
		if err := r.Register(reg); err != nil {
			panic("failed to register built-in event: " + err.Error())
		}
	}
	return r
}

// Register adds a registration. The factory must return a pointer.
func (r *TypeRegistry) Register(reg *Registration) error {
	if reg == nil || reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TypeRegistry", "Register", "factory validation")
	}
	if reg.Module == "" || reg.Type == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "TypeRegistry", "Register", "tag validation")
	}
	typ := reflect.TypeOf(reg.Factory())
	if typ == nil || typ.Kind() != reflect.Pointer {
		return errors.WrapInvalid(
			fmt.Errorf("%w: factory for %s must return a pointer", errors.ErrInvalidConfig, reg.Key()),
			"TypeRegistry", "Register", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[reg.Key()]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: event type '%s' is already registered", errors.ErrConflict, reg.Key()),
			"TypeRegistry", "Register", "duplicate type check")
	}
	r.byKey[reg.Key()] = reg
	r.byType[typ.Elem()] = reg
	return nil
}

// Lookup returns the registration for a tag.
func (r *TypeRegistry) Lookup(module, typ string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byKey[module+"."+typ]
	return reg, ok
}

// Tag returns the registration for the Go type of v, which may be a value
// or a pointer.
func (r *TypeRegistry) Tag(v any) (*Registration, bool) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return nil, false
	}
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byType[typ]
	return reg, ok
}

// Keys returns the registered tags in sorted order.
func (r *TypeRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
