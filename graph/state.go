//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// State represents the state that flows through the graph.
// Nodes receive a copy and return a partial update; only the executor merges.
type State map[string]any

// Clone returns a copy of the state that shares no mutable data with s.
// Slices are copied, and a value or slice element whose type has a
// Clone method returning its own type is copied through that method.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = cloneValue(v)
	}
	return clone
}

func cloneValue(v any) any {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return v
	}
	if c, ok := callClone(rv); ok {
		return c.Interface()
	}
	if rv.Kind() != reflect.Slice || rv.IsNil() {
		return v
	}
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)
	if hasClone(rv.Type().Elem()) {
		for i := 0; i < out.Len(); i++ {
			if c, ok := callClone(out.Index(i)); ok {
				out.Index(i).Set(c)
			}
		}
	}
	return out.Interface()
}

// hasClone reports whether t has a method Clone() t.
func hasClone(t reflect.Type) bool {
	m, ok := t.MethodByName("Clone")
	if !ok || t.Kind() == reflect.Interface {
		return false
	}
	// m.Type includes the receiver.
	return m.Type.NumIn() == 1 && m.Type.NumOut() == 1 && m.Type.Out(0) == t
}

func callClone(v reflect.Value) (reflect.Value, bool) {
	if !hasClone(v.Type()) {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return v, true
		}
	}
	return v.MethodByName("Clone").Call(nil)[0], true
}

// MergePolicy is the rule combining a node's update with the current value of
// a field.
type MergePolicy int

const (
	mergeUnset MergePolicy = iota
	// MergeReplace overwrites the current value with the update.
	MergeReplace
	// MergeAppend concatenates the update's items after the current items.
	// The update must carry only the new items.
	MergeAppend
)

// String returns the policy name.
func (p MergePolicy) String() string {
	switch p {
	case MergeReplace:
		return "replace"
	case MergeAppend:
		return "append"
	default:
		return "unset"
	}
}

// StateField declares a field of the state schema.
type StateField struct {
	// Type is the Go type of the field value. Append fields must use a slice
	// type. A nil Type disables type checks and typed decoding.
	Type reflect.Type
	// Policy is the merge policy of the field. It must be set.
	Policy MergePolicy
	// Default returns the initial value when the field is absent.
	Default func() any
}

// StateSchema defines the fields of the graph state and how updates merge.
type StateSchema struct {
	fields map[string]StateField
	order  []string
}

// NewStateSchema creates a new state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{fields: make(map[string]StateField)}
}

// AddField adds a field to the state schema. Adding a field twice replaces
// the earlier declaration.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	if _, ok := s.fields[name]; !ok {
		s.order = append(s.order, name)
	}
	s.fields[name] = field
	return s
}

// Field returns the declaration of a field.
func (s *StateSchema) Field(name string) (StateField, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns the declared field names in declaration order.
func (s *StateSchema) Fields() []string {
	return append([]string(nil), s.order...)
}

func (s *StateSchema) clone() *StateSchema {
	c := NewStateSchema()
	for _, name := range s.order {
		c.AddField(name, s.fields[name])
	}
	return c
}

// validate checks that every field has exactly one usable merge policy.
func (s *StateSchema) validate() error {
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	for _, name := range names {
		f := s.fields[name]
		switch f.Policy {
		case MergeReplace:
		case MergeAppend:
			if f.Type != nil && f.Type.Kind() != reflect.Slice {
				return fmt.Errorf("field %s: append policy requires a slice type, got %v: %w",
					name, f.Type, ErrMissingMergePolicy)
			}
		default:
			return fmt.Errorf("field %s: %w", name, ErrMissingMergePolicy)
		}
	}
	return nil
}

// Initialize validates a caller supplied state and fills in defaults for
// absent fields. The input is not modified.
func (s *StateSchema) Initialize(in State) (State, error) {
	out := in.Clone()
	for key, value := range out {
		field, ok := s.fields[key]
		if !ok {
			return nil, fmt.Errorf("field %s: %w", key, ErrUnknownField)
		}
		if err := checkType(key, field, value); err != nil {
			return nil, err
		}
	}
	for _, name := range s.order {
		if _, ok := out[name]; ok {
			continue
		}
		if f := s.fields[name]; f.Default != nil {
			out[name] = f.Default()
		}
	}
	return out, nil
}

// ApplyUpdate merges update into current according to the field policies and
// returns the new state. current is never modified. When any field of the
// update is invalid the whole update is rejected.
func (s *StateSchema) ApplyUpdate(current State, update State) (State, error) {
	result := current.Clone()
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field, ok := s.fields[key]
		if !ok {
			return nil, fmt.Errorf("field %s: %w", key, ErrUnknownField)
		}
		value := update[key]
		if err := checkType(key, field, value); err != nil {
			return nil, err
		}
		switch field.Policy {
		case MergeAppend:
			merged, err := appendValues(key, result[key], value)
			if err != nil {
				return nil, err
			}
			result[key] = merged
		default:
			result[key] = cloneValue(value)
		}
	}
	return result, nil
}

// DecodeState rebuilds a typed state from its JSON form using the declared
// field types. Fields without a Type decode to their generic JSON value.
func (s *StateSchema) DecodeState(raw map[string]json.RawMessage) (State, error) {
	out := make(State, len(raw))
	for key, data := range raw {
		field, ok := s.fields[key]
		if !ok {
			return nil, fmt.Errorf("field %s: %w", key, ErrUnknownField)
		}
		if field.Type == nil {
			var v any
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, fmt.Errorf("decode field %s: %w", key, err)
			}
			out[key] = v
			continue
		}
		ptr := reflect.New(field.Type)
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode field %s: %w", key, err)
		}
		out[key] = ptr.Elem().Interface()
	}
	return out, nil
}

func checkType(key string, field StateField, value any) error {
	if field.Type == nil || value == nil {
		return nil
	}
	if vt := reflect.TypeOf(value); !vt.AssignableTo(field.Type) {
		return fmt.Errorf("field %s: expected %v, got %v: %w", key, field.Type, vt, ErrFieldType)
	}
	return nil
}

// appendValues concatenates two slices of the same type into a new slice.
func appendValues(key string, current, update any) (any, error) {
	if update == nil {
		return current, nil
	}
	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("field %s: append update must be a slice, got %T: %w", key, update, ErrFieldType)
	}
	if current == nil {
		out := reflect.MakeSlice(uv.Type(), 0, uv.Len())
		return reflect.AppendSlice(out, uv).Interface(), nil
	}
	cv := reflect.ValueOf(current)
	if cv.Kind() != reflect.Slice || cv.Type() != uv.Type() {
		return nil, fmt.Errorf("field %s: cannot append %T to %T: %w", key, update, current, ErrFieldType)
	}
	out := reflect.MakeSlice(cv.Type(), 0, cv.Len()+uv.Len())
	out = reflect.AppendSlice(out, cv)
	out = reflect.AppendSlice(out, uv)
	return out.Interface(), nil
}
