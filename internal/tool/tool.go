//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
// Package tool derives tool argument schemas from Go types.
package tool

import (
	"reflect"
	"strings"

	"trpc.group/trpc-go/trpc-agent-graph/tool"
)

// GenerateJSONSchema generates a JSON schema from a reflect.Type. Struct
// fields follow their json tags; fields that are neither pointers nor
// omitempty are required. A `jsonschema:"description=..."` tag sets the
// property description.
func GenerateJSONSchema(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "object"}
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		return structSchema(t, true)
	}
	return GenerateFieldSchema(t)
}

// GenerateFieldSchema generates schema for a specific field type.
func GenerateFieldSchema(t reflect.Type) *tool.Schema {
	switch t.Kind() {
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{
			Type:  "array",
			Items: GenerateFieldSchema(t.Elem()),
		}
	case reflect.Map:
		return &tool.Schema{
			Type:                 "object",
			AdditionalProperties: GenerateFieldSchema(t.Elem()),
		}
	case reflect.Ptr:
		return GenerateFieldSchema(t.Elem())
	case reflect.Struct:
		return structSchema(t, false)
	default:
		return &tool.Schema{Type: "object"}
	}
}

func structSchema(t reflect.Type, withRequired bool) *tool.Schema {
	schema := &tool.Schema{
		Type:       "object",
		Properties: make(map[string]*tool.Schema),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty, skip := jsonName(field)
		if skip {
			continue
		}
		fieldSchema := GenerateFieldSchema(field.Type)
		if desc := tagDescription(field.Tag.Get("jsonschema")); desc != "" {
			fieldSchema.Description = desc
		}
		schema.Properties[name] = fieldSchema
		if withRequired && field.Type.Kind() != reflect.Ptr && !omitEmpty {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func jsonName(field reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, strings.Contains(opts, "omitempty"), false
}

// tagDescription extracts description=... from a jsonschema tag. The
// description runs to the end of the tag since it may contain commas.
func tagDescription(tag string) string {
	_, desc, found := strings.Cut(tag, "description=")
	if !found {
		return ""
	}
	return strings.TrimSpace(desc)
}
