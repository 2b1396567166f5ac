//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// SchemaViolationError is returned when a structured answer does not conform
// to the requested schema.
type SchemaViolationError struct {
	// Schema is the name of the requested schema.
	Schema string
	// Raw is the answer as produced by the model.
	Raw string
	// Reason describes the violation.
	Reason string
}

// Error implements the error interface.
func (e *SchemaViolationError) Error() string {
	if e.Schema == "" {
		return "structured output violates schema: " + e.Reason
	}
	return fmt.Sprintf("structured output violates schema %s: %s", e.Schema, e.Reason)
}

// ParseStructured decodes a model answer into out after checking it against
// schema. Answers wrapped in markdown fences or carrying minor syntax errors
// are repaired first. Validation covers required properties and the
// primitive types of declared properties.
func ParseStructured(raw string, schema map[string]any, out any) error {
	name, _ := schema["title"].(string)
	violation := func(format string, args ...any) error {
		return &SchemaViolationError{Schema: name, Raw: raw, Reason: fmt.Sprintf(format, args...)}
	}

	content := stripFences(raw)
	if content == "" {
		return violation("empty answer")
	}
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(content)
		if repairErr != nil {
			return violation("not valid JSON: %v", err)
		}
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return violation("not valid JSON after repair: %v", err)
		}
		content = repaired
	}
	if err := validateValue("$", decoded, schema); err != nil {
		return violation("%v", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return violation("decode into %T: %v", out, err)
	}
	return nil
}

// stripFences removes a surrounding ```json fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func validateValue(path string, value any, schema map[string]any) error {
	if schema == nil {
		return nil
	}
	typ, _ := schema["type"].(string)
	if typ != "" && !matchesType(typ, value) {
		return fmt.Errorf("%s: expected %s, got %s", path, typ, jsonType(value))
	}
	switch v := value.(type) {
	case map[string]any:
		for _, key := range requiredKeys(schema["required"]) {
			if _, ok := v[key]; !ok {
				return fmt.Errorf("%s: missing required property %q", path, key)
			}
		}
		props, _ := schema["properties"].(map[string]any)
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			sub, ok := v[key]
			if !ok {
				continue
			}
			propSchema, _ := props[key].(map[string]any)
			if err := validateValue(path+"."+key, sub, propSchema); err != nil {
				return err
			}
		}
	case []any:
		items, _ := schema["items"].(map[string]any)
		for i, item := range v {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), item, items); err != nil {
				return err
			}
		}
	}
	return nil
}

func requiredKeys(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, k := range r {
			if s, ok := k.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func matchesType(typ string, value any) bool {
	switch typ {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "null":
		return value == nil
	}
	return true
}

func jsonType(value any) string {
	switch value.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
