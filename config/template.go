//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//
package config

import (
	"strings"
	"time"
)

// Template placeholders.
const (
	PlaceholderSystemTime    = "system_time"
	PlaceholderQueries       = "queries"
	PlaceholderRetrievedDocs = "retrieved_docs"
)

// aliases maps the camel-case spellings of older templates.
var aliases = map[string]string{
	"systemTime":    PlaceholderSystemTime,
	"retrievedDocs": PlaceholderRetrievedDocs,
}

// Default prompt templates.
const (
	SystemPrompt = `You are a helpful AI assistant.

System time: {system_time}`

	QuerySystemPrompt = `Generate search queries to retrieve documents that may help answer the user's question. Previously, you made the following queries:

<previous_queries/>
- {queries}
</previous_queries>

System time: {system_time}`

	ResponseSystemPrompt = `You are a helpful AI assistant. Answer the user's questions based on the retrieved documents.

{retrieved_docs}

System time: {system_time}`
)

// FormatTemplate substitutes every {name} placeholder of tpl whose name is
// a key of vars. Values are inserted verbatim. Unknown placeholders are left
// intact.
func FormatTemplate(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, 2*(len(vars)+len(aliases)))
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	for alias, name := range aliases {
		if value, ok := vars[name]; ok {
			if _, shadowed := vars[alias]; !shadowed {
				pairs = append(pairs, "{"+alias+"}", value)
			}
		}
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// SystemTime renders t the way templates expect {system_time}.
func SystemTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func hasPlaceholder(tpl, name string) bool {
	if strings.Contains(tpl, "{"+name+"}") {
		return true
	}
	for alias, target := range aliases {
		if target == name && strings.Contains(tpl, "{"+alias+"}") {
			return true
		}
	}
	return false
}
