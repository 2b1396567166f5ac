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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTemplate(t *testing.T) {
	vars := map[string]string{
		PlaceholderSystemTime:    "2025-01-02T03:04:05.000Z",
		PlaceholderRetrievedDocs: "<documents></documents>",
	}
	tests := []struct {
		tpl  string
		want string
	}{
		{"now {system_time}", "now 2025-01-02T03:04:05.000Z"},
		{"legacy {systemTime} {retrievedDocs}", "legacy 2025-01-02T03:04:05.000Z <documents></documents>"},
		{"{unknown} and {\"json\": 1}", "{unknown} and {\"json\": 1}"},
		{"twice {system_time} {system_time}", "twice 2025-01-02T03:04:05.000Z 2025-01-02T03:04:05.000Z"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTemplate(tt.tpl, vars))
	}
}

func TestFormatTemplateVerbatim(t *testing.T) {
	out := FormatTemplate("q: {queries}", map[string]string{PlaceholderQueries: "{system_time} $1 \\n"})
	assert.Equal(t, "q: {system_time} $1 \\n", out)
}

func TestSystemTime(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6e6, time.FixedZone("X", 3600))
	assert.Equal(t, "2025-01-02T02:04:05.006Z", SystemTime(ts))
}
