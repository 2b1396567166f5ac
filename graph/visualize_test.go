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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOT(t *testing.T) {
	exec := NewStateGraph[*testConfig](testSchema()).
		AddNode("callModel", appendNode("m"), WithNodeType(NodeTypeLLM), WithName("call \"model\"")).
		AddNode("tools", appendNode("t"), WithNodeType(NodeTypeTool)).
		SetEntryPoint("callModel").
		AddConditionalEdges("callModel", func(context.Context, State) (string, error) { return End, nil },
			map[string]string{"tools": "tools", End: End}).
		AddEdge("tools", "callModel").
		MustCompile(WithGraphName("react"), WithInterruptBefore("tools"))

	dot := exec.DOT()
	assert.True(t, strings.HasPrefix(dot, "digraph G {\n"))
	assert.Contains(t, dot, `label="react";`)
	assert.Contains(t, dot, `"__start__" -> "callModel";`)
	assert.Contains(t, dot, `"tools" -> "callModel";`)
	assert.Contains(t, dot, `"callModel" -> "tools" [style=dashed, color="#999999", label="tools"];`)
	assert.Contains(t, dot, `"callModel" -> "__end__" [style=dashed, color="#999999", label="__end__"];`)
	assert.Contains(t, dot, `label="call \"model\""`)
	assert.Contains(t, dot, `xlabel="interrupt before"`)

	hidden := exec.DOT(WithIncludeStartEnd(false), WithIncludeInterrupts(false), WithRankDir(RankDirTB))
	assert.NotContains(t, hidden, "__start__")
	assert.NotContains(t, hidden, "__end__")
	assert.NotContains(t, hidden, "xlabel")
	assert.Contains(t, hidden, "rankdir=TB;")
	assert.Contains(t, hidden, `"callModel" [peripheries=2];`)

	var buf bytes.Buffer
	require.NoError(t, exec.WriteDOT(&buf, WithGraphLabel("custom")))
	assert.Contains(t, buf.String(), `label="custom";`)
}
