//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the span names, attribute keys and connection
// helpers shared by the tracing and metrics packages.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// telemetry service constants.
const (
	ServiceName      = "agentgraph"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-agent"
	InstrumentName   = "trpc.agent.graph"

	SpanNameExecuteGraph      = "execute_graph"
	SpanNamePrefixExecuteNode = "execute_node"
	SpanNamePrefixChat        = "chat"
	SpanNamePrefixExecuteTool = "execute_tool"
	SpanNamePrefixRetrieve    = "retrieve"
)

// metric instrument constants.
const (
	MetricNodeExecutions     = "graph.node.executions"
	MetricNodeExecutionsUnit = "{execution}"
	MetricNodeExecutionsDesc = "Number of node executions by outcome."
	MetricRunDuration        = "graph.run.duration"
	MetricRunDurationUnit    = "s"
	MetricRunDurationDesc    = "Duration of graph runs by final status."
	MetricTokenUsage         = "gen_ai.client.token.usage"
	MetricTokenUsageUnit     = "{token}"
	MetricTokenUsageDesc     = "Tokens used by model requests by token type."
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attributes constants.
var (
	KeyGraph       = "trpc.go.agent.graph"
	KeyRunID       = "trpc.go.agent.run_id"
	KeyNodeID      = "trpc.go.agent.node_id"
	KeyNodeName    = "trpc.go.agent.node_name"
	KeyNodeType    = "trpc.go.agent.node_type"
	KeyStep        = "trpc.go.agent.step"
	KeyNextNode    = "trpc.go.agent.next_node"
	KeyRouteLabel  = "trpc.go.agent.route_label"
	KeyRunStatus   = "trpc.go.agent.run_status"
	KeyOutcome     = "trpc.go.agent.outcome"
	KeyModel       = "gen_ai.request.model"
	KeyTokenType   = "gen_ai.token.type"
	KeyLLMRequest  = "trpc.go.agent.llm_request"
	KeyLLMResponse = "trpc.go.agent.llm_response"
)

// NewExecuteNodeSpanName returns the span name of a node step.
func NewExecuteNodeSpanName(nodeID string) string {
	return SpanNamePrefixExecuteNode + " " + nodeID
}

// NewChatSpanName returns the span name of a chat completion.
func NewChatSpanName(modelName string) string {
	if modelName == "" {
		return SpanNamePrefixChat
	}
	return SpanNamePrefixChat + " " + modelName
}

// NewExecuteToolSpanName returns the span name of a tool invocation.
func NewExecuteToolSpanName(toolName string) string {
	return SpanNamePrefixExecuteTool + " " + toolName
}

// TraceToolCall traces the invocation of a tool call.
func TraceToolCall(span trace.Span, name, callID string, args []byte, result any) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "trpc.go.agent"),
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", name),
		attribute.String("trpc.go.agent.tool_id", callID),
		attribute.String("trpc.go.agent.tool_call_args", string(args)),
	)
	span.SetAttributes(attribute.String("trpc.go.agent.tool_response", marshal(result)))
}

// TraceChat traces the invocation of a chat model.
func TraceChat(span trace.Span, modelName string, req, rsp any) {
	span.SetAttributes(
		attribute.String("gen_ai.system", "trpc.go.agent"),
		attribute.String("gen_ai.request.model", modelName),
		attribute.String(KeyLLMRequest, marshal(req)),
		attribute.String(KeyLLMResponse, marshal(rsp)),
	)
}

func marshal(v any) string {
	bts, err := json.Marshal(v)
	if err != nil {
		return "<not json serializable>"
	}
	return string(bts)
}

// NewGRPCConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
