//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package trace provides the OpenTelemetry tracer used by graph runs, model
// calls and tool invocations. The tracer is a noop until Start is called.
package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	itelemetry "trpc.group/trpc-go/trpc-agent-graph/internal/telemetry"
)

// TracerProvider is the provider Tracer was obtained from.
var TracerProvider trace.TracerProvider = noop.NewTracerProvider()

// Tracer starts the spans of graph runs, model calls and tool calls.
var Tracer trace.Tracer = TracerProvider.Tracer("")

// SetTracerProvider replaces Tracer with one obtained from tp. Tests use it
// to plug in a span recorder.
func SetTracerProvider(tp trace.TracerProvider) {
	TracerProvider = tp
	Tracer = tp.Tracer(itelemetry.InstrumentName)
}

// Option configures Start.
type Option func(*options)

type options struct {
	endpoint    string
	protocol    string
	headers     map[string]string
	serviceName string
	sampleRatio float64
}

// WithEndpoint sets the collector as host:port or as a URL. Without it the
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT and OTEL_EXPORTER_OTLP_ENDPOINT
// variables are read.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithProtocol selects "grpc" (default) or "http".
func WithProtocol(protocol string) Option {
	return func(o *options) { o.protocol = protocol }
}

// WithHeaders sets headers sent with every export.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) { o.headers = headers }
}

// WithServiceName overrides the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithSampleRatio samples this fraction of new traces. Child spans follow
// their parent.
func WithSampleRatio(ratio float64) Option {
	return func(o *options) { o.sampleRatio = ratio }
}

// Start exports spans to an OTLP collector and makes Tracer record them.
// The returned function flushes pending spans and stops exporting.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{protocol: itelemetry.ProtocolGRPC, sampleRatio: 1}
	for _, opt := range opts {
		opt(o)
	}
	ep, err := itelemetry.ResolveEndpoint(itelemetry.SignalTraces, o.protocol, o.endpoint)
	if err != nil {
		return nil, err
	}
	res, err := itelemetry.NewResource(ctx, o.serviceName)
	if err != nil {
		return nil, err
	}
	exporter, err := newExporter(ctx, ep, o)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(o.sampleRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	SetTracerProvider(tp)
	return func() error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, ep itelemetry.Endpoint, o *options) (sdktrace.SpanExporter, error) {
	if o.protocol == itelemetry.ProtocolHTTP {
		httpOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(ep.Host),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithHeaders(o.headers),
		}
		if ep.Path != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithURLPath(ep.Path+"/v1/traces"))
		}
		return otlptracehttp.New(ctx, httpOpts...)
	}
	conn, err := itelemetry.NewGRPCConn(ep.Host)
	if err != nil {
		return nil, err
	}
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithGRPCConn(conn),
		otlptracegrpc.WithHeaders(o.headers),
	)
}
