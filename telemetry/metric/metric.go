//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package metric provides the OpenTelemetry meter and the instruments
// recorded by graph runs.
package metric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	itelemetry "trpc.group/trpc-go/trpc-agent-graph/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-graph/log"
)

var (
	// Meter is the global OpenTelemetry meter for graph runs.
	Meter metric.Meter = noopm.Meter{}

	mu          sync.Mutex
	instruments *graphInstruments
)

type graphInstruments struct {
	meter          metric.Meter
	nodeExecutions metric.Int64Counter
	runDuration    metric.Float64Histogram
	tokenUsage     metric.Int64Counter
}

// Start exports metrics to an OTLP collector and points Meter at them.
// The returned function flushes pending points and stops exporting.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{protocol: itelemetry.ProtocolGRPC, interval: defaultInterval}
	for _, opt := range opts {
		opt(o)
	}
	ep, err := itelemetry.ResolveEndpoint(itelemetry.SignalMetrics, o.protocol, o.endpoint)
	if err != nil {
		return nil, err
	}
	res, err := itelemetry.NewResource(ctx, o.serviceName)
	if err != nil {
		return nil, err
	}

	var exporter sdkmetric.Exporter
	switch o.protocol {
	case itelemetry.ProtocolHTTP:
		httpOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(ep.Host),
			otlpmetrichttp.WithInsecure(),
		}
		if ep.Path != "" {
			httpOpts = append(httpOpts, otlpmetrichttp.WithURLPath(ep.Path+"/v1/metrics"))
		}
		exporter, err = otlpmetrichttp.New(ctx, httpOpts...)
	default:
		conn, connErr := itelemetry.NewGRPCConn(ep.Host)
		if connErr != nil {
			return nil, connErr
		}
		exporter, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	}
	if err != nil {
		return nil, fmt.Errorf("create metrics exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(o.interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	SetMeterProvider(meterProvider)
	return func() error {
		if err := meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter provider: %w", err)
		}
		return nil
	}, nil
}

// SetMeterProvider replaces the global meter with one obtained from mp.
// Instruments are created again on next use.
func SetMeterProvider(mp metric.MeterProvider) {
	mu.Lock()
	defer mu.Unlock()
	Meter = mp.Meter(itelemetry.InstrumentName)
	instruments = nil
}

// RecordNodeExecution counts one node execution of a graph.
func RecordNodeExecution(ctx context.Context, graph, node, outcome string) {
	inst := current()
	if inst == nil {
		return
	}
	inst.nodeExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(itelemetry.KeyGraph, graph),
		attribute.String(itelemetry.KeyNodeID, node),
		attribute.String(itelemetry.KeyOutcome, outcome),
	))
}

// RecordRunDuration records the duration of a graph run that ended with status.
func RecordRunDuration(ctx context.Context, graph, status string, d time.Duration) {
	inst := current()
	if inst == nil {
		return
	}
	inst.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(itelemetry.KeyGraph, graph),
		attribute.String(itelemetry.KeyRunStatus, status),
	))
}

// RecordTokenUsage counts the prompt and completion tokens of one model
// request.
func RecordTokenUsage(ctx context.Context, model string, prompt, completion int) {
	inst := current()
	if inst == nil {
		return
	}
	for tokenType, n := range map[string]int{"input": prompt, "output": completion} {
		if n <= 0 {
			continue
		}
		inst.tokenUsage.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String(itelemetry.KeyModel, model),
			attribute.String(itelemetry.KeyTokenType, tokenType),
		))
	}
}

// current returns the instruments of the current Meter, creating them lazily.
func current() *graphInstruments {
	mu.Lock()
	defer mu.Unlock()
	if instruments != nil && instruments.meter == Meter {
		return instruments
	}
	counter, err := Meter.Int64Counter(itelemetry.MetricNodeExecutions,
		metric.WithDescription(itelemetry.MetricNodeExecutionsDesc),
		metric.WithUnit(itelemetry.MetricNodeExecutionsUnit),
	)
	if err != nil {
		log.Warnf("create %s counter: %v", itelemetry.MetricNodeExecutions, err)
		return nil
	}
	histogram, err := Meter.Float64Histogram(itelemetry.MetricRunDuration,
		metric.WithDescription(itelemetry.MetricRunDurationDesc),
		metric.WithUnit(itelemetry.MetricRunDurationUnit),
	)
	if err != nil {
		log.Warnf("create %s histogram: %v", itelemetry.MetricRunDuration, err)
		return nil
	}
	tokens, err := Meter.Int64Counter(itelemetry.MetricTokenUsage,
		metric.WithDescription(itelemetry.MetricTokenUsageDesc),
		metric.WithUnit(itelemetry.MetricTokenUsageUnit),
	)
	if err != nil {
		log.Warnf("create %s counter: %v", itelemetry.MetricTokenUsage, err)
		return nil
	}
	instruments = &graphInstruments{
		meter:          Meter,
		nodeExecutions: counter,
		runDuration:    histogram,
		tokenUsage:     tokens,
	}
	return instruments
}

const defaultInterval = 30 * time.Second

// Option configures Start.
type Option func(*options)

type options struct {
	endpoint    string
	protocol    string
	serviceName string
	interval    time.Duration
}

// WithEndpoint sets the collector as host:port or as a URL. Without it the
// OTEL_EXPORTER_OTLP_METRICS_ENDPOINT and OTEL_EXPORTER_OTLP_ENDPOINT
// variables are read.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithProtocol selects "grpc" (default) or "http".
func WithProtocol(protocol string) Option {
	return func(o *options) { o.protocol = protocol }
}

// WithServiceName overrides the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithInterval sets how often metrics are exported.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}
