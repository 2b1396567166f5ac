//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Signals, as named by the OTEL_EXPORTER_OTLP_<SIGNAL>_ENDPOINT variables.
const (
	SignalTraces  = "TRACES"
	SignalMetrics = "METRICS"
)

// Endpoint is an OTLP collector address split for the exporters, which take
// host:port and URL path separately.
type Endpoint struct {
	Host string
	// Path is empty unless the address was given as a URL.
	Path string
}

// ResolveEndpoint returns the collector for signal. explicit wins, then the
// signal variable, then OTEL_EXPORTER_OTLP_ENDPOINT, then the protocol
// default. Addresses may be host:port or a URL such as
// http://localhost:3000/api/public/otel.
func ResolveEndpoint(signal, protocol, explicit string) (Endpoint, error) {
	addr := explicit
	if addr == "" {
		addr = os.Getenv("OTEL_EXPORTER_OTLP_" + signal + "_ENDPOINT")
	}
	if addr == "" {
		addr = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if addr == "" {
		if protocol == ProtocolHTTP {
			return Endpoint{Host: "localhost:4318"}, nil
		}
		return Endpoint{Host: "localhost:4317"}, nil
	}
	if !strings.Contains(addr, "://") {
		return Endpoint{Host: addr}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse collector address %q: %w", addr, err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("collector address %q has no host", addr)
	}
	return Endpoint{Host: u.Host, Path: strings.TrimSuffix(u.Path, "/")}, nil
}

// NewResource describes this process to the collector.
func NewResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = ServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(ServiceNamespace),
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}
