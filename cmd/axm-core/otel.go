package main

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/BigBirdReturns/axm-core/pkg/telemetry"
)

// otelExporterKind selects how trace spans leave the process.
type otelExporterKind string

const (
	otelExporterDiscard otelExporterKind = "discard"
	otelExporterStdout  otelExporterKind = "stdout"
	otelExporterOTLP    otelExporterKind = "otlp"
)

// setupOTelSDK bootstraps a tracer provider for the given exporter kind
// and returns a shutdown function that flushes and releases it. On
// discard, tracing is a no-op and shutdown does nothing.
func setupOTelSDK(
	ctx context.Context,
	kind otelExporterKind,
	serviceName, serviceVersion string,
) (func(context.Context) error, error) {
	if kind == otelExporterDiscard {
		otel.SetTracerProvider(noop.NewTracerProvider())

		return func(context.Context) error { return nil }, nil
	}

	res, err := telemetry.NewResource(ctx, serviceName, serviceVersion)
	if err != nil {
		return nil, fmt.Errorf("axm-core: building telemetry resource: %w", err)
	}

	tp, err := newTraceProvider(ctx, kind, res)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func newTraceProvider(ctx context.Context, kind otelExporterKind, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter

	var err error

	switch kind {
	case otelExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case otelExporterOTLP:
		exporter, err = otlptracegrpc.New(ctx)
	case otelExporterDiscard:
		return nil, errors.New("axm-core: discard exporter handled by caller")
	default:
		return nil, fmt.Errorf("axm-core: unknown otel exporter kind %q", kind)
	}

	if err != nil {
		return nil, fmt.Errorf("axm-core: creating %s trace exporter: %w", kind, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
