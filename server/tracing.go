package server

import (
	"context"
	"fmt"

	"github.com/pampang/federation/gateway"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type shutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// setupTracing installs a global tracer provider exporting over OTLP/HTTP.
// When tracing is disabled the global no-op provider is left in place.
func setupTracing(ctx context.Context, opt *gateway.GatewayOption) (shutdownFunc, error) {
	setting := opt.Opentelemetry.TracingSetting
	if !setting.Enable {
		return noopShutdown, nil
	}

	exporterOpts := []otlptracehttp.Option{}
	if setting.Endpoint != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpoint(setting.Endpoint))
	}
	if setting.Insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	serviceName := opt.ServiceName
	if serviceName == "" {
		serviceName = "fedplan"
	}
	r, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
		resource.WithProcessPID(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
