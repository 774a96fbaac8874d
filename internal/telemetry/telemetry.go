// Package telemetry installs the process-wide OpenTelemetry tracer and meter
// providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"stockroom/internal/config"
)

// ShutdownFunc flushes pending spans and metrics and releases the exporters.
type ShutdownFunc func(context.Context) error

// Setup routes otel diagnostics to logger and, when an OTLP endpoint is
// configured, exports spans and metrics to it over HTTP. Without an endpoint
// the global no-op providers stay in place.
func Setup(ctx context.Context, cfg config.Telemetry, logger logr.Logger) (ShutdownFunc, error) {
	otel.SetLogger(logger.WithName("otel"))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.OTLPEndpoint == "" {
		logger.V(1).Info("telemetry disabled, no OTLP endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	ep, err := parseEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName))

	spanExporter, err := otlptracehttp.New(ctx, ep.traceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}
	metricExporter, err := otlpmetrichttp.New(ctx, ep.metricOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	logger.Info("telemetry enabled", "endpoint", cfg.OTLPEndpoint)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// endpoint is an OTLP/HTTP collector address split into the parts the
// exporters take.
type endpoint struct {
	host     string
	prefix   string
	insecure bool
}

// parseEndpoint splits an endpoint such as http://collector:4318. A path in
// the endpoint is kept as prefix of /v1/traces and /v1/metrics.
func parseEndpoint(cfg config.Telemetry) (endpoint, error) {
	raw := cfg.OTLPEndpoint
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return endpoint{}, fmt.Errorf("invalid telemetry.otlp_endpoint %q", cfg.OTLPEndpoint)
	}
	return endpoint{
		host:     u.Host,
		prefix:   strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http" || cfg.Insecure,
	}, nil
}

func (e endpoint) traceOptions() []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(e.host),
		otlptracehttp.WithURLPath(e.prefix + "/v1/traces"),
	}
	if e.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func (e endpoint) metricOptions() []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(e.host),
		otlpmetrichttp.WithURLPath(e.prefix + "/v1/metrics"),
	}
	if e.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}
