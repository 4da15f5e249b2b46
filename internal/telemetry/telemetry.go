// Package telemetry configures OTLP tracing from the five §6 environment
// variables. When OTEL_EXPORTER_OTLP_ENDPOINT is unset, Setup returns the
// SDK's default no-op tracer provider, costing nothing on the hot path.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	envEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envProtocol    = "OTEL_EXPORTER_OTLP_PROTOCOL"
	envHeaders     = "OTEL_EXPORTER_OTLP_HEADERS"
	envSampler     = "OTEL_TRACES_SAMPLER"
	envSamplerArg  = "OTEL_TRACES_SAMPLER_ARG"
	serviceTracer  = "forge-backup"
)

// Shutdown flushes and closes the exporter; the caller should defer it
// from the point Setup is called.
type Shutdown func(context.Context) error

var noopShutdown Shutdown = func(context.Context) error { return nil }

// Setup reads the OTEL_* environment (§6) and installs a global tracer
// provider; every pipeline stage that calls otel.Tracer(serviceTracer)
// picks it up. Returns a no-op shutdown and the SDK's built-in no-op
// tracer when OTEL_EXPORTER_OTLP_ENDPOINT is unset.
func Setup(ctx context.Context) (trace.Tracer, Shutdown, error) {
	endpoint := os.Getenv(envEndpoint)
	if endpoint == "" {
		return otel.Tracer(serviceTracer), noopShutdown, nil
	}

	exporter, err := newExporter(ctx, endpoint, os.Getenv(envProtocol), parseHeaders(os.Getenv(envHeaders)))
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	sampler, err := parseSampler(os.Getenv(envSampler), os.Getenv(envSamplerArg))
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	return tp.Tracer(serviceTracer), func(ctx context.Context) error { return tp.Shutdown(ctx) }, nil
}

func newExporter(ctx context.Context, endpoint, protocol string, headers map[string]string) (sdktrace.SpanExporter, error) {
	switch protocol {
	case "", "grpc":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithHeaders(headers),
		)
	case "http-json", "http-binary":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithHeaders(headers),
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported %s value %q", envProtocol, protocol)
	}
}

func parseHeaders(raw string) map[string]string {
	headers := map[string]string{}
	if raw == "" {
		return headers
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers
}

func parseSampler(kind, arg string) (sdktrace.Sampler, error) {
	switch kind {
	case "", "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	case "traceidratio":
		ratio, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envSamplerArg, arg, err)
		}
		return sdktrace.TraceIDRatioBased(ratio), nil
	default:
		return nil, fmt.Errorf("unsupported %s value %q", envSampler, kind)
	}
}
