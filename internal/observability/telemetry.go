package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/tasklet/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporters accepted by Init.
const (
	ExporterOTLP = "otlp-http"
	// ExporterNone samples and propagates trace context but exports nothing.
	ExporterNone = "none"
)

const serviceName = "tasklet"

// Config selects how spans leave the process. Instance and Side end up on
// every span's resource, so traces from dispatch and execution processes of
// one deployment can be told apart.
type Config struct {
	Enabled    bool
	Exporter   string
	Endpoint   string
	Instance   string
	Side       domain.Side
	Version    string
	SampleRate float64
}

type provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var global = disabled()

func disabled() *provider {
	return &provider{tracer: noop.NewTracerProvider().Tracer(serviceName)}
}

// Init installs the global tracer provider and W3C propagators.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		global = disabled()
		return nil
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.Version),
			attribute.String("service.instance.id", cfg.Instance),
			attribute.String("tasklet.side", cfg.Side.String()),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate >= 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	global = &provider{tp: tp, tracer: tp.Tracer(serviceName), enabled: true}
	return nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterOTLP, "otlp":
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		return exp, nil
	case ExporterNone:
		return discardExporter{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tracing exporter %q", domain.ErrConfiguration, cfg.Exporter)
	}
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Tracer returns the process tracer, a no-op one until Init enables tracing.
func Tracer() trace.Tracer {
	return global.tracer
}

// Enabled reports whether Init enabled tracing.
func Enabled() bool {
	return global.enabled
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                             { return nil }
