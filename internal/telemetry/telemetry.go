// Package telemetry wires OpenTelemetry metrics, traces, and log export.
//
// Without an OTLP endpoint the meter provider has no reader, no tracer
// provider is installed, and the log handler is nil, so instruments cost
// almost nothing and TeeLogger skips the export branch.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Davygupta47/notebook/internal/config"
)

const exportInterval = 15 * time.Second

// Provider owns the metric, trace, and log pipelines.
type Provider struct {
	meters     *sdkmetric.MeterProvider
	traces     *sdktrace.TracerProvider
	logs       *sdklog.LoggerProvider
	logHandler slog.Handler
	metrics    *Metrics
}

// Setup builds the providers from cfg. version is attached to the resource.
func Setup(ctx context.Context, cfg config.Telemetry, version string) (*Provider, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "notebookd"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if endpoint == "" {
		meters := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		return newProvider(meters, nil, nil, nil)
	}

	metricExp, err := otlpmetrichttp.New(ctx, metricOptions(endpoint, cfg.Insecure)...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	meters := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(meters)
	if err := runtime.Start(runtime.WithMeterProvider(meters)); err != nil {
		_ = meters.Shutdown(ctx)
		return nil, fmt.Errorf("runtime metrics: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx, traceOptions(endpoint, cfg.Insecure)...)
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	traces := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
		sdktrace.WithBatcher(traceExp),
	)
	otel.SetTracerProvider(traces)

	logExp, err := otlploghttp.New(ctx, logOptions(endpoint, cfg.Insecure)...)
	if err != nil {
		_ = traces.Shutdown(ctx)
		_ = meters.Shutdown(ctx)
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}
	logs := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
	)
	return newProvider(meters, traces, logs, newLogHandler(name, logs))
}

func sampleRatio(ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		return 1
	}
	return ratio
}

// NewWithReader builds a provider around an explicit metric reader. Tests
// use it with sdkmetric.NewManualReader.
func NewWithReader(reader sdkmetric.Reader) (*Provider, error) {
	return newProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil, nil, nil)
}

func newProvider(meters *sdkmetric.MeterProvider, traces *sdktrace.TracerProvider, logs *sdklog.LoggerProvider, handler slog.Handler) (*Provider, error) {
	metrics, err := NewMetrics(meters.Meter("github.com/Davygupta47/notebook"))
	if err != nil {
		_ = meters.Shutdown(context.Background())
		if traces != nil {
			_ = traces.Shutdown(context.Background())
		}
		return nil, err
	}
	return &Provider{meters: meters, traces: traces, logs: logs, logHandler: handler, metrics: metrics}, nil
}

func newLogHandler(name string, lp otellog.LoggerProvider) slog.Handler {
	return otelslog.NewHandler(name, otelslog.WithLoggerProvider(lp))
}

func metricOptions(endpoint string, insecure bool) []otlpmetrichttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(endpoint)}
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

func traceOptions(endpoint string, insecure bool) []otlptracehttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

func logOptions(endpoint string, insecure bool) []otlploghttp.Option {
	if strings.Contains(endpoint, "://") {
		return []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	}
	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	return opts
}

// Metrics returns the job observer backed by this provider.
func (p *Provider) Metrics() *Metrics { return p.metrics }

// TracerProvider returns the exporting tracer provider, or a no-op provider
// when export is disabled.
func (p *Provider) TracerProvider() trace.TracerProvider {
	if p == nil || p.traces == nil {
		return noop.NewTracerProvider()
	}
	return p.traces
}

// LogHandler returns the OTLP log handler, or nil when export is disabled.
func (p *Provider) LogHandler() slog.Handler { return p.logHandler }

// Shutdown flushes and stops every pipeline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if p.traces != nil {
		if err := p.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.logs != nil {
		if err := p.logs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
