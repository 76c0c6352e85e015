// Package observer provides OTEL-based observability for the agent engine.
//
// It exposes a mnemon.Tracer backed by OpenTelemetry plus metric instruments
// for step activity and token usage. Users export to any OTEL-compatible
// backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/mnemonlabs/mnemon/observer"

// Instruments holds all OTEL instruments used by the engine wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	StepExecutions metric.Int64Counter
	TokenUsage     metric.Int64Counter
	ToolExecutions metric.Int64Counter
	Compactions    metric.Int64Counter
	BusyRejections metric.Int64Counter

	// Histograms
	StepDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP
// exporters. Configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that must
// be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("mnemon")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)
	inst := &Instruments{
		Tracer: otel.Tracer(scopeName),
		Meter:  meter,
		Logger: global.Logger(scopeName),
	}

	var err error
	if inst.StepExecutions, err = meter.Int64Counter("mnemon.agent.steps",
		metric.WithDescription("Agent steps executed")); err != nil {
		return nil, err
	}
	if inst.TokenUsage, err = meter.Int64Counter("mnemon.llm.tokens",
		metric.WithDescription("Completion tokens consumed")); err != nil {
		return nil, err
	}
	if inst.ToolExecutions, err = meter.Int64Counter("mnemon.tool.executions",
		metric.WithDescription("Tool calls executed")); err != nil {
		return nil, err
	}
	if inst.Compactions, err = meter.Int64Counter("mnemon.context.compactions",
		metric.WithDescription("Context compactions performed")); err != nil {
		return nil, err
	}
	if inst.BusyRejections, err = meter.Int64Counter("mnemon.agent.busy_rejections",
		metric.WithDescription("Requests rejected because the agent lock was held")); err != nil {
		return nil, err
	}
	if inst.StepDuration, err = meter.Float64Histogram("mnemon.agent.step_duration",
		metric.WithDescription("Agent step duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return inst, nil
}
