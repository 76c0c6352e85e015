package mnemon

import "context"

// Tracer is the minimal tracing contract the engine depends on. The observer
// package provides an OpenTelemetry-backed implementation; the default is a
// no-op so the engine never requires a telemetry pipeline.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span is an in-flight trace span.
type Span interface {
	End()
	RecordError(err error)
	SetAttr(attrs ...SpanAttr)
}

// SpanAttr is a key/value span attribute.
type SpanAttr struct {
	Key   string
	Value any
}

// Attr builds a SpanAttr.
func Attr(key string, value any) SpanAttr {
	return SpanAttr{Key: key, Value: value}
}

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string, _ ...SpanAttr) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) End()                {}
func (nopSpan) RecordError(error)   {}
func (nopSpan) SetAttr(...SpanAttr) {}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer { return nopTracer{} }
