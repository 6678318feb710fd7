package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/PabloGalante/carebot"

// Tracer returns the carebot tracer from the global provider (no-op unless the host installs one).
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Span wraps an OpenTelemetry span with the elapsed time since it started.
type Span struct {
	start time.Time
	span  trace.Span
}

// StartSpan starts a span named name with the given attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{start: time.Now(), span: span}
}

// SetAttributes adds attributes to the span.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	if s == nil {
		return
	}
	s.span.SetAttributes(attrs...)
}

// End records err (if any) and closes the span. It returns the elapsed time.
func (s *Span) End(err error) time.Duration {
	if s == nil {
		return 0
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
	return time.Since(s.start)
}
