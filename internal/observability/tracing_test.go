package observability_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/PabloGalante/carebot/internal/observability"
)

func TestStartSpan_EndReportsElapsed(t *testing.T) {
	ctx, span := observability.StartSpan(context.Background(), "test.span", attribute.String("k", "v"))
	if ctx == nil || span == nil {
		t.Fatal("expected a context and a span")
	}
	span.SetAttributes(attribute.Int("n", 1))
	if d := span.End(errors.New("boom")); d < 0 {
		t.Fatalf("expected non-negative elapsed time, got %v", d)
	}
}

func TestSpan_NilIsSafe(t *testing.T) {
	var span *observability.Span
	span.SetAttributes(attribute.Bool("ignored", true))
	if d := span.End(nil); d != 0 {
		t.Fatalf("expected zero for nil span, got %v", d)
	}
}
