package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer from the global provider. Call InitProvider first to export spans.
func New(name string) observability.Tracer {
	if name == "" {
		name = "minishop-cart"
	}
	return &tracer{t: otel.Tracer(name)}
}

// NewFromProvider binds the tracer to an explicit provider (tests use an in-memory one).
func NewFromProvider(tp trace.TracerProvider, name string) observability.Tracer {
	return &tracer{t: tp.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
