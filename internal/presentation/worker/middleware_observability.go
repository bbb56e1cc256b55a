package workerpresentation

import (
	"context"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithNotificationContext gives a notification handler its own logger, carrying the
// notification identity, the subscriber name and the trace of the operation that
// published it.
func WithNotificationContext(
	ctx context.Context,
	base observability.Logger,
	n notice.Notification,
	subscriber string,
) context.Context {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	fields := []observability.Field{
		observability.F("notification_id", id),
		observability.F("kind", string(n.Kind)),
		observability.F("product_id", n.ProductID),
	}
	if subscriber != "" {
		fields = append(fields, observability.F("subscriber", subscriber))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	return logctx.With(ctx, logctx.FromOr(nil, base).With(fields...))
}
