package notify

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
)

const defaultFeedSize = 50

// Feed keeps the latest notifications until a view drains them as toasts.
type Feed struct {
	mu    sync.Mutex
	items []notice.Notification
	limit int
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = defaultFeedSize
	}
	return &Feed{limit: limit}
}

// Handle is a notice.Handler. When full, the oldest notification is discarded.
func (f *Feed) Handle(_ context.Context, n notice.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == f.limit {
		f.items = f.items[1:]
	}
	f.items = append(f.items, n)
	return nil
}

// Drain returns pending notifications oldest first and empties the feed.
func (f *Feed) Drain() []notice.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	if out == nil {
		out = []notice.Notification{}
	}
	return out
}

// LogSink writes each notification to the handler-scoped logger.
func LogSink(fallback observability.Logger) notice.Handler {
	return func(ctx context.Context, n notice.Notification) error {
		logctx.FromOr(ctx, fallback).Info("user_notified",
			observability.F("message", n.Message),
			observability.F("occurred_at", n.OccurredAt),
		)
		return nil
	}
}
