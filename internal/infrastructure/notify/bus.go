package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/worker"
	"go.opentelemetry.io/otel/trace"
)

const (
	componentNotify    = "notifier"
	defaultBuffer      = 256
	defaultConcurrency = 4
	handlerTimeout     = 5 * time.Second
)

// envelope keeps the publisher's span so handler logs join its trace.
type envelope struct {
	n    notice.Notification
	span trace.SpanContext
}

// Bus delivers notifications to subscribers on a background goroutine.
// Publish never blocks: when the queue is full the notification is dropped.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string]notice.Handler
	queue       chan envelope
	startOnce   sync.Once
	stopOnce    sync.Once
	stopped     atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
	concurrency int

	log     observability.Logger
	counter observability.Counter // cart_notifications_total{kind,outcome}
}

// NewBus creates a bus with a bounded queue. buffer <= 0 selects the default size.
func NewBus(buffer int, tel observability.Observability) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	tel = observability.Or(tel)
	return &Bus{
		subs:        make(map[string]notice.Handler),
		queue:       make(chan envelope, buffer),
		done:        make(chan struct{}),
		concurrency: defaultConcurrency,
		log:         tel.Logger().With(observability.F("component", componentNotify)),
		counter:     tel.Metrics().Counter(observability.MNotifications),
	}
}

// Subscribe registers h under name. A second registration with the same name replaces the first.
func (b *Bus) Subscribe(name string, h notice.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = h
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("notifier_started")
	})
}

// Stop ends dispatching. Queued notifications that were not yet dispatched are discarded.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		if b.cancel == nil {
			return
		}
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
		}
		logctx.FromOr(ctx, b.log).Info("notifier_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, n notice.Notification) {
	logger := logctx.FromOr(ctx, b.log).With(
		observability.F("notification_id", n.ID),
		observability.F("kind", string(n.Kind)),
	)
	if b.stopped.Load() {
		b.count(n.Kind, "dropped")
		logger.Warn("notification_dropped", observability.F("reason", "stopped"))
		return
	}
	select {
	case b.queue <- envelope{n: n, span: trace.SpanContextFromContext(ctx)}:
		b.count(n.Kind, "queued")
		logger.Debug("notification_enqueued")
	default:
		b.count(n.Kind, "dropped")
		logger.Warn("notification_dropped", observability.F("reason", "queue_full"))
	}
}

func (b *Bus) count(kind notice.Kind, outcome string) {
	b.counter.Add(1,
		observability.L("kind", string(kind)),
		observability.L("outcome", outcome),
	)
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.fanout(trace.ContextWithSpanContext(ctx, e.span), e.n)
		}
	}
}

func (b *Bus) fanout(ctx context.Context, n notice.Notification) {
	b.mu.RLock()
	handlers := make(map[string]notice.Handler, len(b.subs))
	for name, h := range b.subs {
		handlers[name] = h
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("notification_no_subscriber", observability.F("kind", string(n.Kind)))
		return
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for name, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			hctx := workerpresentation.WithNotificationContext(ctx, b.log, n, name)
			logger := logctx.FromOr(hctx, b.log)
			defer func() {
				if r := recover(); r != nil {
					logger.Error("notification_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(hctx, handlerTimeout)
			defer cancel()
			if err := h(hctx, n); err != nil {
				logger.Warn("notification_handler_error", observability.F("error", err))
			}
		}()
	}

	wg.Wait()
}
