package observability

import (
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

// Option sets one part of the bundle.
type Option func(*bundle)

func WithTracer(t observability.Tracer) Option {
	return func(b *bundle) {
		if t != nil {
			b.tracer = t
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(b *bundle) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(b *bundle) {
		if m != nil {
			b.metrics = m
		}
	}
}

type bundle struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

// New assembles the tracer, logger and metrics handed to the cart store and its adapters.
// Parts that are not given stay no-ops.
func New(opts ...Option) observability.Observability {
	b := &bundle{
		tracer:  observability.NopTracer(),
		logger:  observability.NopLogger(),
		metrics: observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *bundle) Tracer() observability.Tracer   { return b.tracer }
func (b *bundle) Logger() observability.Logger   { return b.logger }
func (b *bundle) Metrics() observability.Metrics { return b.metrics }
