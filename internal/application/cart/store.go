package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
)

const (
	cartService = "cart-store"
	// DefaultKey is the storage key holding the serialized cart.
	DefaultKey         = "@minishop:cart"
	defaultMaxAttempts = 5
)

var (
	ErrOutOfStock    = domain.ErrOutOfStock
	ErrEntryNotFound = domain.ErrEntryNotFound
	ErrInventory     = domain.ErrInventory
	ErrPersistence   = domain.ErrPersistence
	ErrCorruptCart   = domain.ErrCorruptCart
	ErrConflict      = domain.ErrConflict
)

type options struct {
	key            string
	maxAttempts    int
	resetOnCorrupt bool
}

type Option func(*options)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.key = key
		}
	}
}

// WithMaxAttempts bounds how often a mutation is re-run after losing a commit race.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithResetOnCorrupt starts with an empty cart instead of failing when the stored cart
// cannot be parsed.
func WithResetOnCorrupt() Option {
	return func(o *options) { o.resetOnCorrupt = true }
}

type snapshot struct {
	entries domain.Entries
	version uint64
}

// Store holds the cart of one application session.
//
// Mutations run their inventory lookups against the snapshot they read and commit with
// compare-and-swap. A mutation that loses the race re-runs against the fresh snapshot.
// The storage write happens inside the commit, so storage always reflects the latest
// committed snapshot.
type Store struct {
	storage   domain.Storage
	inventory domain.Inventory
	publisher notice.Publisher

	key         string
	maxAttempts int

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	writeCounter observability.Counter   // cart_storage_writes_total{outcome}

	commitMu sync.Mutex
	state    atomic.Pointer[snapshot]
}

// NewStore loads the persisted cart. A stored value that cannot be parsed yields an error
// wrapping ErrCorruptCart unless WithResetOnCorrupt is given.
func NewStore(
	ctx context.Context,
	storage domain.Storage,
	inventory domain.Inventory,
	publisher notice.Publisher,
	tel observability.Observability,
	opts ...Option,
) (*Store, error) {
	if storage == nil {
		return nil, errors.New("cart: storage is required")
	}
	if inventory == nil {
		return nil, errors.New("cart: inventory is required")
	}
	o := options{key: DefaultKey, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	tel = observability.Or(tel)
	metrics := tel.Metrics()
	s := &Store{
		storage:      storage,
		inventory:    inventory,
		publisher:    publisher,
		key:          o.key,
		maxAttempts:  o.maxAttempts,
		log:          tel.Logger().With(observability.F("service", cartService)),
		tracer:       tel.Tracer(),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		writeCounter: metrics.Counter(observability.MStorageWrites),
	}

	entries, err := s.load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptCart) || !o.resetOnCorrupt {
			return nil, err
		}
		s.log.Warn("cart_reset_on_corrupt",
			observability.F("key", s.key),
			observability.F("error", err),
		)
		entries = domain.Entries{}
	}
	s.state.Store(&snapshot{entries: entries})

	s.log.Info("cart_loaded",
		observability.F("key", s.key),
		observability.F("entries", len(entries)),
	)
	return s, nil
}

func (s *Store) load(ctx context.Context) (domain.Entries, error) {
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %w", domain.ErrPersistence, s.key, err)
	}
	if !ok {
		return domain.Entries{}, nil
	}
	entries, err := domain.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("cart: load %q: %w", s.key, err)
	}
	return entries, nil
}

// Cart returns a copy of the current list.
func (s *Store) Cart() domain.Entries {
	return s.state.Load().entries.Clone()
}

// Size is the number of distinct products in the cart.
func (s *Store) Size() int {
	return len(s.state.Load().entries)
}

// plan computes the next list from the current one without modifying it.
type plan func(ctx context.Context, current domain.Entries) (domain.Entries, error)

func (s *Store) apply(ctx context.Context, p plan) error {
	for attempt := 1; ; attempt++ {
		snap := s.state.Load()
		next, err := p(ctx, snap.entries)
		if err != nil {
			return err
		}
		committed, err := s.commit(ctx, snap, next)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
		if attempt >= s.maxAttempts {
			return fmt.Errorf("%w: gave up after %d attempts", domain.ErrConflict, attempt)
		}
	}
}

func (s *Store) commit(ctx context.Context, expected *snapshot, next domain.Entries) (bool, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.state.Load() != expected {
		return false, nil
	}

	encoded, err := domain.Encode(next)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if err := s.storage.Set(ctx, s.key, encoded); err != nil {
		s.writeCounter.Add(1, observability.L("outcome", "error"))
		return false, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	s.writeCounter.Add(1, observability.L("outcome", "success"))

	s.state.Store(&snapshot{entries: next, version: expected.version + 1})
	return true, nil
}
