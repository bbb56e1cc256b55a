package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	domain "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-cart/internal/domain/notice"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInventory struct {
	mu       sync.Mutex
	stock    map[int]int
	products map[int]domain.Product

	stockErr   error
	productErr error

	stockCalls   int
	productCalls int

	// onStock runs before a stock lookup answers, outside any store lock.
	onStock func(productID int)
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		stock:    map[int]int{},
		products: map[int]domain.Product{},
	}
}

func (f *fakeInventory) withProduct(id int, name string, stock int) *fakeInventory {
	f.products[id] = domain.Product{ID: id, Fields: map[string]json.RawMessage{
		"name": json.RawMessage(fmt.Sprintf("%q", name)),
	}}
	f.stock[id] = stock
	return f
}

func (f *fakeInventory) Stock(_ context.Context, productID int) (domain.Stock, error) {
	f.mu.Lock()
	f.stockCalls++
	hook := f.onStock
	err := f.stockErr
	amount := f.stock[productID]
	f.mu.Unlock()

	if hook != nil {
		hook(productID)
	}
	if err != nil {
		return domain.Stock{}, err
	}
	return domain.Stock{ID: productID, Amount: amount}, nil
}

func (f *fakeInventory) Product(_ context.Context, productID int) (domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls++
	if f.productErr != nil {
		return domain.Product{}, f.productErr
	}
	p, ok := f.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %d", domain.ErrProductNotFound, productID)
	}
	return p, nil
}

func (f *fakeInventory) calls() (stock, product int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stockCalls, f.productCalls
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []notice.Notification
}

func (p *recordingPublisher) Publish(_ context.Context, n notice.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, n)
}

func (p *recordingPublisher) kinds() []notice.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notice.Kind, 0, len(p.got))
	for _, n := range p.got {
		out = append(out, n.Kind)
	}
	return out
}

type flakyStorage struct {
	*memory.Storage
	setErr error
}

func (s *flakyStorage) Set(ctx context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.Storage.Set(ctx, key, value)
}

type harness struct {
	store     *Store
	storage   *memory.Storage
	inventory *fakeInventory
	publisher *recordingPublisher
}

func newHarness(t *testing.T, inv *fakeInventory, stored string, opts ...Option) *harness {
	t.Helper()
	seed := map[string]string{}
	if stored != "" {
		seed[DefaultKey] = stored
	}
	storage := memory.NewStorageWith(seed)
	pub := &recordingPublisher{}
	s, err := NewStore(context.Background(), storage, inv, pub, nil, opts...)
	require.NoError(t, err)
	return &harness{store: s, storage: storage, inventory: inv, publisher: pub}
}

func (h *harness) persisted(t *testing.T) string {
	t.Helper()
	v, _, err := h.storage.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
	return v
}

func assertUnique(t *testing.T, es domain.Entries) {
	t.Helper()
	seen := map[int]bool{}
	for _, e := range es {
		require.False(t, seen[e.ID], "duplicate entry for product %d", e.ID)
		seen[e.ID] = true
	}
}

func TestAddProductNewEntry(t *testing.T) {
	h := newHarness(t, newFakeInventory().withProduct(1, "Shoe", 5), "")

	require.NoError(t, h.store.AddProduct(context.Background(), 1))

	assert.JSONEq(t, `[{"id":1,"name":"Shoe","amount":1}]`, h.persisted(t))
	got := h.store.Cart()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Amount)
	assert.Empty(t, h.publisher.kinds())
}

func TestAddProductNewEntrySkipsStockCheck(t *testing.T) {
	// A product that is not in the cart yet is added without asking for stock, even
	// when the inventory has none left.
	h := newHarness(t, newFakeInventory().withProduct(1, "Shoe", 0), "")

	require.NoError(t, h.store.AddProduct(context.Background(), 1))

	stockCalls, productCalls := h.inventory.calls()
	assert.Equal(t, 0, stockCalls)
	assert.Equal(t, 1, productCalls)
	assert.Equal(t, 1, h.store.Size())
}

func TestAddProductExistingEntry(t *testing.T) {
	tests := map[string]struct {
		stock      int
		wantAmount int
		wantErr    error
		wantKinds  []notice.Kind
		wantWrites int
	}{
		"stock above amount increments": {
			stock: 3, wantAmount: 2, wantWrites: 1,
		},
		"stock equal to amount is out of stock": {
			stock: 1, wantAmount: 1, wantErr: domain.ErrOutOfStock,
			wantKinds: []notice.Kind{notice.KindOutOfStock},
		},
		"stock below amount is out of stock": {
			stock: 0, wantAmount: 1, wantErr: domain.ErrOutOfStock,
			wantKinds: []notice.Kind{notice.KindOutOfStock},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			inv := newFakeInventory().withProduct(1, "Shoe", tc.stock)
			h := newHarness(t, inv, `[{"id":1,"name":"Shoe","amount":1},{"id":2,"amount":4}]`)

			err := h.store.AddProduct(context.Background(), 1)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			got := h.store.Cart()
			require.Len(t, got, 2)
			assert.Equal(t, 1, got[0].ID, "position is preserved")
			assert.Equal(t, tc.wantAmount, got[0].Amount)
			assert.Equal(t, 4, got[1].Amount)
			assert.Equal(t, tc.wantWrites, h.storage.Writes())
			if tc.wantKinds == nil {
				assert.Empty(t, h.publisher.kinds())
			} else {
				assert.Equal(t, tc.wantKinds, h.publisher.kinds())
			}
		})
	}
}

func TestAddProductInventoryFailure(t *testing.T) {
	t.Run("catalog lookup", func(t *testing.T) {
		inv := newFakeInventory()
		inv.productErr = errors.New("connection refused")
		h := newHarness(t, inv, "")

		err := h.store.AddProduct(context.Background(), 1)

		assert.ErrorIs(t, err, domain.ErrInventory)
		assert.Empty(t, h.store.Cart())
		assert.Equal(t, []notice.Kind{notice.KindAddFailed}, h.publisher.kinds())
		assert.Equal(t, 0, h.storage.Writes())
	})

	t.Run("unknown product", func(t *testing.T) {
		h := newHarness(t, newFakeInventory(), "")

		err := h.store.AddProduct(context.Background(), 42)

		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		assert.Equal(t, []notice.Kind{notice.KindAddFailed}, h.publisher.kinds())
	})

	t.Run("stock lookup", func(t *testing.T) {
		inv := newFakeInventory().withProduct(1, "Shoe", 9)
		inv.stockErr = errors.New("503")
		h := newHarness(t, inv, `[{"id":1,"amount":1}]`)

		err := h.store.AddProduct(context.Background(), 1)

		assert.ErrorIs(t, err, domain.ErrInventory)
		assert.Equal(t, 1, h.store.Cart()[0].Amount)
		assert.Equal(t, []notice.Kind{notice.KindAddFailed}, h.publisher.kinds())
	})
}

func TestRemoveProduct(t *testing.T) {
	h := newHarness(t, newFakeInventory(), `[{"id":1,"amount":1},{"id":2,"amount":3}]`)
	ctx := context.Background()

	require.NoError(t, h.store.RemoveProduct(ctx, 1))
	assert.JSONEq(t, `[{"id":2,"amount":3}]`, h.persisted(t))
	assert.Empty(t, h.publisher.kinds())

	// Removing again has no further effect beyond the failure notification.
	err := h.store.RemoveProduct(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	assert.JSONEq(t, `[{"id":2,"amount":3}]`, h.persisted(t))
	assert.Equal(t, 1, h.storage.Writes())
	assert.Equal(t, []notice.Kind{notice.KindRemoveFailed}, h.publisher.kinds())

	stockCalls, productCalls := h.inventory.calls()
	assert.Zero(t, stockCalls+productCalls)
}

func TestUpdateProductAmount(t *testing.T) {
	const stored = `[{"id":2,"amount":3}]`

	tests := map[string]struct {
		in         UpdateAmountInput
		stock      int
		stockErr   error
		wantAmount int
		wantErr    error
		wantKinds  []notice.Kind
		wantWrites int
		wantLookup bool
	}{
		"zero amount is a no-op": {
			in: UpdateAmountInput{ProductID: 2, Amount: 0}, stock: 10,
			wantAmount: 3,
		},
		"negative amount is a no-op": {
			in: UpdateAmountInput{ProductID: 2, Amount: -4}, stock: 10,
			wantAmount: 3,
		},
		"within stock": {
			in: UpdateAmountInput{ProductID: 2, Amount: 5}, stock: 5,
			wantAmount: 5, wantWrites: 1, wantLookup: true,
		},
		"exceeds stock": {
			in: UpdateAmountInput{ProductID: 2, Amount: 6}, stock: 5,
			wantAmount: 3, wantErr: domain.ErrOutOfStock, wantLookup: true,
			wantKinds: []notice.Kind{notice.KindOutOfStock},
		},
		"entry missing": {
			in: UpdateAmountInput{ProductID: 7, Amount: 1}, stock: 5,
			wantAmount: 3, wantErr: domain.ErrEntryNotFound, wantLookup: true,
			wantKinds: []notice.Kind{notice.KindUpdateFailed},
		},
		"inventory failure": {
			in: UpdateAmountInput{ProductID: 2, Amount: 1}, stockErr: errors.New("timeout"),
			wantAmount: 3, wantErr: domain.ErrInventory, wantLookup: true,
			wantKinds: []notice.Kind{notice.KindUpdateFailed},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			inv := newFakeInventory()
			inv.stock[2] = tc.stock
			inv.stock[7] = tc.stock
			inv.stockErr = tc.stockErr
			h := newHarness(t, inv, stored)

			err := h.store.UpdateProductAmount(context.Background(), tc.in)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}

			got := h.store.Cart()
			require.Len(t, got, 1)
			assert.Equal(t, tc.wantAmount, got[0].Amount)
			assert.Equal(t, tc.wantWrites, h.storage.Writes())
			stockCalls, _ := inv.calls()
			assert.Equal(t, tc.wantLookup, stockCalls > 0)
			if tc.wantKinds == nil {
				assert.Empty(t, h.publisher.kinds())
			} else {
				assert.Equal(t, tc.wantKinds, h.publisher.kinds())
			}
		})
	}
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 5)
	storage := &flakyStorage{Storage: memory.NewStorage(), setErr: errors.New("disk full")}
	pub := &recordingPublisher{}
	s, err := NewStore(context.Background(), storage, inv, pub, nil)
	require.NoError(t, err)

	err = s.AddProduct(context.Background(), 1)

	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, s.Cart())
	assert.Equal(t, []notice.Kind{notice.KindAddFailed}, pub.kinds())
}

func TestStoreRoundTripThroughStorage(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 5).withProduct(2, "Boot", 5)
	h := newHarness(t, inv, "")
	ctx := context.Background()

	require.NoError(t, h.store.AddProduct(ctx, 1))
	require.NoError(t, h.store.AddProduct(ctx, 2))
	require.NoError(t, h.store.AddProduct(ctx, 2))

	reloaded, err := NewStore(ctx, h.storage, inv, nil, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(h.store.Cart(), reloaded.Cart()); diff != "" {
		t.Fatalf("reloaded cart differs (-want +got):\n%s", diff)
	}
}

func TestNewStoreLoading(t *testing.T) {
	ctx := context.Background()

	t.Run("absent key is empty", func(t *testing.T) {
		s, err := NewStore(ctx, memory.NewStorage(), newFakeInventory(), nil, nil)
		require.NoError(t, err)
		assert.Empty(t, s.Cart())
	})

	t.Run("custom key", func(t *testing.T) {
		storage := memory.NewStorageWith(map[string]string{"session-9": `[{"id":3,"amount":2}]`})
		s, err := NewStore(ctx, storage, newFakeInventory(), nil, nil, WithKey("session-9"))
		require.NoError(t, err)
		assert.Equal(t, 1, s.Size())
	})

	t.Run("corrupt value is a startup error", func(t *testing.T) {
		storage := memory.NewStorageWith(map[string]string{DefaultKey: `{not json`})
		_, err := NewStore(ctx, storage, newFakeInventory(), nil, nil)
		assert.ErrorIs(t, err, domain.ErrCorruptCart)
	})

	t.Run("corrupt value with reset starts empty", func(t *testing.T) {
		storage := memory.NewStorageWith(map[string]string{DefaultKey: `{not json`})
		s, err := NewStore(ctx, storage, newFakeInventory(), nil, nil, WithResetOnCorrupt())
		require.NoError(t, err)
		assert.Empty(t, s.Cart())
	})

	t.Run("storage failure", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewStore(cancelled, memory.NewStorage(), newFakeInventory(), nil, nil)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := NewStore(ctx, nil, newFakeInventory(), nil, nil)
		assert.Error(t, err)
		_, err = NewStore(ctx, memory.NewStorage(), nil, nil, nil)
		assert.Error(t, err)
	})
}

func TestCartReturnsCopy(t *testing.T) {
	h := newHarness(t, newFakeInventory(), `[{"id":1,"amount":1}]`)

	got := h.store.Cart()
	got[0].Amount = 99

	assert.Equal(t, 1, h.store.Cart()[0].Amount)
}

func TestConcurrentAddsAreNotLost(t *testing.T) {
	inv := newFakeInventory()
	for id := 1; id <= 20; id++ {
		inv.withProduct(id, fmt.Sprintf("p%d", id), 100)
	}
	h := newHarness(t, inv, "", WithMaxAttempts(100))

	var wg sync.WaitGroup
	for id := 1; id <= 20; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.store.AddProduct(context.Background(), id))
		}()
	}
	wg.Wait()

	got := h.store.Cart()
	assert.Len(t, got, 20)
	assertUnique(t, got)

	persisted, err := domain.Decode(h.persisted(t))
	require.NoError(t, err)
	if diff := cmp.Diff(got, persisted); diff != "" {
		t.Fatalf("storage differs from memory (-mem +storage):\n%s", diff)
	}
}

func TestMutationRerunsAfterLosingCommitRace(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 5)
	h := newHarness(t, inv, `[{"id":1,"amount":1},{"id":2,"amount":1}]`)
	ctx := context.Background()

	var once sync.Once
	inv.onStock = func(productID int) {
		if productID != 1 {
			return
		}
		once.Do(func() {
			require.NoError(t, h.store.RemoveProduct(ctx, 2))
		})
	}

	require.NoError(t, h.store.AddProduct(ctx, 1))

	assert.JSONEq(t, `[{"id":1,"amount":2}]`, h.persisted(t))
	stockCalls, _ := inv.calls()
	assert.Equal(t, 2, stockCalls, "the add re-ran its stock check on the fresh snapshot")
}

func TestMutationGivesUpAfterMaxAttempts(t *testing.T) {
	inv := newFakeInventory().withProduct(1, "Shoe", 5)
	h := newHarness(t, inv, `[{"id":1,"amount":1},{"id":2,"amount":1}]`, WithMaxAttempts(1))
	ctx := context.Background()

	var once sync.Once
	inv.onStock = func(productID int) {
		if productID == 1 {
			once.Do(func() { require.NoError(t, h.store.RemoveProduct(ctx, 2)) })
		}
	}

	err := h.store.AddProduct(ctx, 1)

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.JSONEq(t, `[{"id":1,"amount":1}]`, h.persisted(t))
	assert.Equal(t, []notice.Kind{notice.KindAddFailed}, h.publisher.kinds())
}

func TestRandomOperationSequencesKeepEntriesUnique(t *testing.T) {
	inv := newFakeInventory()
	for id := 1; id <= 5; id++ {
		inv.withProduct(id, fmt.Sprintf("p%d", id), 3)
	}
	h := newHarness(t, inv, "")
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		id := rng.IntN(6) + 1
		switch rng.IntN(3) {
		case 0:
			_ = h.store.AddProduct(ctx, id)
		case 1:
			_ = h.store.RemoveProduct(ctx, id)
		default:
			_ = h.store.UpdateProductAmount(ctx, UpdateAmountInput{ProductID: id, Amount: rng.IntN(5) - 1})
		}

		got := h.store.Cart()
		assertUnique(t, got)
		for _, e := range got {
			require.GreaterOrEqual(t, e.Amount, 1)
		}
	}
}
