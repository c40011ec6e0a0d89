package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"menu360/internal/adapters/outbound/kvstore"
	"menu360/internal/app/logging"
	"menu360/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var session = domain.CartSession{RestaurantID: "r1", TableID: "t4", SessionID: "s1"}

func dish(id, name string, price float64) domain.MenuItem {
	return domain.MenuItem{ID: id, RestaurantID: "r1", Name: name, Price: price, IsAvailable: true}
}

type placerFunc func(ctx context.Context, o domain.Order) (domain.Order, error)

func (f placerFunc) PlaceOrder(ctx context.Context, o domain.Order) (domain.Order, error) { return f(ctx, o) }

type toasts struct {
	mu   sync.Mutex
	list []domain.Toast
}

func (n *toasts) Notify(_ context.Context, scope string, t domain.Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if scope == domain.SessionScope(session.SessionID) {
		n.list = append(n.list, t)
	}
}

func (n *toasts) last() domain.Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.list[len(n.list)-1]
}

type failingKV struct {
	*kvstore.Memory
	fail bool
}

func (f *failingKV) Set(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	if f.fail {
		return domain.ErrUnavailable
	}
	return f.Memory.Set(ctx, key, v, ttl)
}

func newStore(t *testing.T, placer OrderPlacer, opts Options) (*Store, *kvstore.Memory, *toasts) {
	t.Helper()
	kv := kvstore.NewMemory()
	n := &toasts{}
	reg := NewRegistry(kv, n, placer, nil, opts, logging.Component(logging.Discard(), "cart"))
	s, err := reg.Store(context.Background(), session)
	require.NoError(t, err)
	return s, kv, n
}

func persisted(t *testing.T, kv *kvstore.Memory) []domain.CartLine {
	t.Helper()
	b, err := kv.Get(context.Background(), storageKey(session))
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.CartLine{}
	}
	require.NoError(t, err)
	var lines []domain.CartLine
	require.NoError(t, json.Unmarshal(b, &lines))
	return lines
}

func TestPersistedCopyTracksEveryMutation(t *testing.T) {
	ctx := context.Background()
	s, kv, _ := newStore(t, nil, Options{})

	steps := []func() error{
		func() error { return s.Add(ctx, dish("a", "Margherita", 250)) },
		func() error { return s.Add(ctx, dish("b", "Naan", 70)) },
		func() error { return s.Add(ctx, dish("a", "Margherita", 250)) },
		func() error { return s.SetQuantity(ctx, "b", 5) },
		func() error { return s.Remove(ctx, "a") },
		func() error { return s.SetQuantity(ctx, "b", 0) },
		func() error { return s.Add(ctx, dish("c", "Kulfi", 140)) },
		func() error { return s.Clear(ctx) },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.ElementsMatch(t, s.Lines(), persisted(t, kv), "step %d", i)
	}
}

func TestAddTwiceIncrementsQuantity(t *testing.T) {
	ctx := context.Background()
	s, _, n := newStore(t, nil, Options{})

	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "Added Margherita to your order", n.last().Message)
}

func TestSetQuantityNonPositiveRemoves(t *testing.T) {
	ctx := context.Background()
	for _, q := range []int{0, -1} {
		s, _, _ := newStore(t, nil, Options{})
		require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))
		require.NoError(t, s.SetQuantity(ctx, "a", q))
		assert.Empty(t, s.Lines(), "quantity %d", q)
	}
}

func TestSetQuantityUnknownItem(t *testing.T) {
	s, _, _ := newStore(t, nil, Options{})
	err := s.SetQuantity(context.Background(), "nope", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t, nil, Options{})
	require.NoError(t, s.Add(ctx, dish("m", "Margherita", 250)))
	require.NoError(t, s.SetQuantity(ctx, "m", 2))

	assert.Equal(t, domain.CartTotals{Items: 2, Price: 500}, s.Totals())
}

func TestAddUnavailableRejected(t *testing.T) {
	s, _, _ := newStore(t, nil, Options{})
	it := dish("a", "Biryani", 300)
	it.IsAvailable = false
	err := s.Add(context.Background(), it)
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, s.Lines())
}

func TestPersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{Memory: kvstore.NewMemory()}
	reg := NewRegistry(kv, nil, nil, nil, Options{}, nil)
	s, err := reg.Store(ctx, session)
	require.NoError(t, err)

	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))
	kv.fail = true
	err = s.Add(ctx, dish("a", "Margherita", 250))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Equal(t, 1, s.Lines()[0].Quantity)
}

func TestSubmitSuccessClearsCart(t *testing.T) {
	ctx := context.Background()
	var got domain.Order
	s, kv, n := newStore(t, placerFunc(func(_ context.Context, o domain.Order) (domain.Order, error) {
		got = o
		return o, nil
	}), Options{SubmitDelay: time.Millisecond})

	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))

	placed, err := s.Submit(ctx, domain.CustomerInfo{Name: "  Priya ", Phone: "+91 98200 11111"})
	require.NoError(t, err)
	assert.Equal(t, got.ID, placed.ID)
	assert.Equal(t, "Priya", got.CustomerName)
	assert.Equal(t, "t4", got.TableID)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.InDelta(t, 500, got.Total, 1e-9)
	require.Len(t, got.Items, 1)
	assert.Equal(t, got.ID, got.Items[0].OrderID)

	assert.Empty(t, s.Lines())
	assert.Empty(t, persisted(t, kv))
	assert.Equal(t, domain.ToastSuccess, n.last().Level)
}

func TestSubmitFailureLeavesCartIntact(t *testing.T) {
	ctx := context.Background()
	s, kv, n := newStore(t, placerFunc(func(context.Context, domain.Order) (domain.Order, error) {
		return domain.Order{}, domain.ErrUnavailable
	}), Options{})
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))

	_, err := s.Submit(ctx, domain.CustomerInfo{Name: "Priya"})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Len(t, s.Lines(), 1)
	assert.Len(t, persisted(t, kv), 1)
	assert.Equal(t, domain.ToastError, n.last().Level)
	assert.Contains(t, n.last().Message, "unreachable")
	assert.False(t, s.Submitting())
}

func TestSubmitRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t, nil, Options{})

	_, err := s.Submit(ctx, domain.CustomerInfo{Name: "Priya"})
	assert.True(t, domain.IsValidation(err), "empty cart")

	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))
	_, err = s.Submit(ctx, domain.CustomerInfo{Name: "   "})
	assert.True(t, domain.IsValidation(err), "blank name")
}

func TestDoubleSubmitAndMutationsWhileSubmitting(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	s, _, _ := newStore(t, placerFunc(func(_ context.Context, o domain.Order) (domain.Order, error) {
		close(entered)
		<-release
		return o, nil
	}), Options{})
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx, domain.CustomerInfo{Name: "Priya"})
		done <- err
	}()
	<-entered

	_, err := s.Submit(ctx, domain.CustomerInfo{Name: "Priya"})
	assert.ErrorIs(t, err, domain.ErrSubmitInProgress)
	assert.ErrorIs(t, s.Add(ctx, dish("b", "Naan", 70)), domain.ErrSubmitInProgress)
	assert.ErrorIs(t, s.Clear(ctx), domain.ErrSubmitInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Empty(t, s.Lines())
}

func TestSubmitHonoursCancellation(t *testing.T) {
	s, _, _ := newStore(t, placerFunc(func(context.Context, domain.Order) (domain.Order, error) {
		t.Fatal("placer must not run after cancellation")
		return domain.Order{}, nil
	}), Options{SubmitDelay: time.Hour})
	require.NoError(t, s.Add(context.Background(), dish("a", "Margherita", 250)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Submit(ctx, domain.CustomerInfo{Name: "Priya"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, s.Lines(), 1)
}

func TestRegistryRestoresPersistedCart(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	raw := `[{"item_id":"a","name":"Margherita","unit_price":250,"quantity":2},{"item_id":"a","name":"Margherita","unit_price":250,"quantity":1},{"item_id":"z","quantity":0}]`
	require.NoError(t, kv.Set(ctx, storageKey(session), []byte(raw), 0))

	reg := NewRegistry(kv, nil, nil, nil, Options{}, nil)
	c, err := reg.Cart(ctx, session)
	require.NoError(t, err)

	lines := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	again, err := reg.Cart(ctx, session)
	require.NoError(t, err)
	assert.Same(t, c, again)
}

func TestRegistryDiscardsUnreadableCart(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, storageKey(session), []byte("{not json"), 0))

	reg := NewRegistry(kv, nil, nil, nil, Options{}, nil)
	c, err := reg.Cart(ctx, session)
	require.NoError(t, err)
	assert.Empty(t, c.Lines())
}

func TestRegistryRequiresTable(t *testing.T) {
	reg := NewRegistry(kvstore.NewMemory(), nil, nil, nil, Options{}, nil)
	_, err := reg.Cart(context.Background(), domain.CartSession{SessionID: "s1"})
	assert.True(t, domain.IsValidation(err))
}

func TestRegistryEvict(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(kvstore.NewMemory(), nil, nil, nil, Options{}, nil)
	s, err := reg.Store(ctx, session)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))

	assert.Equal(t, 0, reg.Evict(time.Hour))
	assert.Equal(t, 1, reg.Evict(-time.Second))
	assert.Equal(t, 0, reg.Len())

	restored, err := reg.Store(ctx, session)
	require.NoError(t, err)
	assert.Len(t, restored.Lines(), 1)
}

func TestStoreHeldAcrossEvictionCannotOverwrite(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	reg := NewRegistry(kv, nil, nil, nil, Options{}, nil)
	held, err := reg.Store(ctx, session)
	require.NoError(t, err)

	require.Equal(t, 1, reg.Evict(-time.Second))
	assert.True(t, held.Retired())

	fresh, err := reg.Store(ctx, session)
	require.NoError(t, err)
	assert.NotSame(t, held, fresh)
	require.NoError(t, fresh.Add(ctx, dish("m1", "Masala Dosa", 120)))

	err = held.Add(ctx, dish("m2", "Paneer", 300))
	assert.ErrorIs(t, err, domain.ErrCartReloaded)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, held.Clear(ctx), domain.ErrCartReloaded)
	_, err = held.Submit(ctx, domain.CustomerInfo{Name: "Asha"})
	assert.ErrorIs(t, err, domain.ErrCartReloaded)

	lines := persisted(t, kv)
	require.Len(t, lines, 1)
	assert.Equal(t, "m1", lines[0].ItemID)
	assert.Equal(t, fresh.Lines(), lines)
}

func TestAddNIsOneMutation(t *testing.T) {
	ctx := context.Background()
	s, kv, n := newStore(t, nil, Options{})
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))
	require.NoError(t, s.AddN(ctx, dish("a", "Margherita", 250), 3))

	assert.Equal(t, uint64(2), s.Version())
	assert.Equal(t, 4, s.Lines()[0].Quantity)
	assert.Equal(t, s.Lines(), persisted(t, kv))
	assert.Len(t, n.list, 2)

	assert.True(t, domain.IsValidation(s.AddN(ctx, dish("a", "Margherita", 250), 0)))
	assert.Equal(t, uint64(2), s.Version())
}

func TestAddNPersistFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{Memory: kvstore.NewMemory()}
	reg := NewRegistry(kv, nil, nil, nil, Options{}, nil)
	s, err := reg.Store(ctx, session)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, dish("a", "Margherita", 250)))

	kv.fail = true
	assert.ErrorIs(t, s.AddN(ctx, dish("a", "Margherita", 250), 5), domain.ErrUnavailable)
	assert.Equal(t, 1, s.Lines()[0].Quantity)
	assert.Equal(t, s.Lines(), persisted(t, kv.Memory))
}
