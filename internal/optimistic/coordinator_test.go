package optimistic

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mess-ordersync/internal/api"
	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/order"
)

type notices struct {
	mu  sync.Mutex
	all []Notice
}

func (n *notices) Notify(_ context.Context, notice Notice) {
	n.mu.Lock()
	n.all = append(n.all, notice)
	n.mu.Unlock()
}

func (n *notices) list() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.all...)
}

// invalidations counts stale notifications per key.
type invalidations struct {
	mu     sync.Mutex
	counts map[cache.Key]int
}

func watchInvalidations(s *cache.Store) *invalidations {
	inv := &invalidations{counts: make(map[cache.Key]int)}
	s.Subscribe(func(c cache.Change) {
		if c.Stale {
			inv.mu.Lock()
			inv.counts[c.Key]++
			inv.mu.Unlock()
		}
	})
	return inv
}

func (i *invalidations) of(k cache.Key) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.counts[k]
}

func newStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.NewStore(cache.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func seed(s *cache.Store) (*order.Order, []order.ListEntry) {
	detail := &order.Order{
		ID:         "o1",
		Status:     order.StatusPreparing,
		TotalPrice: 20,
		Items: []order.OrderItem{
			{ID: "i1", TotalPrice: 7, Quantity: 1},
			{ID: "i2", TotalPrice: 13, Quantity: 1},
		},
	}
	list := []order.ListEntry{{ID: "o1", Status: order.StatusPreparing, TotalPrice: 20}}
	s.Set(cache.OrderKey("o1"), func(any, bool) any { return detail })
	s.Set(cache.OrdersKey("m1"), func(any, bool) any { return list })
	return detail, list
}

func cancelI1(remote func(ctx context.Context) error) Mutation {
	return Mutation{
		Name:  "cancel-item",
		Scope: "o1",
		Keys:  []cache.Key{cache.OrderKey("o1"), cache.OrdersKey("m1"), cache.PopupKey("m1")},
		Apply: func(s *cache.Store) {
			cache.Patch(s, cache.OrderKey("o1"), func(o *order.Order) (*order.Order, bool) {
				return order.WithItemCancelled(o, "i1")
			})
			cache.Patch(s, cache.OrdersKey("m1"), func(l []order.ListEntry) ([]order.ListEntry, bool) {
				return order.PatchEntry(l, "o1", func(e order.ListEntry) (order.ListEntry, bool) {
					return e.WithItemCancelled("i1", 7)
				})
			})
		},
		Remote: remote,
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicySerialize, p)

	p, err = ParsePolicy(" Compose ")
	require.NoError(t, err)
	assert.Equal(t, PolicyCompose, p)

	_, err = ParsePolicy("yolo")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestCoordinator_RejectedRollsBack(t *testing.T) {
	store := newStore(t)
	detail, list := seed(store)
	inv := watchInvalidations(store)
	n := &notices{}
	c := NewCoordinator(store, WithNotifier(n))

	rejection := &api.Error{Status: http.StatusConflict, Message: "Order already served"}
	var speculative *order.Order

	err := c.Run(context.Background(), cancelI1(func(ctx context.Context) error {
		// speculative state is visible while the call is in flight
		speculative, _ = cache.GetAs[*order.Order](store, cache.OrderKey("o1"))
		return rejection
	}))

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Order already served", apiErr.Message)

	require.NotNil(t, speculative)
	assert.Equal(t, 13, speculative.TotalPrice)

	got, _ := cache.GetAs[*order.Order](store, cache.OrderKey("o1"))
	assert.Same(t, detail, got, "detail restored to the exact pre-mutation value")
	gotList, _ := cache.GetAs[[]order.ListEntry](store, cache.OrdersKey("m1"))
	assert.Equal(t, list, gotList)
	_, ok := store.Get(cache.PopupKey("m1"))
	assert.False(t, ok, "absent keys stay absent")

	assert.Equal(t, 1, inv.of(cache.OrderKey("o1")))
	assert.Equal(t, 1, inv.of(cache.OrdersKey("m1")))

	require.Len(t, n.list(), 1)
	assert.Equal(t, "Order already served", n.list()[0].Message)
}

func TestCoordinator_Success(t *testing.T) {
	store := newStore(t)
	seed(store)
	inv := watchInvalidations(store)
	n := &notices{}
	c := NewCoordinator(store, WithNotifier(n))

	err := c.Run(context.Background(), cancelI1(func(ctx context.Context) error { return nil }))
	require.NoError(t, err)

	got, _ := cache.GetAs[*order.Order](store, cache.OrderKey("o1"))
	assert.Equal(t, 13, got.TotalPrice)
	assert.True(t, store.IsStale(cache.OrderKey("o1")))
	assert.Equal(t, 1, inv.of(cache.OrderKey("o1")))
	assert.Equal(t, 1, inv.of(cache.OrdersKey("m1")))
	assert.Empty(t, n.list())
}

func TestCoordinator_NetworkErrorMessage(t *testing.T) {
	store := newStore(t)
	seed(store)
	n := &notices{}
	c := NewCoordinator(store, WithNotifier(n))

	err := c.Run(context.Background(), cancelI1(func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	}))

	assert.Error(t, err)
	require.Len(t, n.list(), 1)
	assert.Equal(t, "Something went wrong", n.list()[0].Message)
}

func TestCoordinator_PanicInRemote(t *testing.T) {
	store := newStore(t)
	detail, _ := seed(store)
	inv := watchInvalidations(store)
	c := NewCoordinator(store, WithNotifier(&notices{}))

	var err error
	assert.NotPanics(t, func() {
		err = c.Run(context.Background(), cancelI1(func(ctx context.Context) error {
			panic("nil map")
		}))
	})

	assert.ErrorIs(t, err, ErrPanicked)
	got, _ := cache.GetAs[*order.Order](store, cache.OrderKey("o1"))
	assert.Same(t, detail, got)
	assert.Equal(t, 1, inv.of(cache.OrderKey("o1")))
}

func TestCoordinator_CancelsInFlightFetch(t *testing.T) {
	store := newStore(t)
	seed(store)
	started, release := make(chan struct{}), make(chan struct{})
	store.Register(cache.KindOrder, func(ctx context.Context, key cache.Key) (any, error) {
		close(started)
		<-release
		return &order.Order{ID: "o1", TotalPrice: 999}, nil
	})
	store.Invalidate(cache.OrderKey("o1"))
	go func() { _, _ = store.Fetch(context.Background(), cache.OrderKey("o1")) }()
	<-started

	c := NewCoordinator(store)
	err := c.Run(context.Background(), cancelI1(func(ctx context.Context) error {
		close(release)
		time.Sleep(10 * time.Millisecond)
		got, _ := cache.GetAs[*order.Order](store, cache.OrderKey("o1"))
		assert.Equal(t, 13, got.TotalPrice, "old fetch must not overwrite the speculative write")
		return nil
	}))
	require.NoError(t, err)
}

func TestCoordinator_SerializePerScope(t *testing.T) {
	store := newStore(t)
	c := NewCoordinator(store, WithPolicy(PolicySerialize))

	var mu sync.Mutex
	var trace []string
	record := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}

	firstInFlight := make(chan struct{})
	releaseFirst := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = c.Run(context.Background(), Mutation{
			Name:  "first",
			Scope: "o1",
			Apply: func(*cache.Store) { record("apply first") },
			Remote: func(ctx context.Context) error {
				close(firstInFlight)
				<-releaseFirst
				record("remote first")
				return nil
			},
		})
	}()
	<-firstInFlight

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_ = c.Run(context.Background(), Mutation{
			Name:   "second",
			Scope:  "o1",
			Apply:  func(*cache.Store) { record("apply second") },
			Remote: func(ctx context.Context) error { return nil },
		})
	}()

	// another scope is not blocked
	require.NoError(t, c.Run(context.Background(), Mutation{
		Name:   "other",
		Scope:  "o2",
		Remote: func(ctx context.Context) error { return nil },
	}))

	time.Sleep(20 * time.Millisecond)
	close(releaseFirst)
	<-done
	<-secondDone

	assert.Equal(t, []string{"apply first", "remote first", "apply second"}, trace)
}

func TestCoordinator_SerializeRespectsContext(t *testing.T) {
	store := newStore(t)
	c := NewCoordinator(store)

	hold := make(chan struct{})
	inFlight := make(chan struct{})
	go func() {
		_ = c.Run(context.Background(), Mutation{
			Name:  "slow",
			Scope: "o1",
			Remote: func(ctx context.Context) error {
				close(inFlight)
				<-hold
				return nil
			},
		})
	}()
	<-inFlight
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	applied := false
	err := c.Run(ctx, Mutation{
		Name:   "queued",
		Scope:  "o1",
		Apply:  func(*cache.Store) { applied = true },
		Remote: func(ctx context.Context) error { return nil },
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, applied)
}

func TestCoordinator_ComposeOverlaps(t *testing.T) {
	store := newStore(t)
	key := cache.OrderKey("o1")
	store.Set(key, func(any, bool) any { return 0 })
	c := NewCoordinator(store, WithPolicy(PolicyCompose))

	firstInFlight := make(chan struct{})
	failFirst := make(chan struct{})
	done := make(chan error)

	increment := func(s *cache.Store) {
		cache.Patch(s, key, func(n int) (int, bool) { return n + 1, true })
	}

	go func() {
		done <- c.Run(context.Background(), Mutation{
			Name: "first", Scope: "o1", Keys: []cache.Key{key}, Apply: increment,
			Remote: func(ctx context.Context) error {
				close(firstInFlight)
				<-failFirst
				return errors.New("rejected")
			},
		})
	}()
	<-firstInFlight

	// the second mutation runs while the first is still in flight
	require.NoError(t, c.Run(context.Background(), Mutation{
		Name: "second", Scope: "o1", Keys: []cache.Key{key}, Apply: increment,
		Remote: func(ctx context.Context) error {
			n, _ := cache.GetAs[int](store, key)
			assert.Equal(t, 2, n, "speculative writes compose")
			return nil
		},
	}))

	close(failFirst)
	assert.Error(t, <-done)

	n, _ := cache.GetAs[int](store, key)
	assert.Equal(t, 0, n, "the failing mutation restores its own snapshot")
	assert.True(t, store.IsStale(key))
}
