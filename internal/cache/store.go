package cache

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"mess-ordersync/internal/logger"
)

const DefaultCapacity = 512

// Fetcher loads the authoritative value for a key. A nil value caches
// an empty result (e.g. a table without an active order).
type Fetcher func(ctx context.Context, key Key) (any, error)

// Change is delivered to subscribers after every write, invalidation
// and landed fetch.
type Change struct {
	Key     Key
	Value   any
	Present bool
	Stale   bool
}

type Options struct {
	Capacity int
	// RefetchOnInvalidate starts a background fetch for invalidated
	// keys that hold data and have a registered fetcher.
	RefetchOnInvalidate bool
	Logger              *zap.Logger
}

type flight struct {
	gen        uint64
	cancel     context.CancelFunc
	done       chan struct{}
	value      any
	err        error
	superseded bool
}

type entry struct {
	value   any
	present bool
	stale   bool
	// gen moves on every write and cancellation; a fetch lands only
	// if the generation it started from is still current.
	gen    uint64
	flight *flight
}

// Store is the process-wide query cache. Values are treated as
// immutable: writers replace them, never mutate them in place.
type Store struct {
	mu       sync.Mutex
	entries  *lru.Cache[Key, *entry]
	fetchers map[string]Fetcher
	subs     map[int]func(Change)
	nextSub  int
	refetch  bool
	closed   bool
	log      *zap.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewStore(opts Options) (*Store, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	log := opts.Logger
	if log == nil {
		log = logger.Layer("cache")
	}

	entries, err := lru.NewWithEvict(opts.Capacity, func(_ Key, e *entry) {
		if e.flight != nil {
			e.flight.cancel()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Store{
		entries:  entries,
		fetchers: make(map[string]Fetcher),
		subs:     make(map[int]func(Change)),
		refetch:  opts.RefetchOnInvalidate,
		log:      log,
		ctx:      ctx,
		stop:     stop,
	}, nil
}

// Register installs the fetcher used for every key of the given kind.
func (s *Store) Register(kind string, fetch Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[kind] = fetch
}

// Get returns the cached value, stale or not.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.Get(key)
	if !ok || !e.present {
		return nil, false
	}
	return e.value, true
}

// IsStale reports whether the key was invalidated and not refetched yet.
func (s *Store) IsStale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.Peek(key)
	return ok && e.present && e.stale
}

// Set writes updater's result. A nil result removes the key.
func (s *Store) Set(key Key, updater func(old any, ok bool) any) {
	s.Update(key, func(old any, ok bool) (any, bool) {
		return updater(old, ok), true
	})
}

// Update is Set that writes only when fn reports a change. The read and
// the write happen under one lock.
func (s *Store) Update(key Key, fn func(old any, ok bool) (any, bool)) bool {
	s.mu.Lock()
	var old any
	present := false
	if e, ok := s.entries.Get(key); ok && e.present {
		old, present = e.value, true
	}

	next, changed := fn(old, present)
	if !changed {
		s.mu.Unlock()
		return false
	}
	change := s.putLocked(key, next, next != nil)
	s.mu.Unlock()

	s.notify(change)
	return true
}

func (s *Store) Delete(key Key) {
	s.Set(key, func(any, bool) any { return nil })
}

func (s *Store) putLocked(key Key, value any, present bool) Change {
	e, ok := s.entries.Peek(key)
	if !ok {
		e = &entry{}
	}
	s.cancelFlightLocked(e)
	e.gen++

	if !present {
		if ok {
			s.entries.Remove(key)
		}
		return Change{Key: key}
	}

	e.value, e.present = value, true
	s.entries.Add(key, e)
	return Change{Key: key, Value: value, Present: true, Stale: e.stale}
}

func (s *Store) cancelFlightLocked(e *entry) {
	if e.flight == nil {
		return
	}
	e.flight.superseded = true
	e.flight.cancel()
	e.flight = nil
	e.gen++
}

// CancelInFlight aborts a running fetch for key; its result is dropped.
func (s *Store) CancelInFlight(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries.Peek(key); ok {
		s.cancelFlightLocked(e)
	}
}

// Invalidate marks the key stale so its next Fetch goes to the server.
// A fetch already running is cancelled since it may predate the change.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	e, ok := s.entries.Peek(key)
	if !ok || !e.present {
		s.mu.Unlock()
		return
	}

	s.cancelFlightLocked(e)
	e.stale = true
	change := Change{Key: key, Value: e.value, Present: true, Stale: true}

	if s.refetch && !s.closed && s.fetchers[key.Kind] != nil {
		s.startFetchLocked(key, e)
	}
	s.mu.Unlock()

	s.log.Debug("cache key invalidated", zap.Stringer("key", key))
	s.notify(change)
}

// Fetch returns the fresh cached value, joining or starting a fetch
// when the key is absent or stale. Concurrent callers share one fetch.
func (s *Store) Fetch(ctx context.Context, key Key) (any, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}

		e, ok := s.entries.Get(key)
		if ok && e.present && !e.stale && e.flight == nil {
			v := e.value
			s.mu.Unlock()
			return v, nil
		}
		if !ok {
			e = &entry{}
			s.entries.Add(key, e)
		}

		f := e.flight
		if f == nil {
			if s.fetchers[key.Kind] == nil {
				s.mu.Unlock()
				return nil, fmt.Errorf("%s: %w", key, ErrNoFetcher)
			}
			f = s.startFetchLocked(key, e)
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.done:
		}

		s.mu.Lock()
		superseded, value, err := f.superseded, f.value, f.err
		s.mu.Unlock()

		if superseded {
			// a newer write settled the key; serve it rather than refetch
			// underneath an optimistic mutation
			if v, ok := s.settled(key); ok {
				return v, nil
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}

func (s *Store) settled(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries.Peek(key)
	if !ok || !e.present || e.flight != nil {
		return nil, false
	}
	return e.value, true
}

func (s *Store) startFetchLocked(key Key, e *entry) *flight {
	fetch := s.fetchers[key.Kind]
	ctx, cancel := context.WithCancel(s.ctx)
	f := &flight{gen: e.gen, cancel: cancel, done: make(chan struct{})}
	e.flight = f

	s.wg.Add(1)
	go s.runFetch(ctx, key, e, f, fetch)
	return f
}

func (s *Store) runFetch(ctx context.Context, key Key, e *entry, f *flight, fetch Fetcher) {
	defer s.wg.Done()
	defer f.cancel()

	value, err := fetch(ctx, key)

	s.mu.Lock()
	current, ok := s.entries.Peek(key)
	owned := ok && current == e && e.flight == f && e.gen == f.gen

	var change *Change
	switch {
	case !owned:
		f.superseded = true
	case err != nil:
		e.flight = nil
		f.err = err
	default:
		e.flight = nil
		e.value, e.present, e.stale = value, true, false
		f.value = value
		change = &Change{Key: key, Value: value, Present: true}
	}
	close(f.done)
	s.mu.Unlock()

	switch {
	case !owned:
		s.log.Debug("dropped superseded fetch", zap.Stringer("key", key))
	case err != nil:
		s.log.Warn("fetch failed", zap.Stringer("key", key), zap.Error(err))
	default:
		s.notify(*change)
	}
}

// Subscribe registers fn for every change; the returned func removes it.
// fn runs on the writer's goroutine and must not block.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(change Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// Close cancels running fetches and waits for them to return.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
}
