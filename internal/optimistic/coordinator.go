package optimistic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mess-ordersync/internal/api"
	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/logger"
	"mess-ordersync/internal/metrics"
)

// Mutation is one user action: speculative cache writes plus the remote
// call that makes them real.
type Mutation struct {
	Name string
	// Scope groups mutations that must not overlap, usually the order id.
	Scope string
	// Keys lists every cache key Apply may touch.
	Keys []cache.Key
	// Apply performs the speculative writes. It must only touch Keys.
	Apply  func(store *cache.Store)
	Remote func(ctx context.Context) error
}

// Notice is a transient message for the user about a failed mutation.
type Notice struct {
	Mutation string
	Message  string
	Err      error
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

type Coordinator struct {
	store    *cache.Store
	policy   Policy
	notifier Notifier
	scopes   *scopes
}

type Option func(*Coordinator)

func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func NewCoordinator(store *cache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		policy: PolicySerialize,
		scopes: newScopes(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = NotifierFunc(logNotice)
	}
	return c
}

func logNotice(ctx context.Context, n Notice) {
	logger.FromCtx(ctx).Warn(n.Message,
		zap.String("layer", "optimistic"),
		zap.String("mutation", n.Mutation),
		zap.Error(n.Err),
	)
}

func (c *Coordinator) Policy() Policy { return c.policy }

// Run executes m. The cache shows the speculative state from the moment
// Run returns from Apply until the remote call settles; on failure every
// key is restored exactly as it was. Every key is invalidated exactly
// once whatever the outcome. A rejection is returned as-is (usually an
// *api.Error) and reported to the notifier.
func (c *Coordinator) Run(ctx context.Context, m Mutation) (err error) {
	if c.policy == PolicySerialize && m.Scope != "" {
		release, err := c.scopes.acquire(ctx, m.Scope)
		if err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		defer release()
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "optimistic"),
		zap.String("mutation", m.Name),
	)
	timer := metrics.StartTimer()

	// 1. stop refetches that could land on top of the speculative state
	for _, k := range m.Keys {
		c.store.CancelInFlight(k)
	}

	// 2. snapshot
	snaps := make([]cache.Snapshot, len(m.Keys))
	for i, k := range m.Keys {
		snaps[i] = c.store.Snapshot(k)
	}

	// 6. reconcile on every path, after the rollback below
	defer func() {
		for _, k := range m.Keys {
			c.store.Invalidate(k)
		}
	}()

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("mutation panicked", zap.Any("panic", rec))
			err = fmt.Errorf("%s: %w: %v", m.Name, ErrPanicked, rec)
		}
		if err == nil {
			return
		}
		metrics.Default.MutationsRolledBack.Inc()
		// 5. roll back
		for i := len(snaps) - 1; i >= 0; i-- {
			c.store.Restore(snaps[i])
		}
		c.notifier.Notify(ctx, Notice{Mutation: m.Name, Message: api.Message(err), Err: err})
	}()

	// 3. speculative writes
	if m.Apply != nil {
		m.Apply(c.store)
	}

	// 4. remote
	if err := m.Remote(ctx); err != nil {
		log.Info("mutation rejected, rolled back", zap.Duration("took", timer.Duration()), zap.Error(err))
		return err
	}

	metrics.Default.MutationsCommitted.Inc()
	log.Debug("mutation committed", zap.Duration("took", timer.Duration()))
	return nil
}
