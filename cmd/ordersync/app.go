package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"mess-ordersync/internal/api"
	"mess-ordersync/internal/auth"
	"mess-ordersync/internal/cache"
	"mess-ordersync/internal/channel"
	"mess-ordersync/internal/config"
	"mess-ordersync/internal/dispatch"
	"mess-ordersync/internal/logger"
	"mess-ordersync/internal/metrics"
	"mess-ordersync/internal/optimistic"
	"mess-ordersync/internal/order"
	"mess-ordersync/internal/session"
)

var ErrNothingToFollow = errors.New("table has no active order to follow")

// orderSession is what admin and customer sessions have in common.
type orderSession interface {
	CancelItem(ctx context.Context, orderID, itemID string) error
	Close()
}

type app struct {
	cfg   *config.Config
	opts  *options
	log   *zap.Logger
	store *cache.Store

	channels   *channel.Manager
	dispatcher *dispatch.Dispatcher

	admin    *session.Admin
	customer *session.Customer
	current  orderSession

	unsubscribe func()
}

// newApp wires the cache, the order service client, the push channel and
// the session for the configured role. transport is the innermost HTTP
// round tripper; nil uses the default one.
func newApp(cfg *config.Config, opts *options, transport http.RoundTripper, confirm session.Confirmer) (*app, error) {
	log := logger.Layer("main")
	token := auth.Token(cfg.AccessToken)

	policy, err := optimistic.ParsePolicy(cfg.MutationPolicy)
	if err != nil {
		return nil, err
	}

	// 1. Cache
	store, err := cache.NewStore(cache.Options{
		Capacity:            cfg.CacheCapacity,
		RefetchOnInvalidate: true,
	})
	if err != nil {
		return nil, err
	}

	// 2. Order service
	client, err := api.NewClient(api.Options{
		BaseURL:   cfg.APIBaseURL,
		MessSlug:  cfg.MessSlug,
		Token:     token,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
		Transport: transport,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	api.RegisterFetchers(store, client, api.Viewer{Actor: opts.role, TableID: opts.tableID})

	// 3. Push channel
	channels, err := channel.NewManager(channel.Options{
		URL:                  cfg.PushURL,
		Token:                token,
		ConnectTimeout:       cfg.ConnectTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	// 4. Sessions
	dispatcher := dispatch.New(nil)
	deps := session.Deps{
		Store:       store,
		Remote:      client,
		Channels:    channels,
		Dispatcher:  dispatcher,
		Coordinator: optimistic.NewCoordinator(store, optimistic.WithPolicy(policy)),
		Confirmer:   confirm,
	}

	a := &app{
		cfg:        cfg,
		opts:       opts,
		log:        log,
		store:      store,
		channels:   channels,
		dispatcher: dispatcher,
	}

	switch opts.role {
	case order.ActorCustomer:
		if a.customer, err = session.NewCustomer(cfg.MessID, opts.tableID, deps); err == nil {
			a.current = a.customer
		}
	default:
		if a.admin, err = session.NewAdmin(cfg.MessID, deps); err == nil {
			a.current = a.admin
		}
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.unsubscribe = store.Subscribe(a.logChange)
	return a, nil
}

func (a *app) logChange(c cache.Change) {
	a.log.Info("cache updated",
		zap.Stringer("key", c.Key),
		zap.Bool("present", c.Present),
		zap.Bool("stale", c.Stale),
	)
}

// follow joins the room for the role: the mess room for admins, the
// followed order (or the table's active one) for customers.
func (a *app) follow(ctx context.Context) error {
	if a.admin != nil {
		return a.admin.Follow(ctx)
	}

	orderID := a.opts.orderID
	if orderID == "" {
		popup, err := a.customer.Popup(ctx)
		if err != nil {
			return err
		}
		if popup == nil {
			return ErrNothingToFollow
		}
		orderID = popup.ID
	}
	return a.customer.Follow(ctx, orderID)
}

// perform runs the one-shot action requested on the command line.
func (a *app) perform(ctx context.Context) error {
	id := a.opts.orderID

	switch a.opts.action {
	case actionCancelItem:
		return a.current.CancelItem(ctx, id, a.opts.itemID)
	case actionCancelOrder:
		if a.customer != nil {
			return a.customer.CancelOrder(ctx, id)
		}
		return a.admin.ChangeStatus(ctx, id, order.StatusCancelled)
	}

	if a.admin == nil {
		return fmt.Errorf("%w: %s", order.ErrForbidden, a.opts.action)
	}
	switch a.opts.action {
	case actionStatus:
		return a.admin.ChangeStatus(ctx, id, a.opts.status)
	case actionComplete:
		return a.admin.Complete(ctx, id)
	case actionMarkPaid:
		return a.admin.MarkPaid(ctx, id)
	}
	return fmt.Errorf("unknown action %q", a.opts.action)
}

func (a *app) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.current != nil {
		a.current.Close()
	}
	a.dispatcher.Close()
	a.channels.Close()
	a.store.Close()
}

// run follows the role's room and either performs the requested action
// or keeps watching until ctx is done.
func run(ctx context.Context, cfg *config.Config, opts *options, transport http.RoundTripper) error {
	var confirm session.Confirmer = promptConfirmer{in: os.Stdin, out: os.Stderr}
	if opts.yes {
		confirm = session.ConfirmFunc(func(context.Context, string) bool { return true })
	}

	a, err := newApp(cfg, opts, transport, confirm)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.action != actionWatch {
		if err := a.perform(ctx); err != nil {
			return fmt.Errorf("%s: %w", opts.action, err)
		}
		a.log.Info("action applied", zap.String("action", opts.action), zap.String("order_id", opts.orderID))
		return nil
	}

	if err := a.follow(ctx); err != nil {
		// the handle keeps reconnecting; only a missing order is fatal
		if errors.Is(err, ErrNothingToFollow) {
			return err
		}
		a.log.Warn("push channel unavailable, retrying in background", zap.Error(err))
	}
	a.log.Info("watching orders", zap.String("role", string(opts.role)), zap.String("mess_id", cfg.MessID))

	<-ctx.Done()
	a.log.Info("sync stats", metrics.Default.Field())
	return nil
}

// promptConfirmer asks on the terminal.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p promptConfirmer) Confirm(_ context.Context, prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
