package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/pflag"

	"mess-ordersync/internal/config"
	"mess-ordersync/internal/order"
)

const (
	actionWatch       = "watch"
	actionCancelItem  = "cancel-item"
	actionCancelOrder = "cancel-order"
	actionStatus      = "status"
	actionComplete    = "complete"
	actionMarkPaid    = "mark-paid"
)

var actions = []string{actionWatch, actionCancelItem, actionCancelOrder, actionStatus, actionComplete, actionMarkPaid}

type options struct {
	role    order.Actor
	tableID string
	orderID string
	action  string
	itemID  string
	status  order.Status
	yes     bool
}

// parseFlags reads the command line into opts and overrides cfg with any
// connection flag that was set, then validates the result.
func parseFlags(args []string, cfg *config.Config) (*options, error) {
	fs := pflag.NewFlagSet("ordersync", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts   options
		role   string
		status string
	)
	fs.StringVar(&role, "role", string(order.ActorAdmin), "session role: admin or customer")
	fs.StringVar(&opts.tableID, "table", "", "table id (customer)")
	fs.StringVarP(&opts.orderID, "order", "o", "", "order id to follow or act on")
	fs.StringVarP(&opts.action, "action", "a", actionWatch, "one of "+fmt.Sprint(actions))
	fs.StringVar(&opts.itemID, "item", "", "item id for cancel-item")
	fs.StringVar(&status, "status", "", "target status for the status action")
	fs.BoolVarP(&opts.yes, "yes", "y", false, "confirm cascading cancellations without asking")

	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "order service base URL")
	fs.StringVar(&cfg.PushURL, "push", cfg.PushURL, "push channel URL")
	fs.StringVar(&cfg.MessSlug, "mess", cfg.MessSlug, "mess slug used in API paths")
	fs.StringVar(&cfg.MessID, "mess-id", cfg.MessID, "mess id used for rooms and cache keys")
	fs.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "access token")
	fs.StringVar(&cfg.MutationPolicy, "policy", cfg.MutationPolicy, "mutation policy: serialize or compose")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts.role = order.Actor(role)
	opts.status = order.Status(status)

	switch opts.role {
	case order.ActorAdmin, order.ActorCustomer:
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
	if !slices.Contains(actions, opts.action) {
		return nil, fmt.Errorf("unknown action %q", opts.action)
	}
	if opts.action != actionWatch && opts.orderID == "" {
		return nil, fmt.Errorf("--order is required for %s", opts.action)
	}
	if opts.action == actionCancelItem && opts.itemID == "" {
		return nil, fmt.Errorf("--item is required for %s", opts.action)
	}
	if opts.action == actionStatus && !opts.status.Valid() {
		return nil, fmt.Errorf("%w: %q", order.ErrInvalidStatus, status)
	}
	if opts.role == order.ActorCustomer && opts.tableID == "" {
		return nil, fmt.Errorf("--table is required for customers")
	}
	return &opts, nil
}
