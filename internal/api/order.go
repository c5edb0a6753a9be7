package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"mess-ordersync/internal/order"
)

// ----------------- Writes -----------------

// CancelItem cancels one item through the admin or the customer endpoint.
func (c *Client) CancelItem(ctx context.Context, actor order.Actor, orderID, itemID string) error {
	return c.do(ctx, http.MethodPatch,
		c.path("orders", orderID, "items", itemID, string(actor), "cancel"), nil, nil, nil)
}

// ChangeStatus moves the order to status. markPaid folds the payment into
// the same call, which is how an unpaid order is completed.
func (c *Client) ChangeStatus(ctx context.Context, orderID string, status order.Status, markPaid bool) error {
	q := url.Values{"status": {string(status)}}
	if markPaid {
		q.Set("mark_paid", strconv.FormatBool(true))
	}
	return c.do(ctx, http.MethodPatch, c.path("orders", orderID, "status"), q, nil, nil)
}

// CancelOrder is the customer's whole-order cancellation.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPatch, c.path("orders", orderID, "customer", "cancel"), nil, nil, nil)
}

func (c *Client) MarkPaid(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodPost, c.path("orders", orderID, "mark-paid"), nil, nil, nil)
}

type createOrderRequest struct {
	TableID string          `json:"table_id"`
	Items   []order.NewItem `json:"items"`
}

func (c *Client) CreateOrder(ctx context.Context, tableID string, items []order.NewItem) (*order.Created, error) {
	var out order.Created
	body := createOrderRequest{TableID: tableID, Items: items}
	if err := c.do(ctx, http.MethodPost, c.path("orders"), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type addItemsRequest struct {
	Items []order.NewItem `json:"items"`
}

func (c *Client) AddItems(ctx context.Context, orderID string, items []order.NewItem) error {
	return c.do(ctx, http.MethodPost, c.path("orders", orderID, "items"), nil, addItemsRequest{Items: items}, nil)
}

// ----------------- Reads -----------------

// Order loads the detail with items; admins and customers use different views.
func (c *Client) Order(ctx context.Context, actor order.Actor, orderID string) (*order.Order, error) {
	endpoint := c.path("orders", orderID, "items")
	if actor == order.ActorAdmin {
		endpoint = c.path("orders", orderID, "admin", "items")
	}

	var out order.Order
	if err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &out); err != nil {
		return nil, err
	}
	order.Derive(&out)
	return &out, nil
}

// IncompleteOrders lists every order of the mess that is not completed.
func (c *Client) IncompleteOrders(ctx context.Context) ([]order.ListEntry, error) {
	out := []order.ListEntry{}
	if err := c.do(ctx, http.MethodGet, c.path("orders", "incomplete"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Popup returns the active order of a table, or nil when the caller has
// none (the service answers 401 in that case).
func (c *Client) Popup(ctx context.Context, tableID string) (*order.Popup, error) {
	var out order.Popup
	q := url.Values{"table_id": {tableID}}
	err := c.do(ctx, http.MethodGet, c.path("orders", "popup"), q, nil, &out)
	switch {
	case IsUnauthorized(err):
		return nil, nil
	case err != nil:
		return nil, err
	case out.ID == "":
		return nil, nil
	}
	return &out, nil
}

func (c *Client) MyOrders(ctx context.Context) ([]order.ListEntry, error) {
	out := []order.ListEntry{}
	if err := c.do(ctx, http.MethodGet, c.path("orders", "my-orders"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Transaction(ctx context.Context, transactionID string) (*order.Transaction, error) {
	var out order.Transaction
	if err := c.do(ctx, http.MethodGet, c.path("orders", "transactions", transactionID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
