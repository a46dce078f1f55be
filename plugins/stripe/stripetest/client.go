// Package stripetest provides an in-memory stripe.Client.
package stripetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/plugins/stripe"
)

// Client keeps customers, subscriptions and invoices in memory. Each new
// subscription issues one open invoice priced from Prices.
type Client struct {
	// Prices maps a plan to its unit price. Unknown plans cost zero.
	Prices   map[string]decimal.Decimal
	Currency string
	// Now replaces time.Now when set.
	Now func() time.Time

	mu            sync.Mutex
	seq           int
	customers     map[string]*stripe.Customer
	subscriptions map[string]*stripe.Subscription
	invoices      []stripe.Invoice
	calls         []string
	failures      map[string]error
}

var _ stripe.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		Prices:        make(map[string]decimal.Decimal),
		Currency:      "usd",
		customers:     make(map[string]*stripe.Customer),
		subscriptions: make(map[string]*stripe.Subscription),
		failures:      make(map[string]error),
	}
}

// FailWith makes every later call to method return err.
func (c *Client) FailWith(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[method] = err
}

// Calls lists the client methods invoked so far, in order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Subscription returns a stored subscription.
func (c *Client) Subscription(id string) (stripe.Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.subscriptions[id]
	if !ok {
		return stripe.Subscription{}, false
	}
	return *s, true
}

// begin records the call and returns any configured failure. c.mu must be
// held.
func (c *Client) begin(method string) error {
	c.calls = append(c.calls, method)
	return c.failures[method]
}

func (c *Client) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s_%d", prefix, c.seq)
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Client) CreateCustomer(_ context.Context, params stripe.CustomerParams) (*stripe.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CreateCustomer"); err != nil {
		return nil, err
	}
	cus := &stripe.Customer{ID: c.nextID("cus"), Email: params.Email, Name: params.Name}
	c.customers[cus.ID] = cus
	cp := *cus
	return &cp, nil
}

func (c *Client) CreateSubscription(_ context.Context, params stripe.SubscriptionParams) (*stripe.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CreateSubscription"); err != nil {
		return nil, err
	}
	now := c.now()
	sub := &stripe.Subscription{
		ID:               c.nextID("sub"),
		CustomerID:       params.CustomerID,
		Plan:             params.Plan,
		Quantity:         params.Quantity,
		Status:           "active",
		CurrentPeriodEnd: now.AddDate(0, 1, 0),
	}
	c.subscriptions[sub.ID] = sub
	c.invoices = append(c.invoices, stripe.Invoice{
		ID:         c.nextID("in"),
		CustomerID: params.CustomerID,
		AmountDue:  c.Prices[params.Plan].Mul(decimal.NewFromInt(params.Quantity)),
		Currency:   c.Currency,
		Status:     "open",
		Created:    now,
	})
	cp := *sub
	return &cp, nil
}

func (c *Client) CancelSubscription(_ context.Context, params stripe.CancelParams) (*stripe.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CancelSubscription"); err != nil {
		return nil, err
	}
	sub, ok := c.subscriptions[params.SubscriptionID]
	if !ok {
		return nil, errors.NewNotFound("stripe subscription", params.SubscriptionID)
	}
	if params.AtPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.Status = "canceled"
	}
	cp := *sub
	return &cp, nil
}

func (c *Client) CreateCheckoutSession(_ context.Context, params stripe.CheckoutParams) (*stripe.CheckoutSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("CreateCheckoutSession"); err != nil {
		return nil, err
	}
	id := c.nextID("cs")
	return &stripe.CheckoutSession{
		ID:         id,
		URL:        "https://checkout.stripe.test/" + id,
		CustomerID: params.CustomerID,
		Plan:       params.Plan,
	}, nil
}

// ListInvoices returns the customer's invoices, newest first.
func (c *Client) ListInvoices(_ context.Context, params stripe.InvoiceListParams) ([]stripe.Invoice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("ListInvoices"); err != nil {
		return nil, err
	}
	var out []stripe.Invoice
	for i := len(c.invoices) - 1; i >= 0 && len(out) < params.Limit; i-- {
		if c.invoices[i].CustomerID == params.CustomerID {
			out = append(out, c.invoices[i])
		}
	}
	return out, nil
}
