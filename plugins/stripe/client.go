package stripe

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Client is the subset of the Stripe API the plugins call. Callers supply
// the implementation; stripetest has an in-memory one.
type Client interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	CancelSubscription(ctx context.Context, params CancelParams) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	ListInvoices(ctx context.Context, params InvoiceListParams) ([]Invoice, error)
}

type CustomerParams struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

type SubscriptionParams struct {
	CustomerID string `json:"customerId" validate:"required"`
	Plan       string `json:"plan" validate:"required"`
	Quantity   int64  `json:"quantity" default:"1" validate:"gte=1"`
}

type CancelParams struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	// AtPeriodEnd keeps the subscription active until the period ends.
	AtPeriodEnd bool `json:"atPeriodEnd"`
}

type CheckoutParams struct {
	CustomerID string `json:"customerId" validate:"required"`
	Plan       string `json:"plan" validate:"required"`
	Quantity   int64  `json:"quantity" default:"1" validate:"gte=1"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"omitempty,url"`
}

type InvoiceListParams struct {
	CustomerID string `json:"customerId" validate:"required"`
	Limit      int    `json:"limit" default:"10" validate:"gte=1,lte=100"`
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type Subscription struct {
	ID                string    `json:"id"`
	CustomerID        string    `json:"customerId"`
	Plan              string    `json:"plan"`
	Quantity          int64     `json:"quantity"`
	Status            string    `json:"status"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  time.Time `json:"currentPeriodEnd"`
}

type CheckoutSession struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	CustomerID string `json:"customerId"`
	Plan       string `json:"plan"`
}

type Invoice struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	AmountDue  decimal.Decimal `json:"amountDue"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	Created    time.Time       `json:"created"`
}
