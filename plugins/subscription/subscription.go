// Package subscription manages plan subscriptions through a payment
// provider and mirrors their state locally.
package subscription

import (
	"net/http"
	"time"

	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/plugins/customer"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

const (
	ID    = "subscription"
	Model = "subscription"

	// CancelHook runs after a subscription is canceled.
	CancelHook = "afterSubscriptionCancel"

	DefaultProvider = "stripe"
)

const (
	StatusIncomplete = "incomplete"
	StatusTrialing   = "trialing"
	StatusActive     = "active"
	StatusCanceled   = "canceled"
)

// Settings is the plugin's config block.
type Settings struct {
	// Provider handles subscription and checkout calls.
	Provider string `json:"provider"`
}

type Subscription struct {
	ID                     string    `json:"id"`
	CustomerID             string    `json:"customerId"`
	Plan                   string    `json:"plan"`
	Status                 string    `json:"status"`
	Quantity               int       `json:"quantity"`
	ProviderSubscriptionID string    `json:"providerSubscriptionId,omitempty"`
	CancelAtPeriodEnd      bool      `json:"cancelAtPeriodEnd"`
	PeriodEnd              time.Time `json:"periodEnd"`
	CreatedAt              time.Time `json:"createdAt"`
}

func fromRecord(r storage.Record) *Subscription {
	if r == nil {
		return nil
	}
	return &Subscription{
		ID:                     r.ID(),
		CustomerID:             r.String("customerId"),
		Plan:                   r.String("plan"),
		Status:                 r.String("status"),
		Quantity:               int(r.Float("quantity")),
		ProviderSubscriptionID: r.String("providerSubscriptionId"),
		CancelAtPeriodEnd:      r.Bool("cancelAtPeriodEnd"),
		PeriodEnd:              r.Time("periodEnd"),
		CreatedAt:              r.Time("createdAt"),
	}
}

type CreateSubscriptionInput struct {
	CustomerID string `json:"customerId" validate:"required"`
	Plan       string `json:"plan" validate:"required"`
	Quantity   int    `json:"quantity" default:"1" validate:"gte=1"`
}

type CancelSubscriptionInput struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	AtPeriodEnd    bool   `json:"atPeriodEnd"`
}

type ListActiveInput struct {
	CustomerID string `json:"customerId"`
}

type CheckoutInput struct {
	CustomerID string `json:"customerId" validate:"required"`
	Plan       string `json:"plan" validate:"required"`
	Quantity   int    `json:"quantity" default:"1" validate:"gte=1"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl,omitempty" validate:"omitempty,url"`
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Definition is the subscription table plus the status column it adds to
// customers.
func Definition() schema.Definition {
	return schema.Definition{
		Model: {
			"customerId": {
				Type:       schema.TypeString,
				Required:   true,
				References: &schema.Reference{Model: customer.Model, Field: schema.IDField},
			},
			"plan":                   {Type: schema.TypeString, Required: true},
			"status":                 {Type: schema.TypeString, Required: true, Default: StatusIncomplete},
			"quantity":               {Type: schema.TypeNumber, Default: 1},
			"providerSubscriptionId": {Type: schema.TypeString, Unique: true},
			"cancelAtPeriodEnd":      {Type: schema.TypeBoolean, Default: false},
			"periodEnd":              {Type: schema.TypeDate},
			"createdAt":              {Type: schema.TypeDate, Default: storage.DefaultNow},
		},
		customer.Model: {
			"subscriptionStatus": {Type: schema.TypeString},
		},
	}
}

type options struct {
	provider string
}

type Option func(*options)

// WithProvider names the required provider. The provider setting still
// overrides which provider receives calls.
func WithProvider(id string) Option {
	return func(o *options) { o.provider = id }
}

// New returns the subscription plugin depending on customerPlugin; nil
// creates one.
func New(customerPlugin *plugin.Descriptor, opts ...Option) *plugin.Descriptor {
	o := &options{provider: DefaultProvider}
	for _, opt := range opts {
		opt(o)
	}
	if customerPlugin == nil {
		customerPlugin = customer.New()
	}
	return &plugin.Descriptor{
		ID:                ID,
		Dependencies:      []*plugin.Descriptor{customerPlugin},
		RequiredProviders: []string{o.provider},
		Init: func(pc *plugin.Context) (*plugin.Result, error) {
			return initialize(pc, o)
		},
	}
}

func initialize(pc *plugin.Context, o *options) (*plugin.Result, error) {
	settings := Settings{Provider: o.provider}
	if err := pc.Config.Bind(&settings); err != nil {
		return nil, err
	}
	if settings.Provider == "" {
		settings.Provider = o.provider
	}

	svc := NewService(pc.DB, pc.WithExtras().Providers, settings, pc.Logger)
	h := &handlers{svc: svc}

	return &plugin.Result{
		Schema: Definition(),
		Methods: map[string]plugin.Method{
			"createSubscription":      plugin.Typed(svc.CreateSubscription),
			"cancelSubscription":      plugin.Typed(svc.CancelSubscription),
			"listActiveSubscriptions": plugin.Typed(svc.ListActive),
			"createCheckoutSession":   plugin.Typed(svc.CreateCheckoutSession),
		},
		Endpoints: []plugin.Endpoint{
			{Name: "createSubscription", Method: http.MethodPost, Path: "/subscriptions", Handler: h.create},
			{Name: "cancelSubscription", Method: http.MethodPost, Path: "/subscriptions/{id}/cancel", Handler: h.cancel},
			{Name: "listActiveSubscriptions", Method: http.MethodGet, Path: "/subscriptions", Handler: h.listActive},
			{Name: "createCheckoutSession", Method: http.MethodPost, Path: "/checkout-sessions", Handler: h.checkout},
		},
	}, nil
}
