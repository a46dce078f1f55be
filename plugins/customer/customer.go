// Package customer stores billing customers and optionally mirrors them to
// a payment provider.
package customer

import (
	"net/http"
	"time"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

const (
	ID    = "customer"
	Model = "customer"
)

// Settings is the plugin's config block.
type Settings struct {
	// Provider is the provider id to mirror customers to. Empty keeps
	// customers local.
	Provider string `json:"provider"`
}

// Customer is the typed form of a customer record.
type Customer struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name,omitempty"`
	ProviderCustomerID string    `json:"providerCustomerId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// FromRecord converts a stored record.
func FromRecord(r storage.Record) *Customer {
	if r == nil {
		return nil
	}
	return &Customer{
		ID:                 r.ID(),
		Email:              r.String("email"),
		Name:               r.String("name"),
		ProviderCustomerID: r.String("providerCustomerId"),
		CreatedAt:          r.Time("createdAt"),
	}
}

type CreateCustomerInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"max=200"`
}

type ListCustomersInput struct {
	Where  []condition.Where `json:"where" validate:"dive"`
	Limit  int               `json:"limit" default:"50" validate:"gte=0,lte=500"`
	Offset int               `json:"offset" validate:"gte=0"`
}

// Definition is the customer table.
func Definition() schema.Definition {
	return schema.Definition{
		Model: {
			"email":              {Type: schema.TypeString, Required: true, Unique: true},
			"name":               {Type: schema.TypeString},
			"providerCustomerId": {Type: schema.TypeString},
			"createdAt":          {Type: schema.TypeDate, Default: storage.DefaultNow},
		},
	}
}

// New returns the customer plugin. Other plugins list the returned
// descriptor as a dependency.
func New() *plugin.Descriptor {
	return &plugin.Descriptor{ID: ID, Init: initialize}
}

func initialize(pc *plugin.Context) (*plugin.Result, error) {
	var settings Settings
	if err := pc.Config.Bind(&settings); err != nil {
		return nil, err
	}

	svc := NewService(pc.DB, pc.WithExtras().Providers, settings, pc.Logger)
	h := &handlers{svc: svc}

	return &plugin.Result{
		Schema: Definition(),
		Methods: map[string]plugin.Method{
			"createCustomer": plugin.Typed(svc.CreateCustomer),
			"getCustomer":    plugin.Typed(svc.GetCustomer),
			"listCustomers":  plugin.Typed(svc.ListCustomers),
		},
		Endpoints: []plugin.Endpoint{
			{Name: "createCustomer", Method: http.MethodPost, Path: "/customers", Handler: h.create},
			{Name: "getCustomer", Method: http.MethodGet, Path: "/customers/{id}", Handler: h.get},
			{Name: "listCustomers", Method: http.MethodGet, Path: "/customers", Handler: h.list},
		},
	}, nil
}
