// Package usage records metered usage per customer and feature.
package usage

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/plugins/customer"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

const (
	ID    = "usage"
	Model = "usage"
)

// Record is one usage entry.
type Record struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Feature    string          `json:"feature"`
	Quantity   decimal.Decimal `json:"quantity"`
	RecordedAt time.Time       `json:"recordedAt"`
}

func fromRecord(r storage.Record) *Record {
	return &Record{
		ID:         r.ID(),
		CustomerID: r.String("customerId"),
		Feature:    r.String("feature"),
		Quantity:   decimal.NewFromFloat(r.Float("quantity")),
		RecordedAt: r.Time("recordedAt"),
	}
}

type RecordUsageInput struct {
	CustomerID string          `json:"customerId" validate:"required"`
	Feature    string          `json:"feature" validate:"required,max=100"`
	Quantity   decimal.Decimal `json:"quantity"`
	RecordedAt *time.Time      `json:"recordedAt,omitempty"`
}

type GetUsageInput struct {
	CustomerID string     `json:"customerId" validate:"required"`
	Feature    string     `json:"feature,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
}

// Summary totals a customer's usage.
type Summary struct {
	CustomerID string                     `json:"customerId"`
	Total      decimal.Decimal            `json:"total"`
	Count      int                        `json:"count"`
	Features   map[string]decimal.Decimal `json:"features"`
}

func Definition() schema.Definition {
	return schema.Definition{
		Model: {
			"customerId": {
				Type:       schema.TypeString,
				Required:   true,
				References: &schema.Reference{Model: customer.Model, Field: schema.IDField},
			},
			"feature":    {Type: schema.TypeString, Required: true},
			"quantity":   {Type: schema.TypeNumber, Required: true},
			"recordedAt": {Type: schema.TypeDate, Default: storage.DefaultNow},
		},
	}
}

// New returns the usage plugin. customerPlugin must be the descriptor the
// caller composes; nil creates one.
func New(customerPlugin *plugin.Descriptor) *plugin.Descriptor {
	if customerPlugin == nil {
		customerPlugin = customer.New()
	}
	return &plugin.Descriptor{
		ID:           ID,
		Dependencies: []*plugin.Descriptor{customerPlugin},
		Init:         initialize,
	}
}

func initialize(pc *plugin.Context) (*plugin.Result, error) {
	svc := NewService(pc.DB, pc.Logger)
	h := &handlers{svc: svc}

	return &plugin.Result{
		Schema: Definition(),
		Methods: map[string]plugin.Method{
			"recordUsage": plugin.Typed(svc.RecordUsage),
			"getUsage":    plugin.Typed(svc.GetUsage),
		},
		Hooks: []hook.Binding{
			{Name: storage.HookName(storage.PhaseBefore, customer.Model, storage.ActionDelete), Handler: svc.purgeCustomers},
		},
		Endpoints: []plugin.Endpoint{
			{Name: "recordUsage", Method: http.MethodPost, Path: "/usage", Handler: h.record},
			{Name: "getUsage", Method: http.MethodGet, Path: "/usage/{customerId}", Handler: h.get},
		},
	}, nil
}
