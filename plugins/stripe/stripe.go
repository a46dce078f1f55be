// Package stripe contributes the "stripe" provider. Each capability comes
// from its own plugin so applications can compose only what they use.
package stripe

import (
	"context"

	"github.com/creasty/defaults"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/http/binding"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/provider"
)

const (
	ProviderID = "stripe"
	ID         = "stripe"

	SubscriptionPluginID = "stripe-subscription"
	CheckoutPluginID     = "stripe-checkout"

	// CancelHook runs after a subscription was canceled at the provider.
	CancelHook = "afterSubscriptionCancel"
)

// SubscriptionPlugin contributes createSubscription and cancelSubscription.
func SubscriptionPlugin(client Client) *plugin.Descriptor {
	return &plugin.Descriptor{
		ID: SubscriptionPluginID,
		Init: contribute(client, provider.CapabilitySubscription, func(c Client) map[string]provider.Method {
			return map[string]provider.Method{
				"createSubscription": method(c.CreateSubscription),
				"cancelSubscription": method(c.CancelSubscription),
			}
		}),
	}
}

// CheckoutPlugin contributes createCheckoutSession.
func CheckoutPlugin(client Client) *plugin.Descriptor {
	return &plugin.Descriptor{
		ID: CheckoutPluginID,
		Init: contribute(client, provider.CapabilityCheckoutSession, func(c Client) map[string]provider.Method {
			return map[string]provider.Method{
				"createCheckoutSession": method(c.CreateCheckoutSession),
			}
		}),
	}
}

// New returns the full stripe plugin: the subscription and checkout plugins
// as dependencies, plus the customer and invoice capabilities.
func New(client Client) *plugin.Descriptor {
	return &plugin.Descriptor{
		ID:           ID,
		Dependencies: []*plugin.Descriptor{SubscriptionPlugin(client), CheckoutPlugin(client)},
		Init: func(pc *plugin.Context) (*plugin.Result, error) {
			if client == nil {
				return nil, errors.NewConfiguration("stripe client is required", ID)
			}
			logger := pc.Logger
			return &plugin.Result{
				Providers: []provider.Contribution{
					{
						ProviderID: ProviderID,
						Capability: provider.CapabilityCustomer,
						Methods:    map[string]provider.Method{"createCustomer": method(client.CreateCustomer)},
					},
					{
						ProviderID: ProviderID,
						Capability: provider.CapabilityInvoice,
						Methods:    map[string]provider.Method{"listInvoices": method(client.ListInvoices)},
					},
				},
				Hooks: []hook.Binding{{
					Name: CancelHook,
					Handler: func(_ context.Context, hc *hook.Context) error {
						logger.Info("subscription canceled",
							logging.Provider(ProviderID),
							logging.Model(hc.Model),
						)
						return nil
					},
				}},
			}, nil
		},
	}
}

func contribute(client Client, capability provider.Capability, methods func(Client) map[string]provider.Method) plugin.InitFunc {
	return func(*plugin.Context) (*plugin.Result, error) {
		if client == nil {
			return nil, errors.NewConfiguration("stripe client is required", ProviderID)
		}
		return &plugin.Result{Providers: []provider.Contribution{{
			ProviderID: ProviderID,
			Capability: capability,
			Methods:    methods(client),
		}}}, nil
	}
}

// method adapts a client call: the input is decoded into P, defaulted and
// validated before the client sees it.
func method[P, R any](call func(context.Context, P) (R, error)) provider.Method {
	return provider.Method(plugin.Typed(func(ctx context.Context, params P) (R, error) {
		var zero R
		if err := defaults.Set(&params); err != nil {
			return zero, errors.NewInternal("stripe: apply defaults").WithInnerError(err)
		}
		if err := binding.Struct(&params); err != nil {
			return zero, binding.AsAppError(err)
		}
		return call(ctx, params)
	}))
}
