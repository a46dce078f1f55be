package stripe_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leeforge/billing/billing"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/plugins/stripe"
	"github.com/leeforge/billing/plugins/stripe/stripetest"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/storage/memory"
	"github.com/leeforge/billing/testkit"
)

func TestCapabilityPluginsMergeIntoOneProvider(t *testing.T) {
	client := stripetest.NewClient()
	b := testkit.NewBilling(t, stripe.SubscriptionPlugin(client), stripe.CheckoutPlugin(client))

	p, err := b.Providers().Provider(stripe.ProviderID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cancelSubscription", "createCheckoutSession", "createSubscription"}, p.Methods())
	assert.Equal(t, []provider.Capability{provider.CapabilitySubscription, provider.CapabilityCheckoutSession}, p.Capabilities())
	capability, ok := p.CapabilityOf("createCheckoutSession")
	require.True(t, ok)
	assert.Equal(t, provider.CapabilityCheckoutSession, capability)
}

func TestNewCombinesEveryCapability(t *testing.T) {
	b := testkit.NewBilling(t, stripe.New(stripetest.NewClient()))

	assert.Equal(t, []string{stripe.SubscriptionPluginID, stripe.CheckoutPluginID, stripe.ID}, b.Order())
	p, err := b.Providers().Provider(stripe.ProviderID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cancelSubscription", "createCheckoutSession", "createCustomer", "createSubscription", "listInvoices",
	}, p.Methods())
	assert.True(t, p.HasCapability(provider.CapabilityInvoice))
}

func TestProviderMethodsCallClient(t *testing.T) {
	client := stripetest.NewClient()
	client.Prices["pro"] = decimal.RequireFromString("12.50")
	b := testkit.NewBilling(t, stripe.New(client))
	ctx := context.Background()
	table := b.Providers()

	out, err := table.Call(ctx, stripe.ProviderID, "createCustomer", map[string]any{"email": "a@x.io"})
	require.NoError(t, err)
	cus := out.(*stripe.Customer)
	assert.Equal(t, "a@x.io", cus.Email)

	out, err = table.Call(ctx, stripe.ProviderID, "createSubscription",
		map[string]any{"customerId": cus.ID, "plan": "pro", "quantity": 2})
	require.NoError(t, err)
	sub := out.(*stripe.Subscription)
	assert.Equal(t, "active", sub.Status)

	// Quantity defaults to one.
	out, err = table.Call(ctx, stripe.ProviderID, "createSubscription",
		stripe.SubscriptionParams{CustomerID: cus.ID, Plan: "pro"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.(*stripe.Subscription).Quantity)

	out, err = table.Call(ctx, stripe.ProviderID, "listInvoices", stripe.InvoiceListParams{CustomerID: cus.ID})
	require.NoError(t, err)
	invoices := out.([]stripe.Invoice)
	require.Len(t, invoices, 2)
	assert.True(t, invoices[0].AmountDue.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, invoices[1].AmountDue.Equal(decimal.RequireFromString("25")))

	out, err = table.Call(ctx, stripe.ProviderID, "cancelSubscription", stripe.CancelParams{SubscriptionID: sub.ID, AtPeriodEnd: true})
	require.NoError(t, err)
	assert.True(t, out.(*stripe.Subscription).CancelAtPeriodEnd)

	out, err = table.Call(ctx, stripe.ProviderID, "createCheckoutSession", stripe.CheckoutParams{
		CustomerID: cus.ID, Plan: "pro", SuccessURL: "https://app.example.com/done",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.(*stripe.CheckoutSession).URL)

	assert.Equal(t, []string{
		"CreateCustomer", "CreateSubscription", "CreateSubscription", "ListInvoices",
		"CancelSubscription", "CreateCheckoutSession",
	}, client.Calls())
}

func TestProviderMethodErrors(t *testing.T) {
	client := stripetest.NewClient()
	b := testkit.NewBilling(t, stripe.New(client))
	ctx := context.Background()
	table := b.Providers()

	_, err := table.Call(ctx, stripe.ProviderID, "createSubscription", map[string]any{"customerId": "cus_1"})
	assert.True(t, errors.IsValidation(err), "got %v", err)

	_, err = table.Call(ctx, stripe.ProviderID, "createCheckoutSession", stripe.CheckoutParams{
		CustomerID: "cus_1", Plan: "pro", SuccessURL: "not a url",
	})
	assert.True(t, errors.IsValidation(err), "got %v", err)

	_, err = table.Call(ctx, stripe.ProviderID, "cancelSubscription", stripe.CancelParams{SubscriptionID: "sub_404"})
	assert.True(t, errors.IsNotFound(err), "got %v", err)

	down := fmt.Errorf("stripe unavailable")
	client.FailWith("CreateCustomer", down)
	_, err = table.Call(ctx, stripe.ProviderID, "createCustomer", stripe.CustomerParams{Email: "a@x.io"})
	assert.ErrorIs(t, err, down)

	_, err = table.Call(ctx, stripe.ProviderID, "refund", nil)
	assert.True(t, errors.IsProviderNotFound(err), "got %v", err)
}

func TestNilClientFailsConstruction(t *testing.T) {
	for _, d := range []*plugin.Descriptor{stripe.New(nil), stripe.CheckoutPlugin(nil)} {
		b, err := billing.New(context.Background(), billing.Config{Plugins: []*plugin.Descriptor{d}},
			billing.WithAdapter(memory.New()))
		assert.Nil(t, b)
		assert.True(t, errors.IsConfiguration(err), "got %v", err)
	}
}

func TestCancelHookIsLogged(t *testing.T) {
	logger, logs := testkit.ObservedLogger(zap.InfoLevel)
	b := testkit.Build(t, billing.Config{Plugins: []*plugin.Descriptor{stripe.New(stripetest.NewClient())}},
		billing.WithLogger(logger))

	b.Hooks().Run(context.Background(), stripe.CancelHook, &hook.Context{Model: "subscription"})

	entries := logs.FilterMessage("subscription canceled").FilterField(logging.Provider(stripe.ProviderID)).All()
	require.Len(t, entries, 1)
}
