package subscription_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/billing"
	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/plugins/customer"
	"github.com/leeforge/billing/plugins/stripe"
	"github.com/leeforge/billing/plugins/stripe/stripetest"
	"github.com/leeforge/billing/plugins/subscription"
	"github.com/leeforge/billing/storage/memory"
	"github.com/leeforge/billing/testkit"
)

func setup(t *testing.T, opts ...billing.Option) (*billing.Billing, *stripetest.Client) {
	t.Helper()
	client := stripetest.NewClient()
	c := customer.New()
	b := testkit.Build(t, billing.Config{Plugins: []*plugin.Descriptor{
		subscription.New(c), c, stripe.New(client),
	}}, opts...)
	return b, client
}

func createCustomer(t *testing.T, b *billing.Billing, email string) string {
	t.Helper()
	c, err := plugin.Invoke[*customer.Customer](context.Background(), b.Methods(), customer.ID, "createCustomer",
		customer.CreateCustomerInput{Email: email})
	require.NoError(t, err)
	return c.ID
}

func subscribe(t *testing.T, b *billing.Billing, customerID, plan string) *subscription.Subscription {
	t.Helper()
	sub, err := plugin.Invoke[*subscription.Subscription](context.Background(), b.Methods(), subscription.ID,
		"createSubscription", subscription.CreateSubscriptionInput{CustomerID: customerID, Plan: plan})
	require.NoError(t, err)
	return sub
}

func cancel(b *billing.Billing, id string, atPeriodEnd bool) (*subscription.Subscription, error) {
	return plugin.Invoke[*subscription.Subscription](context.Background(), b.Methods(), subscription.ID,
		"cancelSubscription", subscription.CancelSubscriptionInput{SubscriptionID: id, AtPeriodEnd: atPeriodEnd})
}

func customerStatus(t *testing.T, b *billing.Billing, id string) string {
	t.Helper()
	rec, err := b.DB().FindOne(context.Background(), customer.Model, condition.Eq("id", id))
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.String("subscriptionStatus")
}

func TestCreateSubscription(t *testing.T) {
	b, client := setup(t)
	customerID := createCustomer(t, b, "a@x.io")

	sub := subscribe(t, b, customerID, "pro")
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, 1, sub.Quantity)
	assert.False(t, sub.PeriodEnd.IsZero())

	remote, ok := client.Subscription(sub.ProviderSubscriptionID)
	require.True(t, ok)
	// Without mirroring the local id is sent.
	assert.Equal(t, customerID, remote.CustomerID)
	assert.Equal(t, subscription.StatusActive, customerStatus(t, b, customerID))
}

func TestCreateSubscriptionUsesMirroredCustomer(t *testing.T) {
	b, client := setup(t, billing.WithPluginConfig(func(id string) plugin.ConfigProvider {
		if id != customer.ID {
			return plugin.EmptyConfig()
		}
		return plugin.NewMapConfigProvider(map[string]any{"provider": stripe.ProviderID})
	}))
	customerID := createCustomer(t, b, "a@x.io")

	sub := subscribe(t, b, customerID, "pro")
	remote, ok := client.Subscription(sub.ProviderSubscriptionID)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(remote.CustomerID, "cus_"), remote.CustomerID)
	assert.Equal(t, []string{"CreateCustomer", "CreateSubscription"}, client.Calls())
}

func TestCreateSubscriptionErrors(t *testing.T) {
	b, client := setup(t)
	ctx := context.Background()
	customerID := createCustomer(t, b, "a@x.io")

	_, err := b.Methods().Call(ctx, subscription.ID, "createSubscription",
		subscription.CreateSubscriptionInput{CustomerID: "ghost", Plan: "pro"})
	assert.True(t, errors.IsNotFound(err), "got %v", err)

	_, err = b.Methods().Call(ctx, subscription.ID, "createSubscription",
		subscription.CreateSubscriptionInput{CustomerID: customerID})
	assert.True(t, errors.IsValidation(err), "got %v", err)

	client.FailWith("CreateSubscription", errors.NewInternal("card declined"))
	_, err = b.Methods().Call(ctx, subscription.ID, "createSubscription",
		subscription.CreateSubscriptionInput{CustomerID: customerID, Plan: "pro"})
	require.Error(t, err)

	n, err := b.DB().Count(ctx, subscription.Model, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, customerStatus(t, b, customerID))
}

func TestCancelSubscriptionRunsHook(t *testing.T) {
	b, _ := setup(t)
	customerID := createCustomer(t, b, "a@x.io")
	sub := subscribe(t, b, customerID, "pro")

	var seen []any
	b.Hooks().Register(subscription.CancelHook, func(_ context.Context, hc *hook.Context) error {
		seen = append(seen, hc.Result["status"])
		return nil
	})

	canceled, err := cancel(b, sub.ID, false)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)
	assert.Equal(t, []any{subscription.StatusCanceled}, seen)
	assert.Equal(t, subscription.StatusCanceled, customerStatus(t, b, customerID))

	_, err = cancel(b, sub.ID, false)
	assert.True(t, errors.IsConflict(err), "got %v", err)

	_, err = cancel(b, "ghost", false)
	assert.True(t, errors.IsNotFound(err), "got %v", err)
	assert.Len(t, seen, 1)
}

func TestCancelAtPeriodEndKeepsStatus(t *testing.T) {
	b, _ := setup(t)
	sub := subscribe(t, b, createCustomer(t, b, "a@x.io"), "pro")

	canceled, err := cancel(b, sub.ID, true)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, canceled.Status)
	assert.True(t, canceled.CancelAtPeriodEnd)
}

func TestListActiveSubscriptions(t *testing.T) {
	b, client := setup(t)
	ctx := context.Background()
	alice := createCustomer(t, b, "alice@x.io")
	bob := createCustomer(t, b, "bob@x.io")

	running := subscribe(t, b, alice, "pro")
	ending := subscribe(t, b, alice, "team")
	_, err := cancel(b, ending.ID, true)
	require.NoError(t, err)
	gone := subscribe(t, b, bob, "pro")
	_, err = cancel(b, gone.ID, false)
	require.NoError(t, err)

	// A period that already ended.
	client.Now = func() time.Time { return time.Now().AddDate(0, -2, 0) }
	lapsed := subscribe(t, b, bob, "team")
	_, err = cancel(b, lapsed.ID, true)
	require.NoError(t, err)
	overdue := subscribe(t, b, bob, "pro")

	ids := func(subs []*subscription.Subscription) []string {
		out := make([]string, len(subs))
		for i, s := range subs {
			out[i] = s.ID
		}
		return out
	}

	all, err := plugin.Invoke[[]*subscription.Subscription](ctx, b.Methods(), subscription.ID,
		"listActiveSubscriptions", subscription.ListActiveInput{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{running.ID, ending.ID, overdue.ID}, ids(all))

	forBob, err := plugin.Invoke[[]*subscription.Subscription](ctx, b.Methods(), subscription.ID,
		"listActiveSubscriptions", subscription.ListActiveInput{CustomerID: bob})
	require.NoError(t, err)
	assert.Equal(t, []string{overdue.ID}, ids(forBob))
}

func TestCreateCheckoutSession(t *testing.T) {
	b, _ := setup(t)
	ctx := context.Background()
	customerID := createCustomer(t, b, "a@x.io")

	session, err := plugin.Invoke[*subscription.CheckoutSession](ctx, b.Methods(), subscription.ID,
		"createCheckoutSession", subscription.CheckoutInput{
			CustomerID: customerID, Plan: "pro", SuccessURL: "https://app.test/done",
		})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "https://checkout.stripe.test/"+session.ID, session.URL)

	_, err = b.Methods().Call(ctx, subscription.ID, "createCheckoutSession",
		subscription.CheckoutInput{CustomerID: customerID, Plan: "pro", SuccessURL: "not a url"})
	assert.True(t, errors.IsValidation(err), "got %v", err)

	_, err = b.Methods().Call(ctx, subscription.ID, "createCheckoutSession",
		subscription.CheckoutInput{CustomerID: "ghost", Plan: "pro", SuccessURL: "https://app.test/done"})
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}

func TestRequiresProvider(t *testing.T) {
	for name, plugins := range map[string][]*plugin.Descriptor{
		"no provider":    {subscription.New(nil)},
		"other provider": {subscription.New(nil, subscription.WithProvider("paddle")), stripe.New(stripetest.NewClient())},
	} {
		t.Run(name, func(t *testing.T) {
			b, err := billing.New(context.Background(), billing.Config{Plugins: plugins}, billing.WithAdapter(memory.New()))
			require.Error(t, err)
			assert.Nil(t, b)
			assert.True(t, errors.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestSubscriptionEndpoints(t *testing.T) {
	b, _ := setup(t)
	customerID := createCustomer(t, b, "a@x.io")
	client := testkit.NewHTTPClient(t, b.Handler())

	resp := client.Post("/api/billing/subscriptions", map[string]any{"customerId": customerID, "plan": "pro"}, nil)
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var sub subscription.Subscription
	require.NoError(t, resp.DecodeData(&sub))
	assert.Equal(t, 1, sub.Quantity)

	resp = client.Get("/api/billing/subscriptions?customerId="+customerID, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	env, err := resp.Envelope()
	require.NoError(t, err)
	require.NotNil(t, env.Meta.Count)
	assert.Equal(t, 1, *env.Meta.Count)

	resp = client.Post("/api/billing/subscriptions/"+sub.ID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
	assert.Equal(t, http.StatusConflict, client.Post("/api/billing/subscriptions/"+sub.ID+"/cancel", nil, nil).Status)
	assert.Equal(t, http.StatusNotFound, client.Post("/api/billing/subscriptions/ghost/cancel",
		map[string]any{"atPeriodEnd": true}, nil).Status)

	resp = client.Post("/api/billing/checkout-sessions", map[string]any{
		"customerId": customerID, "plan": "pro", "successUrl": "https://app.test/done",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.Status, string(resp.Body))
	var session subscription.CheckoutSession
	require.NoError(t, resp.DecodeData(&session))
	assert.NotEmpty(t, session.URL)

	assert.Equal(t, http.StatusBadRequest, client.Post("/api/billing/checkout-sessions",
		map[string]any{"customerId": customerID}, nil).Status)
}
