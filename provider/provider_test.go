package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/errors"
)

func returns(v string) Method {
	return func(context.Context, any) (any, error) { return v, nil }
}

func TestUnionAcrossCapabilities(t *testing.T) {
	table, err := Fold(
		Contribution{ProviderID: "stripe", Capability: CapabilitySubscription, Methods: map[string]Method{
			"createSubscription": returns("sub"),
		}},
		Contribution{ProviderID: "stripe", Capability: CapabilityCheckoutSession, Methods: map[string]Method{
			"createCheckoutSession": returns("cs"),
		}},
	)
	require.NoError(t, err)

	stripe, err := table.Provider("stripe")
	require.NoError(t, err)
	assert.Equal(t, []string{"createCheckoutSession", "createSubscription"}, stripe.Methods())
	assert.Equal(t, []Capability{CapabilitySubscription, CapabilityCheckoutSession}, stripe.Capabilities())

	out, err := table.Call(context.Background(), "stripe", "createCheckoutSession", nil)
	require.NoError(t, err)
	assert.Equal(t, "cs", out)
}

func TestLaterContributionWins(t *testing.T) {
	table, err := Fold(
		Contribution{ProviderID: "stripe", Capability: CapabilitySubscription, Methods: map[string]Method{
			"createSubscription": returns("first"),
			"cancelSubscription": returns("cancel"),
		}},
		Contribution{ProviderID: "stripe", Capability: CapabilityExtension, Methods: map[string]Method{
			"createSubscription": returns("second"),
		}},
	)
	require.NoError(t, err)

	out, err := table.Call(context.Background(), "stripe", "createSubscription", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	p, _ := table.Provider("stripe")
	capability, ok := p.CapabilityOf("createSubscription")
	require.True(t, ok)
	assert.Equal(t, CapabilityExtension, capability)
	assert.True(t, p.Has("cancelSubscription"))
}

func TestProvidersDoNotMixAcrossIDs(t *testing.T) {
	table, err := Fold(
		Contribution{ProviderID: "stripe", Capability: CapabilityCustomer, Methods: map[string]Method{"createCustomer": returns("s")}},
		Contribution{ProviderID: "paddle", Capability: CapabilityCustomer, Methods: map[string]Method{"createCustomer": returns("p")}},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"paddle", "stripe"}, table.IDs())
	out, err := table.Call(context.Background(), "stripe", "createCustomer", nil)
	require.NoError(t, err)
	assert.Equal(t, "s", out)
}

func TestProviderNotFound(t *testing.T) {
	table, err := Fold(Contribution{ProviderID: "stripe", Capability: CapabilityInvoice, Methods: map[string]Method{
		"listInvoices": returns("[]"),
	}})
	require.NoError(t, err)

	_, err = table.Call(context.Background(), "paddle", "listInvoices", nil)
	assert.True(t, errors.IsProviderNotFound(err))

	_, err = table.Call(context.Background(), "stripe", "refund", nil)
	assert.True(t, errors.IsProviderNotFound(err))

	var empty *Table
	_, err = empty.Provider("stripe")
	assert.True(t, errors.IsProviderNotFound(err))
}

func TestAddValidates(t *testing.T) {
	m := NewMerger()
	assert.True(t, errors.IsValidation(m.Add(Contribution{Capability: CapabilityCustomer})))
	assert.True(t, errors.IsValidation(m.Add(Contribution{ProviderID: "stripe", Capability: "payouts"})))
	assert.True(t, errors.IsValidation(m.Add(Contribution{
		ProviderID: "stripe", Capability: CapabilityCustomer, Methods: map[string]Method{"createCustomer": nil},
	})))
	assert.False(t, m.Table().Has("stripe"), "rejected contributions must not leave partial state")
}

func TestTableSnapshotIsImmutable(t *testing.T) {
	m := NewMerger()
	require.NoError(t, m.Add(Contribution{ProviderID: "stripe", Capability: CapabilityCustomer, Methods: map[string]Method{
		"createCustomer": returns("a"),
	}}))
	snapshot := m.Table()

	require.NoError(t, m.Add(Contribution{ProviderID: "stripe", Capability: CapabilityInvoice, Methods: map[string]Method{
		"listInvoices": returns("b"),
	}}))

	assert.Equal(t, map[string][]string{"stripe": {"createCustomer"}}, snapshot.Shape())
	assert.Equal(t, map[string][]string{"stripe": {"createCustomer", "listInvoices"}}, m.Table().Shape())
}
