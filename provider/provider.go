// Package provider merges payment-provider method contributions into one
// table keyed by provider id.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/leeforge/billing/errors"
)

// Capability is a named group of provider behavior.
type Capability string

const (
	CapabilitySubscription    Capability = "subscription"
	CapabilityCheckoutSession Capability = "checkout-session"
	CapabilityCustomer        Capability = "customer"
	CapabilityInvoice         Capability = "invoice"
	CapabilityExtension       Capability = "extension"
)

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	switch c {
	case CapabilitySubscription, CapabilityCheckoutSession, CapabilityCustomer,
		CapabilityInvoice, CapabilityExtension:
		return true
	}
	return false
}

// Method is one provider operation.
type Method func(ctx context.Context, input any) (any, error)

// Contribution is what a plugin offers for one provider and capability.
type Contribution struct {
	ProviderID string
	Capability Capability
	Methods    map[string]Method
}

type entry struct {
	method     Method
	capability Capability
}

// Provider is the merged view of one provider id.
type Provider struct {
	id           string
	methods      map[string]entry
	capabilities []Capability
}

// ID returns the provider id.
func (p *Provider) ID() string { return p.id }

// Has reports whether the provider exposes method.
func (p *Provider) Has(method string) bool {
	_, ok := p.methods[method]
	return ok
}

// Method returns the implementation registered last under name.
func (p *Provider) Method(name string) (Method, error) {
	e, ok := p.methods[name]
	if !ok {
		return nil, errors.NewProviderNotFound(p.id, name)
	}
	return e.method, nil
}

// Call invokes method with input.
func (p *Provider) Call(ctx context.Context, method string, input any) (any, error) {
	fn, err := p.Method(method)
	if err != nil {
		return nil, err
	}
	return fn(ctx, input)
}

// Methods returns the method names, sorted.
func (p *Provider) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns capabilities in the order first contributed.
func (p *Provider) Capabilities() []Capability {
	return append([]Capability(nil), p.capabilities...)
}

// HasCapability reports whether any contribution used capability c.
func (p *Provider) HasCapability(c Capability) bool {
	for _, have := range p.capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// CapabilityOf returns the capability of the contribution that won method.
func (p *Provider) CapabilityOf(method string) (Capability, bool) {
	e, ok := p.methods[method]
	return e.capability, ok
}

func (p *Provider) clone() *Provider {
	out := &Provider{
		id:           p.id,
		methods:      make(map[string]entry, len(p.methods)),
		capabilities: append([]Capability(nil), p.capabilities...),
	}
	for name, e := range p.methods {
		out.methods[name] = e
	}
	return out
}

// Table is an immutable provider-id keyed view.
type Table struct {
	providers map[string]*Provider
}

// Provider returns the merged provider for id.
func (t *Table) Provider(id string) (*Provider, error) {
	if t != nil {
		if p, ok := t.providers[id]; ok {
			return p, nil
		}
	}
	return nil, errors.NewProviderNotFound(id, "")
}

// Has reports whether id was contributed.
func (t *Table) Has(id string) bool {
	if t == nil {
		return false
	}
	_, ok := t.providers[id]
	return ok
}

// Call invokes providers.<id>.<method>(input).
func (t *Table) Call(ctx context.Context, providerID, method string, input any) (any, error) {
	p, err := t.Provider(providerID)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, method, input)
}

// IDs returns provider ids sorted.
func (t *Table) IDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.providers))
	for id := range t.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shape returns provider id to sorted method names. Useful for comparing
// tables, since functions cannot be compared.
func (t *Table) Shape() map[string][]string {
	out := make(map[string][]string)
	for _, id := range t.IDs() {
		out[id] = t.providers[id].Methods()
	}
	return out
}

// Merger folds contributions in registration order.
type Merger struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{providers: make(map[string]*Provider)}
}

// Add folds c into the table. Method names already present for the same
// provider are replaced by c's implementation.
func (m *Merger) Add(c Contribution) error {
	if c.ProviderID == "" {
		return errors.NewValidation("providerId", "", "provider contribution requires a provider id")
	}
	if !c.Capability.Valid() {
		return errors.NewValidation("capability", "",
			fmt.Sprintf("provider %s: unknown capability %q", c.ProviderID, c.Capability))
	}

	for name, fn := range c.Methods {
		if name == "" || fn == nil {
			return errors.NewValidation(name, "",
				fmt.Sprintf("provider %s: method %q has no implementation", c.ProviderID, name))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.providers[c.ProviderID]
	if !ok {
		p = &Provider{id: c.ProviderID, methods: make(map[string]entry)}
		m.providers[c.ProviderID] = p
	}
	if !p.HasCapability(c.Capability) {
		p.capabilities = append(p.capabilities, c.Capability)
	}
	for name, fn := range c.Methods {
		p.methods[name] = entry{method: fn, capability: c.Capability}
	}
	return nil
}

// Table returns an immutable snapshot.
func (m *Merger) Table() *Table {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := &Table{providers: make(map[string]*Provider, len(m.providers))}
	for id, p := range m.providers {
		t.providers[id] = p.clone()
	}
	return t
}

// Fold merges contributions left to right.
func Fold(contributions ...Contribution) (*Table, error) {
	m := NewMerger()
	for _, c := range contributions {
		if err := m.Add(c); err != nil {
			return nil, err
		}
	}
	return m.Table(), nil
}
