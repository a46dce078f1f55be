package migration

import (
	"context"

	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// Strategy defines a pluggable migration execution strategy.
type Strategy interface {
	Name() string
	Migrate(ctx context.Context, s *schema.Schema) error
}

// AdapterStrategy migrates through a storage adapter's Migrator.
type AdapterStrategy struct {
	adapter storage.Adapter
}

func NewAdapterStrategy(adapter storage.Adapter) *AdapterStrategy {
	return &AdapterStrategy{adapter: adapter}
}

func (s *AdapterStrategy) Name() string {
	if s == nil || s.adapter == nil {
		return "none"
	}
	return s.adapter.Name()
}

// Migrate is a no-op for adapters without a Migrator.
func (s *AdapterStrategy) Migrate(ctx context.Context, sc *schema.Schema) error {
	if s == nil || s.adapter == nil {
		return nil
	}
	m, ok := s.adapter.(storage.Migrator)
	if !ok {
		return nil
	}
	return m.Migrate(ctx, sc)
}
