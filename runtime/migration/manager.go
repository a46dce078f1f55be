// Package migration applies a merged schema to a storage backend.
package migration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/schema"
)

// Manager orchestrates migration execution.
type Manager struct {
	strategy Strategy
	logger   logging.Logger
}

func NewManager(strategy Strategy, logger logging.Logger) *Manager {
	return &Manager{strategy: strategy, logger: logging.OrNop(logger)}
}

// Run checks cross-table references, then applies s.
func (m *Manager) Run(ctx context.Context, s *schema.Schema) error {
	if m == nil || m.strategy == nil {
		return nil
	}
	if err := s.CheckReferences(); err != nil {
		return err
	}

	start := time.Now()
	if err := m.strategy.Migrate(ctx, s); err != nil {
		if errors.IsValidation(err) || errors.IsConfiguration(err) {
			return err
		}
		return errors.NewDatabase(err, "migrate "+m.strategy.Name())
	}
	m.logger.Info("schema migrated",
		logging.Adapter(m.strategy.Name()),
		zap.Strings("tables", s.Tables()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
