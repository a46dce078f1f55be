// Package testkit builds billing instances and HTTP clients for tests.
package testkit

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/leeforge/billing/billing"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/storage/memory"
)

// NewBilling builds plugins over a fresh memory store with the schema
// migrated. The instance is closed when the test ends.
func NewBilling(t testing.TB, plugins ...*plugin.Descriptor) *billing.Billing {
	t.Helper()
	return Build(t, billing.Config{Plugins: plugins})
}

// Build is NewBilling with an explicit config. A memory store is used
// unless opts supply an adapter.
func Build(t testing.TB, cfg billing.Config, opts ...billing.Option) *billing.Billing {
	t.Helper()
	cfg.AutoMigrate = true
	opts = append([]billing.Option{billing.WithAdapter(memory.New())}, opts...)

	b, err := billing.New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Logf("close billing: %v", err)
		}
	})
	return b
}

// ObservedLogger returns a logger whose entries at level and above are
// captured.
func ObservedLogger(level zapcore.Level) (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logging.FromZap(zap.New(core)), logs
}

// Failure is one hook handler failure.
type Failure struct {
	Hook  string
	Index int
	Err   error
}

// RecordingObserver is a hook.Observer that keeps every failure.
type RecordingObserver struct {
	mu       sync.Mutex
	failures []Failure
}

func (o *RecordingObserver) HandlerFailed(name string, index int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, Failure{Hook: name, Index: index, Err: err})
}

// Failures returns a copy of the recorded failures.
func (o *RecordingObserver) Failures() []Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Failure(nil), o.failures...)
}

func (o *RecordingObserver) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = nil
}
