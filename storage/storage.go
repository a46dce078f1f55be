// Package storage defines the backend-agnostic persistence contract and the
// live, schema-aware DB handle plugins receive.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/schema"
)

// Record is one row or document, keyed by field name.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the record id.
func (r Record) ID() string {
	return r.String(schema.IDField)
}

// String returns r[key] when it is a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Float returns r[key] as float64 when it is numeric.
func (r Record) Float(key string) float64 {
	f, _ := condition.ToFloat(r[key])
	return f
}

// Bool returns r[key] when it is a bool.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Time returns r[key] when it is a time.Time.
func (r Record) Time(key string) time.Time {
	t, _ := r[key].(time.Time)
	return t
}

// Sort orders FindMany results.
type Sort struct {
	Field string
	Desc  bool
}

// FindOptions narrows FindMany.
type FindOptions struct {
	Limit  int
	Offset int
	SortBy *Sort
}

// Adapter is implemented by every storage backend. where is a canonical
// condition; adapters must translate it without changing its meaning and
// reject operators they cannot honor with an UnsupportedOperator error.
type Adapter interface {
	// Name identifies the backend in errors and logs.
	Name() string
	// Create inserts data and returns the stored record.
	Create(ctx context.Context, model string, data Record) (Record, error)
	// Update changes the first record matching where and returns it.
	// It fails with NotFound when nothing matches.
	Update(ctx context.Context, model string, where condition.Condition, data Record) (Record, error)
	// FindOne returns the first match, or nil when there is none.
	FindOne(ctx context.Context, model string, where condition.Condition) (Record, error)
	// FindMany returns every match. A nil where matches all records.
	FindMany(ctx context.Context, model string, where condition.Condition, opts *FindOptions) ([]Record, error)
	// Delete removes every match. No match is not an error.
	Delete(ctx context.Context, model string, where condition.Condition) error
}

// Transactor is implemented by adapters with native transactions. fn
// receives an adapter bound to the transaction; returning an error rolls
// back.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Adapter) error) error
}

// Counter is implemented by adapters that can count without loading rows.
type Counter interface {
	Count(ctx context.Context, model string, where condition.Condition) (int64, error)
}

// Migrator is implemented by adapters that can create tables for a schema.
type Migrator interface {
	Migrate(ctx context.Context, s *schema.Schema) error
}

// NewID returns a time-ordered record id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
