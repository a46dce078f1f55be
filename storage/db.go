package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/schema"
)

// DefaultNow as a date field's default stamps the current time.
const DefaultNow = "now()"

// DB is the handle plugins use. It validates every call against the
// current merged schema and fires before/after hooks around writes. The
// schema pointer is shared by every copy of the handle, so tables merged
// after a plugin received its DB become visible to it.
type DB struct {
	adapter Adapter
	schema  *atomic.Pointer[schema.Schema]
	hooks   *hook.Manager
	logger  logging.Logger
	tx      bool
}

type txKey struct{}

// FromContext returns the transaction handle that a write inside
// Transaction placed on ctx, or fallback when ctx carries none. Hook
// handlers use it so their reads and writes join the caller's transaction.
func FromContext(ctx context.Context, fallback *DB) *DB {
	if tx, ok := ctx.Value(txKey{}).(*DB); ok {
		return tx
	}
	return fallback
}

// bind puts a transaction handle on ctx. Other handles return ctx as is.
func (db *DB) bind(ctx context.Context) context.Context {
	if !db.tx {
		return ctx
	}
	if cur, ok := ctx.Value(txKey{}).(*DB); ok && cur == db {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, db)
}

// NewDB wraps adapter. hooks and logger may be nil.
func NewDB(adapter Adapter, hooks *hook.Manager, logger logging.Logger) *DB {
	if hooks == nil {
		hooks = hook.NewManager()
	}
	ptr := &atomic.Pointer[schema.Schema]{}
	ptr.Store(schema.Empty())
	return &DB{
		adapter: adapter,
		schema:  ptr,
		hooks:   hooks,
		logger:  logging.OrNop(logger),
	}
}

// SetSchema swaps the live schema.
func (db *DB) SetSchema(s *schema.Schema) {
	if s == nil {
		s = schema.Empty()
	}
	db.schema.Store(s)
}

// Schema returns the live schema.
func (db *DB) Schema() *schema.Schema { return db.schema.Load() }

// Adapter returns the wrapped backend.
func (db *DB) Adapter() Adapter { return db.adapter }

// Hooks returns the hook manager writes are dispatched to.
func (db *DB) Hooks() *hook.Manager { return db.hooks }

func (db *DB) table(model string) (schema.Fields, error) {
	fields, ok := db.Schema().Table(model)
	if !ok {
		return nil, errors.NewValidation("", "", fmt.Sprintf("unknown model %q", model)).
			WithDetail("model", model)
	}
	return fields, nil
}

// Create inserts data into model. Defaults are applied first, then
// before<Model>Create runs and may alter the data, then required fields
// and types are checked.
func (db *DB) Create(ctx context.Context, model string, data Record) (Record, error) {
	ctx = db.bind(ctx)
	fields, err := db.table(model)
	if err != nil {
		return nil, err
	}

	data = data.Clone()
	if data == nil {
		data = Record{}
	}
	applyDefaults(fields, data)

	hc := &hook.Context{Model: model, Data: data}
	db.hooks.Run(ctx, HookName(PhaseBefore, model, ActionCreate), hc)
	data = Record(hc.Data)

	if err := coerceRecord(model, fields, data, true); err != nil {
		return nil, err
	}
	if data.ID() == "" {
		data[schema.IDField] = NewID()
	}

	created, err := db.adapter.Create(ctx, model, data)
	if err != nil {
		return nil, err
	}

	hc.Result = created
	db.hooks.Run(ctx, HookName(PhaseAfter, model, ActionCreate), hc)
	return created, nil
}

// Update changes the first record matching where.
func (db *DB) Update(ctx context.Context, model string, where condition.Condition, data Record) (Record, error) {
	ctx = db.bind(ctx)
	fields, err := db.table(model)
	if err != nil {
		return nil, err
	}
	if err := requireWhere(where, model, fields); err != nil {
		return nil, err
	}

	data = data.Clone()
	if data == nil {
		data = Record{}
	}
	hc := &hook.Context{Model: model, Data: data, Where: where}
	db.hooks.Run(ctx, HookName(PhaseBefore, model, ActionUpdate), hc)
	data = Record(hc.Data)

	if _, ok := data[schema.IDField]; ok {
		return nil, errors.NewValidation(schema.IDField, "", "record id cannot be updated")
	}
	if err := coerceRecord(model, fields, data, false); err != nil {
		return nil, err
	}

	updated, err := db.adapter.Update(ctx, model, where, data)
	if err != nil {
		return nil, err
	}

	hc.Result = updated
	db.hooks.Run(ctx, HookName(PhaseAfter, model, ActionUpdate), hc)
	return updated, nil
}

// FindOne returns the first match or nil.
func (db *DB) FindOne(ctx context.Context, model string, where condition.Condition) (Record, error) {
	fields, err := db.table(model)
	if err != nil {
		return nil, err
	}
	if err := condition.ValidateAgainst(where, model, fields); err != nil {
		return nil, err
	}
	return db.adapter.FindOne(ctx, model, where)
}

// FindMany returns every match.
func (db *DB) FindMany(ctx context.Context, model string, where condition.Condition, opts *FindOptions) ([]Record, error) {
	fields, err := db.table(model)
	if err != nil {
		return nil, err
	}
	if err := condition.ValidateAgainst(where, model, fields); err != nil {
		return nil, err
	}
	if opts != nil && opts.SortBy != nil {
		if _, ok := fields.Lookup(opts.SortBy.Field); !ok {
			return nil, errors.NewValidation(opts.SortBy.Field, "", fmt.Sprintf("cannot sort %s by unknown field", model))
		}
	}
	return db.adapter.FindMany(ctx, model, where, opts)
}

// Count returns the number of matches, using the adapter's Counter when
// available.
func (db *DB) Count(ctx context.Context, model string, where condition.Condition) (int64, error) {
	fields, err := db.table(model)
	if err != nil {
		return 0, err
	}
	if err := condition.ValidateAgainst(where, model, fields); err != nil {
		return 0, err
	}
	if c, ok := db.adapter.(Counter); ok {
		return c.Count(ctx, model, where)
	}
	records, err := db.adapter.FindMany(ctx, model, where, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Delete removes every match.
func (db *DB) Delete(ctx context.Context, model string, where condition.Condition) error {
	ctx = db.bind(ctx)
	fields, err := db.table(model)
	if err != nil {
		return err
	}
	if err := requireWhere(where, model, fields); err != nil {
		return err
	}

	hc := &hook.Context{Model: model, Where: where}
	db.hooks.Run(ctx, HookName(PhaseBefore, model, ActionDelete), hc)
	if err := db.adapter.Delete(ctx, model, where); err != nil {
		return err
	}
	db.hooks.Run(ctx, HookName(PhaseAfter, model, ActionDelete), hc)
	return nil
}

// Transaction runs fn atomically when the adapter supports it. Otherwise
// fn runs directly against the adapter. Inside a transaction, ctx carries
// tx for FromContext.
func (db *DB) Transaction(ctx context.Context, fn func(ctx context.Context, tx *DB) error) error {
	t, ok := db.adapter.(Transactor)
	if !ok {
		db.logger.Debug("adapter has no transactions, running without atomicity",
			logging.Adapter(db.adapter.Name()))
		return fn(ctx, db)
	}
	return t.Transaction(ctx, func(ctx context.Context, a Adapter) error {
		tx := db.withAdapter(a)
		return fn(tx.bind(ctx), tx)
	})
}

func (db *DB) withAdapter(a Adapter) *DB {
	return &DB{adapter: a, schema: db.schema, hooks: db.hooks, logger: db.logger, tx: true}
}

// requireWhere rejects a nil condition, so Update and Delete never touch a
// whole table by accident.
func requireWhere(where condition.Condition, model string, fields schema.Fields) error {
	if where == nil {
		return errors.NewValidation("", "", fmt.Sprintf("%s: a where condition is required", model))
	}
	return condition.ValidateAgainst(where, model, fields)
}

func applyDefaults(fields schema.Fields, data Record) {
	for _, name := range fields.Names() {
		spec := fields[name]
		if spec.Default == nil {
			continue
		}
		if v, ok := data[name]; ok && v != nil {
			continue
		}
		if spec.Type == schema.TypeDate && spec.Default == DefaultNow {
			data[name] = time.Now().UTC()
			continue
		}
		data[name] = spec.Default
	}
}

// coerceRecord checks data against fields and normalizes values in place:
// numbers become float64, dates time.Time, arrays typed slices.
func coerceRecord(model string, fields schema.Fields, data Record, create bool) error {
	for name, v := range data {
		spec, ok := fields.Lookup(name)
		if !ok {
			return errors.NewValidation(name, "", fmt.Sprintf("unknown field %s.%s", model, name)).
				WithDetail("model", model)
		}
		if v == nil {
			if spec.Required && name != schema.IDField {
				return errors.NewRequired(model, name)
			}
			continue
		}
		coerced, err := CoerceValue(spec.Type, v)
		if err != nil {
			return errors.NewValidation(name, "",
				fmt.Sprintf("%s.%s: %v", model, name, err)).WithDetail("model", model)
		}
		data[name] = coerced
	}

	if create {
		for _, name := range fields.Names() {
			if fields[name].Required && data[name] == nil {
				return errors.NewRequired(model, name)
			}
		}
	}
	return nil
}

// CoerceValue converts v to the canonical Go type of t. Adapters use it
// to decode values read back from their backend.
func CoerceValue(t schema.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.TypeNumber:
		if f, ok := condition.ToFloat(v); ok {
			return f, nil
		}
	case schema.TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	case schema.TypeDate:
		switch d := v.(type) {
		case time.Time:
			return d.UTC(), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, d)
			if err != nil {
				return nil, fmt.Errorf("expected an RFC 3339 date, got %q", d)
			}
			return parsed.UTC(), nil
		}
	case schema.TypeJSON:
		return v, nil
	case schema.TypeStringArray:
		items, ok := condition.Values(v)
		if !ok {
			break
		}
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string items, got %T", item)
			}
			out[i] = s
		}
		return out, nil
	case schema.TypeNumberArray:
		items, ok := condition.Values(v)
		if !ok {
			break
		}
		out := make([]float64, len(items))
		for i, item := range items {
			f, ok := condition.ToFloat(item)
			if !ok {
				return nil, fmt.Errorf("expected number items, got %T", item)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown field type %q", t)
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}
