// Package memory is the in-process reference adapter. It evaluates
// conditions with condition.Match, so its results define the expected
// semantics for every other adapter.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// Store keeps records per model in insertion order.
type Store struct {
	mu      sync.RWMutex
	tables  map[string][]storage.Record
	uniques map[string][]string
}

var (
	_ storage.Adapter    = (*Store)(nil)
	_ storage.Transactor = (*Store)(nil)
	_ storage.Counter    = (*Store)(nil)
	_ storage.Migrator   = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		tables:  make(map[string][]storage.Record),
		uniques: make(map[string][]string),
	}
}

func (s *Store) Name() string { return "memory" }

// Migrate records unique fields so Create can enforce them.
func (s *Store) Migrate(_ context.Context, sc *schema.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range sc.Tables() {
		fields, _ := sc.Table(table)
		var unique []string
		for _, name := range fields.Names() {
			if fields[name].Unique {
				unique = append(unique, name)
			}
		}
		s.uniques[table] = unique
		if _, ok := s.tables[table]; !ok {
			s.tables[table] = nil
		}
	}
	return nil
}

func (s *Store) Create(_ context.Context, model string, data storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(model, data)
}

func (s *Store) create(model string, data storage.Record) (storage.Record, error) {
	record := data.Clone()
	if record.ID() == "" {
		record[schema.IDField] = storage.NewID()
	}
	if err := s.checkUnique(model, record, -1); err != nil {
		return nil, err
	}
	s.tables[model] = append(s.tables[model], record)
	return record.Clone(), nil
}

// checkUnique rejects record when it shares its id or a unique field with
// any stored row other than the one at index self.
func (s *Store) checkUnique(model string, record storage.Record, self int) error {
	for i, existing := range s.tables[model] {
		if i == self {
			continue
		}
		if existing.ID() == record.ID() {
			return errors.NewConflict(model, schema.IDField)
		}
		for _, field := range s.uniques[model] {
			if v, ok := record[field]; ok && v != nil && condition.Equal(existing[field], v) {
				return errors.NewConflict(model, field)
			}
		}
	}
	return nil
}

func (s *Store) Update(_ context.Context, model string, where condition.Condition, data storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indexOf(model, where)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, errors.NewNotFound(model, where)
	}
	record := s.tables[model][idx].Clone()
	for k, v := range data {
		record[k] = v
	}
	if err := s.checkUnique(model, record, idx); err != nil {
		return nil, err
	}
	s.tables[model][idx] = record
	return record.Clone(), nil
}

func (s *Store) FindOne(_ context.Context, model string, where condition.Condition) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, err := s.indexOf(model, where)
	if err != nil || idx < 0 {
		return nil, err
	}
	return s.tables[model][idx].Clone(), nil
}

func (s *Store) FindMany(_ context.Context, model string, where condition.Condition, opts *storage.FindOptions) ([]storage.Record, error) {
	s.mu.RLock()
	matched, err := condition.Filter(where, s.tables[model])
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]storage.Record, len(matched))
	for i, r := range matched {
		out[i] = r.Clone()
	}
	return Paginate(out, opts), nil
}

func (s *Store) Count(_ context.Context, model string, where condition.Condition) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := condition.Filter(where, s.tables[model])
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store) Delete(_ context.Context, model string, where condition.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := condition.Validate(where); err != nil {
		return err
	}
	kept := s.tables[model][:0:0]
	for _, r := range s.tables[model] {
		ok, err := condition.Match(where, r)
		if err != nil {
			return err
		}
		if !ok {
			kept = append(kept, r)
		}
	}
	s.tables[model] = kept
	return nil
}

// Transaction runs fn against a copy of the store and swaps it in on
// success. Writers outside fn block until it returns.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx storage.Adapter) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{tables: s.snapshot(), uniques: s.uniques}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.tables = tx.tables
	return nil
}

func (s *Store) snapshot() map[string][]storage.Record {
	out := make(map[string][]storage.Record, len(s.tables))
	for model, records := range s.tables {
		cp := make([]storage.Record, len(records))
		for i, r := range records {
			cp[i] = r.Clone()
		}
		out[model] = cp
	}
	return out
}

func (s *Store) indexOf(model string, where condition.Condition) (int, error) {
	return indexOf(s.tables[model], where)
}

func indexOf(records []storage.Record, where condition.Condition) (int, error) {
	if err := condition.Validate(where); err != nil {
		return -1, err
	}
	for i, r := range records {
		ok, err := condition.Match(where, r)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

// Paginate applies sort, offset and limit to records in place. Adapters
// that filter client-side share it.
func Paginate(records []storage.Record, opts *storage.FindOptions) []storage.Record {
	if opts == nil {
		return records
	}
	if opts.SortBy != nil {
		field, desc := opts.SortBy.Field, opts.SortBy.Desc
		sort.SliceStable(records, func(i, j int) bool {
			cmp := compare(records[i][field], records[j][field])
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return records[:0]
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records
}

// compare orders values for sorting; nil sorts first.
func compare(a, b any) int {
	if cmp, ok := condition.Compare(a, b); ok {
		return cmp
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	switch {
	case aok && bok:
		if as < bs {
			return -1
		}
		if as > bs {
			return 1
		}
		return 0
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	}
	return 0
}
