// Package redisstore keeps records as JSON strings in redis. Each model has
// a sorted set of ids scored by insertion sequence, so scans return
// records in creation order. Conditions are evaluated client-side with
// the reference evaluator.
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	redis "github.com/go-redis/redis/v8"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/json"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
	"github.com/leeforge/billing/storage/memory"
)

const name = "redis"

// Store implements storage.Adapter over a redis client. It has no
// transactions; storage.DB runs transactional callbacks directly.
type Store struct {
	client *redis.Client
	prefix string
	schema *atomic.Pointer[schema.Schema]

	// writes serializes read-modify-write cycles within this process.
	writes sync.Mutex
}

var (
	_ storage.Adapter  = (*Store)(nil)
	_ storage.Counter  = (*Store)(nil)
	_ storage.Migrator = (*Store)(nil)
)

// New wraps client. Keys are namespaced by prefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "billing"
	}
	s := &Store{client: client, prefix: prefix, schema: &atomic.Pointer[schema.Schema]{}}
	s.schema.Store(schema.Empty())
	return s
}

func (s *Store) Name() string { return name }

// Client returns the underlying client.
func (s *Store) Client() *redis.Client { return s.client }

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) recordKey(model, id string) string {
	return strings.Join([]string{s.prefix, model, id}, ":")
}

func (s *Store) indexKey(model string) string { return s.prefix + ":" + model + ":_ids" }
func (s *Store) seqKey(model string) string   { return s.prefix + ":" + model + ":_seq" }

// Migrate keeps the schema for decoding and unique checks.
func (s *Store) Migrate(_ context.Context, sc *schema.Schema) error {
	if sc == nil {
		sc = schema.Empty()
	}
	s.schema.Store(sc)
	return nil
}

func (s *Store) Create(ctx context.Context, model string, data storage.Record) (storage.Record, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	record := data.Clone()
	if record.ID() == "" {
		record[schema.IDField] = storage.NewID()
	}
	id := record.ID()

	existing, err := s.scan(ctx, model)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(model, record, existing, ""); err != nil {
		return nil, err
	}

	encoded, err := json.MarshalToString(record)
	if err != nil {
		return nil, errors.NewValidation("", "", fmt.Sprintf("cannot encode %s: %v", model, err))
	}
	seq, err := s.client.Incr(ctx, s.seqKey(model)).Result()
	if err != nil {
		return nil, errors.NewDatabase(err, "sequence "+model)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(model, id), encoded, 0)
		pipe.ZAdd(ctx, s.indexKey(model), &redis.Z{Score: float64(seq), Member: id})
		return nil
	})
	if err != nil {
		return nil, errors.NewDatabase(err, "insert "+model)
	}
	return record, nil
}

// checkUnique rejects record when it shares its id or a unique field with
// a row in existing other than the one with id self.
func (s *Store) checkUnique(model string, record storage.Record, existing []storage.Record, self string) error {
	fields, _ := s.schema.Load().Table(model)
	for _, other := range existing {
		if self != "" && other.ID() == self {
			continue
		}
		if other.ID() == record.ID() {
			return errors.NewConflict(model, schema.IDField)
		}
		for _, field := range fields.Names() {
			if !fields[field].Unique {
				continue
			}
			v, ok := record[field]
			if ok && v != nil && condition.Equal(other[field], v) {
				return errors.NewConflict(model, field)
			}
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, model string, where condition.Condition, data storage.Record) (storage.Record, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	matches, err := s.match(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.NewNotFound(model, where)
	}
	record := matches[0]
	self := record.ID()
	for k, v := range data {
		record[k] = v
	}
	existing, err := s.scan(ctx, model)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnique(model, record, existing, self); err != nil {
		return nil, err
	}
	encoded, err := json.MarshalToString(record)
	if err != nil {
		return nil, errors.NewValidation("", "", fmt.Sprintf("cannot encode %s: %v", model, err))
	}
	if err := s.client.Set(ctx, s.recordKey(model, record.ID()), encoded, 0).Err(); err != nil {
		return nil, errors.NewDatabase(err, "update "+model)
	}
	return s.decode(model, encoded)
}

func (s *Store) FindOne(ctx context.Context, model string, where condition.Condition) (storage.Record, error) {
	matches, err := s.match(ctx, model, where)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

func (s *Store) FindMany(ctx context.Context, model string, where condition.Condition, opts *storage.FindOptions) ([]storage.Record, error) {
	matches, err := s.match(ctx, model, where)
	if err != nil {
		return nil, err
	}
	return memory.Paginate(matches, opts), nil
}

func (s *Store) Count(ctx context.Context, model string, where condition.Condition) (int64, error) {
	matches, err := s.match(ctx, model, where)
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

func (s *Store) Delete(ctx context.Context, model string, where condition.Condition) error {
	s.writes.Lock()
	defer s.writes.Unlock()

	matches, err := s.match(ctx, model, where)
	if err != nil || len(matches) == 0 {
		return err
	}
	keys := make([]string, len(matches))
	ids := make([]any, len(matches))
	for i, r := range matches {
		keys[i] = s.recordKey(model, r.ID())
		ids[i] = r.ID()
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.indexKey(model), ids...)
		return nil
	})
	if err != nil {
		return errors.NewDatabase(err, "delete "+model)
	}
	return nil
}

func (s *Store) match(ctx context.Context, model string, where condition.Condition) ([]storage.Record, error) {
	if err := condition.Validate(where); err != nil {
		return nil, err
	}
	records, err := s.scan(ctx, model)
	if err != nil {
		return nil, err
	}
	return condition.Filter(where, records)
}

// scan loads every record of model in insertion order.
func (s *Store) scan(ctx context.Context, model string) ([]storage.Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(model), 0, -1).Result()
	if err != nil {
		return nil, errors.NewDatabase(err, "scan "+model)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(model, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.NewDatabase(err, "scan "+model)
	}

	out := make([]storage.Record, 0, len(values))
	for _, v := range values {
		text, ok := v.(string)
		if !ok {
			// Dangling index entry.
			continue
		}
		r, err := s.decode(model, text)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) decode(model, text string) (storage.Record, error) {
	var raw map[string]any
	if err := json.UnmarshalFromString(text, &raw); err != nil {
		return nil, errors.NewDatabase(err, "decode "+model)
	}
	fields, _ := s.schema.Load().Table(model)
	record := make(storage.Record, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		if spec, ok := fields.Lookup(k); ok {
			coerced, err := storage.CoerceValue(spec.Type, v)
			if err != nil {
				return nil, errors.NewDatabase(err, fmt.Sprintf("decode %s.%s", model, k))
			}
			v = coerced
		}
		record[k] = v
	}
	return record, nil
}
