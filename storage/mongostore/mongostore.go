// Package mongostore is the MongoDB adapter. Each model is a collection and
// the record id is stored as the document _id.
package mongostore

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

const name = "mongo"

// Store implements storage.Adapter over one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	schema *atomic.Pointer[schema.Schema]
	logger logging.Logger
}

var (
	_ storage.Adapter    = (*Store)(nil)
	_ storage.Transactor = (*Store)(nil)
	_ storage.Counter    = (*Store)(nil)
	_ storage.Migrator   = (*Store)(nil)
)

// Open connects to uri and pings the primary.
func Open(ctx context.Context, uri, database string, logger logging.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.NewDatabase(err, "connect mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.NewDatabase(err, "ping mongo")
	}
	return New(client, database, logger), nil
}

// New wraps a connected client.
func New(client *mongo.Client, database string, logger logging.Logger) *Store {
	s := &Store{
		client: client,
		db:     client.Database(database),
		schema: &atomic.Pointer[schema.Schema]{},
		logger: logging.OrNop(logger),
	}
	s.schema.Store(schema.Empty())
	return s
}

func (s *Store) Name() string { return name }

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// Migrate creates a sparse unique index per unique field.
func (s *Store) Migrate(ctx context.Context, sc *schema.Schema) error {
	if sc == nil {
		sc = schema.Empty()
	}
	for _, table := range sc.Tables() {
		fields, _ := sc.Table(table)
		var models []mongo.IndexModel
		for _, field := range fields.Names() {
			if !fields[field].Unique {
				continue
			}
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: field, Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true).SetName(table + "_" + field + "_unique"),
			})
		}
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(table).Indexes().CreateMany(ctx, models); err != nil {
			return errors.NewDatabase(err, fmt.Sprintf("migrate %s indexes", table))
		}
		s.logger.Debug("ensured indexes", logging.Adapter(name), logging.Model(table), zap.Int("count", len(models)))
	}
	s.schema.Store(sc)
	return nil
}

func (s *Store) Create(ctx context.Context, model string, data storage.Record) (storage.Record, error) {
	record := data.Clone()
	if record.ID() == "" {
		record[schema.IDField] = storage.NewID()
	}
	if _, err := s.db.Collection(model).InsertOne(ctx, toDocument(record)); err != nil {
		return nil, translate(err, model, "insert")
	}
	return record, nil
}

func (s *Store) Update(ctx context.Context, model string, where condition.Condition, data storage.Record) (storage.Record, error) {
	filter, err := s.filter(where)
	if err != nil {
		return nil, err
	}
	set := toDocument(data)
	if len(set) == 0 {
		current, err := s.FindOne(ctx, model, where)
		if err == nil && current == nil {
			return nil, errors.NewNotFound(model, where)
		}
		return current, err
	}

	var doc bson.M
	err = s.db.Collection(model).
		FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.NewNotFound(model, where)
	}
	if err != nil {
		return nil, translate(err, model, "update")
	}
	return s.fromDocument(model, doc)
}

func (s *Store) FindOne(ctx context.Context, model string, where condition.Condition) (storage.Record, error) {
	filter, err := s.filter(where)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	err = s.db.Collection(model).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, model, "find")
	}
	return s.fromDocument(model, doc)
}

func (s *Store) FindMany(ctx context.Context, model string, where condition.Condition, opts *storage.FindOptions) ([]storage.Record, error) {
	filter, err := s.filter(where)
	if err != nil {
		return nil, err
	}

	find := options.Find()
	if opts != nil {
		if opts.SortBy != nil {
			dir := 1
			if opts.SortBy.Desc {
				dir = -1
			}
			find.SetSort(bson.D{{Key: fieldName(opts.SortBy.Field), Value: dir}})
		}
		if opts.Limit > 0 {
			find.SetLimit(int64(opts.Limit))
		}
		if opts.Offset > 0 {
			find.SetSkip(int64(opts.Offset))
		}
	}

	cursor, err := s.db.Collection(model).Find(ctx, filter, find)
	if err != nil {
		return nil, translate(err, model, "find")
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translate(err, model, "find")
	}

	out := make([]storage.Record, 0, len(docs))
	for _, doc := range docs {
		r, err := s.fromDocument(model, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, model string, where condition.Condition) (int64, error) {
	filter, err := s.filter(where)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(model).CountDocuments(ctx, filter)
	if err != nil {
		return 0, translate(err, model, "count")
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, model string, where condition.Condition) error {
	filter, err := s.filter(where)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(model).DeleteMany(ctx, filter); err != nil {
		return translate(err, model, "delete")
	}
	return nil
}

// Transaction runs fn in a session transaction. The deployment must be a
// replica set or sharded cluster.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx storage.Adapter) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return errors.NewDatabase(err, "start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, s)
	})
	return err
}

// filter translates a condition into a query document.
func (s *Store) filter(where condition.Condition) (bson.M, error) {
	if err := condition.Validate(where); err != nil {
		return nil, err
	}
	return translateNode(condition.Normalize(where))
}

func translateNode(c condition.Condition) (bson.M, error) {
	switch v := c.(type) {
	case nil:
		return bson.M{}, nil
	case condition.Leaf:
		return translateLeaf(v)
	case condition.Group:
		parts := make(bson.A, 0, len(v.Children))
		for _, child := range v.Children {
			m, err := translateNode(child)
			if err != nil {
				return nil, err
			}
			parts = append(parts, m)
		}
		if v.Kind == condition.Or {
			return bson.M{"$or": parts}, nil
		}
		return bson.M{"$and": parts}, nil
	}
	return nil, errors.NewValidation("", "", "unknown condition node")
}

func translateLeaf(l condition.Leaf) (bson.M, error) {
	field := fieldName(l.Field)
	switch l.Operator {
	case condition.OpEq:
		// An array operand matches the whole stored array in order. Scalar
		// operands on array fields, which Mongo would match per element,
		// fail schema validation before they get here.
		return bson.M{field: encode(l.Value)}, nil
	case condition.OpNe:
		return bson.M{field: bson.M{"$ne": encode(l.Value)}}, nil
	case condition.OpIn:
		values, _ := condition.Values(l.Value)
		args := make(bson.A, len(values))
		for i, v := range values {
			args[i] = encode(v)
		}
		return bson.M{field: bson.M{"$in": args}}, nil
	case condition.OpGt:
		return bson.M{field: bson.M{"$gt": encode(l.Value)}}, nil
	case condition.OpGte:
		return bson.M{field: bson.M{"$gte": encode(l.Value)}}, nil
	case condition.OpLt:
		return bson.M{field: bson.M{"$lt": encode(l.Value)}}, nil
	case condition.OpLte:
		return bson.M{field: bson.M{"$lte": encode(l.Value)}}, nil
	case condition.OpContains, condition.OpStartsWith, condition.OpEndsWith:
		pattern := regexp.QuoteMeta(l.Value.(string))
		switch l.Operator {
		case condition.OpStartsWith:
			pattern = "^" + pattern
		case condition.OpEndsWith:
			// $ would also match before a trailing newline.
			pattern += `\z`
		}
		return bson.M{field: bson.M{"$regex": bson.Regex{Pattern: pattern}}}, nil
	}
	return nil, errors.NewUnsupportedOperator(name, string(l.Operator))
}

func fieldName(field string) string {
	if field == schema.IDField {
		return "_id"
	}
	return field
}

// encode normalizes numbers to float64 and times to UTC.
func encode(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	}
	if f, ok := condition.ToFloat(v); ok {
		return f
	}
	if items, ok := condition.Values(v); ok {
		out := make(bson.A, len(items))
		for i, item := range items {
			out[i] = encode(item)
		}
		return out
	}
	return v
}

func toDocument(r storage.Record) bson.M {
	doc := make(bson.M, len(r))
	for k, v := range r {
		doc[fieldName(k)] = encode(v)
	}
	return doc
}

func (s *Store) fromDocument(model string, doc bson.M) (storage.Record, error) {
	fields, _ := s.schema.Load().Table(model)
	record := make(storage.Record, len(doc))
	for k, v := range doc {
		if k == "_id" {
			k = schema.IDField
		}
		v = plain(v)
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

// plain converts driver types to the ones records use.
func plain(v any) any {
	switch x := v.(type) {
	case bson.DateTime:
		return x.Time().UTC()
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = plain(item)
		}
		return out
	}
	return v
}

func translate(err error, model, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		return errors.NewConflict(model, "").WithInnerError(err)
	}
	return errors.NewDatabase(err, fmt.Sprintf("%s %s", op, model))
}
