// Package sqlstore is the relational adapter. Queries are built with ent's
// dialect/sql builder, so the same code serves SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"sync/atomic"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// executor is satisfied by *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (stdsql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*stdsql.Rows, error)
}

// Store implements storage.Adapter over database/sql.
type Store struct {
	db      *stdsql.DB
	exec    executor
	inTx    bool
	dialect string
	schema  *atomic.Pointer[schema.Schema]
	logger  logging.Logger
}

var (
	_ storage.Adapter    = (*Store)(nil)
	_ storage.Transactor = (*Store)(nil)
	_ storage.Counter    = (*Store)(nil)
	_ storage.Migrator   = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration output.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// New wraps an open database. name is an ent dialect name, dialect.SQLite
// or dialect.Postgres.
func New(db *stdsql.DB, name string, opts ...Option) (*Store, error) {
	switch name {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, errors.New(errors.ErrorTypeConfiguration,
			fmt.Sprintf("sqlstore: unsupported dialect %q", name))
	}
	s := &Store{
		db:      db,
		exec:    db,
		dialect: name,
		schema:  &atomic.Pointer[schema.Schema]{},
		logger:  logging.NewNop(),
	}
	s.schema.Store(schema.Empty())
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenSQLite opens a SQLite database with the pure Go modernc driver. dsn
// is a file path or ":memory:". A single connection is kept open so an
// in-memory database survives between calls.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := stdsql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewDatabase(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewDatabase(err, "ping sqlite")
	}
	return New(db, dialect.SQLite, opts...)
}

// OpenPostgres opens a PostgreSQL database through pgx's database/sql
// driver.
func OpenPostgres(ctx context.Context, dsn string, maxOpenConns int, opts ...Option) (*Store, error) {
	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.NewDatabase(err, "open postgres")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewDatabase(err, "ping postgres")
	}
	return New(db, dialect.Postgres, opts...)
}

func (s *Store) Name() string { return s.dialect }

// DB returns the underlying database.
func (s *Store) DB() *stdsql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) builder() *sql.DialectBuilder { return sql.Dialect(s.dialect) }

func (s *Store) fields(model string) schema.Fields {
	fields, _ := s.schema.Load().Table(model)
	return fields
}

func (s *Store) Create(ctx context.Context, model string, data storage.Record) (storage.Record, error) {
	record := data.Clone()
	if record.ID() == "" {
		record[schema.IDField] = storage.NewID()
	}

	fields := s.fields(model)
	columns := sortedKeys(record)
	values := make([]any, len(columns))
	for i, col := range columns {
		v, err := s.encodeField(fields, col, record[col])
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	query, args := s.builder().Insert(model).Columns(columns...).Values(values...).Query()
	if _, err := s.exec.ExecContext(ctx, query, args...); err != nil {
		return nil, s.translate(err, model, "insert")
	}
	return record, nil
}

// Update changes the first matching row. The lookup and the write share a
// transaction.
func (s *Store) Update(ctx context.Context, model string, where condition.Condition, data storage.Record) (storage.Record, error) {
	var updated storage.Record
	err := s.Transaction(ctx, func(ctx context.Context, tx storage.Adapter) error {
		var err error
		updated, err = tx.(*Store).update(ctx, model, where, data)
		return err
	})
	return updated, err
}

func (s *Store) update(ctx context.Context, model string, where condition.Condition, data storage.Record) (storage.Record, error) {
	current, err := s.FindOne(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NewNotFound(model, where)
	}
	id := current.ID()
	if len(data) == 0 {
		return current, nil
	}

	fields := s.fields(model)
	update := s.builder().Update(model)
	for _, col := range sortedKeys(data) {
		v, err := s.encodeField(fields, col, data[col])
		if err != nil {
			return nil, err
		}
		update.Set(col, v)
	}
	query, args := update.Where(sql.EQ(schema.IDField, id)).Query()
	if _, err := s.exec.ExecContext(ctx, query, args...); err != nil {
		return nil, s.translate(err, model, "update")
	}

	for k, v := range data {
		current[k] = v
	}
	return current, nil
}

func (s *Store) FindOne(ctx context.Context, model string, where condition.Condition) (storage.Record, error) {
	records, err := s.FindMany(ctx, model, where, &storage.FindOptions{Limit: 1})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (s *Store) FindMany(ctx context.Context, model string, where condition.Condition, opts *storage.FindOptions) ([]storage.Record, error) {
	pred, err := s.predicate(where)
	if err != nil {
		return nil, err
	}

	b := s.builder()
	selector := b.Select("*").From(b.Table(model))
	if pred != nil {
		selector.Where(pred)
	}
	if opts != nil {
		if opts.SortBy != nil {
			col, desc := opts.SortBy.Field, opts.SortBy.Desc
			selector.OrderExpr(sql.ExprFunc(func(b *sql.Builder) {
				b.Ident(col)
				if desc {
					b.WriteString(" DESC")
				}
			}))
		}
		switch {
		case opts.Limit > 0:
			selector.Limit(opts.Limit)
		case opts.Offset > 0 && s.dialect == dialect.SQLite:
			// SQLite only accepts OFFSET after a LIMIT.
			selector.Limit(-1)
		}
		if opts.Offset > 0 {
			selector.Offset(opts.Offset)
		}
	}

	query, args := selector.Query()
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.translate(err, model, "select")
	}
	defer rows.Close()
	return s.scan(model, rows)
}

func (s *Store) Count(ctx context.Context, model string, where condition.Condition) (int64, error) {
	pred, err := s.predicate(where)
	if err != nil {
		return 0, err
	}
	b := s.builder()
	selector := b.Select(sql.Count("*")).From(b.Table(model))
	if pred != nil {
		selector.Where(pred)
	}
	query, args := selector.Query()
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, s.translate(err, model, "count")
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, errors.NewDatabase(err, "count")
		}
	}
	return n, rows.Err()
}

func (s *Store) Delete(ctx context.Context, model string, where condition.Condition) error {
	pred, err := s.predicate(where)
	if err != nil {
		return err
	}
	del := s.builder().Delete(model)
	if pred != nil {
		del.Where(pred)
	}
	query, args := del.Query()
	if _, err := s.exec.ExecContext(ctx, query, args...); err != nil {
		return s.translate(err, model, "delete")
	}
	return nil
}

// Transaction runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx storage.Adapter) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabase(err, "begin")
	}
	txStore := &Store{
		db:      s.db,
		exec:    tx,
		inTx:    true,
		dialect: s.dialect,
		schema:  s.schema,
		logger:  s.logger,
	}
	if err := fn(ctx, txStore); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Warn("rollback failed", logging.Adapter(s.dialect), zap.Error(rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewDatabase(err, "commit")
	}
	return nil
}

func (s *Store) scan(model string, rows *stdsql.Rows) ([]storage.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.NewDatabase(err, "columns")
	}
	fields := s.fields(model)

	var out []storage.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.NewDatabase(err, "scan")
		}

		record := make(storage.Record, len(columns))
		for i, col := range columns {
			if values[i] == nil {
				continue
			}
			v, err := s.decodeField(fields, col, values[i])
			if err != nil {
				return nil, errors.NewDatabase(err, fmt.Sprintf("decode %s.%s", model, col))
			}
			record[col] = v
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabase(err, "rows")
	}
	return out, nil
}
