package sqlstore

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"go.uber.org/zap"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/schema"
)

// Migrate creates missing tables and adds missing columns. It never drops
// or alters existing columns. The schema is kept for decoding rows.
func (s *Store) Migrate(ctx context.Context, sc *schema.Schema) error {
	if sc == nil {
		sc = schema.Empty()
	}
	for _, table := range sc.Tables() {
		fields, _ := sc.Table(table)
		existing, err := s.columns(ctx, table)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := s.createTable(ctx, table, fields); err != nil {
				return err
			}
			s.logger.Info("created table", logging.Adapter(s.dialect), logging.Model(table))
			continue
		}
		for _, name := range fields.Names() {
			if existing[name] {
				continue
			}
			query := s.builder().String(func(b *sql.Builder) {
				b.WriteString("ALTER TABLE ").Ident(table).WriteString(" ADD COLUMN ").
					Join(sql.Column(name).Type(s.columnType(fields[name].Type)))
			})
			if _, err := s.exec.ExecContext(ctx, query); err != nil {
				return errors.NewDatabase(err, "add column "+table+"."+name)
			}
			s.logger.Info("added column", logging.Adapter(s.dialect), logging.Model(table), zap.String("column", name))
		}
	}
	s.schema.Store(sc)
	return nil
}

func (s *Store) createTable(ctx context.Context, table string, fields schema.Fields) error {
	query := s.builder().String(func(b *sql.Builder) {
		b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(table).Pad().Wrap(func(b *sql.Builder) {
			b.Join(sql.Column(schema.IDField).Type("TEXT NOT NULL PRIMARY KEY"))
			for _, name := range fields.Names() {
				b.Comma().Join(sql.Column(name).Type(s.columnDef(fields[name])))
			}
		})
	})
	if _, err := s.exec.ExecContext(ctx, query); err != nil {
		return errors.NewDatabase(err, "create table "+table)
	}
	return nil
}

// columnDef is the column type with its NOT NULL and UNIQUE constraints.
func (s *Store) columnDef(spec schema.Field) string {
	def := s.columnType(spec.Type)
	if spec.Required {
		def += " NOT NULL"
	}
	if spec.Unique {
		def += " UNIQUE"
	}
	return def
}

// columns returns the column set of table, or nil when it does not exist.
func (s *Store) columns(ctx context.Context, table string) (map[string]bool, error) {
	b := s.builder()
	query, args := b.Select("*").From(b.Table(table)).Limit(0).Query()
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		exists, lookupErr := s.tableExists(ctx, table)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if !exists {
			return nil, nil
		}
		return nil, errors.NewDatabase(err, "inspect "+table)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.NewDatabase(err, "inspect "+table)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var query string
	var args []any
	if s.dialect == dialect.SQLite {
		query, args = sql.Select(sql.Count("*")).From(sql.Table("sqlite_master")).
			Where(sql.And(sql.EQ("type", "table"), sql.EQ("name", table))).Query()
	} else {
		query, args = sql.Dialect(s.dialect).Select(sql.Count("*")).
			From(sql.Table("tables").Schema("information_schema")).
			Where(sql.And(sql.ExprP("table_schema = current_schema()"), sql.EQ("table_name", table))).Query()
	}
	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return false, errors.NewDatabase(err, "lookup table "+table)
	}
	defer rows.Close()

	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, errors.NewDatabase(err, "lookup table "+table)
		}
	}
	return n > 0, rows.Err()
}
