package sqlstore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/json"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// sqliteTime is fixed width so text comparison matches time order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// columnTypes maps field types per dialect. Arrays and JSON are stored as
// encoded text in both.
var columnTypes = map[string]map[schema.FieldType]string{
	dialect.SQLite: {
		schema.TypeString:      "TEXT",
		schema.TypeNumber:      "REAL",
		schema.TypeBoolean:     "INTEGER",
		schema.TypeDate:        "TEXT",
		schema.TypeJSON:        "TEXT",
		schema.TypeStringArray: "TEXT",
		schema.TypeNumberArray: "TEXT",
	},
	dialect.Postgres: {
		schema.TypeString:      "TEXT",
		schema.TypeNumber:      "DOUBLE PRECISION",
		schema.TypeBoolean:     "BOOLEAN",
		schema.TypeDate:        "TIMESTAMPTZ",
		schema.TypeJSON:        "TEXT",
		schema.TypeStringArray: "TEXT",
		schema.TypeNumberArray: "TEXT",
	},
}

func (s *Store) columnType(t schema.FieldType) string {
	if ct, ok := columnTypes[s.dialect][t]; ok {
		return ct
	}
	return "TEXT"
}

func (s *Store) encodeTime(t time.Time) any {
	t = t.UTC()
	if s.dialect == dialect.SQLite {
		return t.Format(sqliteTime)
	}
	return t
}

// encodeField prepares a record value for a column of the given field.
// Unknown columns are encoded by their Go type.
func (s *Store) encodeField(fields schema.Fields, col string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	spec, ok := fields.Lookup(col)
	if !ok {
		return s.encodeArg(v), nil
	}
	switch spec.Type {
	case schema.TypeJSON, schema.TypeStringArray, schema.TypeNumberArray:
		encoded, err := json.MarshalToString(v)
		if err != nil {
			return nil, errors.NewValidation(col, "", fmt.Sprintf("cannot encode %s: %v", col, err))
		}
		return encoded, nil
	}
	return s.encodeArg(v), nil
}

// encodeArg converts a comparison operand to a driver value.
func (s *Store) encodeArg(v any) any {
	switch x := v.(type) {
	case nil, string, bool:
		return x
	case time.Time:
		return s.encodeTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return s.encodeTime(*x)
	}
	if f, ok := condition.ToFloat(v); ok {
		return f
	}
	if _, ok := condition.Values(v); ok {
		if encoded, err := json.MarshalToString(v); err == nil {
			return encoded
		}
	}
	if _, ok := v.(map[string]any); ok {
		if encoded, err := json.MarshalToString(v); err == nil {
			return encoded
		}
	}
	return v
}

// decodeField converts a scanned column back to the canonical Go type of
// its field. Columns the schema does not know are returned as scanned.
func (s *Store) decodeField(fields schema.Fields, col string, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	spec, ok := fields.Lookup(col)
	if !ok {
		return v, nil
	}
	switch spec.Type {
	case schema.TypeJSON, schema.TypeStringArray, schema.TypeNumberArray:
		text, ok := v.(string)
		if !ok {
			break
		}
		var decoded any
		if err := json.UnmarshalFromString(text, &decoded); err != nil {
			return nil, err
		}
		if spec.Type == schema.TypeJSON {
			return decoded, nil
		}
		v = decoded
	}
	return storage.CoerceValue(spec.Type, v)
}

// translate maps driver errors onto billing errors. Unique violations
// become conflicts.
func (s *Store) translate(err error, model, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errors.NewConflict(model, pgErr.ColumnName).WithInnerError(err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && (liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return errors.NewConflict(model, uniqueColumn(liteErr.Error())).WithInnerError(err)
	}
	return errors.NewDatabase(err, fmt.Sprintf("%s %s", op, model))
}

// uniqueColumn pulls the column from "UNIQUE constraint failed: t.col".
func uniqueColumn(msg string) string {
	idx := strings.LastIndex(msg, ".")
	if idx < 0 || idx == len(msg)-1 {
		return ""
	}
	col := msg[idx+1:]
	if end := strings.IndexAny(col, " )"); end >= 0 {
		col = col[:end]
	}
	return col
}

func sortedKeys(r storage.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
