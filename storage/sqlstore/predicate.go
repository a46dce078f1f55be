package sqlstore

import (
	"strings"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"

	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/errors"
)

// predicate translates a condition tree. A nil condition yields a nil
// predicate, which callers treat as "no WHERE clause".
func (s *Store) predicate(where condition.Condition) (*sql.Predicate, error) {
	if err := condition.Validate(where); err != nil {
		return nil, err
	}
	return s.translateNode(condition.Normalize(where))
}

func (s *Store) translateNode(c condition.Condition) (*sql.Predicate, error) {
	switch v := c.(type) {
	case nil:
		return nil, nil
	case condition.Leaf:
		return s.leaf(v)
	case condition.Group:
		preds := make([]*sql.Predicate, 0, len(v.Children))
		for _, child := range v.Children {
			p, err := s.translateNode(child)
			if err != nil {
				return nil, err
			}
			preds = append(preds, p)
		}
		if v.Kind == condition.Or {
			return sql.Or(preds...), nil
		}
		return sql.And(preds...), nil
	}
	return nil, errors.NewValidation("", "", "unknown condition node")
}

// leaf maps one comparison. NULL handling follows the in-memory evaluator:
// a missing value equals nil and differs from every non-nil value.
func (s *Store) leaf(l condition.Leaf) (*sql.Predicate, error) {
	col := l.Field
	switch l.Operator {
	case condition.OpEq:
		if l.Value == nil {
			return sql.IsNull(col), nil
		}
		return sql.EQ(col, s.encodeArg(l.Value)), nil
	case condition.OpNe:
		if l.Value == nil {
			return sql.NotNull(col), nil
		}
		return sql.Or(sql.NEQ(col, s.encodeArg(l.Value)), sql.IsNull(col)), nil
	case condition.OpIn:
		values, _ := condition.Values(l.Value)
		args := make([]any, 0, len(values))
		withNull := false
		for _, v := range values {
			if v == nil {
				withNull = true
				continue
			}
			args = append(args, s.encodeArg(v))
		}
		var p *sql.Predicate
		if len(args) == 0 {
			p = sql.False()
		} else {
			p = sql.In(col, args...)
		}
		if withNull {
			p = sql.Or(p, sql.IsNull(col))
		}
		return p, nil
	case condition.OpGt:
		return sql.GT(col, s.encodeArg(l.Value)), nil
	case condition.OpGte:
		return sql.GTE(col, s.encodeArg(l.Value)), nil
	case condition.OpLt:
		return sql.LT(col, s.encodeArg(l.Value)), nil
	case condition.OpLte:
		return sql.LTE(col, s.encodeArg(l.Value)), nil
	case condition.OpContains, condition.OpStartsWith, condition.OpEndsWith:
		return s.match(col, l.Operator, l.Value.(string)), nil
	}
	return nil, errors.NewUnsupportedOperator(s.Name(), string(l.Operator))
}

// match builds a case-sensitive substring test. PostgreSQL gets an escaped
// LIKE. SQLite's LIKE folds ASCII case, so it compares with instr and substr
// instead, which need no escaping.
func (s *Store) match(col string, op condition.Operator, needle string) *sql.Predicate {
	if needle == "" {
		return sql.NotNull(col)
	}

	if s.dialect != dialect.SQLite {
		pattern := escapeLike(needle)
		switch op {
		case condition.OpContains:
			pattern = "%" + pattern + "%"
		case condition.OpStartsWith:
			pattern += "%"
		default:
			pattern = "%" + pattern
		}
		return sql.P(func(b *sql.Builder) {
			b.Ident(col).WriteString(" LIKE ").Arg(pattern).WriteString(` ESCAPE '\'`)
		})
	}

	return sql.P(func(b *sql.Builder) {
		switch op {
		case condition.OpContains:
			b.WriteString("instr(").Ident(col).WriteString(", ").Arg(needle).WriteString(") > 0")
		case condition.OpStartsWith:
			b.WriteString("substr(").Ident(col).WriteString(", 1, length(").Arg(needle).WriteString(")) = ").Arg(needle)
		default:
			b.WriteString("substr(").Ident(col).WriteString(", -length(").Arg(needle).WriteString(")) = ").Arg(needle)
		}
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
