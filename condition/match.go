package condition

import (
	"strings"

	"github.com/leeforge/billing/errors"
)

// Match evaluates c against a record. It is the reference semantics every
// adapter translation must agree with. A nil condition matches everything;
// a missing record field is treated as nil.
func Match(c Condition, record map[string]any) (bool, error) {
	if err := Validate(c); err != nil {
		return false, err
	}
	return match(Normalize(c), record)
}

func match(c Condition, record map[string]any) (bool, error) {
	switch v := c.(type) {
	case nil:
		return true, nil
	case Leaf:
		return matchLeaf(v, record[v.Field])
	case Group:
		if v.Kind == Or {
			for _, child := range v.Children {
				ok, err := match(child, record)
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil
		}
		for _, child := range v.Children {
			ok, err := match(child, record)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

func matchLeaf(l Leaf, actual any) (bool, error) {
	switch l.Operator {
	case OpEq:
		return Equal(actual, l.Value), nil
	case OpNe:
		return !Equal(actual, l.Value), nil
	case OpIn:
		values, _ := Values(l.Value)
		for _, candidate := range values {
			if Equal(actual, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := Compare(actual, l.Value)
		if !ok {
			return false, nil
		}
		switch l.Operator {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpContains, OpStartsWith, OpEndsWith:
		s, ok := actual.(string)
		if !ok {
			return false, nil
		}
		needle := l.Value.(string)
		switch l.Operator {
		case OpContains:
			return strings.Contains(s, needle), nil
		case OpStartsWith:
			return strings.HasPrefix(s, needle), nil
		default:
			return strings.HasSuffix(s, needle), nil
		}
	}
	return false, errors.NewUnsupportedOperator("reference", string(l.Operator))
}

// Filter returns the records matching c, preserving input order.
func Filter[R ~map[string]any](c Condition, records []R) ([]R, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}
	c = Normalize(c)
	out := make([]R, 0, len(records))
	for _, r := range records {
		ok, err := match(c, map[string]any(r))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
