// Package condition defines the backend-agnostic query filter used by every
// storage adapter: a tree of leaves combined with AND/OR groups.
package condition

import (
	"fmt"
	"strings"
)

// Operator is a leaf comparison.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

// Operators lists every operator of the grammar.
var Operators = []Operator{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains, OpStartsWith, OpEndsWith,
}

// Known reports whether op belongs to the grammar.
func (op Operator) Known() bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// IsString reports whether op is a substring/prefix/suffix test.
func (op Operator) IsString() bool {
	return op == OpContains || op == OpStartsWith || op == OpEndsWith
}

// IsOrdering reports whether op compares magnitude.
func (op Operator) IsOrdering() bool {
	return op == OpGt || op == OpGte || op == OpLt || op == OpLte
}

// Connector joins sibling conditions.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// Condition is either a Leaf or a Group.
type Condition interface {
	condition()
	String() string
}

// Leaf compares one field against a value.
type Leaf struct {
	Field    string
	Operator Operator
	Value    any
}

func (Leaf) condition() {}

func (l Leaf) String() string {
	return fmt.Sprintf("%s %s %v", l.Field, l.op(), l.Value)
}

func (l Leaf) op() Operator {
	if l.Operator == "" {
		return OpEq
	}
	return l.Operator
}

// Group combines children with AND or OR.
type Group struct {
	Kind     Connector
	Children []Condition
}

func (Group) condition() {}

func (g Group) String() string {
	parts := make([]string, len(g.Children))
	for i, c := range g.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+string(g.kind())+" ") + ")"
}

func (g Group) kind() Connector {
	if g.Kind == "" {
		return And
	}
	return g.Kind
}

// Eq is shorthand for an equality leaf.
func Eq(field string, value any) Leaf {
	return Leaf{Field: field, Operator: OpEq, Value: value}
}

// New builds a leaf with an explicit operator.
func New(field string, op Operator, value any) Leaf {
	return Leaf{Field: field, Operator: op, Value: value}
}

// All returns an AND group.
func All(children ...Condition) Group {
	return Group{Kind: And, Children: children}
}

// Any returns an OR group.
func Any(children ...Condition) Group {
	return Group{Kind: Or, Children: children}
}

// Where is the wire form of a leaf, as accepted from plugins and HTTP bodies.
type Where struct {
	Field     string    `json:"field" validate:"required"`
	Value     any       `json:"value"`
	Operator  Operator  `json:"operator,omitempty"`
	Connector Connector `json:"connector,omitempty"`
}

// Parse folds a flat where list into a canonical tree.
//
// Entries without a connector, or with AND, are combined with AND. Entries
// marked OR form one OR group which is ANDed with the rest. A single entry
// yields a bare Leaf; an empty list yields nil (match everything).
func Parse(where []Where) (Condition, error) {
	if len(where) == 0 {
		return nil, nil
	}

	var ands, ors []Condition
	for _, w := range where {
		leaf := Leaf{Field: w.Field, Operator: w.Operator, Value: w.Value}
		if leaf.Operator == "" {
			leaf.Operator = OpEq
		}
		switch strings.ToUpper(string(w.Connector)) {
		case "", string(And):
			ands = append(ands, leaf)
		case string(Or):
			ors = append(ors, leaf)
		default:
			return nil, validationError(w.Field, string(w.Operator),
				fmt.Sprintf("unknown connector %q", w.Connector))
		}
	}

	switch {
	case len(ors) == 0 && len(ands) == 1:
		return ands[0], nil
	case len(ors) == 0:
		return Group{Kind: And, Children: ands}, nil
	case len(ands) == 0:
		if len(ors) == 1 {
			return ors[0], nil
		}
		return Group{Kind: Or, Children: ors}, nil
	default:
		return Group{Kind: And, Children: append(ands, Group{Kind: Or, Children: ors})}, nil
	}
}

// MustParse is Parse for static conditions; it panics on error.
func MustParse(where ...Where) Condition {
	c, err := Parse(where)
	if err != nil {
		panic(err)
	}
	return c
}

// Walk calls fn for every leaf in c, depth first, in child order.
func Walk(c Condition, fn func(Leaf) error) error {
	switch v := c.(type) {
	case nil:
		return nil
	case Leaf:
		return fn(v)
	case *Leaf:
		return fn(*v)
	case Group:
		for _, child := range v.Children {
			if err := Walk(child, fn); err != nil {
				return err
			}
		}
	case *Group:
		return Walk(*v, fn)
	}
	return nil
}

// Normalize dereferences pointer nodes and fills default operators and
// connectors so adapters only ever switch on value types.
func Normalize(c Condition) Condition {
	switch v := c.(type) {
	case nil:
		return nil
	case *Leaf:
		if v == nil {
			return nil
		}
		return Normalize(*v)
	case *Group:
		if v == nil {
			return nil
		}
		return Normalize(*v)
	case Leaf:
		v.Operator = v.op()
		return v
	case Group:
		children := make([]Condition, len(v.Children))
		for i, child := range v.Children {
			children[i] = Normalize(child)
		}
		return Group{Kind: v.kind(), Children: children}
	}
	return c
}
