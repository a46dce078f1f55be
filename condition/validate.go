package condition

import (
	"fmt"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/schema"
)

func validationError(field, op, msg string) error {
	return errors.NewValidation(field, op, msg)
}

// Validate checks the structure of c: non-empty groups, named fields and
// operand types that fit each operator. A nil condition is valid.
func Validate(c Condition) error {
	switch v := Normalize(c).(type) {
	case nil:
		return nil
	case Leaf:
		return validateLeaf(v)
	case Group:
		if v.Kind != And && v.Kind != Or {
			return validationError("", "", fmt.Sprintf("unknown group kind %q", v.Kind))
		}
		if len(v.Children) == 0 {
			return validationError("", "", "condition group must have at least one child")
		}
		for _, child := range v.Children {
			if child == nil {
				return validationError("", "", "condition group contains a nil child")
			}
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return validationError("", "", fmt.Sprintf("unknown condition node %T", c))
	}
}

func validateLeaf(l Leaf) error {
	op := string(l.Operator)
	if l.Field == "" {
		return validationError("", op, "condition field is required")
	}

	switch {
	case l.Operator == OpIn:
		if _, ok := Values(l.Value); !ok {
			return validationError(l.Field, op,
				fmt.Sprintf("operator in on %q requires an array value, got %T", l.Field, l.Value))
		}
	case l.Operator.IsString():
		if _, ok := l.Value.(string); !ok {
			return validationError(l.Field, op,
				fmt.Sprintf("operator %s on %q requires a string value, got %T", op, l.Field, l.Value))
		}
	case l.Operator.IsOrdering():
		if !IsNumeric(l.Value) && !IsTemporal(l.Value) {
			return validationError(l.Field, op,
				fmt.Sprintf("operator %s on %q requires a numeric or temporal value, got %T", op, l.Field, l.Value))
		}
	}
	// Unknown operators are structurally fine; adapters reject what they
	// cannot translate.
	return nil
}

// ValidateAgainst runs Validate and then checks every leaf against the
// table's fields: the field must exist, its type must fit the operator and
// eq/ne/in operands must have the field's type. nil is always a valid
// equality operand.
func ValidateAgainst(c Condition, table string, fields schema.Fields) error {
	if err := Validate(c); err != nil {
		return err
	}
	return Walk(Normalize(c), func(l Leaf) error {
		op := string(l.Operator)
		spec, ok := fields.Lookup(l.Field)
		if !ok {
			return validationError(l.Field, op, fmt.Sprintf("unknown field %s.%s", table, l.Field))
		}
		switch {
		case l.Operator.IsString() && spec.Type != schema.TypeString:
			return validationError(l.Field, op,
				fmt.Sprintf("operator %s requires a string field, %s.%s is %s", op, table, l.Field, spec.Type))
		case l.Operator.IsOrdering() && spec.Type != schema.TypeNumber && spec.Type != schema.TypeDate:
			return validationError(l.Field, op,
				fmt.Sprintf("operator %s requires a number or date field, %s.%s is %s", op, table, l.Field, spec.Type))
		}
		operands := []any{l.Value}
		switch l.Operator {
		case OpIn:
			operands, _ = Values(l.Value)
		case OpEq, OpNe:
		default:
			return nil
		}
		for _, v := range operands {
			if !fitsField(spec.Type, v) {
				return validationError(l.Field, op,
					fmt.Sprintf("operator %s on %s.%s (%s) cannot compare a %T", op, table, l.Field, spec.Type, v))
			}
		}
		return nil
	})
}

func fitsField(t schema.FieldType, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case schema.TypeString:
		_, ok := v.(string)
		return ok
	case schema.TypeNumber:
		return IsNumeric(v)
	case schema.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case schema.TypeDate:
		return IsTemporal(v)
	case schema.TypeStringArray, schema.TypeNumberArray:
		_, ok := Values(v)
		return ok
	}
	return true
}
