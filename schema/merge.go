package schema

import (
	"fmt"
	"sync"

	validatorV10 "github.com/go-playground/validator/v10"

	"github.com/leeforge/billing/errors"
)

var validator = validatorV10.New()

// Merger folds definitions in order. It is safe for concurrent use, though
// folding is expected to happen from a single goroutine during construction.
type Merger struct {
	mu     sync.RWMutex
	tables Definition
}

// NewMerger creates an empty merger.
func NewMerger() *Merger {
	return &Merger{tables: Definition{}}
}

// Merge folds def into the accumulated schema. A table seen for the first
// time is copied verbatim. For an existing table each redeclared field
// replaces the earlier one; other fields are left untouched.
func (m *Merger) Merge(def Definition) {
	if len(def) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for table, fields := range def {
		existing, ok := m.tables[table]
		if !ok {
			m.tables[table] = fields.clone()
			continue
		}
		for name, spec := range fields.clone() {
			existing[name] = spec
		}
	}
}

// Schema returns an immutable snapshot of what has been merged so far.
func (m *Merger) Schema() *Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Schema{tables: m.tables.Clone()}
}

// Fold merges defs left to right.
func Fold(defs ...Definition) *Schema {
	m := NewMerger()
	for _, def := range defs {
		m.Merge(def)
	}
	return m.Schema()
}

// Validate checks a contribution's structure: table and field names are
// non-empty and every field carries a known type.
func Validate(def Definition) error {
	for table, fields := range def {
		if table == "" {
			return errors.NewValidation("", "", "schema table name is required")
		}
		for name, spec := range fields {
			if name == "" {
				return errors.NewValidation("", "", fmt.Sprintf("table %s has a field without a name", table))
			}
			if err := validator.Struct(spec); err != nil {
				return errors.NewValidation(name, "",
					fmt.Sprintf("invalid field %s.%s: %v", table, name, err)).WithInnerError(err)
			}
		}
	}
	return nil
}

// CheckReferences verifies that every reference in s targets an existing
// table and field.
func (s *Schema) CheckReferences() error {
	for _, table := range s.Tables() {
		fields := s.tables[table]
		for _, name := range fields.Names() {
			ref := fields[name].References
			if ref == nil {
				continue
			}
			if _, ok := s.Field(ref.Model, ref.Field); !ok {
				return errors.NewConfiguration(
					fmt.Sprintf("field %s.%s references unknown %s.%s", table, name, ref.Model, ref.Field))
			}
		}
	}
	return nil
}
