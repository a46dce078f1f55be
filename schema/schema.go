// Package schema merges per-plugin table definitions into one immutable
// schema. Tables are unioned; fields are last-write-wins.
package schema

import (
	"reflect"
	"sort"
)

// FieldType is the storage-neutral type of a field.
type FieldType string

const (
	TypeString      FieldType = "string"
	TypeNumber      FieldType = "number"
	TypeBoolean     FieldType = "boolean"
	TypeDate        FieldType = "date"
	TypeJSON        FieldType = "json"
	TypeStringArray FieldType = "string[]"
	TypeNumberArray FieldType = "number[]"
)

// IDField is present on every table without being declared.
const IDField = "id"

// Reference points a field at another table's field.
type Reference struct {
	Model string `json:"model" validate:"required"`
	Field string `json:"field" validate:"required"`
}

// Field describes one column.
type Field struct {
	Type       FieldType  `json:"type" validate:"required,oneof=string number boolean date json string[] number[]"`
	Required   bool       `json:"required,omitempty"`
	Default    any        `json:"default,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
	References *Reference `json:"references,omitempty"`
}

// Fields maps field name to Field.
type Fields map[string]Field

// Lookup returns the field called name, including the implicit id field.
func (f Fields) Lookup(name string) (Field, bool) {
	if spec, ok := f[name]; ok {
		return spec, true
	}
	if name == IDField {
		return Field{Type: TypeString, Required: true, Unique: true}, true
	}
	return Field{}, false
}

// Names returns the field names sorted, without the implicit id.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		if name == IDField {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for name, spec := range f {
		if spec.References != nil {
			ref := *spec.References
			spec.References = &ref
		}
		out[name] = spec
	}
	return out
}

// Definition is one plugin's contribution: table name to fields.
type Definition map[string]Fields

// Clone deep-copies the definition.
func (d Definition) Clone() Definition {
	out := make(Definition, len(d))
	for table, fields := range d {
		out[table] = fields.clone()
	}
	return out
}

// Schema is the frozen result of merging. All accessors return copies.
type Schema struct {
	tables Definition
}

// Empty returns a schema with no tables.
func Empty() *Schema {
	return &Schema{tables: Definition{}}
}

// Tables returns the table names sorted.
func (s *Schema) Tables() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasTable reports whether name was contributed.
func (s *Schema) HasTable(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.tables[name]
	return ok
}

// Table returns a copy of the fields of table name.
func (s *Schema) Table(name string) (Fields, bool) {
	if s == nil {
		return nil, false
	}
	fields, ok := s.tables[name]
	if !ok {
		return nil, false
	}
	return fields.clone(), true
}

// Field returns one field spec.
func (s *Schema) Field(table, field string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	fields, ok := s.tables[table]
	if !ok {
		return Field{}, false
	}
	return fields.Lookup(field)
}

// Definition returns a deep copy of the merged tables.
func (s *Schema) Definition() Definition {
	if s == nil {
		return Definition{}
	}
	return s.tables.Clone()
}

// Equal compares two schemas structurally.
func (s *Schema) Equal(other *Schema) bool {
	return reflect.DeepEqual(s.Definition(), other.Definition())
}
