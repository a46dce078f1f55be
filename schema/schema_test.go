package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/errors"
)

func TestMergeUnionsTables(t *testing.T) {
	s := Fold(
		Definition{"customer": {"email": {Type: TypeString, Required: true}}},
		nil,
		Definition{"usage": {"customerId": {Type: TypeString, References: &Reference{Model: "customer", Field: "id"}}}},
	)

	assert.Equal(t, []string{"customer", "usage"}, s.Tables())
	require.NoError(t, s.CheckReferences())
}

func TestMergeOverrideLaw(t *testing.T) {
	s1 := Definition{"customer": {
		"email": {Type: TypeString, Required: true},
		"name":  {Type: TypeString},
	}}
	s2 := Definition{"customer": {
		"name": {Type: TypeJSON, Required: true, Default: "{}"},
		"plan": {Type: TypeString, Default: "free"},
	}}

	forward := Fold(s1, s2)
	fields, ok := forward.Table("customer")
	require.True(t, ok)
	assert.Equal(t, []string{"email", "name", "plan"}, fields.Names())
	assert.Equal(t, s2["customer"]["name"], fields["name"])
	assert.Equal(t, s1["customer"]["email"], fields["email"])
	assert.Equal(t, s2["customer"]["plan"], fields["plan"])

	backward := Fold(s2, s1)
	name, _ := backward.Field("customer", "name")
	assert.Equal(t, s1["customer"]["name"], name)
	assert.False(t, forward.Equal(backward), "merge must not be commutative")
}

func TestSchemaIsImmutable(t *testing.T) {
	def := Definition{"customer": {"email": {Type: TypeString}}}
	m := NewMerger()
	m.Merge(def)
	s := m.Schema()

	def["customer"]["email"] = Field{Type: TypeNumber}
	fields, _ := s.Table("customer")
	fields["email"] = Field{Type: TypeBoolean}
	s.Definition()["customer"]["email"] = Field{Type: TypeJSON}

	email, _ := s.Field("customer", "email")
	assert.Equal(t, TypeString, email.Type)

	m.Merge(Definition{"customer": {"name": {Type: TypeString}}})
	_, ok := s.Field("customer", "name")
	assert.False(t, ok, "snapshot must not see later merges")
}

func TestFoldIsDeterministic(t *testing.T) {
	defs := []Definition{
		{"a": {"x": {Type: TypeString}}, "b": {"y": {Type: TypeNumber}}},
		{"b": {"y": {Type: TypeString}, "z": {Type: TypeDate}}},
	}
	first := Fold(defs...)
	for i := 0; i < 20; i++ {
		assert.True(t, first.Equal(Fold(defs...)))
	}
}

func TestImplicitIDField(t *testing.T) {
	s := Fold(Definition{"customer": {}})
	id, ok := s.Field("customer", IDField)
	require.True(t, ok)
	assert.Equal(t, TypeString, id.Type)
	_, ok = s.Field("missing", IDField)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Definition{"customer": {"email": {Type: TypeString}}}))

	err := Validate(Definition{"customer": {"email": {Type: "text"}}})
	assert.True(t, errors.IsValidation(err))

	err = Validate(Definition{"": {"email": {Type: TypeString}}})
	assert.True(t, errors.IsValidation(err))

	err = Validate(Definition{"usage": {"customerId": {Type: TypeString, References: &Reference{Model: "customer"}}}})
	assert.True(t, errors.IsValidation(err))
}

func TestCheckReferencesUnknownTarget(t *testing.T) {
	s := Fold(Definition{"usage": {"customerId": {Type: TypeString, References: &Reference{Model: "customer", Field: "id"}}}})
	err := s.CheckReferences()
	assert.True(t, errors.IsConfiguration(err))
}
