package plugin

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/errors"
)

func echo(_ context.Context, input any) (any, error) { return input, nil }

func TestMethodRegistryNamespacesByPlugin(t *testing.T) {
	mr := NewMethodRegistry()
	require.NoError(t, mr.Register("usage", map[string]Method{"record": echo}))
	require.NoError(t, mr.Register("customer", map[string]Method{
		"record": func(context.Context, any) (any, error) { return "customer", nil },
	}))

	out, err := mr.Call(context.Background(), "usage", "record", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, out)

	out, err = mr.CallKey(context.Background(), "customer.record", nil)
	require.NoError(t, err)
	assert.Equal(t, "customer", out)

	assert.Equal(t, []string{"customer.record", "usage.record"}, mr.Keys())
	assert.True(t, mr.Has("usage", "record"))
	assert.False(t, mr.Has("usage", "cancel"))
}

func TestMethodRegistryRejectsDuplicatesAndNil(t *testing.T) {
	mr := NewMethodRegistry()
	require.NoError(t, mr.Register("usage", map[string]Method{"record": echo}))

	err := mr.Register("usage", map[string]Method{"other": echo})
	assert.True(t, errors.IsConfiguration(err))

	err = mr.Register("broken", map[string]Method{"record": nil})
	assert.True(t, errors.IsValidation(err))
	_, ok := mr.Bag("broken")
	assert.False(t, ok)
}

func TestMethodRegistryUnknownMethod(t *testing.T) {
	mr := NewMethodRegistry()
	_, err := mr.Call(context.Background(), "usage", "record", nil)
	assert.True(t, errors.IsNotFound(err))

	_, err = mr.CallKey(context.Background(), "nodot", nil)
	assert.True(t, errors.IsValidation(err))
}

func TestMethodRegistryBagIsCopy(t *testing.T) {
	mr := NewMethodRegistry()
	require.NoError(t, mr.Register("usage", map[string]Method{"record": echo}))

	bag, ok := mr.Bag("usage")
	require.True(t, ok)
	delete(bag, "record")
	assert.True(t, mr.Has("usage", "record"))
}

func TestInvoke(t *testing.T) {
	mr := NewMethodRegistry()
	require.NoError(t, mr.Register("usage", map[string]Method{"record": echo}))
	ctx := context.Background()

	n, err := Invoke[int](ctx, mr, "usage", "record", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = Invoke[string](ctx, mr, "usage", "record", 7)
	require.Error(t, err)

	assert.Equal(t, "x", MustInvoke[string](ctx, mr, "usage", "record", "x"))
	assert.Panics(t, func() { MustInvoke[string](ctx, mr, "usage", "missing", nil) })
}

type greetInput struct {
	Name  string `json:"name"`
	Times int    `json:"times" default:"1"`
}

func TestTypedDecodesInputs(t *testing.T) {
	greet := Typed(func(_ context.Context, in greetInput) (string, error) {
		return strings.Repeat("hi "+in.Name+";", in.Times), nil
	})
	ctx := context.Background()

	out, err := greet(ctx, greetInput{Name: "ann", Times: 2})
	require.NoError(t, err)
	assert.Equal(t, "hi ann;hi ann;", out)

	out, err = greet(ctx, &greetInput{Name: "bo", Times: 1})
	require.NoError(t, err)
	assert.Equal(t, "hi bo;", out)

	out, err = greet(ctx, map[string]any{"name": "cy"})
	require.NoError(t, err)
	assert.Equal(t, "hi cy;", out)

	_, err = greet(ctx, map[string]any{"times": "many"})
	assert.True(t, errors.IsValidation(err))
}
