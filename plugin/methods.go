package plugin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/json"
)

// Method is a plugin operation exposed to callers.
type Method func(ctx context.Context, input any) (any, error)

// MethodRegistry keeps plugin methods namespaced by plugin id, so
// "usage.recordUsage" and "customer.recordUsage" never collide.
type MethodRegistry struct {
	bags map[string]map[string]Method
	mu   sync.RWMutex
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{bags: make(map[string]map[string]Method)}
}

// Register adds methods under pluginID. A plugin may register once.
func (mr *MethodRegistry) Register(pluginID string, methods map[string]Method) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.bags[pluginID]; exists {
		return errors.NewConfiguration(fmt.Sprintf("methods for plugin %q already registered", pluginID), pluginID)
	}
	bag := make(map[string]Method, len(methods))
	for name, m := range methods {
		if name == "" || m == nil {
			return errors.NewValidation("", "", fmt.Sprintf("plugin %q has an unnamed or nil method", pluginID))
		}
		bag[name] = m
	}
	mr.bags[pluginID] = bag
	return nil
}

// Has reports whether pluginID exposes method.
func (mr *MethodRegistry) Has(pluginID, method string) bool {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	_, ok := mr.bags[pluginID][method]
	return ok
}

// Bag returns a copy of pluginID's methods.
func (mr *MethodRegistry) Bag(pluginID string) (map[string]Method, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	bag, ok := mr.bags[pluginID]
	if !ok {
		return nil, false
	}
	out := make(map[string]Method, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out, true
}

// Keys returns every "pluginID.method", sorted.
func (mr *MethodRegistry) Keys() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	var keys []string
	for id, bag := range mr.bags {
		for name := range bag {
			keys = append(keys, id+"."+name)
		}
	}
	sort.Strings(keys)
	return keys
}

// Call invokes pluginID.method.
func (mr *MethodRegistry) Call(ctx context.Context, pluginID, method string, input any) (any, error) {
	mr.mu.RLock()
	m, ok := mr.bags[pluginID][method]
	mr.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFound("method", pluginID+"."+method)
	}
	return m(ctx, input)
}

// CallKey invokes a method by its "pluginID.method" key.
func (mr *MethodRegistry) CallKey(ctx context.Context, key string, input any) (any, error) {
	pluginID, method, ok := strings.Cut(key, ".")
	if !ok {
		return nil, errors.NewValidation("", "", fmt.Sprintf("method key %q is not pluginID.method", key))
	}
	return mr.Call(ctx, pluginID, method, input)
}

// Invoke calls a method and asserts its result type.
func Invoke[T any](ctx context.Context, mr *MethodRegistry, pluginID, method string, input any) (T, error) {
	var zero T
	out, err := mr.Call(ctx, pluginID, method, input)
	if err != nil {
		return zero, err
	}
	typed, ok := out.(T)
	if !ok {
		return zero, errors.NewInternal(fmt.Sprintf("%s.%s returned %T, want %T", pluginID, method, out, zero))
	}
	return typed, nil
}

// MustInvoke is Invoke that panics on error.
func MustInvoke[T any](ctx context.Context, mr *MethodRegistry, pluginID, method string, input any) T {
	out, err := Invoke[T](ctx, mr, pluginID, method, input)
	if err != nil {
		panic(err)
	}
	return out
}

// Typed adapts fn to a Method. The input may be an In, a *In, or any value
// that JSON-encodes to an In, such as a map from a generic caller.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Method {
	return func(ctx context.Context, input any) (any, error) {
		in, err := DecodeInput[In](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// DecodeInput converts a method input into T.
func DecodeInput[T any](input any) (T, error) {
	var out T
	switch v := input.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
		return out, nil
	case nil:
		return out, nil
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return out, errors.NewValidation("", "", fmt.Sprintf("cannot encode input %T", input)).WithInnerError(err)
	}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return out, errors.NewValidation("", "", fmt.Sprintf("input %T does not fit %T", input, out)).WithInnerError(err)
	}
	return out, nil
}
