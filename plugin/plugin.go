// Package plugin defines what a billing plugin is: a descriptor with
// dependencies and an init function returning its contributions.
package plugin

import (
	"net/http"

	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/schema"
)

// InitFunc builds a plugin's contributions. It runs once, after every
// dependency has been resolved.
type InitFunc func(ctx *Context) (*Result, error)

// Descriptor declares a plugin. Descriptors are compared by pointer, so a
// shared dependency listed by several plugins is resolved once.
type Descriptor struct {
	ID           string
	Dependencies []*Descriptor
	// RequiredProviders must be present in the final provider table.
	RequiredProviders []string
	Init              InitFunc
}

// Result is everything a plugin contributes. Every part is optional.
type Result struct {
	Schema    schema.Definition
	Providers []provider.Contribution
	Endpoints []Endpoint
	Hooks     []hook.Binding
	Methods   map[string]Method
}

// Endpoint is one HTTP route. Names are global; a later plugin that uses
// the same name replaces the earlier endpoint.
type Endpoint struct {
	Name    string           `validate:"required"`
	Method  string           `validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Path    string           `validate:"required,startswith=/"`
	Handler http.HandlerFunc `validate:"required"`
}
