package plugin

import (
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// State is a read view of merged contributions.
type State interface {
	Schema() *schema.Schema
	Providers() *provider.Table
}

type snapshot struct {
	schema    *schema.Schema
	providers *provider.Table
}

func (s snapshot) Schema() *schema.Schema     { return s.schema }
func (s snapshot) Providers() *provider.Table { return s.providers }

// Snapshot freezes a schema and provider table into a State. Nil values
// read as empty.
func Snapshot(s *schema.Schema, p *provider.Table) State {
	if s == nil {
		s = schema.Empty()
	}
	if p == nil {
		p = &provider.Table{}
	}
	return snapshot{schema: s, providers: p}
}

// Context is the dependency injection context passed to Init.
//
// Schema and Providers cover the plugin's resolved dependencies only.
// WithExtras returns a context reading the live merged state instead,
// which also reflects this plugin and everything resolved after it by the
// time it is read. DB is the same live handle in both.
type Context struct {
	PluginID string
	DB       *storage.DB
	Logger   logging.Logger
	Config   ConfigProvider

	view State
	live State
}

// ContextOption configures a Context.
type ContextOption func(*Context)

func WithContextLogger(l logging.Logger) ContextOption {
	return func(c *Context) { c.Logger = logging.OrNop(l) }
}

func WithContextConfig(cfg ConfigProvider) ContextOption {
	return func(c *Context) {
		if cfg != nil {
			c.Config = cfg
		}
	}
}

// NewContext builds the context for pluginID. scoped is the dependency-only
// view, live the growing merged state.
func NewContext(pluginID string, db *storage.DB, scoped, live State, opts ...ContextOption) *Context {
	c := &Context{
		PluginID: pluginID,
		DB:       db,
		Logger:   logging.NewNop(),
		Config:   EmptyConfig(),
		view:     scoped,
		live:     live,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Logger = c.Logger.With(logging.Plugin(pluginID))
	return c
}

// Schema returns the schema visible to the plugin.
func (c *Context) Schema() *schema.Schema { return c.view.Schema() }

// Providers returns the provider table visible to the plugin.
func (c *Context) Providers() *provider.Table { return c.view.Providers() }

// WithExtras returns a copy of c that reads the live merged state.
func (c *Context) WithExtras() *Context {
	cp := *c
	cp.view = c.live
	return &cp
}
