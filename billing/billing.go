// Package billing composes plugins into one runtime: merged schema,
// provider table, hooks, methods and HTTP endpoints over a storage adapter.
package billing

import (
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/leeforge/billing/config"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/http/router"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/runtime"
	"github.com/leeforge/billing/runtime/migration"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
	"github.com/leeforge/billing/storage/factory"
)

// Config describes what to build.
type Config struct {
	Plugins []*plugin.Descriptor
	// Storage opens the adapter unless WithAdapter supplies one.
	Storage  storage.Config
	BasePath string `default:"/api/billing"`
	// AutoMigrate applies the merged schema before New returns.
	AutoMigrate bool
}

// ConfigFromSettings builds a Config for plugins from loaded application
// settings. Pair it with WithSettings.
func ConfigFromSettings(s *config.Settings, plugins ...*plugin.Descriptor) Config {
	return Config{
		Plugins:     plugins,
		Storage:     s.Storage,
		BasePath:    s.BasePath,
		AutoMigrate: s.AutoMigrate,
	}
}

type options struct {
	logger   logging.Logger
	logCfg   *logging.Config
	adapter  storage.Adapter
	observer hook.Observer
	configs  runtime.ConfigSource
}

// Option configures New.
type Option func(*options)

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = logging.OrNop(l) }
}

// WithAdapter uses adapter instead of opening Config.Storage. Close still
// closes it when it implements io.Closer.
func WithAdapter(adapter storage.Adapter) Option {
	return func(o *options) { o.adapter = adapter }
}

// WithHookObserver reports hook handler failures to obs as well as the log.
func WithHookObserver(obs hook.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithPluginConfig supplies each plugin's settings block.
func WithPluginConfig(src runtime.ConfigSource) Option {
	return func(o *options) { o.configs = src }
}

// WithSettings takes plugin settings from loaded application settings. The
// logger is built from s.Log unless WithLogger is given as well.
func WithSettings(s *config.Settings) Option {
	return func(o *options) {
		if s == nil {
			return
		}
		o.configs = s.PluginConfig
		logCfg := s.Log
		o.logCfg = &logCfg
	}
}

// Billing is the composed runtime. Schema, provider table and endpoint
// table are fixed after New; the hook manager stays mutable.
type Billing struct {
	adapter   storage.Adapter
	closer    factory.CloseFunc
	db        *storage.DB
	schema    *schema.Schema
	providers *provider.Table
	hooks     *hook.Manager
	methods   *plugin.MethodRegistry
	endpoints []plugin.Endpoint
	handler   http.Handler
	order     []string
	logger    logging.Logger
}

// New resolves cfg.Plugins in dependency order and merges their
// contributions. It returns nil and a ConfigurationError when any plugin is
// invalid or fails to initialize.
func New(ctx context.Context, cfg Config, opts ...Option) (*Billing, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	switch {
	case o.logger != nil:
	case o.logCfg != nil:
		o.logger = logging.NewLogger(*o.logCfg)
	default:
		o.logger = logging.NewNop()
	}
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.NewConfiguration("invalid billing config").WithInnerError(err)
	}
	logger := o.logger.Named("billing")

	adapter, closer := o.adapter, factory.CloseFunc(nil)
	if adapter == nil {
		var err error
		adapter, closer, err = factory.Open(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
	}
	fail := func(err error) (*Billing, error) {
		if closer != nil {
			if cerr := closer(ctx); cerr != nil {
				logger.WithError(cerr).Warn("closing storage after failed construction")
			}
		}
		return nil, err
	}

	hooks := hook.NewManager(hook.WithLogger(logger.Named("hooks")), hook.WithObserver(o.observer))
	c := newCore(adapter, hooks, logger)
	resolver := runtime.NewResolver(c.db, c,
		runtime.WithLogger(logger),
		runtime.WithConfigSource(o.configs),
	)
	resolved, err := resolver.Resolve(ctx, cfg.Plugins, c.fold)
	if err != nil {
		return fail(err)
	}

	b := c.freeze(cfg.BasePath, resolved)
	b.closer = closer
	if cfg.AutoMigrate {
		if err := b.Migrate(ctx); err != nil {
			return fail(err)
		}
	}

	logger.Info("billing ready",
		logging.Plugins(b.order),
		logging.Adapter(adapter.Name()),
		zap.Int("endpoints", len(b.endpoints)),
		zap.Strings("providers", b.providers.IDs()),
	)
	return b, nil
}

func (c *core) freeze(basePath string, resolved []runtime.Resolved) *Billing {
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	endpoints := make([]plugin.Endpoint, len(names))
	for i, name := range names {
		endpoints[i] = c.endpoints[name].endpoint
	}

	order := make([]string, len(resolved))
	for i, r := range resolved {
		order[i] = r.Descriptor.ID
	}

	return &Billing{
		adapter:   c.adapter,
		db:        c.db,
		schema:    c.schemas.Schema(),
		providers: c.providers.Table(),
		hooks:     c.hooks,
		methods:   c.methods,
		endpoints: endpoints,
		handler:   router.New(basePath, endpoints, c.logger.Named("http")),
		order:     order,
		logger:    c.logger,
	}
}

// Methods returns plugin methods namespaced by plugin id.
func (b *Billing) Methods() *plugin.MethodRegistry { return b.methods }

// Providers returns the merged provider table.
func (b *Billing) Providers() *provider.Table { return b.providers }

// Schema returns the merged schema.
func (b *Billing) Schema() *schema.Schema { return b.schema }

// Hooks returns the hook manager shared with the DB handle.
func (b *Billing) Hooks() *hook.Manager { return b.hooks }

// Endpoints returns the endpoint table sorted by name.
func (b *Billing) Endpoints() []plugin.Endpoint {
	return append([]plugin.Endpoint(nil), b.endpoints...)
}

// Handler serves every endpoint under the configured base path.
func (b *Billing) Handler() http.Handler { return b.handler }

// DB returns the storage handle plugins received.
func (b *Billing) DB() *storage.DB { return b.db }

// Order returns plugin ids in resolution order.
func (b *Billing) Order() []string { return append([]string(nil), b.order...) }

// Migrate applies the merged schema to the adapter. Adapters without
// migration support are left alone.
func (b *Billing) Migrate(ctx context.Context) error {
	m := migration.NewManager(migration.NewAdapterStrategy(b.adapter), b.logger.Named("migration"))
	return m.Run(ctx, b.schema)
}

// Close releases the storage backend.
func (b *Billing) Close() error {
	if b.closer != nil {
		return b.closer(context.Background())
	}
	if c, ok := b.adapter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
