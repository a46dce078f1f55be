package billing

import (
	"fmt"

	validatorV10 "github.com/go-playground/validator/v10"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/hook"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/runtime"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

var validator = validatorV10.New()

type ownedEndpoint struct {
	endpoint plugin.Endpoint
	owner    string
}

// core is the mutable state filled while plugins resolve. It doubles as
// the live plugin.State handed to every plugin context.
type core struct {
	adapter   storage.Adapter
	db        *storage.DB
	schemas   *schema.Merger
	providers *provider.Merger
	hooks     *hook.Manager
	methods   *plugin.MethodRegistry
	endpoints map[string]ownedEndpoint
	logger    logging.Logger
}

func newCore(adapter storage.Adapter, hooks *hook.Manager, logger logging.Logger) *core {
	return &core{
		adapter:   adapter,
		db:        storage.NewDB(adapter, hooks, logger),
		schemas:   schema.NewMerger(),
		providers: provider.NewMerger(),
		hooks:     hooks,
		methods:   plugin.NewMethodRegistry(),
		endpoints: make(map[string]ownedEndpoint),
		logger:    logger,
	}
}

func (c *core) Schema() *schema.Schema     { return c.schemas.Schema() }
func (c *core) Providers() *provider.Table { return c.providers.Table() }

// fold merges one plugin's result. Everything is validated before any
// registry changes.
func (c *core) fold(r runtime.Resolved) error {
	id := r.Descriptor.ID
	res := r.Result

	if err := schema.Validate(res.Schema); err != nil {
		return err
	}
	for _, ep := range res.Endpoints {
		if err := validator.Struct(ep); err != nil {
			return errors.NewValidation("endpoint", "",
				fmt.Sprintf("invalid endpoint %q: %v", ep.Name, err)).WithInnerError(err)
		}
	}
	for _, b := range res.Hooks {
		if b.Name == "" || b.Handler == nil {
			return errors.NewValidation("hook", "", fmt.Sprintf("hook binding %q has no name or handler", b.Name))
		}
	}

	for _, contribution := range res.Providers {
		if err := c.providers.Add(contribution); err != nil {
			return err
		}
	}
	if len(res.Methods) > 0 {
		if err := c.methods.Register(id, res.Methods); err != nil {
			return err
		}
	}

	c.schemas.Merge(res.Schema)
	c.db.SetSchema(c.schemas.Schema())
	c.hooks.RegisterMany(res.Hooks)

	for _, ep := range res.Endpoints {
		if prev, ok := c.endpoints[ep.Name]; ok {
			c.logger.Debug("endpoint replaced",
				logging.Endpoint(ep.Name),
				logging.Plugin(id),
				logging.Plugins([]string{prev.owner, id}),
			)
		}
		c.endpoints[ep.Name] = ownedEndpoint{endpoint: ep, owner: id}
	}
	return nil
}
