// Package runtime orders plugin descriptors by dependency and initializes
// them one at a time, handing each result to a fold callback.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/provider"
	"github.com/leeforge/billing/schema"
	"github.com/leeforge/billing/storage"
)

// Resolved pairs a descriptor with what its Init returned.
type Resolved struct {
	Descriptor *plugin.Descriptor
	Result     *plugin.Result
}

// FoldFunc merges one resolved plugin into the live state. It runs before
// the next plugin initializes.
type FoldFunc func(Resolved) error

// ConfigSource returns the settings block for a plugin id.
type ConfigSource func(id string) plugin.ConfigProvider

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(l logging.Logger) Option {
	return func(r *Resolver) { r.logger = logging.OrNop(l) }
}

func WithConfigSource(src ConfigSource) Option {
	return func(r *Resolver) {
		if src != nil {
			r.configs = src
		}
	}
}

// Resolver turns descriptor graphs into initialized plugins.
type Resolver struct {
	db      *storage.DB
	live    plugin.State
	logger  logging.Logger
	configs ConfigSource
}

// NewResolver creates a resolver. db is handed to every plugin; live must
// reflect each fold by the time the next plugin initializes.
func NewResolver(db *storage.DB, live plugin.State, opts ...Option) *Resolver {
	r := &Resolver{
		db:      db,
		live:    live,
		logger:  logging.NewNop(),
		configs: func(string) plugin.ConfigProvider { return plugin.EmptyConfig() },
	}
	if r.live == nil {
		r.live = plugin.Snapshot(nil, nil)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Order returns every descriptor reachable from roots, dependencies before
// dependents. Roots and dependencies are visited in declaration order and
// each descriptor appears once.
func (r *Resolver) Order(roots []*plugin.Descriptor) ([]*plugin.Descriptor, error) {
	s := &sorter{
		state: make(map[*plugin.Descriptor]plugin.PluginState),
		ids:   make(map[string]*plugin.Descriptor),
	}
	for _, d := range roots {
		if err := s.visit(d); err != nil {
			return nil, err
		}
	}
	return s.order, nil
}

type sorter struct {
	state map[*plugin.Descriptor]plugin.PluginState
	ids   map[string]*plugin.Descriptor
	path  []string
	order []*plugin.Descriptor
}

func (s *sorter) visit(d *plugin.Descriptor) error {
	if d == nil {
		return errors.NewConfiguration(fmt.Sprintf("nil plugin descriptor under %s", s.describePath()))
	}
	switch s.state[d] {
	case plugin.StateResolved:
		return nil
	case plugin.StateVisiting:
		return errors.NewConfiguration("dependency cycle: "+s.cycle(d.ID), s.cycleIDs(d.ID)...)
	case plugin.StateFailed:
		return errors.NewConfiguration(fmt.Sprintf("plugin %q is invalid", d.ID), d.ID)
	}

	if err := s.check(d); err != nil {
		s.state[d] = plugin.StateFailed
		return err
	}

	s.state[d] = plugin.StateVisiting
	s.path = append(s.path, d.ID)
	for _, dep := range d.Dependencies {
		if err := s.visit(dep); err != nil {
			return err
		}
	}
	s.path = s.path[:len(s.path)-1]
	s.state[d] = plugin.StateResolved
	s.order = append(s.order, d)
	return nil
}

func (s *sorter) check(d *plugin.Descriptor) error {
	if d.ID == "" {
		return errors.NewConfiguration(fmt.Sprintf("plugin descriptor under %s has no id", s.describePath()))
	}
	if other, ok := s.ids[d.ID]; ok && other != d {
		return errors.NewConfiguration(fmt.Sprintf("two different plugins share the id %q", d.ID), d.ID)
	}
	if d.Init == nil {
		return errors.NewConfiguration(fmt.Sprintf("plugin %q has no init function", d.ID), d.ID)
	}
	s.ids[d.ID] = d
	return nil
}

func (s *sorter) describePath() string {
	if len(s.path) == 0 {
		return "roots"
	}
	return strings.Join(s.path, " -> ")
}

// cycleIDs returns the path from id's first occurrence back to id.
func (s *sorter) cycleIDs(id string) []string {
	start := 0
	for i, p := range s.path {
		if p == id {
			start = i
			break
		}
	}
	ids := append([]string(nil), s.path[start:]...)
	return append(ids, id)
}

func (s *sorter) cycle(id string) string {
	return strings.Join(s.cycleIDs(id), " -> ")
}

// Resolve orders roots, then initializes and folds each plugin in order.
// Every plugin sees the state merged from its transitive dependencies; the
// live state is reachable through Context.WithExtras.
func (r *Resolver) Resolve(ctx context.Context, roots []*plugin.Descriptor, fold FoldFunc) ([]Resolved, error) {
	start := time.Now()
	order, err := r.Order(roots)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(order))
	for i, d := range order {
		ids[i] = d.ID
	}
	r.logger.Debug("dependency resolution completed", logging.Plugins(ids))

	results := make(map[*plugin.Descriptor]*plugin.Result, len(order))
	resolved := make([]Resolved, 0, len(order))
	disabled := make(map[*plugin.Descriptor]bool)
	for _, d := range order {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewConfiguration("plugin resolution canceled").WithInnerError(err)
		}

		scoped, err := r.scopedState(d, order, results)
		if err != nil {
			return nil, err
		}
		cfg := r.configs(d.ID)
		if cfg == nil {
			cfg = plugin.EmptyConfig()
		}
		pctx := plugin.NewContext(d.ID, r.db, scoped, r.live,
			plugin.WithContextLogger(r.logger),
			plugin.WithContextConfig(cfg),
		)

		res := &plugin.Result{}
		if cfg.IsEnabled() {
			if res, err = r.initialize(d, pctx); err != nil {
				return nil, err
			}
		} else {
			disabled[d] = true
			r.logger.Info("plugin disabled", logging.Plugin(d.ID))
		}
		results[d] = res

		item := Resolved{Descriptor: d, Result: res}
		if fold != nil {
			if err := fold(item); err != nil {
				return nil, wrapPluginError(d.ID, "merge", err)
			}
		}
		resolved = append(resolved, item)
		r.logger.Debug("plugin resolved", logging.Plugin(d.ID))
	}

	if err := r.checkRequiredProviders(order, disabled); err != nil {
		return nil, err
	}

	r.logger.Info("plugins resolved",
		logging.Plugins(ids),
		zap.Duration("duration", time.Since(start)),
	)
	return resolved, nil
}

func (r *Resolver) initialize(d *plugin.Descriptor, pctx *plugin.Context) (res *plugin.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = wrapPluginError(d.ID, "init", errors.FromPanic(p))
		}
	}()

	res, err = d.Init(pctx)
	if err != nil {
		return nil, wrapPluginError(d.ID, "init", err)
	}
	if res == nil {
		res = &plugin.Result{}
	}
	return res, nil
}

// scopedState folds the results of d's transitive dependencies in
// resolution order.
func (r *Resolver) scopedState(d *plugin.Descriptor, order []*plugin.Descriptor, results map[*plugin.Descriptor]*plugin.Result) (plugin.State, error) {
	deps := make(map[*plugin.Descriptor]bool)
	var collect func(*plugin.Descriptor)
	collect = func(n *plugin.Descriptor) {
		for _, dep := range n.Dependencies {
			if !deps[dep] {
				deps[dep] = true
				collect(dep)
			}
		}
	}
	collect(d)

	schemas := schema.NewMerger()
	providers := provider.NewMerger()
	for _, n := range order {
		if !deps[n] {
			continue
		}
		res := results[n]
		schemas.Merge(res.Schema)
		for _, c := range res.Providers {
			if err := providers.Add(c); err != nil {
				return nil, wrapPluginError(n.ID, "merge", err)
			}
		}
	}
	return plugin.Snapshot(schemas.Schema(), providers.Table()), nil
}

func (r *Resolver) checkRequiredProviders(order []*plugin.Descriptor, disabled map[*plugin.Descriptor]bool) error {
	table := r.live.Providers()
	for _, d := range order {
		if disabled[d] {
			continue
		}
		for _, id := range d.RequiredProviders {
			if !table.Has(id) {
				return errors.NewConfiguration(
					fmt.Sprintf("plugin %q requires provider %q, which no plugin contributes", d.ID, id),
					d.ID, id,
				)
			}
		}
	}
	return nil
}

func wrapPluginError(id, phase string, err error) error {
	return errors.NewConfiguration(fmt.Sprintf("plugin %q %s failed", id, phase), id).WithInnerError(err)
}
