// Package hook dispatches named lifecycle events to ordered handlers.
package hook

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
)

// Context is shared by every handler of one Run. Handlers may mutate Data
// and Values; later handlers observe the changes.
type Context struct {
	Name   string
	Model  string
	Data   map[string]any
	Where  any
	Result map[string]any
	Values map[string]any
}

// Set stores a value for later handlers.
func (c *Context) Set(key string, value any) {
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[key] = value
}

// Get reads a value stored by an earlier handler.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Handler handles one hook invocation.
type Handler func(ctx context.Context, hc *Context) error

// Binding pairs a hook name with a handler, for ordered bulk registration.
type Binding struct {
	Name    string
	Handler Handler
}

// Registration identifies one registered handler, for Remove.
type Registration struct {
	name string
	id   uint64
}

// Name returns the hook the handler was registered for.
func (r Registration) Name() string { return r.name }

// Observer is told about every handler failure. It must not block.
type Observer interface {
	HandlerFailed(name string, index int, err error)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(name string, index int, err error)

func (f ObserverFunc) HandlerFailed(name string, index int, err error) { f(name, index, err) }

type entry struct {
	id      uint64
	handler Handler
}

// Manager keeps hook name -> ordered handlers.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	nextID   atomic.Uint64
	logger   logging.Logger
	observer Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger that receives handler failures.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(l) }
}

// WithObserver sets an additional failure observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		handlers: make(map[string][]entry),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register appends handler to name's list.
func (m *Manager) Register(name string, handler Handler) Registration {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID.Add(1)
	m.handlers[name] = append(m.handlers[name], entry{id: id, handler: handler})
	return Registration{name: name, id: id}
}

// RegisterMany registers bindings in slice order.
func (m *Manager) RegisterMany(bindings []Binding) []Registration {
	regs := make([]Registration, 0, len(bindings))
	for _, b := range bindings {
		regs = append(regs, m.Register(b.Name, b.Handler))
	}
	return regs
}

// Run invokes name's handlers sequentially in registration order with the
// same hc. Failures, including panics, are logged and skipped; Run never
// fails because of a handler. hc may be nil.
func (m *Manager) Run(ctx context.Context, name string, hc *Context) {
	m.mu.RLock()
	entries := append([]entry(nil), m.handlers[name]...)
	m.mu.RUnlock()

	if len(entries) == 0 {
		return
	}
	if hc == nil {
		hc = &Context{}
	}
	if hc.Name == "" {
		hc.Name = name
	}

	for i, e := range entries {
		if err := m.invoke(ctx, e.handler, hc); err != nil {
			m.logger.Warn("hook handler failed",
				logging.Hook(name),
				logging.HandlerIndex(i),
				zap.Error(err))
			if m.observer != nil {
				m.observer.HandlerFailed(name, i, err)
			}
		}
	}
}

func (m *Manager) invoke(ctx context.Context, h Handler, hc *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.FromPanic(r)
		}
	}()
	return h(ctx, hc)
}

// HasHandlers reports whether name has at least one handler.
func (m *Manager) HasHandlers(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[name]) > 0
}

// Len returns the number of handlers registered for name.
func (m *Manager) Len(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[name])
}

// Remove unregisters one handler. It reports whether it was found.
func (m *Manager) Remove(name string, reg Registration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.handlers[name]
	for i, e := range entries {
		if e.id != reg.id {
			continue
		}
		rest := append(entries[:i:i], entries[i+1:]...)
		if len(rest) == 0 {
			delete(m.handlers, name)
		} else {
			m.handlers[name] = rest
		}
		return true
	}
	return false
}

// Clear drops every handler.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[string][]entry)
}

// Names returns hook names with handlers, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
