package plugin

import (
	"github.com/leeforge/billing/condition"
	"github.com/leeforge/billing/json"
)

// ConfigProvider gives a plugin read access to its own settings block.
type ConfigProvider interface {
	Get(key string) (any, bool)
	GetString(key string, defaultVal string) string
	GetInt(key string, defaultVal int) int
	GetFloat(key string, defaultVal float64) float64
	GetBool(key string, defaultVal bool) bool
	// Bind decodes the settings into target, filling `default` tags first.
	Bind(target any) error
	IsEnabled() bool
}

// PluginConfigEntry is one plugin's settings block.
type PluginConfigEntry struct {
	id       string
	enabled  bool
	settings map[string]any
}

// NewPluginConfigEntry creates a config entry for plugin id.
func NewPluginConfigEntry(id string, enabled bool, settings map[string]any) *PluginConfigEntry {
	cp := make(map[string]any, len(settings))
	for k, v := range settings {
		cp[k] = v
	}
	return &PluginConfigEntry{id: id, enabled: enabled, settings: cp}
}

// NewMapConfigProvider creates an enabled, anonymous entry. Handy in tests.
func NewMapConfigProvider(settings map[string]any) *PluginConfigEntry {
	return NewPluginConfigEntry("", true, settings)
}

// ID returns the plugin id the entry belongs to.
func (c *PluginConfigEntry) ID() string { return c.id }

func (c *PluginConfigEntry) Get(key string) (any, bool) {
	v, ok := c.settings[key]
	return v, ok
}

func (c *PluginConfigEntry) GetString(key string, defaultVal string) string {
	if s, ok := c.settings[key].(string); ok {
		return s
	}
	return defaultVal
}

func (c *PluginConfigEntry) GetInt(key string, defaultVal int) int {
	if f, ok := condition.ToFloat(c.settings[key]); ok {
		return int(f)
	}
	return defaultVal
}

func (c *PluginConfigEntry) GetFloat(key string, defaultVal float64) float64 {
	if f, ok := condition.ToFloat(c.settings[key]); ok {
		return f
	}
	return defaultVal
}

func (c *PluginConfigEntry) GetBool(key string, defaultVal bool) bool {
	if b, ok := c.settings[key].(bool); ok {
		return b
	}
	return defaultVal
}

func (c *PluginConfigEntry) Bind(target any) error {
	data, err := json.Marshal(c.settings)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func (c *PluginConfigEntry) IsEnabled() bool { return c.enabled }

type emptyConfig struct{}

func (emptyConfig) Get(string) (any, bool)               { return nil, false }
func (emptyConfig) GetString(_ string, d string) string  { return d }
func (emptyConfig) GetInt(_ string, d int) int           { return d }
func (emptyConfig) GetFloat(_ string, d float64) float64 { return d }
func (emptyConfig) GetBool(_ string, d bool) bool        { return d }
func (emptyConfig) Bind(target any) error                { return json.Unmarshal([]byte("{}"), target) }
func (emptyConfig) IsEnabled() bool                      { return true }

// EmptyConfig returns defaults for every key. Bind still fills `default`
// tags. A plugin without a settings block counts as enabled.
func EmptyConfig() ConfigProvider { return emptyConfig{} }
