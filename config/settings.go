package config

import (
	"sort"
	"strings"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
	"github.com/leeforge/billing/plugin"
	"github.com/leeforge/billing/storage"
)

// Settings is the application configuration file layout:
//
//	base-path: /api/billing
//	auto-migrate: true
//	storage:
//	  driver: sqlite
//	  dsn: billing.db
//	log:
//	  level: debug
//	plugins:
//	  stripe:
//	    settings:
//	      secret_key: sk_test_123
//
// Viper lower-cases keys, so plugin settings keys should be lower case.
type Settings struct {
	BasePath    string                    `mapstructure:"base-path" json:"basePath" yaml:"base-path" default:"/api/billing"`
	AutoMigrate bool                      `mapstructure:"auto-migrate" json:"autoMigrate" yaml:"auto-migrate"`
	Storage     storage.Config            `mapstructure:"storage" json:"storage" yaml:"storage"`
	Log         logging.Config            `mapstructure:"log" json:"log" yaml:"log"`
	Plugins     map[string]PluginSettings `mapstructure:"plugins" json:"plugins" yaml:"plugins"`
}

// PluginSettings is one plugin's block. A missing enabled flag means true.
type PluginSettings struct {
	Enabled  *bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Settings map[string]any `mapstructure:"settings" json:"settings" yaml:"settings"`
}

// IsEnabled reports whether the plugin is switched on.
func (p PluginSettings) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Validate checks values that defaults cannot repair.
func (s *Settings) Validate() error {
	if !strings.HasPrefix(s.BasePath, "/") {
		return errors.NewConfiguration("base-path must start with /: " + s.BasePath)
	}
	if !s.Storage.Driver.Valid() {
		return errors.NewConfiguration("unknown storage driver: " + string(s.Storage.Driver))
	}
	return nil
}

// PluginConfig returns the settings block for plugin id, or an empty
// enabled provider when there is none.
func (s *Settings) PluginConfig(id string) plugin.ConfigProvider {
	if s == nil {
		return plugin.EmptyConfig()
	}
	p, ok := s.Plugins[strings.ToLower(id)]
	if !ok {
		return plugin.EmptyConfig()
	}
	return plugin.NewPluginConfigEntry(id, p.IsEnabled(), p.Settings)
}

// PluginIDs lists the configured plugin ids in order.
func (s *Settings) PluginIDs() []string {
	ids := make([]string, 0, len(s.Plugins))
	for id := range s.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load reads the files selected by opts into Settings.
func Load(optsArr ...ConfigOptions) (*Settings, error) {
	cfg, err := NewConfig(optsArr...)
	if err != nil {
		return nil, err
	}
	s := &Settings{}
	if err := cfg.BindWithDefaults(s); err != nil {
		return nil, err
	}
	return s, nil
}
