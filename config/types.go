package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/leeforge/billing/logging"
)

// Validator is implemented by bound targets that check themselves.
type Validator interface {
	Validate() error
}

// Config is a viper instance assembled from the config files of one
// directory, with environment variable overrides.
type Config struct {
	instance   *viper.Viper
	opts       ConfigOptions
	watchOnce  sync.Once
	watchMutex sync.RWMutex
	snapshot   map[string]any
}

type ConfigOptions struct {
	BasePath  string
	FileName  string
	FileType  string
	EnvPrefix string
	// WatchAble re-binds the target when a file changes.
	WatchAble bool
	OnChange  func(e fsnotify.Event)
	// LoadAll loads every base name found in BasePath, "config" first.
	LoadAll bool
	// AllowMissing yields an empty config instead of an error when no file
	// exists.
	AllowMissing bool
	Logger       logging.Logger
}
