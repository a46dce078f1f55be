package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/logging"
)

func DefaultConfigOptions() ConfigOptions {
	basePath := os.Getenv("CONFIG_PATH")
	if basePath == "" {
		basePath = "config"
	}

	return ConfigOptions{
		BasePath:  basePath,
		FileName:  "config",
		FileType:  "yaml",
		EnvPrefix: "BILLING",
	}
}

func DevConfigOptions() ConfigOptions {
	opts := DefaultConfigOptions()
	opts.WatchAble = true
	return opts
}

func NewConfig(optsArr ...ConfigOptions) (*Config, error) {
	opts := DefaultConfigOptions()
	if len(optsArr) > 0 {
		opts = optsArr[0]
	}
	opts.Logger = logging.OrNop(opts.Logger)

	instance, err := CreateConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Config{
		instance: instance,
		opts:     opts,
	}, nil
}

// Bind decodes the config into target, a pointer. With WatchAble set,
// target is decoded again on every file change.
func (c *Config) Bind(target any) error {
	if c == nil || c.instance == nil {
		return errors.NewConfiguration("config instance is nil")
	}
	if target == nil {
		return errors.NewConfiguration("bind target is nil")
	}

	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	if err := c.instance.Unmarshal(target); err != nil {
		return errors.NewConfiguration(fmt.Sprintf("failed to unmarshal config (path: %s, file: %s.%s)",
			c.opts.BasePath, c.opts.FileName, c.opts.FileType)).WithInnerError(err)
	}

	if c.opts.WatchAble {
		c.watchOnce.Do(func() {
			c.instance.OnConfigChange(func(e fsnotify.Event) {
				c.watchMutex.Lock()
				defer c.watchMutex.Unlock()

				if err := c.instance.Unmarshal(target); err != nil {
					c.opts.Logger.WithError(err).Error("config reload failed")
					return
				}
				c.opts.Logger.Info("config reloaded")

				if c.opts.OnChange != nil {
					c.opts.OnChange(e)
				}
			})
			c.instance.WatchConfig()
		})
	}

	return nil
}

// BindWithDefaults fills `default` tags, binds, then fills defaults again
// for anything the files left zero.
func (c *Config) BindWithDefaults(target any) error {
	if err := defaults.Set(target); err != nil {
		return errors.NewConfiguration("failed to set defaults").WithInnerError(err)
	}

	if err := c.Bind(target); err != nil {
		return err
	}

	if err := defaults.Set(target); err != nil {
		return errors.NewConfiguration("failed to set defaults after unmarshal").WithInnerError(err)
	}

	if v, ok := target.(Validator); ok {
		return v.Validate()
	}
	return nil
}

func (c *Config) Export(path string) error {
	if path == "" {
		return errors.NewConfiguration("export path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return errors.NewConfiguration("failed to create directory " + dir).WithInnerError(err)
	}

	c.watchMutex.RLock()
	defer c.watchMutex.RUnlock()
	if err := c.instance.WriteConfigAs(path); err != nil {
		return errors.NewConfiguration("failed to write config to " + path).WithInnerError(err)
	}

	return nil
}

func (c *Config) Snapshot() (map[string]any, error) {
	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	snapshot := make(map[string]any)
	if err := c.instance.Unmarshal(&snapshot); err != nil {
		return nil, errors.NewConfiguration("failed to create snapshot").WithInnerError(err)
	}

	c.snapshot = snapshot
	return snapshot, nil
}

func (c *Config) Restore() error {
	c.watchMutex.RLock()
	snapshot := c.snapshot
	c.watchMutex.RUnlock()

	if snapshot == nil {
		return errors.NewConfiguration("no snapshot available to restore")
	}
	return c.RestoreFrom(snapshot)
}

func (c *Config) RestoreFrom(snapshot map[string]any) error {
	if snapshot == nil {
		return errors.NewConfiguration("snapshot is nil")
	}

	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	for k, v := range snapshot {
		c.instance.Set(k, v)
	}

	c.snapshot = snapshot
	return nil
}

func (c *Config) Get(key string) any {
	c.watchMutex.RLock()
	defer c.watchMutex.RUnlock()

	return c.instance.Get(key)
}

func (c *Config) Set(key string, value any) {
	c.watchMutex.Lock()
	defer c.watchMutex.Unlock()

	c.instance.Set(key, value)
}

// Files returns the files that were merged, in load order.
func (c *Config) Files() []string {
	return configFiles(c.opts)
}

// CreateConfig merges the files for the current mode, later files winning,
// and applies environment overrides on top.
func CreateConfig(opts ConfigOptions) (*viper.Viper, error) {
	paths := configFiles(opts)
	if len(paths) == 0 && !opts.AllowMissing {
		return nil, errors.NewConfiguration("no configuration files found in path: " + opts.BasePath)
	}

	v := viper.New()
	v.SetConfigType(opts.FileType)
	if len(paths) > 0 {
		// The watcher follows the most specific file.
		v.SetConfigFile(paths[len(paths)-1])
	}

	for _, path := range paths {
		tempV := viper.New()
		tempV.SetConfigFile(path)
		if err := tempV.ReadInConfig(); err != nil {
			return nil, errors.NewConfiguration("error reading config file " + path).WithInnerError(err)
		}

		for _, key := range tempV.AllKeys() {
			v.Set(key, tempV.Get(key))
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.AutomaticEnv()

	applyEnvOverrides(v, opts.EnvPrefix)

	return v, nil
}

// applyEnvOverrides lets PREFIX_SECTION_KEY override section.key for every
// key present in the files.
func applyEnvOverrides(v *viper.Viper, envPrefix string) {
	replacer := strings.NewReplacer(".", "_", "-", "_")

	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(replacer.Replace(key))
		if envPrefix != "" {
			envKey = strings.ToUpper(envPrefix) + "_" + envKey
		}

		if envValue, ok := os.LookupEnv(envKey); ok && envValue != "" {
			v.Set(key, envValue)
		}
	}
}

func configFiles(opts ConfigOptions) []string {
	if opts.LoadAll {
		return getAllConfigFilePaths(opts)
	}
	return getConfigFilePaths(opts)
}

func getConfigFilePaths(opts ConfigOptions) (configFiles []string) {
	mode := CurrentMode()
	fileNames := []string{
		opts.FileName,
		opts.FileName + ".local",
	}
	seen := map[string]struct{}{opts.FileName: {}, opts.FileName + ".local": {}}
	for _, suffix := range append([]string{string(mode)}, mode.aliases()...) {
		for _, name := range []string{opts.FileName + "." + suffix, opts.FileName + "." + suffix + ".local"} {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			fileNames = append(fileNames, name)
		}
	}

	for _, fileName := range fileNames {
		file := filepath.Join(opts.BasePath, fileName+"."+opts.FileType)
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			configFiles = append(configFiles, file)
		}
	}

	return configFiles
}

func getAllConfigFilePaths(opts ConfigOptions) (configFiles []string) {
	baseNames := getConfigBaseNames(opts.BasePath, opts.FileType)
	if len(baseNames) == 0 {
		return nil
	}

	sort.Strings(baseNames)
	baseNames = moveFirst(baseNames, opts.FileName)
	seen := make(map[string]struct{}, len(baseNames))
	for _, baseName := range baseNames {
		tempOpts := opts
		tempOpts.FileName = baseName
		tempOpts.LoadAll = false
		for _, path := range getConfigFilePaths(tempOpts) {
			if _, exists := seen[path]; exists {
				continue
			}
			seen[path] = struct{}{}
			configFiles = append(configFiles, path)
		}
	}

	return configFiles
}

func getConfigBaseNames(basePath, fileType string) []string {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil
	}

	suffix := "." + fileType
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		base := stripConfigSuffix(strings.TrimSuffix(name, suffix))
		if base == "" {
			continue
		}
		seen[base] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

func stripConfigSuffix(name string) string {
	name = strings.TrimSuffix(name, ".local")
	for _, suffix := range envSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

func moveFirst(names []string, first string) []string {
	index := -1
	for i, name := range names {
		if name == first {
			index = i
			break
		}
	}

	if index <= 0 {
		return names
	}

	out := make([]string, 0, len(names))
	out = append(out, first)
	out = append(out, names[:index]...)
	out = append(out, names[index+1:]...)
	return out
}
