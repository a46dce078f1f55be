package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeforge/billing/config"
	"github.com/leeforge/billing/errors"
	"github.com/leeforge/billing/storage"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func options(dir string) config.ConfigOptions {
	return config.ConfigOptions{
		BasePath:  dir,
		FileName:  "config",
		FileType:  "yaml",
		EnvPrefix: "BILLINGTEST",
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]config.Mode{
		"":            config.DevMode,
		"dev":         config.DevMode,
		"Production":  config.ProMode,
		" prod ":      config.ProMode,
		"testing":     config.TestMode,
		"staging":     config.DevMode,
		"development": config.DevMode,
	}
	for in, want := range tests {
		assert.Equal(t, want, config.ParseMode(in), "input %q", in)
	}
}

func TestLoadMergesModeFiles(t *testing.T) {
	t.Setenv(config.EnvModeKey, "test")
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
base-path: /billing
storage:
  driver: sqlite
  dsn: billing.db
plugins:
  stripe:
    settings:
      secret_key: sk_live
      retries: 3
  usage:
    enabled: false
`)
	writeFile(t, dir, "config.test.yaml", `
storage:
  dsn: ":memory:"
plugins:
  stripe:
    settings:
      secret_key: sk_test
`)

	s, err := config.Load(options(dir))
	require.NoError(t, err)

	assert.Equal(t, "/billing", s.BasePath)
	assert.Equal(t, storage.DriverSQLite, s.Storage.Driver)
	assert.Equal(t, ":memory:", s.Storage.DSN)
	assert.Equal(t, "billing", s.Storage.Database)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, []string{"stripe", "usage"}, s.PluginIDs())

	stripe := s.PluginConfig("stripe")
	assert.True(t, stripe.IsEnabled())
	assert.Equal(t, "sk_test", stripe.GetString("secret_key", ""))
	assert.Equal(t, 3, stripe.GetInt("retries", 0))

	assert.False(t, s.PluginConfig("usage").IsEnabled())

	missing := s.PluginConfig("customer")
	assert.True(t, missing.IsEnabled())
	assert.Equal(t, "x", missing.GetString("anything", "x"))
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(config.EnvModeKey, "development")
	t.Setenv("BILLINGTEST_STORAGE_DSN", "/tmp/override.db")
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "storage:\n  driver: sqlite\n  dsn: billing.db\n")

	s, err := config.Load(options(dir))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", s.Storage.DSN)
}

func TestLoadDefaults(t *testing.T) {
	opts := options(t.TempDir())
	opts.AllowMissing = true

	s, err := config.Load(opts)
	require.NoError(t, err)
	assert.Equal(t, "/api/billing", s.BasePath)
	assert.Equal(t, storage.DriverMemory, s.Storage.Driver)
	assert.False(t, s.AutoMigrate)
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(options(t.TempDir()))
	assert.True(t, errors.IsConfiguration(err), "got %v", err)

	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "storage:\n  driver: oracle\n")
	_, err = config.Load(options(dir))
	assert.True(t, errors.IsConfiguration(err), "got %v", err)

	dir = t.TempDir()
	writeFile(t, dir, "config.yaml", "base-path: api\n")
	_, err = config.Load(options(dir))
	assert.True(t, errors.IsConfiguration(err), "got %v", err)
}

func TestFilesOrder(t *testing.T) {
	t.Setenv(config.EnvModeKey, "production")
	dir := t.TempDir()
	for _, name := range []string{"config.yaml", "config.local.yaml", "config.prod.yaml", "config.test.yaml", "plans.yaml"} {
		writeFile(t, dir, name, "x: 1\n")
	}

	cfg, err := config.NewConfig(options(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.local.yaml"),
		filepath.Join(dir, "config.prod.yaml"),
	}, cfg.Files())

	opts := options(dir)
	opts.LoadAll = true
	cfg, err = config.NewConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.local.yaml"),
		filepath.Join(dir, "config.prod.yaml"),
		filepath.Join(dir, "plans.yaml"),
	}, cfg.Files())
}

func TestSnapshotRestore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "base-path: /one\n")
	cfg, err := config.NewConfig(options(dir))
	require.NoError(t, err)

	assert.True(t, errors.IsConfiguration(cfg.Restore()))

	_, err = cfg.Snapshot()
	require.NoError(t, err)
	cfg.Set("base-path", "/two")
	assert.Equal(t, "/two", cfg.Get("base-path"))

	require.NoError(t, cfg.Restore())
	assert.Equal(t, "/one", cfg.Get("base-path"))
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "base-path: /one\n")
	cfg, err := config.NewConfig(options(dir))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "exported.yaml")
	require.NoError(t, cfg.Export(out))

	exported := options(filepath.Dir(out))
	exported.FileName = "exported"
	s, err := config.Load(exported)
	require.NoError(t, err)
	assert.Equal(t, "/one", s.BasePath)
}
