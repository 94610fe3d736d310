package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Inventory.Builtins)
	assert.Len(t, cfg.InventoryOptions(), 2)

	cfg.Access.CachePages = 64
	cfg.Inventory.Extensions = []string{".so"}
	assert.Len(t, cfg.InventoryOptions(), 4)

	lc := cfg.LoggerConfig()
	assert.Equal(t, "info", lc.Level)
	assert.Equal(t, "console", lc.Encoding)

	tc := cfg.TracingConfig("1.2.3")
	assert.False(t, tc.Enabled)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"args length", func(c *Config) { c.Inventory.MaxArgsLength = 0 }},
		{"level", func(c *Config) { c.Logging.Level = "loud" }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
		{"cache pages", func(c *Config) { c.Access.CachePages = -1 }},
		{"page size", func(c *Config) { c.Access.CachePageSize = 3000 }},
		{"chunk size", func(c *Config) { c.Access.ChunkSize = 0 }},
		{"metrics address", func(c *Config) { c.Metrics.Enabled, c.Metrics.Address = true, "" }},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeConfig), "got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("PLUGIN_ROOT", "/opt/memgate")
	path := filepath.Join(t.TempDir(), "memgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
inventory:
  search_paths:
    - ${PLUGIN_ROOT}/plugins
logging:
  level: debug
access:
  cache_pages: 32
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/memgate/plugins"}, cfg.Inventory.SearchPaths)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 32, cfg.Access.CachePages)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 64*1024, cfg.Access.ChunkSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMGATE_LOGGING_LEVEL", "trace")
	t.Setenv("MEMGATE_ACCESS_CACHE_PAGES", "128")
	t.Setenv("MEMGATE_METRICS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, 128, cfg.Access.CachePages)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeConfig))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0o600))
	_, err = Load(path)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Inventory.SearchPaths = []string{"/usr/lib/memgate"}
	cfg.Inventory.Extensions = []string{".so"}
	cfg.Access.CachePages = 16
	cfg.Access.CachePageSize = 8192

	path := filepath.Join(t.TempDir(), "memgate.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("VM", "guest0")
	assert.Equal(t, "/dev/shm/guest0.mem", substituteEnvVars("/dev/shm/${VM}.mem"))
	assert.Equal(t, "a--b", substituteEnvVars("a-${MEMGATE_UNSET_VAR}-b"))
	assert.Equal(t, "open ${brace", substituteEnvVars("open ${brace"))
}
