// Package config provides the memgate configuration file and its defaults.
//
// The configuration is organized into sections:
//   - Inventory: plugin search paths and connector argument limits
//   - Logging: level and encoding of the global logger
//   - Access: page cache and dump chunking
//   - Metrics: Prometheus endpoint
//   - Tracing: OpenTelemetry span export
//
// Example usage:
//
//	cfg, err := config.Load("memgate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	inv, err := inventory.Scan(ctx, cfg.Inventory.SearchPaths, cfg.InventoryOptions()...)
package config

import (
	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/logger"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/observability"
)

// Config is the complete memgate configuration.
type Config struct {
	Inventory InventoryConfig `yaml:"inventory" mapstructure:"inventory"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Access    AccessConfig    `yaml:"access" mapstructure:"access"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
}

// InventoryConfig controls connector discovery.
type InventoryConfig struct {
	// SearchPaths are plugin directories or files, the default search
	// paths when empty
	SearchPaths []string `yaml:"search_paths,omitempty" mapstructure:"search_paths"`
	// MaxArgsLength bounds connector argument strings
	MaxArgsLength int `yaml:"max_args_length" mapstructure:"max_args_length"`
	// Builtins lists the connectors linked into the binary
	Builtins bool `yaml:"builtins" mapstructure:"builtins"`
	// Extensions overrides the plugin file extensions for this platform
	Extensions []string `yaml:"extensions,omitempty" mapstructure:"extensions"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is one of error, warn, info, debug, trace
	Level       string `yaml:"level" mapstructure:"level"`
	Format      string `yaml:"format" mapstructure:"format"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// AccessConfig tunes physical memory access.
type AccessConfig struct {
	// CachePages enables a page cache of this many pages per instance
	CachePages int `yaml:"cache_pages" mapstructure:"cache_pages"`
	// CachePageSize is the cached page size, the backend's when zero
	CachePageSize uint64 `yaml:"cache_page_size" mapstructure:"cache_page_size"`
	// ChunkSize is the read size used when streaming memory
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	SampleRate  float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
	ServiceName string  `yaml:"service_name" mapstructure:"service_name"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Inventory: InventoryConfig{
			MaxArgsLength: inventory.DefaultMaxArgsLength,
			Builtins:      true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Access: AccessConfig{
			ChunkSize: 64 * 1024,
		},
		Metrics: MetricsConfig{
			Address: ":9464",
		},
		Tracing: TracingConfig{
			SampleRate:  1.0,
			ServiceName: "memgate",
			Environment: "development",
		},
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Inventory.MaxArgsLength <= 0 {
		return invalid("inventory.max_args_length must be positive")
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return invalid("logging.level %q is not a level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return invalid("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Access.CachePages < 0 {
		return invalid("access.cache_pages cannot be negative")
	}
	if c.Access.CachePageSize != 0 && !address.IsPowerOfTwo(c.Access.CachePageSize) {
		return invalid("access.cache_page_size %d is not a power of two", c.Access.CachePageSize)
	}
	if c.Access.ChunkSize <= 0 {
		return invalid("access.chunk_size must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return invalid("metrics.address is required when metrics are enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return invalid("tracing.sample_rate must be within [0, 1]")
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return memerrors.Newf(memerrors.ErrorTypeConfig, format, args...)
}

// InventoryOptions returns the inventory options for this configuration.
func (c *Config) InventoryOptions() []inventory.Option {
	opts := []inventory.Option{
		inventory.WithMaxArgsLength(c.Inventory.MaxArgsLength),
		inventory.WithBuiltins(c.Inventory.Builtins),
	}
	if len(c.Inventory.Extensions) > 0 {
		opts = append(opts, inventory.WithExtensions(c.Inventory.Extensions...))
	}
	if c.Access.CachePages > 0 {
		opts = append(opts, inventory.WithCache(c.Access.CachePages, c.Access.CachePageSize))
	}
	return opts
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Encoding:    c.Logging.Format,
	}
}

// TracingConfig returns the tracer provider configuration.
func (c *Config) TracingConfig(version string) observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.Enabled = c.Tracing.Enabled
	tc.ServiceName = c.Tracing.ServiceName
	tc.ServiceVersion = version
	tc.Environment = c.Tracing.Environment
	tc.SamplingRate = c.Tracing.SampleRate
	return tc
}
