package inventory

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
)

// DefaultMaxArgsLength bounds connector argument strings.
const DefaultMaxArgsLength = 4096

type options struct {
	loader        core.ModuleLoader
	logger        *zap.Logger
	maxArgsLength int
	builtins      bool
	extensions    []string
	descriptors   []core.Descriptor
	cachePages    int
	cachePageSize uint64
	strictDestroy bool
}

func defaultOptions() options {
	return options{
		loader:        PluginLoader{},
		maxArgsLength: DefaultMaxArgsLength,
		builtins:      true,
		extensions:    DefaultExtensions(),
	}
}

// Option configures an Inventory.
type Option func(*options)

// WithLoader replaces the plugin module loader.
func WithLoader(l core.ModuleLoader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithLogger sets the inventory logger. Instances inherit it.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxArgsLength bounds the length of connector argument strings.
func WithMaxArgsLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxArgsLength = n
		}
	}
}

// WithBuiltins controls whether connectors registered with RegisterBuiltin
// are listed.
func WithBuiltins(enabled bool) Option {
	return func(o *options) {
		o.builtins = enabled
	}
}

// WithExtensions sets the plugin file extensions recognized while scanning
// directories, including the leading dot.
func WithExtensions(exts ...string) Option {
	return func(o *options) {
		o.extensions = exts
	}
}

// WithDescriptors adds in-process connectors to this inventory only. They
// are listed after the builtins.
func WithDescriptors(descs ...core.Descriptor) Option {
	return func(o *options) {
		o.descriptors = append(o.descriptors, descs...)
	}
}

// WithCache wraps every created backend in a page cache of pages entries.
// A zero pageSize uses the backend's page size.
func WithCache(pages int, pageSize uint64) Option {
	return func(o *options) {
		o.cachePages = pages
		o.cachePageSize = pageSize
	}
}

// WithStrictDestroy makes Destroy fail with inventory_busy while instances
// created by the inventory are alive, instead of deferring module unload to
// their release.
func WithStrictDestroy() Option {
	return func(o *options) {
		o.strictDestroy = true
	}
}
