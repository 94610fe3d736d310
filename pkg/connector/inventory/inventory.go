// Package inventory discovers connectors and creates instances of them.
//
// An Inventory lists the builtin connectors compiled into the binary followed
// by the plugins found while scanning the search paths. Plugins that cannot
// be loaded are logged and skipped. Instances are created by exact name and
// keep their plugin module loaded until they are released, even after the
// inventory itself is destroyed.
package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/cache"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/instance"
	"github.com/ajitpratap0/memgate/pkg/logger"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/metrics"
	"github.com/ajitpratap0/memgate/pkg/observability"
)

// SourceBuiltin marks connectors that are not loaded from a plugin file.
const SourceBuiltin = "builtin"

// Summary describes a listed connector.
type Summary struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	ABIVersion  uint32 `json:"abi_version"`
	// Source is the plugin path or SourceBuiltin.
	Source string `json:"source"`
}

type entry struct {
	desc   core.Descriptor
	source string
	module *moduleRecord
}

func (e entry) summary() Summary {
	return Summary{
		Name:        e.desc.Name,
		Version:     e.desc.Version,
		Description: e.desc.Description,
		ABIVersion:  e.desc.ABIVersion,
		Source:      e.source,
	}
}

// Inventory is a set of connectors. Scan, Rescan, Create and Destroy are
// serialized against each other; List and Lookup may run concurrently with
// them.
type Inventory struct {
	opts   options
	logger *zap.Logger

	// writeMu serializes mutating operations.
	writeMu sync.Mutex
	// mu guards entries for readers.
	mu        sync.RWMutex
	entries   []entry
	destroyed bool

	live atomic.Int32
}

// New returns an inventory holding only in-process connectors.
func New(opts ...Option) *Inventory {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}

	inv := &Inventory{
		opts:   o,
		logger: o.logger.With(zap.String("component", "inventory")),
	}
	inv.entries = inv.staticEntries()
	return inv
}

// Scan creates an inventory and loads every plugin found under paths, or
// under DefaultSearchPaths when paths is empty. Plugin failures never fail
// the scan; only cancellation of ctx does.
func Scan(ctx context.Context, paths []string, opts ...Option) (*Inventory, error) {
	inv := New(opts...)
	if err := inv.Rescan(ctx, paths); err != nil {
		_ = inv.Destroy()
		return nil, err
	}
	return inv, nil
}

func (inv *Inventory) staticEntries() []entry {
	var descs []core.Descriptor
	if inv.opts.builtins {
		descs = append(descs, Builtins()...)
	}
	descs = append(descs, inv.opts.descriptors...)

	entries := make([]entry, 0, len(descs))
	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			inv.logger.Warn("skipping invalid connector", zap.String("connector", d.Name), zap.Error(err))
			continue
		}
		if _, dup := seen[d.Name]; dup {
			inv.logger.Warn("skipping duplicate connector", zap.String("connector", d.Name))
			continue
		}
		seen[d.Name] = struct{}{}
		entries = append(entries, entry{desc: d, source: SourceBuiltin})
	}
	return entries
}

// Rescan rediscovers plugins and replaces the connector list. Modules of
// connectors no longer listed stay loaded until their instances release.
func (inv *Inventory) Rescan(ctx context.Context, paths []string) (err error) {
	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()

	if inv.destroyed {
		return memerrors.New(memerrors.ErrorTypeReleased, "inventory destroyed")
	}
	if len(paths) == 0 {
		paths = DefaultSearchPaths()
	}

	ctx, span := observability.StartSpan(ctx, "inventory.scan", attribute.Int("paths", len(paths)))
	defer func() { span.End(err) }()

	entries := inv.staticEntries()
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		seen[e.desc.Name] = struct{}{}
	}

	var loaded, skipped int
	for _, path := range inv.discover(paths) {
		if err := ctx.Err(); err != nil {
			for _, e := range entries {
				e.module.release()
			}
			return memerrors.Wrap(err, memerrors.ErrorTypeIO, "inventory scan cancelled")
		}

		e, err := inv.loadPlugin(path)
		if err == nil {
			if _, dup := seen[e.desc.Name]; dup {
				e.module.release()
				err = memerrors.Newf(memerrors.ErrorTypePluginLoadFailed,
					"connector %s already provided", e.desc.Name).WithDetail("connector", e.desc.Name)
			}
		}
		if err != nil {
			skipped++
			metrics.PluginScans.WithLabelValues("skipped").Inc()
			inv.logger.Warn("plugin load failed",
				zap.String("path", path),
				zap.String("error_kind", string(memerrors.ErrorTypePluginLoadFailed)),
				zap.Error(err))
			span.AddEvent("plugin.skipped", attribute.String("path", path))
			continue
		}

		loaded++
		metrics.PluginScans.WithLabelValues("loaded").Inc()
		seen[e.desc.Name] = struct{}{}
		entries = append(entries, e)
		inv.logger.Info("plugin loaded",
			zap.String("path", path),
			zap.String("connector", e.desc.Name),
			zap.String("version", e.desc.Version))
	}

	inv.mu.Lock()
	old := inv.entries
	inv.entries = entries
	inv.mu.Unlock()

	for _, e := range old {
		e.module.release()
	}

	span.SetAttribute("plugins.loaded", loaded)
	span.SetAttribute("plugins.skipped", skipped)
	inv.logger.Debug("inventory scan complete",
		zap.Int("connectors", len(entries)),
		zap.Int("loaded", loaded),
		zap.Int("skipped", skipped))
	return nil
}

// discover lists candidate plugin files. Directories contribute files with
// a recognized extension in name order; file paths are taken as given.
func (inv *Inventory) discover(paths []string) []string {
	var files []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			inv.logger.Debug("skipping plugin search path", zap.String("path", root), zap.Error(err))
			continue
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		dirents, err := os.ReadDir(root)
		if err != nil {
			inv.logger.Debug("cannot read plugin directory", zap.String("path", root), zap.Error(err))
			continue
		}
		for _, de := range dirents {
			if de.IsDir() || !hasExtension(de.Name(), inv.opts.extensions) {
				continue
			}
			add(filepath.Join(root, de.Name()))
		}
	}
	return files
}

func (inv *Inventory) loadPlugin(path string) (entry, error) {
	mod, err := inv.opts.loader.Load(path)
	if err != nil {
		return entry{}, memerrors.Wrap(err, memerrors.ErrorTypePluginLoadFailed, "failed to load plugin")
	}

	fail := func(err *memerrors.Error) (entry, error) {
		if cerr := mod.Close(); cerr != nil {
			inv.logger.Debug("failed to close rejected plugin", zap.String("path", path), zap.Error(cerr))
		}
		return entry{}, err
	}

	sym, err := mod.Lookup(core.EntrySymbol)
	if err != nil {
		return fail(memerrors.Wrap(err, memerrors.ErrorTypePluginLoadFailed,
			"plugin has no "+core.EntrySymbol+" entry point"))
	}

	desc, ok := core.DescriptorFrom(sym)
	if !ok {
		return fail(memerrors.Newf(memerrors.ErrorTypePluginLoadFailed,
			"entry point %s has unexpected type %T", core.EntrySymbol, sym))
	}
	if err := desc.Validate(); err != nil {
		return fail(memerrors.Wrap(err, memerrors.ErrorTypePluginLoadFailed, "invalid plugin descriptor"))
	}

	return entry{
		desc:   desc,
		source: path,
		module: newModuleRecord(path, mod, inv.logger),
	}, nil
}

// List returns the listed connectors in discovery order.
func (inv *Inventory) List() []Summary {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]Summary, len(inv.entries))
	for i, e := range inv.entries {
		out[i] = e.summary()
	}
	return out
}

// Lookup returns the connector named name.
func (inv *Inventory) Lookup(name string) (Summary, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	for _, e := range inv.entries {
		if e.desc.Name == name {
			return e.summary(), true
		}
	}
	return Summary{}, false
}

// LiveInstances returns how many instances created by inv are unreleased.
func (inv *Inventory) LiveInstances() int {
	return int(inv.live.Load())
}

// Create instantiates the connector named name with args. The returned
// instance is owned by the caller, who must release it.
func (inv *Inventory) Create(ctx context.Context, name, args string) (inst *instance.Instance, err error) {
	if len(args) > inv.opts.maxArgsLength {
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation,
			"connector arguments exceed %d bytes", inv.opts.maxArgsLength).
			WithDetail("length", len(args))
	}

	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()

	if inv.destroyed {
		return nil, memerrors.New(memerrors.ErrorTypeReleased, "inventory destroyed")
	}

	e, ok := inv.find(name)
	if !ok {
		return nil, memerrors.Newf(memerrors.ErrorTypeNotFound, "connector %s not found", name).
			WithDetail("connector", name)
	}

	ctx, span := observability.NewConnectorTracer(name).StartSpan(ctx, "create")
	defer func() { span.End(err) }()

	lease := e.module.acquire()
	timer := metrics.NewTimer()

	backend, err := inv.build(ctx, e.desc, args)
	metrics.CreateLatency.WithLabelValues(name).Observe(timer.Stop().Seconds())
	if err != nil {
		if lease != nil {
			lease.Release()
		}
		inv.logger.Debug("connector creation failed", zap.String("connector", name), zap.Error(err))
		return nil, err
	}

	inst, err = instance.New(name, backend, lease,
		instance.WithLogger(inv.opts.logger),
		instance.WithReleaseHook(func(*instance.Instance) { inv.live.Add(-1) }))
	if err != nil {
		_ = backend.Close()
		if lease != nil {
			lease.Release()
		}
		return nil, err
	}

	inv.live.Add(1)
	inv.logger.Info("connector created", zap.String("connector", name), zap.String("source", e.source))
	return inst, nil
}

func (inv *Inventory) find(name string) (entry, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	for _, e := range inv.entries {
		if e.desc.Name == name {
			return e, true
		}
	}
	return entry{}, false
}

// build runs the factory and applies the cache wrapper. Panics in plugin
// factories are converted to errors.
func (inv *Inventory) build(ctx context.Context, desc core.Descriptor, args string) (backend core.Backend, err error) {
	if desc.Factory == nil {
		return nil, memerrors.Newf(memerrors.ErrorTypeConnectorInitFailed,
			"connector %s has no factory", desc.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = memerrors.Newf(memerrors.ErrorTypeConnectorInitFailed,
				"connector %s factory panicked: %v", desc.Name, r)
		}
	}()

	backend, err = desc.Factory(ctx, args)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeConnectorInitFailed,
			fmt.Sprintf("failed to create connector %s", desc.Name)).
			WithDetail("connector", desc.Name)
	}
	if backend == nil {
		return nil, memerrors.Newf(memerrors.ErrorTypeConnectorInitFailed,
			"connector %s returned no backend", desc.Name)
	}

	if inv.opts.cachePages > 0 {
		cached, err := cache.New(backend, inv.opts.cachePages, inv.opts.cachePageSize)
		if err != nil {
			_ = backend.Close()
			return nil, memerrors.Wrap(err, memerrors.ErrorTypeConnectorInitFailed, "failed to set up page cache")
		}
		backend = cached
	}
	return backend, nil
}

// Destroy drops every connector. Modules without live instances are
// unloaded now, the others when their last instance is released. With
// WithStrictDestroy it fails instead while any instance is alive. Later
// calls to Create and Rescan fail with a released error. Destroy is
// idempotent.
func (inv *Inventory) Destroy() error {
	inv.writeMu.Lock()
	defer inv.writeMu.Unlock()

	if inv.destroyed {
		return nil
	}
	if live := inv.LiveInstances(); inv.opts.strictDestroy && live > 0 {
		return memerrors.Newf(memerrors.ErrorTypeInventoryBusy,
			"inventory has %d live instances", live).WithDetail("live_instances", live)
	}
	inv.destroyed = true

	inv.mu.Lock()
	old := inv.entries
	inv.entries = nil
	inv.mu.Unlock()

	for _, e := range old {
		e.module.release()
	}

	inv.logger.Debug("inventory destroyed", zap.Int("live_instances", inv.LiveInstances()))
	return nil
}

// WithConnector creates the connector named name, passes it to fn and
// releases it on every return path. fn's error takes precedence over a
// release error.
func WithConnector(ctx context.Context, inv *Inventory, name, args string, fn func(*instance.Instance) error) (err error) {
	inst, err := inv.Create(ctx, name, args)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := inst.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(inst)
}
