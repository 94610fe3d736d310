package inventory

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/instance"
)

// moduleRecord reference counts a loaded plugin module. The inventory holds
// one reference while the module's descriptor is listed and every instance
// created from it holds another. The module is closed when the count drops
// to zero.
type moduleRecord struct {
	mu     sync.Mutex
	path   string
	module core.Module
	refs   int
	closed bool
	logger *zap.Logger
}

func newModuleRecord(path string, module core.Module, logger *zap.Logger) *moduleRecord {
	return &moduleRecord{
		path:   path,
		module: module,
		refs:   1,
		logger: logger.With(zap.String("module", path)),
	}
}

// acquire takes an instance reference. A nil record, used for builtins,
// returns a nil lease.
func (r *moduleRecord) acquire() instance.Lease {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	r.refs++
	r.mu.Unlock()

	return &moduleLease{record: r}
}

// release drops one reference.
func (r *moduleRecord) release() {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.refs--
	if r.refs > 0 || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.module.Close(); err != nil {
		r.logger.Warn("failed to unload plugin module", zap.Error(err))
		return
	}
	r.logger.Debug("plugin module unloaded")
}

func (r *moduleRecord) refCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

type moduleLease struct {
	once   sync.Once
	record *moduleRecord
}

func (l *moduleLease) Release() {
	l.once.Do(l.record.release)
}
