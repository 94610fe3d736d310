package inventory

import (
	"sync"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// builtinRegistry holds connectors compiled into the binary. Connector
// packages register themselves from init.
type builtinRegistry struct {
	mu    sync.RWMutex
	descs []core.Descriptor
	names map[string]struct{}
}

var builtins = &builtinRegistry{names: make(map[string]struct{})}

// RegisterBuiltin registers a connector linked into the binary. Duplicate
// names are rejected.
func RegisterBuiltin(d core.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	builtins.mu.Lock()
	defer builtins.mu.Unlock()

	if _, exists := builtins.names[d.Name]; exists {
		return memerrors.Newf(memerrors.ErrorTypeValidation,
			"builtin connector %s already registered", d.Name)
	}
	builtins.names[d.Name] = struct{}{}
	builtins.descs = append(builtins.descs, d)
	return nil
}

// Builtins returns the registered builtin connectors in registration order.
func Builtins() []core.Descriptor {
	builtins.mu.RLock()
	defer builtins.mu.RUnlock()

	out := make([]core.Descriptor, len(builtins.descs))
	copy(out, builtins.descs)
	return out
}
