// Package dummy provides an in-memory connector for tests and demos.
//
// Arguments:
//
//	<size> or size=<n>   address space size, default 16MiB
//	pattern=<byte>       initial fill byte, default 0
//	readonly             reject writes
//	threadsafe           allow concurrent batches without instance locking
package dummy

import (
	"context"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

const (
	// Name is the connector name.
	Name = "dummy"
	// DefaultSize is used when no size is given.
	DefaultSize = 16 * address.MiB
)

// availableMemory reports host memory the buffer may use.
var availableMemory = func() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func init() {
	if err := inventory.RegisterBuiltin(Descriptor()); err != nil {
		panic(err)
	}
}

// Descriptor returns the dummy connector descriptor.
func Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:        Name,
		Version:     "1.0.0",
		Description: "zero-filled in-memory physical address space",
		ABIVersion:  core.ABIVersion,
		Factory:     factory,
	}
}

// Config holds parsed dummy arguments.
type Config struct {
	Size       uint64
	Pattern    byte
	ReadOnly   bool
	ThreadSafe bool
}

// ParseConfig parses a dummy argument string.
func ParseConfig(s string) (Config, error) {
	args, err := core.ParseArgs(s)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Size: DefaultSize}

	switch def := args.Default(); {
	case args.Has("size"):
		if cfg.Size, err = args.Size("size", DefaultSize); err != nil {
			return Config{}, err
		}
	case def != "" && def != "readonly" && def != "threadsafe":
		if cfg.Size, err = address.ParseSize(def); err != nil {
			return Config{}, err
		}
	}
	if cfg.Size == 0 {
		return Config{}, memerrors.New(memerrors.ErrorTypeValidation, "dummy size must be positive")
	}

	pattern, err := args.Uint("pattern", 0)
	if err != nil {
		return Config{}, err
	}
	if pattern > 0xff {
		return Config{}, memerrors.Newf(memerrors.ErrorTypeValidation, "pattern %#x is not a byte", pattern)
	}
	cfg.Pattern = byte(pattern)

	if cfg.ReadOnly, err = args.Bool("readonly"); err != nil {
		return Config{}, err
	}
	if cfg.ThreadSafe, err = args.Bool("threadsafe"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func factory(ctx context.Context, s string) (core.Backend, error) {
	cfg, err := ParseConfig(s)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	avail, err := availableMemory()
	if err == nil && cfg.Size > avail {
		return nil, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"dummy size %#x exceeds available host memory %#x", cfg.Size, avail)
	}
	if uint64(int(cfg.Size)) != cfg.Size {
		return nil, memerrors.Newf(memerrors.ErrorTypeOutOfBounds, "dummy size %#x too large", cfg.Size)
	}

	return New(cfg), nil
}

// Backend is a byte slice exposed as physical memory.
type Backend struct {
	mu   sync.RWMutex
	mem  []byte
	meta core.Metadata
}

// New builds a backend from cfg.
func New(cfg Config) *Backend {
	buf := make([]byte, cfg.Size)
	if cfg.Pattern != 0 {
		for i := range buf {
			buf[i] = cfg.Pattern
		}
	}
	return &Backend{
		mem: buf,
		meta: core.Metadata{
			AddressSpaceSize: core.KnownSize(cfg.Size),
			RealSize:         cfg.Size,
			PageSize:         4096,
			ReadOnly:         cfg.ReadOnly,
			ThreadSafe:       cfg.ThreadSafe,
		},
	}
}

// ReadBatch implements core.Backend.
func (b *Backend) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		start := r.Addr.Uint64()
		if start >= uint64(len(b.mem)) {
			out[i].Err = memerrors.Newf(memerrors.ErrorTypeOutOfBounds, "read at %s past end", r.Addr)
			continue
		}
		out[i].N = copy(r.Buf, b.mem[start:])
	}
	return out
}

// WriteBatch implements core.Backend.
func (b *Backend) WriteBatch(reqs []core.WriteRequest) []core.Completion {
	if b.meta.ReadOnly {
		return core.FailAll(len(reqs), memerrors.New(memerrors.ErrorTypeUnsupported, "dummy connector is read-only"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		start := r.Addr.Uint64()
		if start >= uint64(len(b.mem)) {
			out[i].Err = memerrors.Newf(memerrors.ErrorTypeOutOfBounds, "write at %s past end", r.Addr)
			continue
		}
		out[i].N = copy(b.mem[start:], r.Data)
	}
	return out
}

// Metadata implements core.Backend.
func (b *Backend) Metadata() core.Metadata { return b.meta }

// Close drops the buffer.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.mem = nil
	b.mu.Unlock()
	return nil
}
