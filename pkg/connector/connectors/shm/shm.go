// Package shm connects to guest memory shared through a file, such as a
// hypervisor memory backend created with share=on under /dev/shm.
//
// Arguments:
//
//	<path> or path=<file>   shared memory file
//	size=<n>                bytes to map, the file size by default
//	create                  create the file when missing, size is required
//	readonly                map read-only
package shm

import (
	"context"
	"sync"

	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/mmap"
)

// Name is the connector name.
const Name = "shm"

func init() {
	if err := inventory.RegisterBuiltin(Descriptor()); err != nil {
		panic(err)
	}
}

// Descriptor returns the shm connector descriptor.
func Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:        Name,
		Version:     "1.0.0",
		Description: "guest memory shared through a file mapping",
		ABIVersion:  core.ABIVersion,
		Factory: func(ctx context.Context, args string) (core.Backend, error) {
			cfg, err := ParseConfig(args)
			if err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return Open(cfg)
		},
	}
}

// Config holds parsed shm arguments.
type Config struct {
	Path     string
	Size     uint64
	Create   bool
	ReadOnly bool
}

// ParseConfig parses an shm argument string.
func ParseConfig(s string) (Config, error) {
	args, err := core.ParseArgs(s)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Path: args.GetOr("path", args.Default())}
	if cfg.Path == "" {
		return Config{}, memerrors.New(memerrors.ErrorTypeValidation, "shm requires a file path")
	}
	if cfg.Size, err = args.Size("size", 0); err != nil {
		return Config{}, err
	}
	if cfg.Create, err = args.Bool("create"); err != nil {
		return Config{}, err
	}
	if cfg.ReadOnly, err = args.Bool("readonly"); err != nil {
		return Config{}, err
	}

	switch {
	case cfg.Create && cfg.ReadOnly:
		return Config{}, memerrors.New(memerrors.ErrorTypeValidation, "shm create and readonly are exclusive")
	case cfg.Create && cfg.Size == 0:
		return Config{}, memerrors.New(memerrors.ErrorTypeValidation, "shm create requires size")
	}
	return cfg, nil
}

// Backend reads and writes a shared file mapping.
type Backend struct {
	mu     sync.RWMutex
	region *mmap.Region
	meta   core.Metadata
}

// Open maps the file described by cfg.
func Open(cfg Config) (*Backend, error) {
	var opts []mmap.Option
	if !cfg.ReadOnly {
		opts = append(opts, mmap.Writable())
	}
	if cfg.Create {
		opts = append(opts, mmap.Create())
	}
	if cfg.Size > 0 {
		opts = append(opts, mmap.Size(int64(cfg.Size)))
	}

	region, err := mmap.Open(cfg.Path, opts...)
	if err != nil {
		return nil, err
	}

	size := uint64(region.Len())
	return &Backend{
		region: region,
		meta: core.Metadata{
			AddressSpaceSize: core.KnownSize(size),
			RealSize:         size,
			PageSize:         4096,
			ReadOnly:         cfg.ReadOnly,
		},
	}, nil
}

// ReadBatch implements core.Backend.
func (b *Backend) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		n, err := b.region.ReadAt(r.Buf, int64(r.Addr.Uint64()))
		out[i].N = n
		if err != nil && n < len(r.Buf) {
			out[i].Err = memerrors.Wrap(err, memerrors.ErrorTypeOutOfBounds, "shared memory read past end")
		}
	}
	return out
}

// WriteBatch implements core.Backend.
func (b *Backend) WriteBatch(reqs []core.WriteRequest) []core.Completion {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		n, err := b.region.WriteAt(r.Data, int64(r.Addr.Uint64()))
		out[i] = core.Completion{N: n, Err: err}
	}
	return out
}

// Metadata implements core.Backend.
func (b *Backend) Metadata() core.Metadata { return b.meta }

// Close syncs and unmaps the file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	syncErr := b.region.Sync()
	if err := b.region.Close(); err != nil {
		return err
	}
	return syncErr
}
