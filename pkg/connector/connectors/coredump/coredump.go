// Package coredump exposes a raw physical memory snapshot file as a
// read-only connector.
//
// Arguments:
//
//	<path> or path=<file>   snapshot file
//	map=<file>              YAML memory map, identity over the file otherwise
//	compression=<alg>       none, auto (default), zstd, lz4, gzip, s2, snappy
//	maxsize=<n>             bound on decompressed size, default 16GiB
//
// Uncompressed snapshots are mapped with mmap; compressed ones are
// decompressed into memory when the connector is created.
package coredump

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/compression"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/connector/inventory"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/memmap"
	"github.com/ajitpratap0/memgate/pkg/mmap"
)

const (
	// Name is the connector name.
	Name = "coredump"
	// DefaultMaxSize bounds decompressed snapshots.
	DefaultMaxSize = 16 * address.GiB
)

func init() {
	if err := inventory.RegisterBuiltin(Descriptor()); err != nil {
		panic(err)
	}
}

// Descriptor returns the coredump connector descriptor.
func Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:        Name,
		Version:     "1.0.0",
		Description: "read-only physical memory snapshot file",
		ABIVersion:  core.ABIVersion,
		Factory: func(ctx context.Context, args string) (core.Backend, error) {
			cfg, err := ParseConfig(args)
			if err != nil {
				return nil, err
			}
			return Open(ctx, cfg)
		},
	}
}

// Config holds parsed coredump arguments.
type Config struct {
	Path        string
	MapFile     string
	Compression string
	MaxSize     uint64
}

// ParseConfig parses a coredump argument string.
func ParseConfig(s string) (Config, error) {
	args, err := core.ParseArgs(s)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Path:        args.GetOr("path", args.Default()),
		MapFile:     args.GetOr("map", ""),
		Compression: args.GetOr("compression", "auto"),
	}
	if cfg.Path == "" {
		return Config{}, memerrors.New(memerrors.ErrorTypeValidation, "coredump requires a file path")
	}
	if cfg.MaxSize, err = args.Size("maxsize", DefaultMaxSize); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type storage interface {
	io.ReaderAt
	Close() error
}

type memStorage []byte

func (m memStorage) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m)) {
		return 0, io.EOF
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (memStorage) Close() error { return nil }

// Backend serves reads from a snapshot through a memory map.
type Backend struct {
	mu    sync.RWMutex
	store storage
	size  uint64
	mm    *memmap.Map
	path  string
}

// Open loads the snapshot described by cfg.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	alg, err := resolveCompression(cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		store storage
		size  uint64
	)
	if alg == compression.None {
		region, err := mmap.Open(cfg.Path, mmap.WithAdvice(mmap.AdviceRandom))
		if err != nil {
			return nil, err
		}
		store, size = region, uint64(region.Len())
	} else {
		data, err := decompressFile(cfg.Path, alg, cfg.MaxSize)
		if err != nil {
			return nil, err
		}
		store, size = memStorage(data), uint64(len(data))
	}

	b := &Backend{store: store, size: size, path: cfg.Path, mm: memmap.Identity(size)}
	if cfg.MapFile != "" {
		m, err := memmap.LoadFile(cfg.MapFile)
		if err == nil {
			err = b.SetMemoryMap(m)
		}
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	return b, nil
}

func resolveCompression(cfg Config) (compression.Algorithm, error) {
	if cfg.Compression != "auto" {
		return compression.ParseAlgorithm(cfg.Compression)
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return "", memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to open snapshot").
			WithDetail("path", cfg.Path)
	}
	defer f.Close()

	header := make([]byte, compression.MagicLen)
	n, _ := io.ReadFull(f, header)
	if alg := compression.Detect(header[:n]); alg != compression.None {
		return alg, nil
	}
	return compression.ForPath(cfg.Path), nil
}

func decompressFile(path string, alg compression.Algorithm, limit uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to open snapshot").
			WithDetail("path", path)
	}
	defer f.Close()

	data, err := compression.DecompressAll(f, alg, int64(limit))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation, "snapshot %s is empty", path)
	}
	return data, nil
}

// SetMemoryMap replaces the memory map. Every mapping must lie within the
// snapshot.
func (b *Backend) SetMemoryMap(m *memmap.Map) error {
	for _, mp := range m.Mappings() {
		if mp.RealBase > b.size || mp.Size > b.size-mp.RealBase {
			return memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
				"mapping %#x+%#x beyond snapshot of %#x bytes", mp.RealBase, mp.Size, b.size).
				WithDetail("path", b.path)
		}
	}

	b.mu.Lock()
	b.mm = m
	b.mu.Unlock()
	return nil
}

// ReadBatch implements core.Backend. A read stops at the first unmapped
// byte.
func (b *Backend) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		out[i] = b.read(r)
	}
	return out
}

func (b *Backend) read(r core.ReadRequest) core.Completion {
	var c core.Completion
	for _, seg := range b.mm.Translate(r.Addr.Uint64(), uint64(len(r.Buf))) {
		if !seg.Mapped {
			c.Err = memerrors.Newf(memerrors.ErrorTypeOutOfBounds, "address %#x is not mapped", seg.Addr)
			return c
		}
		dst := r.Buf[seg.Offset : seg.Offset+seg.Length]
		n, err := b.store.ReadAt(dst, int64(seg.Real))
		c.N += n
		if err != nil {
			c.Err = memerrors.Wrap(err, memerrors.ErrorTypeIO, "snapshot read failed")
			return c
		}
	}
	return c
}

// WriteBatch always fails: snapshots are read-only.
func (b *Backend) WriteBatch(reqs []core.WriteRequest) []core.Completion {
	return core.FailAll(len(reqs), memerrors.New(memerrors.ErrorTypeUnsupported, "coredump connector is read-only"))
}

// Metadata implements core.Backend.
func (b *Backend) Metadata() core.Metadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return core.Metadata{
		AddressSpaceSize: core.KnownSize(b.mm.MaxAddress()),
		RealSize:         b.mm.RealSize(),
		PageSize:         4096,
		ReadOnly:         true,
	}
}

// Close releases the snapshot.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Close()
}
