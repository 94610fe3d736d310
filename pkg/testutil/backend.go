package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/memmap"
)

// MockBackend is an in-memory core.Backend that records how it is used.
// Any call after Close panics, so tests catch use-after-release.
type MockBackend struct {
	mu   sync.Mutex
	mem  []byte
	meta core.Metadata

	// FailAt makes requests starting at the given address fail.
	FailAt map[uint64]error
	// CloseErr is returned by Close.
	CloseErr error

	closed     atomic.Bool
	closeCalls atomic.Int32
	calls      atomic.Int64
	inFlight   atomic.Int32
	overlapped atomic.Bool
	batches    [][]uint64
	memMap     *memmap.Map
}

// NewMockBackend returns a zero-filled backend of size bytes.
func NewMockBackend(size int) *MockBackend {
	return &MockBackend{
		mem: make([]byte, size),
		meta: core.Metadata{
			AddressSpaceSize: core.KnownSize(uint64(size)),
			RealSize:         uint64(size),
			PageSize:         4096,
		},
		FailAt: make(map[uint64]error),
	}
}

// WithMetadata replaces the reported metadata.
func (b *MockBackend) WithMetadata(md core.Metadata) *MockBackend {
	b.meta = md
	return b
}

// Memory returns the backing bytes. Tests may modify them between calls.
func (b *MockBackend) Memory() []byte { return b.mem }

// Closed reports whether Close was called.
func (b *MockBackend) Closed() bool { return b.closed.Load() }

// CloseCalls returns how many times Close was called.
func (b *MockBackend) CloseCalls() int { return int(b.closeCalls.Load()) }

// Calls returns the number of batch calls made.
func (b *MockBackend) Calls() int64 { return b.calls.Load() }

// Overlapped reports whether two batch calls ever ran at the same time.
func (b *MockBackend) Overlapped() bool { return b.overlapped.Load() }

// Batches returns the request addresses of every batch received.
func (b *MockBackend) Batches() [][]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]uint64, len(b.batches))
	copy(out, b.batches)
	return out
}

// MemoryMap returns the last map passed to SetMemoryMap.
func (b *MockBackend) MemoryMap() *memmap.Map { return b.memMap }

func (b *MockBackend) enter(addrs []uint64) {
	if b.closed.Load() {
		panic("testutil: backend used after Close")
	}
	b.calls.Add(1)
	if b.inFlight.Add(1) > 1 {
		b.overlapped.Store(true)
	}
	b.mu.Lock()
	b.batches = append(b.batches, addrs)
	b.mu.Unlock()
}

func (b *MockBackend) leave() { b.inFlight.Add(-1) }

// ReadBatch copies from memory. Reads running past the end are filled
// partially.
func (b *MockBackend) ReadBatch(reqs []core.ReadRequest) []core.Completion {
	addrs := make([]uint64, len(reqs))
	for i, r := range reqs {
		addrs[i] = r.Addr.Uint64()
	}
	b.enter(addrs)
	defer b.leave()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		start := r.Addr.Uint64()
		if err, ok := b.FailAt[start]; ok {
			out[i].Err = err
			continue
		}
		if start >= uint64(len(b.mem)) {
			out[i].Err = memerrors.New(memerrors.ErrorTypeOutOfBounds, "mock read past end")
			continue
		}
		out[i].N = copy(r.Buf, b.mem[start:])
	}
	return out
}

// WriteBatch copies into memory.
func (b *MockBackend) WriteBatch(reqs []core.WriteRequest) []core.Completion {
	addrs := make([]uint64, len(reqs))
	for i, r := range reqs {
		addrs[i] = r.Addr.Uint64()
	}
	b.enter(addrs)
	defer b.leave()

	out := make([]core.Completion, len(reqs))
	for i, r := range reqs {
		start := r.Addr.Uint64()
		if err, ok := b.FailAt[start]; ok {
			out[i].Err = err
			continue
		}
		if start >= uint64(len(b.mem)) {
			out[i].Err = memerrors.New(memerrors.ErrorTypeOutOfBounds, "mock write past end")
			continue
		}
		out[i].N = copy(b.mem[start:], r.Data)
	}
	return out
}

// Metadata returns the configured metadata.
func (b *MockBackend) Metadata() core.Metadata {
	if b.closed.Load() {
		panic("testutil: backend used after Close")
	}
	return b.meta
}

// SetMemoryMap records m and resizes the reported address space.
func (b *MockBackend) SetMemoryMap(m *memmap.Map) error {
	if b.closed.Load() {
		panic("testutil: backend used after Close")
	}
	b.memMap = m
	b.meta.AddressSpaceSize = core.KnownSize(m.MaxAddress())
	return nil
}

// Close marks the backend closed.
func (b *MockBackend) Close() error {
	b.closeCalls.Add(1)
	b.closed.Store(true)
	return b.CloseErr
}

// MockDescriptor returns a descriptor whose factory calls newBackend.
func MockDescriptor(name string, newBackend func(args string) (core.Backend, error)) core.Descriptor {
	return core.Descriptor{
		Name:        name,
		Version:     "0.0.0-test",
		Description: "mock connector " + name,
		ABIVersion:  core.ABIVersion,
		Factory: func(_ context.Context, args string) (core.Backend, error) {
			return newBackend(args)
		},
	}
}

// Addr is address.MustPhysical for test tables.
func Addr(v uint64) address.PhysicalAddress {
	return address.MustPhysical(v)
}
