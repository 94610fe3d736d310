// Package core defines the contract between memgate and connector backends.
package core

import (
	"context"
	"encoding/binary"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/memmap"
)

// ABIVersion is the connector ABI implemented by this build. Plugins built
// against a different version are skipped at scan time.
const ABIVersion uint32 = 1

// MaxTransferLength bounds the buffer allocated for a single read by the
// convenience helpers. Larger ranges go through a caller-supplied buffer.
const MaxTransferLength = 1 << 32

// ReadRequest asks for len(Buf) bytes starting at Addr.
type ReadRequest struct {
	Addr address.PhysicalAddress
	Buf  []byte
}

// WriteRequest writes Data starting at Addr.
type WriteRequest struct {
	Addr address.PhysicalAddress
	Data []byte
}

// Completion is the outcome of a single request in a batch.
type Completion struct {
	// N is the number of bytes transferred.
	N   int
	Err error
}

// OK reports whether the request completed without error.
func (c Completion) OK() bool { return c.Err == nil }

// Backend is the capability contract every connector implements.
//
// Batch operations are the primitive: every request gets exactly one
// Completion, in request order, and a failing request never aborts the rest
// of the batch. Single reads and writes are built on top of them by the
// instance layer. Close is called exactly once, after which the backend is
// never called again.
type Backend interface {
	ReadBatch(reqs []ReadRequest) []Completion
	WriteBatch(reqs []WriteRequest) []Completion
	Metadata() Metadata
	Close() error
}

// MemoryMapper is implemented by backends whose physical layout can be
// replaced at runtime.
type MemoryMapper interface {
	SetMemoryMap(m *memmap.Map) error
}

// Factory builds a backend from a connector argument string. It may block
// on I/O and should honor ctx while doing so.
type Factory func(ctx context.Context, args string) (Backend, error)

// Metadata describes a backend.
type Metadata struct {
	// AddressSpaceSize is the size of the physical address space, nil when
	// the backend cannot tell.
	AddressSpaceSize *uint64
	// RealSize is the number of backed bytes, which may be smaller than the
	// address space when it contains holes.
	RealSize       uint64
	PageSize       uint64
	ReadOnly       bool
	ThreadSafe     bool
	IdealBatchSize int
	// ByteOrder of scalar values, little endian when nil.
	ByteOrder binary.ByteOrder
}

// KnownSize returns a pointer suitable for Metadata.AddressSpaceSize.
func KnownSize(size uint64) *uint64 {
	return &size
}

// SizeKnown reports whether the address space size is known.
func (m Metadata) SizeKnown() bool { return m.AddressSpaceSize != nil }

// Size returns the address space size, 0 when unknown.
func (m Metadata) Size() uint64 {
	if m.AddressSpaceSize == nil {
		return 0
	}
	return *m.AddressSpaceSize
}

// Order returns the byte order of scalars.
func (m Metadata) Order() binary.ByteOrder {
	if m.ByteOrder == nil {
		return binary.LittleEndian
	}
	return m.ByteOrder
}

// BatchSize returns IdealBatchSize or def when unset.
func (m Metadata) BatchSize(def int) int {
	if m.IdealBatchSize > 0 {
		return m.IdealBatchSize
	}
	return def
}

// InRange reports whether [addr, addr+length) lies within the address
// space. It always succeeds when the size is unknown.
func (m Metadata) InRange(addr address.PhysicalAddress, length uint64) bool {
	if m.AddressSpaceSize == nil {
		return true
	}
	size := *m.AddressSpaceSize
	start := addr.Uint64()
	return start <= size && length <= size-start
}

// Descriptor identifies a connector and carries its factory.
type Descriptor struct {
	Name        string
	Version     string
	Description string
	ABIVersion  uint32
	Factory     Factory
}

// FailAll returns n completions carrying err.
func FailAll(n int, err error) []Completion {
	out := make([]Completion, n)
	for i := range out {
		out[i].Err = err
	}
	return out
}
