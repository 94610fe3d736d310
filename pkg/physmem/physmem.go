// Package physmem provides typed access to physical memory on top of the
// connector batch primitives.
//
// Every helper goes through Memory.ReadBatch or Memory.WriteBatch, so single
// values are batches of one and backends never need scalar entry points.
// Scalars are decoded in the byte order the backend declares, little endian
// by default.
package physmem

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Memory is the view of a connector instance used by this package.
// *instance.Instance implements it.
type Memory interface {
	ReadBatch(reqs []core.ReadRequest) []core.Completion
	WriteBatch(reqs []core.WriteRequest) []core.Completion
	Metadata() (core.Metadata, error)
}

// Scalar is a fixed-width integer or float.
type Scalar interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~float64
}

// SizeOf returns the encoded size of T in bytes.
func SizeOf[T Scalar]() int {
	var zero T
	return binary.Size(zero)
}

// ReadScalar reads a T at addr.
func ReadScalar[T Scalar](m Memory, addr address.PhysicalAddress) (T, error) {
	var v T

	md, err := m.Metadata()
	if err != nil {
		return v, err
	}

	buf := make([]byte, SizeOf[T]())
	c := m.ReadBatch([]core.ReadRequest{{Addr: addr, Buf: buf}})[0]
	if err := readResult(c, len(buf)); err != nil {
		return v, err
	}

	if _, err := binary.Decode(buf, md.Order(), &v); err != nil {
		return v, memerrors.Wrap(err, memerrors.ErrorTypeInternal, "failed to decode scalar")
	}
	return v, nil
}

// WriteScalar writes v at addr.
func WriteScalar[T Scalar](m Memory, addr address.PhysicalAddress, v T) error {
	md, err := m.Metadata()
	if err != nil {
		return err
	}

	buf, err := binary.Append(nil, md.Order(), v)
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeInternal, "failed to encode scalar")
	}
	return m.WriteBatch([]core.WriteRequest{{Addr: addr, Data: buf}})[0].Err
}

// ReadSlice reads n consecutive values of T starting at addr.
func ReadSlice[T Scalar](m Memory, addr address.PhysicalAddress, n int) ([]T, error) {
	md, err := m.Metadata()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, memerrors.New(memerrors.ErrorTypeValidation, "negative element count")
	}
	size := SizeOf[T]()
	if n > math.MaxInt/size {
		return nil, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"%d elements of %d bytes overflow the address space", n, size)
	}

	buf, err := ReadRange(m, addr, n*size)
	if err != nil {
		return nil, err
	}

	out := make([]T, n)
	if _, err := binary.Decode(buf, md.Order(), out); err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeInternal, "failed to decode slice")
	}
	return out, nil
}

// ReadRange reads n bytes at addr. n may not exceed core.MaxTransferLength.
func ReadRange(m Memory, addr address.PhysicalAddress, n int) ([]byte, error) {
	md, err := m.Metadata()
	if err != nil {
		return nil, err
	}
	if err := checkLength(md, addr, n); err != nil {
		return nil, err
	}

	buf := make([]byte, n)
	c := m.ReadBatch([]core.ReadRequest{{Addr: addr, Buf: buf}})[0]
	if err := readResult(c, n); err != nil {
		return buf[:min(c.N, n)], err
	}
	return buf, nil
}

// WriteRange writes data at addr.
func WriteRange(m Memory, addr address.PhysicalAddress, data []byte) error {
	return m.WriteBatch([]core.WriteRequest{{Addr: addr, Data: data}})[0].Err
}

// ReadInto decodes a fixed-size value, such as a struct of scalars or an
// array, from memory at addr into v, which must be a pointer.
func ReadInto(m Memory, addr address.PhysicalAddress, v any) error {
	md, err := m.Metadata()
	if err != nil {
		return err
	}

	size := binary.Size(v)
	if size < 0 {
		return memerrors.Newf(memerrors.ErrorTypeValidation, "%T is not a fixed-size value", v)
	}

	buf, err := ReadRange(m, addr, size)
	if err != nil {
		return err
	}
	if _, err := binary.Decode(buf, md.Order(), v); err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeValidation, "failed to decode value")
	}
	return nil
}

// WriteFrom encodes a fixed-size value and writes it at addr.
func WriteFrom(m Memory, addr address.PhysicalAddress, v any) error {
	md, err := m.Metadata()
	if err != nil {
		return err
	}

	buf, err := binary.Append(nil, md.Order(), v)
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeValidation, "failed to encode value")
	}
	return WriteRange(m, addr, buf)
}

// checkLength rejects a read of n bytes at addr before its buffer is
// allocated.
func checkLength(md core.Metadata, addr address.PhysicalAddress, n int) error {
	if n < 0 {
		return memerrors.New(memerrors.ErrorTypeValidation, "negative read length")
	}
	if _, err := addr.End(uint64(n), address.MaxWidth); err != nil {
		return err
	}
	if !md.InRange(addr, uint64(n)) {
		return memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"range %s+%#x exceeds address space of %#x", addr, n, md.Size()).
			WithDetail("address", addr.Uint64()).
			WithDetail("length", n)
	}
	if n > core.MaxTransferLength {
		return memerrors.Newf(memerrors.ErrorTypeValidation,
			"read of %#x bytes exceeds the %#x byte limit", n, core.MaxTransferLength)
	}
	return nil
}

func readResult(c core.Completion, want int) error {
	if c.Err != nil {
		return c.Err
	}
	if c.N < want {
		return memerrors.Newf(memerrors.ErrorTypeShortRead, "read %d of %d bytes", c.N, want)
	}
	return nil
}
