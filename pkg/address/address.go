// Package address defines the physical address value used across memgate
// together with width-checked arithmetic and page alignment helpers.
//
// A PhysicalAddress is a flat offset into the address space exposed by a
// connector. It optionally carries the size of the page it resides in, which
// translation-aware backends and caches use to pick their granularity.
// Arithmetic never wraps: an operation that would leave the representable
// width fails with an out_of_bounds error.
package address

import (
	"fmt"
	"math/bits"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// MaxWidth is the widest physical address supported, matching the 52-bit
// physical address limit of current x86-64 and AArch64 implementations.
const MaxWidth Width = 52

// Width is an address width in bits.
type Width uint8

// Max returns the largest address representable in w bits.
func (w Width) Max() uint64 {
	if w >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << w) - 1
}

// WidthFor returns the smallest width able to address size bytes.
func WidthFor(size uint64) Width {
	if size <= 1 {
		return 1
	}
	return Width(bits.Len64(size - 1))
}

// PhysicalAddress is a physical memory address with an optional page size
// hint. The zero value is address 0 without a hint.
type PhysicalAddress struct {
	addr     uint64
	pageSize uint64
}

// Invalid is returned where no sensible address exists.
var Invalid = PhysicalAddress{addr: ^uint64(0)}

// ToPhysical builds a PhysicalAddress from a raw offset. pageHint may be 0
// for no hint; otherwise it must be a power of two. The offset must fit in
// MaxWidth bits.
func ToPhysical(offset uint64, pageHint uint64) (PhysicalAddress, error) {
	if offset > MaxWidth.Max() {
		return Invalid, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"offset %#x exceeds %d-bit physical address width", offset, MaxWidth).
			WithDetail("offset", offset)
	}
	if pageHint != 0 && !IsPowerOfTwo(pageHint) {
		return Invalid, memerrors.Newf(memerrors.ErrorTypeValidation,
			"page size hint %#x is not a power of two", pageHint)
	}
	return PhysicalAddress{addr: offset, pageSize: pageHint}, nil
}

// MustPhysical is ToPhysical for constant offsets known to be valid. It
// panics on error.
func MustPhysical(offset uint64) PhysicalAddress {
	a, err := ToPhysical(offset, 0)
	if err != nil {
		panic(err)
	}
	return a
}

// From wraps a raw offset without width checks. Backends use it to rebuild
// addresses they produced themselves.
func From(offset uint64) PhysicalAddress {
	return PhysicalAddress{addr: offset}
}

// Uint64 returns the raw offset.
func (a PhysicalAddress) Uint64() uint64 { return a.addr }

// PageSize returns the page size hint, 0 when absent.
func (a PhysicalAddress) PageSize() uint64 { return a.pageSize }

// HasPageHint reports whether a page size hint is attached.
func (a PhysicalAddress) HasPageHint() bool { return a.pageSize != 0 }

// IsValid reports whether a is not the Invalid sentinel.
func (a PhysicalAddress) IsValid() bool { return a.addr != Invalid.addr }

// WithPageSize returns a copy of a carrying the given page size hint.
func (a PhysicalAddress) WithPageSize(pageSize uint64) PhysicalAddress {
	a.pageSize = pageSize
	return a
}

// PageBase returns the base of the hinted page, or a itself without a hint.
func (a PhysicalAddress) PageBase() PhysicalAddress {
	if a.pageSize == 0 {
		return a
	}
	return PhysicalAddress{addr: a.addr &^ (a.pageSize - 1), pageSize: a.pageSize}
}

// Add returns a+delta, failing if the result exceeds width bits.
func (a PhysicalAddress) Add(delta uint64, width Width) (PhysicalAddress, error) {
	sum, carry := bits.Add64(a.addr, delta, 0)
	if carry != 0 || sum > width.Max() {
		return Invalid, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"address %#x + %#x overflows %d-bit width", a.addr, delta, width)
	}
	return PhysicalAddress{addr: sum, pageSize: a.pageSize}, nil
}

// Sub returns a-delta, failing on underflow.
func (a PhysicalAddress) Sub(delta uint64) (PhysicalAddress, error) {
	diff, borrow := bits.Sub64(a.addr, delta, 0)
	if borrow != 0 {
		return Invalid, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"address %#x - %#x underflows", a.addr, delta)
	}
	return PhysicalAddress{addr: diff, pageSize: a.pageSize}, nil
}

// End returns the exclusive end a+length, failing if it exceeds width bits.
// The end may equal width.Max()+1 since it is exclusive.
func (a PhysicalAddress) End(length uint64, width Width) (uint64, error) {
	end, carry := bits.Add64(a.addr, length, 0)
	if carry != 0 || (length > 0 && end-1 > width.Max()) {
		return 0, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"range %#x+%#x overflows %d-bit width", a.addr, length, width).
			WithDetail("address", a.addr).
			WithDetail("length", length)
	}
	return end, nil
}

// Compare returns -1, 0 or 1 ordering by raw offset.
func (a PhysicalAddress) Compare(b PhysicalAddress) int {
	switch {
	case a.addr < b.addr:
		return -1
	case a.addr > b.addr:
		return 1
	default:
		return 0
	}
}

// String formats the address as hex.
func (a PhysicalAddress) String() string {
	if !a.IsValid() {
		return "invalid"
	}
	if a.pageSize != 0 {
		return fmt.Sprintf("%#x (page %#x)", a.addr, a.pageSize)
	}
	return fmt.Sprintf("%#x", a.addr)
}
