// Package memmap describes how a connector's physical address space maps
// onto its backing store.
//
// A Map is a sorted list of non-overlapping mappings. Each mapping translates
// the physical range [Base, Base+Size) to [RealBase, RealBase+Size) in the
// backend, for example a file offset in a memory dump that skips the PCI
// hole. Addresses not covered by any mapping are unmapped.
package memmap

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Mapping translates one physical range to a backend range.
type Mapping struct {
	Base     uint64
	Size     uint64
	RealBase uint64
}

// End returns the exclusive end of the physical range.
func (m Mapping) End() uint64 { return m.Base + m.Size }

// Contains reports whether addr falls inside the mapping.
func (m Mapping) Contains(addr uint64) bool {
	return addr >= m.Base && addr-m.Base < m.Size
}

// Segment is one piece of a translated range.
type Segment struct {
	// Addr is the physical address of the segment.
	Addr uint64
	// Real is the backend address, valid only when Mapped.
	Real   uint64
	Length uint64
	Mapped bool
	// Offset is the segment's offset from the start of the translated range.
	Offset uint64
}

// Map is a set of mappings safe for concurrent use.
type Map struct {
	mu       sync.RWMutex
	mappings []Mapping
}

// New returns an empty map.
func New() *Map {
	return &Map{}
}

// Identity returns a map covering [0, size) with no translation.
func Identity(size uint64) *Map {
	m := New()
	if size > 0 {
		m.mappings = []Mapping{{Base: 0, Size: size, RealBase: 0}}
	}
	return m
}

// Add inserts a mapping. Zero-sized, overflowing and overlapping mappings
// are rejected.
func (m *Map) Add(base, size, realBase uint64) error {
	if size == 0 {
		return memerrors.New(memerrors.ErrorTypeValidation, "mapping size must be non-zero")
	}
	if base+size < base || realBase+size < realBase {
		return memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"mapping %#x+%#x overflows", base, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].Base >= base
	})
	if idx > 0 && m.mappings[idx-1].End() > base {
		return overlap(base, size, m.mappings[idx-1])
	}
	if idx < len(m.mappings) && base+size > m.mappings[idx].Base {
		return overlap(base, size, m.mappings[idx])
	}

	m.mappings = append(m.mappings, Mapping{})
	copy(m.mappings[idx+1:], m.mappings[idx:])
	m.mappings[idx] = Mapping{Base: base, Size: size, RealBase: realBase}
	return nil
}

func overlap(base, size uint64, existing Mapping) error {
	return memerrors.Newf(memerrors.ErrorTypeValidation,
		"mapping %#x-%#x overlaps %#x-%#x", base, base+size, existing.Base, existing.End()).
		WithDetail("base", base).
		WithDetail("size", size)
}

// Mappings returns a copy of the mappings in ascending order.
func (m *Map) Mappings() []Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Mapping, len(m.mappings))
	copy(out, m.mappings)
	return out
}

// Len returns the number of mappings.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mappings)
}

// MaxAddress returns the exclusive end of the highest mapping, 0 when empty.
func (m *Map) MaxAddress() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.mappings) == 0 {
		return 0
	}
	return m.mappings[len(m.mappings)-1].End()
}

// RealSize returns the number of mapped bytes.
func (m *Map) RealSize() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total uint64
	for _, mp := range m.mappings {
		total += mp.Size
	}
	return total
}

// Lookup translates a single address.
func (m *Map) Lookup(addr uint64) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.find(addr); i >= 0 {
		mp := m.mappings[i]
		return mp.RealBase + (addr - mp.Base), true
	}
	return 0, false
}

// find returns the index of the mapping containing addr or -1. Callers hold
// the lock.
func (m *Map) find(addr uint64) int {
	idx := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].End() > addr
	})
	if idx < len(m.mappings) && m.mappings[idx].Contains(addr) {
		return idx
	}
	return -1
}

// Translate splits [addr, addr+length) into consecutive segments. Mapped
// segments carry their backend address; gaps are returned with Mapped false.
// The segments always cover the whole range.
func (m *Map) Translate(addr, length uint64) []Segment {
	if length == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var segs []Segment
	cur, remaining := addr, length

	idx := sort.Search(len(m.mappings), func(i int) bool {
		return m.mappings[i].End() > cur
	})

	for remaining > 0 {
		if idx >= len(m.mappings) {
			segs = append(segs, Segment{Addr: cur, Length: remaining, Offset: cur - addr})
			break
		}

		mp := m.mappings[idx]
		if cur < mp.Base {
			gap := min(mp.Base-cur, remaining)
			segs = append(segs, Segment{Addr: cur, Length: gap, Offset: cur - addr})
			cur += gap
			remaining -= gap
			continue
		}

		n := min(mp.End()-cur, remaining)
		segs = append(segs, Segment{
			Addr:   cur,
			Real:   mp.RealBase + (cur - mp.Base),
			Length: n,
			Mapped: true,
			Offset: cur - addr,
		})
		cur += n
		remaining -= n
		idx++
	}

	return segs
}
