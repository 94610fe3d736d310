package address

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// PageAlign rounds a down to a multiple of pageSize, which must be a power of
// two. A zero pageSize returns a unchanged.
func PageAlign(a PhysicalAddress, pageSize uint64) PhysicalAddress {
	if pageSize == 0 {
		return a
	}
	return PhysicalAddress{addr: a.addr &^ (pageSize - 1), pageSize: a.pageSize}
}

// PageOffset returns the offset of a within its page.
func PageOffset(a PhysicalAddress, pageSize uint64) uint64 {
	if pageSize == 0 {
		return 0
	}
	return a.addr & (pageSize - 1)
}

// PageCount returns how many pages of pageSize the range [a, a+length)
// touches.
func PageCount(a PhysicalAddress, length, pageSize uint64) uint64 {
	if length == 0 || pageSize == 0 {
		return 0
	}
	first := a.addr / pageSize
	last := (a.addr + length - 1) / pageSize
	return last - first + 1
}

// IsAligned reports whether a is a multiple of pageSize.
func IsAligned(a PhysicalAddress, pageSize uint64) bool {
	return PageOffset(a, pageSize) == 0
}
