package address

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Size helpers.
const (
	KiB uint64 = 1 << 10
	MiB uint64 = 1 << 20
	GiB uint64 = 1 << 30
)

// KB returns n kibibytes.
func KB(n uint64) uint64 { return n * KiB }

// MB returns n mebibytes.
func MB(n uint64) uint64 { return n * MiB }

// GB returns n gibibytes.
func GB(n uint64) uint64 { return n * GiB }

// ParseSize parses sizes such as "4096", "0x1000", "4k", "16M" or "2G".
// Suffixes are binary multiples and case-insensitive; a trailing "b" or "ib"
// is accepted.
func ParseSize(s string) (uint64, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, memerrors.New(memerrors.ErrorTypeValidation, "empty size")
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "0x") {
		v, err := strconv.ParseUint(lower[2:], 16, 64)
		if err != nil {
			return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid size "+raw)
		}
		return v, nil
	}

	lower = strings.TrimSuffix(lower, "ib")
	lower = strings.TrimSuffix(lower, "b")

	mult := uint64(1)
	if n := len(lower); n > 0 {
		switch lower[n-1] {
		case 'k':
			mult, lower = KiB, lower[:n-1]
		case 'm':
			mult, lower = MiB, lower[:n-1]
		case 'g':
			mult, lower = GiB, lower[:n-1]
		case 't':
			mult, lower = GiB<<10, lower[:n-1]
		}
	}

	v, err := strconv.ParseUint(lower, 10, 64)
	if err != nil {
		return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid size "+raw)
	}
	if v > ^uint64(0)/mult {
		return 0, memerrors.New(memerrors.ErrorTypeValidation, "size overflows 64 bits: "+raw)
	}
	return v * mult, nil
}

// ParseAddress parses a hex (0x-prefixed) or decimal address and checks it
// against MaxWidth.
func ParseAddress(s string) (PhysicalAddress, error) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return Invalid, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid address "+s)
	}
	return ToPhysical(v, 0)
}
