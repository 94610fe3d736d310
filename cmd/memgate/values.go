package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/physmem"
)

type valueType string

const (
	typeBytes valueType = "bytes"
	typeU8    valueType = "u8"
	typeU16   valueType = "u16"
	typeU32   valueType = "u32"
	typeU64   valueType = "u64"
	typeI8    valueType = "i8"
	typeI16   valueType = "i16"
	typeI32   valueType = "i32"
	typeI64   valueType = "i64"
	typeF32   valueType = "f32"
	typeF64   valueType = "f64"
)

func parseValueType(s string) (valueType, error) {
	switch vt := valueType(strings.ToLower(s)); vt {
	case typeBytes, typeU8, typeU16, typeU32, typeU64,
		typeI8, typeI16, typeI32, typeI64, typeF32, typeF64:
		return vt, nil
	default:
		return "", memerrors.Newf(memerrors.ErrorTypeValidation, "unknown value type %q", s)
	}
}

// readValues reads count values and formats each as "<address>: <value>".
func readValues(m physmem.Memory, addr address.PhysicalAddress, vt valueType, count int) ([]string, error) {
	switch vt {
	case typeU8:
		return readFormatted(m, addr, count, func(v uint8) string { return fmt.Sprintf("%#04x", v) })
	case typeU16:
		return readFormatted(m, addr, count, func(v uint16) string { return fmt.Sprintf("%#06x", v) })
	case typeU32:
		return readFormatted(m, addr, count, func(v uint32) string { return fmt.Sprintf("%#010x", v) })
	case typeU64:
		return readFormatted(m, addr, count, func(v uint64) string { return fmt.Sprintf("%#018x", v) })
	case typeI8:
		return readFormatted(m, addr, count, func(v int8) string { return strconv.FormatInt(int64(v), 10) })
	case typeI16:
		return readFormatted(m, addr, count, func(v int16) string { return strconv.FormatInt(int64(v), 10) })
	case typeI32:
		return readFormatted(m, addr, count, func(v int32) string { return strconv.FormatInt(int64(v), 10) })
	case typeI64:
		return readFormatted(m, addr, count, func(v int64) string { return strconv.FormatInt(v, 10) })
	case typeF32:
		return readFormatted(m, addr, count, func(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) })
	case typeF64:
		return readFormatted(m, addr, count, func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) })
	default:
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation, "cannot format %s values", vt)
	}
}

func readFormatted[T physmem.Scalar](m physmem.Memory, addr address.PhysicalAddress, count int, format func(T) string) ([]string, error) {
	vals, err := physmem.ReadSlice[T](m, addr, count)
	if err != nil {
		return nil, err
	}

	size := uint64(physmem.SizeOf[T]())
	lines := make([]string, len(vals))
	for i, v := range vals {
		lines[i] = fmt.Sprintf("%#x: %s", addr.Uint64()+uint64(i)*size, format(v))
	}
	return lines, nil
}

// writeValue parses s as vt and writes it at addr, returning the number of
// bytes written.
func writeValue(m physmem.Memory, addr address.PhysicalAddress, vt valueType, s string) (int, error) {
	switch vt {
	case typeBytes:
		data, err := hex.DecodeString(strings.TrimPrefix(strings.ReplaceAll(s, " ", ""), "0x"))
		if err != nil {
			return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid hex bytes")
		}
		if len(data) == 0 {
			return 0, memerrors.New(memerrors.ErrorTypeValidation, "nothing to write")
		}
		return len(data), physmem.WriteRange(m, addr, data)
	case typeU8:
		return writeUint[uint8](m, addr, s, 8)
	case typeU16:
		return writeUint[uint16](m, addr, s, 16)
	case typeU32:
		return writeUint[uint32](m, addr, s, 32)
	case typeU64:
		return writeUint[uint64](m, addr, s, 64)
	case typeI8:
		return writeInt[int8](m, addr, s, 8)
	case typeI16:
		return writeInt[int16](m, addr, s, 16)
	case typeI32:
		return writeInt[int32](m, addr, s, 32)
	case typeI64:
		return writeInt[int64](m, addr, s, 64)
	case typeF32:
		return writeFloat[float32](m, addr, s, 32)
	case typeF64:
		return writeFloat[float64](m, addr, s, 64)
	default:
		return 0, memerrors.Newf(memerrors.ErrorTypeValidation, "cannot write %s values", vt)
	}
}

func writeUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](m physmem.Memory, addr address.PhysicalAddress, s string, bits int) (int, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid value "+s)
	}
	return physmem.SizeOf[T](), physmem.WriteScalar(m, addr, T(v))
}

func writeInt[T ~int8 | ~int16 | ~int32 | ~int64](m physmem.Memory, addr address.PhysicalAddress, s string, bits int) (int, error) {
	v, err := strconv.ParseInt(s, 0, bits)
	if err != nil {
		return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid value "+s)
	}
	return physmem.SizeOf[T](), physmem.WriteScalar(m, addr, T(v))
}

func writeFloat[T ~float32 | ~float64](m physmem.Memory, addr address.PhysicalAddress, s string, bits int) (int, error) {
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid value "+s)
	}
	return physmem.SizeOf[T](), physmem.WriteScalar(m, addr, T(v))
}
