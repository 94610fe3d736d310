package memmap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

func TestAddRejectsOverlap(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(0x1000, 0x1000, 0))
	require.NoError(t, m.Add(0x3000, 0x1000, 0x1000))
	require.NoError(t, m.Add(0x2000, 0x1000, 0x2000))

	tests := []struct {
		name string
		base uint64
		size uint64
	}{
		{"inside", 0x1800, 0x10},
		{"straddle start", 0xf00, 0x200},
		{"straddle end", 0x3f00, 0x200},
		{"cover", 0, 0x10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Add(tt.base, tt.size, 0x9000)
			assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))
		})
	}

	err := m.Add(0x5000, 0, 0)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))

	err = m.Add(^uint64(0)-1, 0x10, 0)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))

	got := m.Mappings()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(0x1000), got[0].Base)
	assert.Equal(t, uint64(0x2000), got[1].Base)
	assert.Equal(t, uint64(0x3000), got[2].Base)
	assert.Equal(t, uint64(0x4000), m.MaxAddress())
	assert.Equal(t, uint64(0x3000), m.RealSize())
}

func TestLookup(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(0x100000, 0x1000, 0x2000))

	backing, ok := m.Lookup(0x100010)
	require.True(t, ok)
	assert.Equal(t, uint64(0x2010), backing)

	_, ok = m.Lookup(0x101000)
	assert.False(t, ok)
	_, ok = m.Lookup(0)
	assert.False(t, ok)
}

func TestTranslateSplitsAcrossGaps(t *testing.T) {
	m := New()
	require.NoError(t, m.Add(0x0, 0x1000, 0x0))
	require.NoError(t, m.Add(0x2000, 0x1000, 0x1000))

	segs := m.Translate(0x800, 0x2000)
	require.Len(t, segs, 3)

	assert.Equal(t, Segment{Addr: 0x800, Real: 0x800, Length: 0x800, Mapped: true, Offset: 0}, segs[0])
	assert.Equal(t, Segment{Addr: 0x1000, Length: 0x1000, Offset: 0x800}, segs[1])
	assert.Equal(t, Segment{Addr: 0x2000, Real: 0x1000, Length: 0x800, Mapped: true, Offset: 0x1800}, segs[2])

	tail := m.Translate(0x2f00, 0x200)
	require.Len(t, tail, 2)
	assert.True(t, tail[0].Mapped)
	assert.Equal(t, uint64(0x100), tail[0].Length)
	assert.False(t, tail[1].Mapped)
	assert.Equal(t, uint64(0x100), tail[1].Length)

	assert.Nil(t, m.Translate(0, 0))
}

func TestIdentity(t *testing.T) {
	m := Identity(0x4000)
	segs := m.Translate(0x10, 0x20)
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(0x10), segs[0].Real)
	assert.Equal(t, 0, Identity(0).Len())
}

func TestDecodeEncode(t *testing.T) {
	src := `
mappings:
  - base: 0x0
    size: 640k
  - base: 0x100000
    size: 0x1000
    real_base: 0xa0000
`
	m, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	backing, ok := m.Lookup(0x100004)
	require.True(t, ok)
	assert.Equal(t, uint64(0xa0004), backing)

	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))
	assert.Contains(t, buf.String(), "real_base: 0xa0000")

	again, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.Mappings(), again.Mappings())
}

func TestDecodeRejectsOverlap(t *testing.T) {
	src := `
mappings:
  - base: 0x0
    size: 0x2000
  - base: 0x1000
    size: 0x1000
`
	_, err := Decode(strings.NewReader(src))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")

	m := New()
	require.NoError(t, m.Add(0x1000, 0x1000, 0))
	require.NoError(t, m.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m.Mappings(), loaded.Mappings())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeIO))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
