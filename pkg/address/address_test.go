package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

func TestToPhysical(t *testing.T) {
	a, err := ToPhysical(0x30000, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x30000), a.Uint64())
	assert.False(t, a.HasPageHint())
	assert.Equal(t, "0x30000", a.String())

	a, err = ToPhysical(0x1234, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000), a.PageSize())
	assert.Equal(t, uint64(0x1000), a.PageBase().Uint64())

	_, err = ToPhysical(MaxWidth.Max()+1, 0)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))

	_, err = ToPhysical(0, 3000)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))
}

func TestAddSub(t *testing.T) {
	a := MustPhysical(0x1000)

	b, err := a.Add(0x10, MaxWidth)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1010), b.Uint64())

	_, err = MustPhysical(MaxWidth.Max()).Add(1, MaxWidth)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))

	_, err = From(^uint64(0) - 1).Add(5, 64)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))

	c, err := a.Sub(0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Uint64())

	_, err = a.Sub(0x1001)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))
}

func TestEnd(t *testing.T) {
	end, err := MustPhysical(0).End(1<<MaxWidth, MaxWidth)
	require.NoError(t, err)
	assert.Equal(t, uint64(1)<<MaxWidth, end)

	_, err = MustPhysical(1).End(1<<MaxWidth, MaxWidth)
	assert.Error(t, err)

	end, err = MustPhysical(0x10).End(0, MaxWidth)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), end)
}

func TestWidth(t *testing.T) {
	assert.Equal(t, uint64(0xff), Width(8).Max())
	assert.Equal(t, ^uint64(0), Width(64).Max())
	assert.Equal(t, Width(12), WidthFor(4096))
	assert.Equal(t, Width(13), WidthFor(4097))
	assert.Equal(t, Width(1), WidthFor(0))
}

func TestInvalid(t *testing.T) {
	assert.False(t, Invalid.IsValid())
	assert.Equal(t, "invalid", Invalid.String())
	assert.True(t, MustPhysical(0).IsValid())
	assert.Equal(t, -1, MustPhysical(1).Compare(MustPhysical(2)))
	assert.Equal(t, 0, MustPhysical(2).Compare(MustPhysical(2)))
}

func TestPageHelpers(t *testing.T) {
	a := MustPhysical(0x12345)
	assert.Equal(t, uint64(0x12000), PageAlign(a, 0x1000).Uint64())
	assert.Equal(t, uint64(0x345), PageOffset(a, 0x1000))
	assert.False(t, IsAligned(a, 0x1000))
	assert.True(t, IsAligned(MustPhysical(0x2000), 0x1000))
	assert.Equal(t, a, PageAlign(a, 0))

	assert.Equal(t, uint64(1), PageCount(MustPhysical(0), 0x1000, 0x1000))
	assert.Equal(t, uint64(2), PageCount(MustPhysical(0xfff), 2, 0x1000))
	assert.Equal(t, uint64(0), PageCount(MustPhysical(0), 0, 0x1000))

	assert.True(t, IsPowerOfTwo(4096))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(12))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "4096", want: 4096},
		{in: "0x1000", want: 0x1000},
		{in: "4k", want: 4 * KiB},
		{in: "4KiB", want: 4 * KiB},
		{in: "16M", want: MB(16)},
		{in: "2gb", want: GB(2)},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "k", wantErr: true},
		{in: "0xzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x3_0000")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x30000), a.Uint64())

	_, err = ParseAddress("nope")
	assert.Error(t, err)

	_, err = ParseAddress("0xffffffffffffffff")
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))
}
