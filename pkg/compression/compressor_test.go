package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

func pageData() []byte {
	data := make([]byte, 3*4096+17)
	for i := range data {
		data[i] = byte(i / 64)
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	original := pageData()

	for _, alg := range Algorithms() {
		t.Run(string(alg), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
			require.NoError(t, err)
			assert.Equal(t, alg, comp.Algorithm())
			assert.Equal(t, Default, comp.Level())

			compressed, err := comp.Compress(original)
			require.NoError(t, err)
			decompressed, err := comp.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, original, decompressed)

			var stream bytes.Buffer
			require.NoError(t, comp.CompressStream(&stream, bytes.NewReader(original)))
			var out bytes.Buffer
			require.NoError(t, comp.DecompressStream(&out, &stream))
			assert.Equal(t, original, out.Bytes())
		})
	}
}

func TestDetect(t *testing.T) {
	original := pageData()

	for _, alg := range []Algorithm{Zstd, LZ4, Gzip, S2, Snappy} {
		t.Run(string(alg), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: alg})
			require.NoError(t, err)

			var stream bytes.Buffer
			require.NoError(t, comp.CompressStream(&stream, bytes.NewReader(original)))
			header := stream.Bytes()[:MagicLen]
			assert.Equal(t, alg, Detect(header))
			assert.Equal(t, alg, ForPath("snapshot.raw"+alg.Extension()))
		})
	}

	assert.Equal(t, None, Detect([]byte{0, 0, 0, 0}))
	assert.Equal(t, None, ForPath("snapshot.raw"))
}

func TestDecompressAllLimit(t *testing.T) {
	original := pageData()
	comp, err := NewCompressor(&Config{Algorithm: Zstd})
	require.NoError(t, err)
	compressed, err := comp.Compress(original)
	require.NoError(t, err)

	data, err := DecompressAll(bytes.NewReader(compressed), Zstd, int64(len(original)))
	require.NoError(t, err)
	assert.Equal(t, original, data)

	_, err = DecompressAll(bytes.NewReader(compressed), Zstd, 4096)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds))

	_, err = DecompressAll(bytes.NewReader([]byte("not zstd")), Zstd, 0)
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeIO))
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
	}{
		{"", None},
		{"zst", Zstd},
		{"gz", Gzip},
		{"lz4", LZ4},
		{"s2", S2},
		{"snappy", Snappy},
		{"deflate", Deflate},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseAlgorithm("brotli")
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation))

	_, err = NewCompressor(&Config{Algorithm: "brotli"})
	assert.Error(t, err)
}
