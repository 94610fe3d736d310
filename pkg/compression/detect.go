package compression

import (
	"bytes"
	"path/filepath"
	"strings"
)

var magics = []struct {
	alg   Algorithm
	magic []byte
}{
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Gzip, []byte{0x1f, 0x8b}},
	{S2, []byte("\xff\x06\x00\x00S2sTwO")},
	{Snappy, []byte("\xff\x06\x00\x00sNaPpY")},
}

// MagicLen is the number of header bytes Detect looks at.
const MagicLen = 10

// Detect identifies the algorithm from a stream header. Raw deflate has no
// magic and is reported as None.
func Detect(header []byte) Algorithm {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.magic) {
			return m.alg
		}
	}
	return None
}

// ForPath maps a file extension to an algorithm.
func ForPath(path string) Algorithm {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	case ".gz":
		return Gzip
	case ".s2":
		return S2
	case ".sz":
		return Snappy
	default:
		return None
	}
}

// Extension returns the conventional file extension, "" for None.
func (a Algorithm) Extension() string {
	switch a {
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	case Gzip:
		return ".gz"
	case S2:
		return ".s2"
	case Snappy:
		return ".sz"
	case Deflate:
		return ".deflate"
	default:
		return ""
	}
}
