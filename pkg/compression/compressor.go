// Package compression provides the codecs used for memory snapshots: reading
// compressed core dumps and writing compressed dumps to a sink.
//
// # Algorithm Selection
//
//   - LZ4: fastest, decent ratio, good for large live dumps
//   - Snappy/S2: fast, moderate ratio
//   - Zstd: best ratio, good speed, the usual choice for archived snapshots
//   - Gzip: wide compatibility
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Better,
//	})
//
//	// Stream a dump
//	err = comp.CompressStream(dst, physmem.NewReaderAt(mem))
//
//	// Load a compressed snapshot, bounded by the address space size
//	data, err := compression.DecompressAll(r, compression.Detect(header), 1<<30)
package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy framed compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
)

// Algorithms lists every supported algorithm.
func Algorithms() []Algorithm {
	return []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate}
}

// ParseAlgorithm resolves a name such as "zstd" or "gz". The empty string
// is None.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "none", "raw":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "snappy", "sz":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	case "s2":
		return S2, nil
	case "deflate":
		return Deflate, nil
	default:
		return "", memerrors.Newf(memerrors.ErrorTypeValidation, "unsupported compression algorithm: %s", name)
	}
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// Compressor provides compression and decompression functionality.
// All implementations are safe for concurrent use.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// CompressStream compresses from reader to writer.
	CompressStream(dst io.Writer, src io.Reader) error

	// DecompressStream decompresses from reader to writer.
	DecompressStream(dst io.Writer, src io.Reader) error

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm  Algorithm // Compression algorithm to use
	Level      Level     // Compression level
	BufferSize int       // Buffer size for streaming copies
}

// DefaultConfig returns the configuration used for dumps when nothing else
// is set: zstd at the default level with 64KB buffers.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:  Zstd,
		Level:      Default,
		BufferSize: 64 * 1024,
	}
}

// NewCompressor creates a new compressor based on the provided configuration.
// If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64 * 1024
	}

	base := baseCompressor{
		algorithm:  config.Algorithm,
		level:      config.Level,
		bufferSize: config.BufferSize,
	}

	switch config.Algorithm {
	case None, "":
		base.algorithm = None
		return &noneCompressor{baseCompressor: base}, nil
	case Gzip:
		return newGzipCompressor(base), nil
	case Snappy:
		return &snappyCompressor{baseCompressor: base}, nil
	case LZ4:
		return &lz4Compressor{baseCompressor: base, compressionLevel: mapLZ4Level(config.Level)}, nil
	case Zstd:
		return newZstdCompressor(base), nil
	case S2:
		return &s2Compressor{baseCompressor: base}, nil
	case Deflate:
		return &deflateCompressor{baseCompressor: base, flateLevel: mapDeflateLevel(config.Level)}, nil
	default:
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation, "unsupported compression algorithm: %s", config.Algorithm)
	}
}

// DecompressAll decompresses r fully, failing once more than limit bytes
// come out. A limit of zero or less means no limit.
func DecompressAll(r io.Reader, alg Algorithm, limit int64) ([]byte, error) {
	comp, err := NewCompressor(&Config{Algorithm: alg, Level: Default})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var dst io.Writer = &buf
	if limit > 0 {
		dst = &limitedWriter{w: &buf, remaining: limit}
	}
	if err := comp.DecompressStream(dst, r); err != nil {
		if memerrors.IsType(err, memerrors.ErrorTypeOutOfBounds) {
			return nil, err
		}
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "decompression failed").
			WithDetail("algorithm", string(alg))
	}
	return buf.Bytes(), nil
}

type limitedWriter struct {
	w         io.Writer
	remaining int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		return 0, memerrors.New(memerrors.ErrorTypeOutOfBounds, "decompressed data exceeds limit")
	}
	l.remaining -= int64(len(p))
	return l.w.Write(p)
}

type baseCompressor struct {
	algorithm  Algorithm
	level      Level
	bufferSize int
}

func (bc *baseCompressor) Algorithm() Algorithm {
	return bc.algorithm
}

func (bc *baseCompressor) Level() Level {
	return bc.level
}

func (bc *baseCompressor) copy(dst io.Writer, src io.Reader) error {
	_, err := io.CopyBuffer(dst, src, make([]byte, bc.bufferSize))
	return err
}

// compressWith runs a streaming writer over data in memory.
func compressWith(data []byte, newWriter func(io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

func (nc *noneCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	return nc.copy(dst, src)
}

func (nc *noneCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return nc.copy(dst, src)
}

type gzipCompressor struct {
	baseCompressor
	gzipLevel  int
	writerPool sync.Pool
}

func newGzipCompressor(base baseCompressor) *gzipCompressor {
	gc := &gzipCompressor{baseCompressor: base, gzipLevel: mapGzipLevel(base.level)}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gc.gzipLevel)
		return w
	}
	return gc
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := gc.CompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := gc.DecompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(dst)
	if err := gc.copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (gc *gzipCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	r, err := gzip.NewReader(src)
	if err != nil {
		return err
	}
	defer r.Close()
	return gc.copy(dst, r)
}

type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, func(w io.Writer) (io.WriteCloser, error) {
		return snappy.NewBufferedWriter(w), nil
	})
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := sc.DecompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (sc *snappyCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := snappy.NewBufferedWriter(dst)
	if err := sc.copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (sc *snappyCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return sc.copy(dst, snappy.NewReader(src))
}

type lz4Compressor struct {
	baseCompressor
	compressionLevel lz4.CompressionLevel
}

func (lc *lz4Compressor) newWriter(dst io.Writer) (io.WriteCloser, error) {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(lc.compressionLevel)); err != nil {
		return nil, err
	}
	return w, nil
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, lc.newWriter)
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := lc.DecompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	w, err := lc.newWriter(dst)
	if err != nil {
		return err
	}
	if err := lc.copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (lc *lz4Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return lc.copy(dst, lz4.NewReader(src))
}

type zstdCompressor struct {
	baseCompressor
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCompressor(base baseCompressor) *zstdCompressor {
	level := mapZstdLevel(base.level)
	zc := &zstdCompressor{baseCompressor: base}

	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		return enc
	}
	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	return zc
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	return dec.DecodeAll(data, nil)
}

func (zc *zstdCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	enc.Reset(dst)
	if err := zc.copy(enc, src); err != nil {
		return err
	}
	return enc.Close()
}

func (zc *zstdCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	if err := dec.Reset(src); err != nil {
		return err
	}
	return zc.copy(dst, dec)
}

// S2 compressor (Snappy-compatible but better compression)
type s2Compressor struct {
	baseCompressor
}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, func(w io.Writer) (io.WriteCloser, error) {
		return s2.NewWriter(w), nil
	})
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := sc.DecompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (sc *s2Compressor) CompressStream(dst io.Writer, src io.Reader) error {
	w := s2.NewWriter(dst)
	if err := sc.copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (sc *s2Compressor) DecompressStream(dst io.Writer, src io.Reader) error {
	return sc.copy(dst, s2.NewReader(src))
}

type deflateCompressor struct {
	baseCompressor
	flateLevel int
}

func (dc *deflateCompressor) newWriter(dst io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(dst, dc.flateLevel)
}

func (dc *deflateCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, dc.newWriter)
}

func (dc *deflateCompressor) Decompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.DecompressStream(&buf, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (dc *deflateCompressor) CompressStream(dst io.Writer, src io.Reader) error {
	w, err := dc.newWriter(dst)
	if err != nil {
		return err
	}
	if err := dc.copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (dc *deflateCompressor) DecompressStream(dst io.Writer, src io.Reader) error {
	r := flate.NewReader(src)
	defer r.Close()
	return dc.copy(dst, r)
}

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapDeflateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}
