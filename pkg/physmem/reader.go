package physmem

import (
	"io"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/connector/core"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// DefaultChunkSize is the request size used by ReaderAt when none is set.
const DefaultChunkSize = 64 * 1024

// ReaderAt exposes physical memory as an io.ReaderAt. Reads are split into
// chunks issued as one batch.
type ReaderAt struct {
	m         Memory
	chunkSize int
	zeroFill  bool
}

// ReaderOption configures a ReaderAt.
type ReaderOption func(*ReaderAt)

// WithChunkSize sets the size of each batched request.
func WithChunkSize(n int) ReaderOption {
	return func(r *ReaderAt) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithZeroFill makes unreadable chunks read as zeros instead of failing.
func WithZeroFill() ReaderOption {
	return func(r *ReaderAt) {
		r.zeroFill = true
	}
}

// NewReaderAt returns a ReaderAt over m.
func NewReaderAt(m Memory, opts ...ReaderOption) *ReaderAt {
	r := &ReaderAt{m: m, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadAt implements io.ReaderAt. Reading past a known end of the address
// space returns io.EOF.
func (r *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, memerrors.New(memerrors.ErrorTypeValidation, "negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}

	md, err := r.m.Metadata()
	if err != nil {
		return 0, err
	}

	want := len(p)
	var atEOF bool
	if md.SizeKnown() {
		size := md.Size()
		if uint64(off) >= size {
			return 0, io.EOF
		}
		if remain := size - uint64(off); uint64(want) > remain {
			want = int(remain)
			atEOF = true
		}
	}

	var reqs []core.ReadRequest
	for pos := 0; pos < want; pos += r.chunkSize {
		end := min(pos+r.chunkSize, want)
		reqs = append(reqs, core.ReadRequest{
			Addr: address.From(uint64(off) + uint64(pos)),
			Buf:  p[pos:end],
		})
	}

	out, err := ReadMany(r.m, reqs)
	if err != nil {
		return 0, err
	}

	n := 0
	for i, c := range out {
		if c.Err == nil && c.N == len(reqs[i].Buf) {
			n += c.N
			continue
		}
		if !r.zeroFill {
			if c.Err == nil {
				c.Err = memerrors.Newf(memerrors.ErrorTypeShortRead,
					"read %d of %d bytes", c.N, len(reqs[i].Buf))
			}
			return n + c.N, c.Err
		}
		clear(reqs[i].Buf[c.N:])
		n += len(reqs[i].Buf)
	}

	if atEOF {
		return n, io.EOF
	}
	return n, nil
}
