// Package mmap maps files into memory for the file-backed connectors.
//
// A Region is a file mapping with bounds-checked ReadAt and WriteAt. Read-only
// regions are mapped shared with PROT_READ; writable regions are mapped
// shared with PROT_READ|PROT_WRITE so writes reach the file, which is what a
// hypervisor sharing guest memory through that file observes.
package mmap

import (
	"io"
	"os"
	"sync"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Advice is an access pattern hint for the kernel.
type Advice int

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
)

type options struct {
	writable bool
	create   bool
	size     int64
	advice   Advice
}

// Option configures Open.
type Option func(*options)

// Writable maps the file read-write.
func Writable() Option {
	return func(o *options) { o.writable = true }
}

// Create creates the file if missing. It implies Writable.
func Create() Option {
	return func(o *options) {
		o.create = true
		o.writable = true
	}
}

// Size maps exactly n bytes. Writable files shorter than n are extended.
func Size(n int64) Option {
	return func(o *options) { o.size = n }
}

// WithAdvice sets the initial access pattern hint.
func WithAdvice(a Advice) Option {
	return func(o *options) { o.advice = a }
}

// Region is a mapped file. It is safe for concurrent use; Close waits for
// in-flight accesses.
type Region struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	data     []byte
	writable bool
}

// Open maps path.
func Open(path string, opts ...Option) (*Region, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	flag := os.O_RDONLY
	if o.writable {
		flag = os.O_RDWR
	}
	if o.create {
		flag |= os.O_CREATE
	}

	file, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to open file").
			WithDetail("path", path)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to stat file").
			WithDetail("path", path)
	}

	size := stat.Size()
	if o.size > 0 {
		if o.size > size {
			if !o.writable {
				file.Close()
				return nil, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
					"file %s is %d bytes, %d requested", path, size, o.size)
			}
			if err := file.Truncate(o.size); err != nil {
				file.Close()
				return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to extend file").
					WithDetail("path", path)
			}
		}
		size = o.size
	}
	if size == 0 {
		file.Close()
		return nil, memerrors.Newf(memerrors.ErrorTypeValidation, "file %s is empty", path)
	}
	if int64(int(size)) != size {
		file.Close()
		return nil, memerrors.Newf(memerrors.ErrorTypeOutOfBounds, "file %s too large to map", path)
	}

	data, err := mapFile(file, int(size), o.writable)
	if err != nil {
		file.Close()
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to mmap file").
			WithDetail("path", path)
	}

	r := &Region{path: path, file: file, data: data, writable: o.writable}
	if o.advice != AdviceNormal {
		_ = r.Advise(o.advice)
	}
	return r, nil
}

// Path returns the mapped file's path.
func (r *Region) Path() string { return r.path }

// Writable reports whether the region accepts writes.
func (r *Region) Writable() bool { return r.writable }

// Len returns the mapped length, 0 after Close.
func (r *Region) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *Region) closedErr() error {
	return memerrors.Newf(memerrors.ErrorTypeReleased, "region %s closed", r.path)
}

// ReadAt implements io.ReaderAt.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return 0, r.closedErr()
	}
	if off < 0 {
		return 0, memerrors.New(memerrors.ErrorTypeValidation, "negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}

	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Writes past the end are truncated and
// report io.ErrShortWrite.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return 0, r.closedErr()
	}
	if !r.writable {
		return 0, memerrors.Newf(memerrors.ErrorTypeUnsupported, "region %s is read-only", r.path)
	}
	if off < 0 || off >= int64(len(r.data)) {
		return 0, memerrors.Newf(memerrors.ErrorTypeOutOfBounds,
			"offset %#x outside region of %#x bytes", off, len(r.data))
	}

	n := copy(r.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Advise passes an access pattern hint to the kernel. Unsupported hints are
// ignored.
func (r *Region) Advise(a Advice) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return r.closedErr()
	}
	return advise(r.data, a)
}

// Sync flushes writes to the file.
func (r *Region) Sync() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return r.closedErr()
	}
	if !r.writable {
		return nil
	}
	if err := syncData(r.data); err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to sync region")
	}
	return nil
}

// Close unmaps the file and closes it. It is idempotent.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.data != nil {
		err = unmap(r.data)
		r.data = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.file = nil
	}
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to close region")
	}
	return nil
}
