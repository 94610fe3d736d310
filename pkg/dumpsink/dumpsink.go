// Package dumpsink writes memory dumps to local files or object storage.
//
// Destinations:
//
//	/path/to/file, file:///path/to/file   local file, replaced atomically
//	s3://bucket/key                       Amazon S3 multipart upload
//	gs://bucket/object                    Google Cloud Storage
//
// A dump is streamed from an io.Reader, optionally compressed on the way.
package dumpsink

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/compression"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// Scheme names a destination kind.
type Scheme string

const (
	SchemeFile Scheme = "file"
	SchemeS3   Scheme = "s3"
	SchemeGS   Scheme = "gs"
)

// Destination is a parsed dump target.
type Destination struct {
	Scheme Scheme
	// Bucket is empty for files.
	Bucket string
	// Key is the object key or the file path.
	Key string
}

// String returns the destination in URL form.
func (d Destination) String() string {
	if d.Scheme == SchemeFile {
		return d.Key
	}
	return string(d.Scheme) + "://" + d.Bucket + "/" + d.Key
}

// Parse parses a destination string. Strings without a scheme are paths.
func Parse(dest string) (Destination, error) {
	if dest == "" {
		return Destination{}, memerrors.New(memerrors.ErrorTypeValidation, "empty dump destination")
	}
	if !strings.Contains(dest, "://") {
		return Destination{Scheme: SchemeFile, Key: dest}, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return Destination{}, memerrors.Wrap(err, memerrors.ErrorTypeValidation, "invalid dump destination")
	}

	switch Scheme(u.Scheme) {
	case SchemeFile:
		if u.Path == "" {
			return Destination{}, memerrors.Newf(memerrors.ErrorTypeValidation, "file destination %q has no path", dest)
		}
		return Destination{Scheme: SchemeFile, Key: u.Path}, nil
	case SchemeS3, SchemeGS:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Destination{}, memerrors.Newf(memerrors.ErrorTypeValidation,
				"destination %q needs a bucket and a key", dest)
		}
		return Destination{Scheme: Scheme(u.Scheme), Bucket: u.Host, Key: key}, nil
	default:
		return Destination{}, memerrors.Newf(memerrors.ErrorTypeUnsupported, "unsupported dump scheme %q", u.Scheme)
	}
}

// Result describes a written dump.
type Result struct {
	Destination Destination
	Compression compression.Algorithm
	BytesIn     int64
	BytesOut    int64
	Duration    time.Duration
}

// Write streams src to dest.
func Write(ctx context.Context, dest string, src io.Reader, opts ...Option) (*Result, error) {
	d, err := Parse(dest)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm:  o.algorithm,
		Level:      o.level,
		BufferSize: o.bufferSize,
	})
	if err != nil {
		return nil, err
	}

	w, err := o.open(ctx, d)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	in := &countingReader{r: &contextReader{ctx: ctx, r: src}}
	out := &countingWriter{w: w}

	if err := comp.CompressStream(out, in); err != nil {
		w.Abort()
		if ctx.Err() != nil {
			return nil, memerrors.Wrap(ctx.Err(), memerrors.ErrorTypeIO, "dump cancelled")
		}
		if memerrors.TypeOf(err) != memerrors.ErrorTypeInternal {
			return nil, err
		}
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "dump failed").
			WithDetail("destination", d.String())
	}
	if err := w.Close(); err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to finish dump").
			WithDetail("destination", d.String())
	}

	res := &Result{
		Destination: d,
		Compression: comp.Algorithm(),
		BytesIn:     in.n,
		BytesOut:    out.n,
		Duration:    time.Since(start),
	}
	o.logger.Info("dump written",
		zap.String("destination", d.String()),
		zap.String("compression", string(res.Compression)),
		zap.Int64("bytes_in", res.BytesIn),
		zap.Int64("bytes_out", res.BytesOut),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// sink is an open destination. Close commits the dump; Abort discards it.
type sink interface {
	io.Writer
	Close() error
	Abort()
}

func (o *options) open(ctx context.Context, d Destination) (sink, error) {
	switch d.Scheme {
	case SchemeFile:
		return openFile(d.Key)
	case SchemeS3:
		return o.openS3(ctx, d)
	case SchemeGS:
		return o.openGS(ctx, d)
	default:
		return nil, memerrors.Newf(memerrors.ErrorTypeUnsupported, "unsupported dump scheme %q", d.Scheme)
	}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
