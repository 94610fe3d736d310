package dumpsink

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/compression"
	"github.com/ajitpratap0/memgate/pkg/logger"
)

const (
	defaultPartSize    = 16 * 1024 * 1024
	defaultConcurrency = 4
	defaultBufferSize  = 1024 * 1024
)

// Uploader is the part of manager.Uploader used for S3 dumps.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type options struct {
	algorithm       compression.Algorithm
	level           compression.Level
	bufferSize      int
	logger          *zap.Logger
	region          string
	partSize        int64
	concurrency     int
	uploader        Uploader
	credentialsFile string
	contentType     string
}

func defaultOptions() options {
	return options{
		algorithm:   compression.None,
		level:       compression.Default,
		bufferSize:  defaultBufferSize,
		logger:      logger.Get().With(zap.String("component", "dumpsink")),
		partSize:    defaultPartSize,
		concurrency: defaultConcurrency,
		contentType: "application/octet-stream",
	}
}

// Option configures Write.
type Option func(*options)

// WithCompression compresses the dump.
func WithCompression(alg compression.Algorithm, level compression.Level) Option {
	return func(o *options) {
		o.algorithm = alg
		o.level = level
	}
}

// WithBufferSize sets the streaming copy buffer size.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRegion sets the AWS region for S3 destinations.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithPartSize sets the S3 multipart upload part size.
func WithPartSize(n int64) Option {
	return func(o *options) {
		if n >= manager.MinUploadPartSize {
			o.partSize = n
		}
	}
}

// WithConcurrency sets the number of parallel S3 part uploads.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithUploader uses u for S3 destinations instead of a client built from
// the default AWS configuration.
func WithUploader(u Uploader) Option {
	return func(o *options) {
		o.uploader = u
	}
}

// WithCredentialsFile sets a service account key for GCS destinations.
func WithCredentialsFile(path string) Option {
	return func(o *options) {
		o.credentialsFile = path
	}
}
