package dumpsink

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// s3Sink feeds a multipart upload through a pipe.
type s3Sink struct {
	pw   *io.PipeWriter
	done chan error
}

func (o *options) openS3(ctx context.Context, d Destination) (*s3Sink, error) {
	uploader := o.uploader
	if uploader == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(o.region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to load AWS configuration")
		}
		uploader = manager.NewUploader(s3.NewFromConfig(cfg), func(u *manager.Uploader) {
			u.PartSize = o.partSize
			u.Concurrency = o.concurrency
		})
	}

	pr, pw := io.Pipe()
	s := &s3Sink{pw: pw, done: make(chan error, 1)}

	go func() {
		out, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.Bucket),
			Key:         aws.String(d.Key),
			Body:        pr,
			ContentType: aws.String(o.contentType),
		})
		if err == nil && out != nil {
			o.logger.Debug("s3 upload complete", zap.String("location", out.Location))
		}
		pr.CloseWithError(err)
		s.done <- err
	}()

	return s, nil
}

func (s *s3Sink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *s3Sink) Close() error {
	if err := s.pw.Close(); err != nil {
		return err
	}
	return <-s.done
}

func (s *s3Sink) Abort() {
	s.pw.CloseWithError(memerrors.New(memerrors.ErrorTypeIO, "dump aborted"))
	<-s.done
}
