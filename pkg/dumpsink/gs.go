package dumpsink

import (
	"context"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

type gsSink struct {
	client *storage.Client
	w      *storage.Writer
	cancel context.CancelFunc
}

func (o *options) openGS(ctx context.Context, d Destination) (*gsSink, error) {
	var opts []option.ClientOption
	if o.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(o.credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeConfig, "failed to create GCS client")
	}

	// Cancelling the writer's context aborts the upload.
	wctx, cancel := context.WithCancel(ctx)
	w := client.Bucket(d.Bucket).Object(d.Key).NewWriter(wctx)
	w.ContentType = o.contentType
	w.ChunkSize = int(o.partSize)

	return &gsSink{client: client, w: w, cancel: cancel}, nil
}

func (s *gsSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *gsSink) Close() error {
	defer s.cancel()
	err := s.w.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *gsSink) Abort() {
	s.cancel()
	_ = s.w.Close()
	_ = s.client.Close()
}
