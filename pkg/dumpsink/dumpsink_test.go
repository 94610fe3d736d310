package dumpsink

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/memgate/pkg/compression"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Destination
	}{
		{"dump.raw", Destination{Scheme: SchemeFile, Key: "dump.raw"}},
		{"file:///tmp/dump.raw", Destination{Scheme: SchemeFile, Key: "/tmp/dump.raw"}},
		{"s3://forensics/vm0/mem.zst", Destination{Scheme: SchemeS3, Bucket: "forensics", Key: "vm0/mem.zst"}},
		{"gs://forensics/mem.raw", Destination{Scheme: SchemeGS, Bucket: "forensics", Key: "mem.raw"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	assert.Equal(t, "s3://forensics/vm0/mem.zst", tests[2].want.String())

	for _, bad := range []string{"", "s3://bucket", "s3:///key", "file://"} {
		_, err := Parse(bad)
		assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeValidation), bad)
	}
	_, err := Parse("ftp://host/file")
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeUnsupported))
}

func TestWriteFile(t *testing.T) {
	data := bytes.Repeat([]byte("guest page "), 2000)
	path := filepath.Join(t.TempDir(), "mem.raw.zst")

	res, err := Write(context.Background(), path, bytes.NewReader(data),
		WithCompression(compression.Zstd, compression.Default),
		WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), res.BytesIn)
	assert.Less(t, res.BytesOut, res.BytesIn)
	assert.Equal(t, compression.Zstd, res.Compression)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := compression.DecompressAll(f, compression.Zstd, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, memerrors.New(memerrors.ErrorTypeShortRead, "backend gave up")
}

func TestWriteFileFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem.raw")

	_, err := Write(context.Background(), path, failingReader{}, WithLogger(testutil.TestLogger(t)))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeShortRead))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Write(ctx, path, bytes.NewReader([]byte("x")), WithLogger(testutil.TestLogger(t)))
	assert.True(t, memerrors.IsType(err, memerrors.ErrorTypeIO))
}

type fakeUploader struct {
	mu     sync.Mutex
	bucket string
	key    string
	body   []byte
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.body = body
	return &manager.UploadOutput{Location: "s3://" + f.bucket + "/" + f.key}, nil
}

func TestWriteS3(t *testing.T) {
	up := &fakeUploader{}
	data := bytes.Repeat([]byte{0xcc}, 64*1024)

	res, err := Write(context.Background(), "s3://forensics/vm0/mem.lz4", bytes.NewReader(data),
		WithUploader(up),
		WithCompression(compression.LZ4, compression.Fastest),
		WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, SchemeS3, res.Destination.Scheme)

	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, "forensics", up.bucket)
	assert.Equal(t, "vm0/mem.lz4", up.key)
	assert.Equal(t, res.BytesOut, int64(len(up.body)))

	got, err := compression.DecompressAll(bytes.NewReader(up.body), compression.LZ4, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
