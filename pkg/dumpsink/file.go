package dumpsink

import (
	"os"
	"path/filepath"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

// fileSink writes to a temporary file next to the target and renames it on
// Close, so readers never see a partial dump.
type fileSink struct {
	*os.File
	target string
}

func openFile(path string) (*fileSink, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, memerrors.Wrap(err, memerrors.ErrorTypeIO, "failed to create dump file").
			WithDetail("path", path)
	}
	return &fileSink{File: f, target: path}, nil
}

func (s *fileSink) Close() error {
	tmp := s.File.Name()
	if err := s.File.Sync(); err != nil {
		s.Abort()
		return err
	}
	if err := s.File.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *fileSink) Abort() {
	s.File.Close()
	os.Remove(s.File.Name())
}
