//go:build !unix

package mmap

import (
	"os"

	"github.com/ajitpratap0/memgate/pkg/memerrors"
)

func mapFile(*os.File, int, bool) ([]byte, error) {
	return nil, memerrors.New(memerrors.ErrorTypeUnsupported, "memory mapping is not supported on this platform")
}

func unmap([]byte) error { return nil }

func syncData([]byte) error { return nil }

func advise([]byte, Advice) error { return nil }
