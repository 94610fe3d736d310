//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(f.Fd()), 0, length, prot, unix.MAP_SHARED)
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

func syncData(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}

func advise(b []byte, a Advice) error {
	var advice int
	switch a {
	case AdviceSequential:
		advice = unix.MADV_SEQUENTIAL
	case AdviceRandom:
		advice = unix.MADV_RANDOM
	case AdviceWillNeed:
		advice = unix.MADV_WILLNEED
	default:
		advice = unix.MADV_NORMAL
	}
	return unix.Madvise(b, advice)
}
