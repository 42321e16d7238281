//go:build linux || darwin
// +build linux darwin

package vm

import (
	"os"

	"golang.org/x/sys/unix"
)

var (
	pageSize         = uintptr(os.Getpagesize())
	allocGranularity = pageSize
)

func platformReserve(size uintptr) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafeAddr(b)), nil
}

func platformCommit(addr, length uintptr) error {
	b := sliceAt(addr, length)
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return err
	}
	return unix.Madvise(b, unix.MADV_WILLNEED)
}

func platformDecommit(addr, length uintptr) error {
	b := sliceAt(addr, length)
	if err := unix.Madvise(b, unix.MADV_DONTNEED); err != nil {
		return err
	}
	return unix.Mprotect(b, unix.PROT_NONE)
}

func platformProtect(addr, length uintptr, prot Protection) error {
	return unix.Mprotect(sliceAt(addr, length), toUnixProt(prot))
}

func platformRelease(addr, size uintptr) error {
	return unix.Munmap(sliceAt(addr, size))
}

func toUnixProt(p Protection) int {
	switch p {
	case ProtNone:
		return unix.PROT_NONE
	case ProtRead:
		return unix.PROT_READ
	case ProtReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case ProtReadExec:
		return unix.PROT_READ | unix.PROT_EXEC
	default:
		return unix.PROT_NONE
	}
}
