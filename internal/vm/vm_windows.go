//go:build windows
// +build windows

package vm

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	pageSize         = uintptr(windows.Getpagesize())
	allocGranularity = queryAllocGranularity()
)

func queryAllocGranularity() uintptr {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	if info.DwAllocationGranularity == 0 {
		return pageSize
	}
	return uintptr(info.DwAllocationGranularity)
}

func platformReserve(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, err
	}
	return addr, nil
}

func platformCommit(addr, length uintptr) error {
	_, err := windows.VirtualAlloc(addr, length, windows.MEM_COMMIT, windows.PAGE_READWRITE)
	return err
}

func platformDecommit(addr, length uintptr) error {
	return windows.VirtualFree(addr, length, windows.MEM_DECOMMIT)
}

func platformProtect(addr, length uintptr, prot Protection) error {
	var old uint32
	return windows.VirtualProtect(addr, length, toWindowsProt(prot), &old)
}

func platformRelease(addr, size uintptr) error {
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}

func toWindowsProt(p Protection) uint32 {
	switch p {
	case ProtNone:
		return windows.PAGE_NOACCESS
	case ProtRead:
		return windows.PAGE_READONLY
	case ProtReadWrite:
		return windows.PAGE_READWRITE
	case ProtReadExec:
		return windows.PAGE_EXECUTE_READ
	default:
		return windows.PAGE_NOACCESS
	}
}

// sliceAt reinterprets length bytes starting at addr as a []byte without
// copying, used by tests shared across platform backends.
func sliceAt(addr, length uintptr) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
}

