//go:build linux || darwin
// +build linux darwin

package vm

import "unsafe"

// unsafeAddr returns the address of the first byte of a non-empty slice.
func unsafeAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// sliceAt reinterprets length bytes starting at addr as a []byte without
// copying. Callers must ensure addr refers to length live, mapped bytes.
func sliceAt(addr, length uintptr) []byte {
	if length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
}
