// Package large implements memkit's large-object allocator: direct,
// VM-backed allocations that carry their own header so the small-object
// tier can safely probe for ownership.
package large

import (
	"encoding/binary"
	"unsafe"

	"github.com/vornengine/memkit/internal/vm"
)

// magic is the sentinel stored in every live large-allocation header.
const magic uint64 = 0xA11C0CEDFEEDFACE

// headerSize is the byte size of Header as laid out in memory.
const headerSize = 40

// minAlignment is the floor every large allocation's alignment is raised
// to.
const minAlignment = 16

// header is the on-wire layout stored immediately before the user pointer.
// Fields are written with explicit byte order so probing code never
// depends on struct layout/padding decisions.
type header struct {
	vmBase     uintptr
	regionSize uintptr
	userSize   uintptr
	guardPages uint32
	offset     uint32
	magicWord  uint64
}

func writeHeader(b []byte, h header) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(h.vmBase))
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.regionSize))
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.userSize))
	binary.LittleEndian.PutUint32(b[24:28], h.guardPages)
	binary.LittleEndian.PutUint32(b[28:32], h.offset)
	binary.LittleEndian.PutUint64(b[32:40], h.magicWord)
}

func readHeader(b []byte) header {
	return header{
		vmBase:     uintptr(binary.LittleEndian.Uint64(b[0:8])),
		regionSize: uintptr(binary.LittleEndian.Uint64(b[8:16])),
		userSize:   uintptr(binary.LittleEndian.Uint64(b[16:24])),
		guardPages: binary.LittleEndian.Uint32(b[24:28]),
		offset:     binary.LittleEndian.Uint32(b[28:32]),
		magicWord:  binary.LittleEndian.Uint64(b[32:40]),
	}
}

// Allocator is the process-wide large-object tier. It carries no state of
// its own beyond configuration; every allocation owns its own VM region.
type Allocator struct {
	guardsDefault bool
}

// New constructs a large-object allocator. guardsDefault is stored on the
// allocator but Allocate does not read it: every Allocate call uses its own
// guards argument.
func New(guardsDefault bool) *Allocator {
	return &Allocator{guardsDefault: guardsDefault}
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// Allocate reserves and commits a region sized to hold size bytes at the
// given alignment (raised to at least 16), optionally flanked by no-access
// guard pages, and returns the user pointer. Returns nil on any VM failure;
// the region is released before returning in that case.
func (a *Allocator) Allocate(size, alignment uintptr, guards bool) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	if alignment < minAlignment {
		alignment = minAlignment
	}

	page := vm.PageSize()
	var guardBytes uintptr
	var guardPages uint32
	if guards {
		guardBytes = page
		guardPages = 1
	}

	// The interior starts page-aligned, so for alignment <= page the user
	// pointer sits exactly alignUp(headerSize, alignment) bytes into it.
	over := alignUp(headerSize, alignment)
	if alignment > page {
		over = alignment + headerSize
	}
	total := alignUp(size+over+2*guardBytes, page)

	r, err := vm.Reserve(total)
	if err != nil {
		return nil
	}

	if guards {
		if err := vm.Protect(r, 0, guardBytes, vm.ProtNone); err != nil {
			vm.Release(r)
			return nil
		}
		if err := vm.Protect(r, r.Size()-guardBytes, guardBytes, vm.ProtNone); err != nil {
			vm.Release(r)
			return nil
		}
	}

	interiorOff := guardBytes
	interiorLen := r.Size() - 2*guardBytes
	if err := vm.Commit(r, interiorOff, interiorLen); err != nil {
		vm.Release(r)
		return nil
	}

	// Place the user pointer at the alignment boundary at or after
	// interiorOff + headerSize, so the header always fits before it.
	minUserAddr := r.Base() + interiorOff + headerSize
	userAddr := alignUp(minUserAddr, alignment)
	offset := userAddr - r.Base()

	hdrAddr := userAddr - headerSize
	hdrBytes := unsafe.Slice((*byte)(unsafe.Pointer(hdrAddr)), headerSize)
	writeHeader(hdrBytes, header{
		vmBase:     r.Base(),
		regionSize: r.Size(),
		userSize:   size,
		guardPages: guardPages,
		offset:     uint32(offset),
		magicWord:  magic,
	})

	return unsafe.Pointer(userAddr)
}

func regionFromHeader(h header) vm.Region {
	return vm.FromRaw(h.vmBase, h.regionSize)
}

// Deallocate releases the region backing a pointer previously returned by
// Allocate. If the header's magic does not match, this is a programmer
// error (passing a pointer large didn't allocate); it is a silent return in
// release and the caller is expected to have asserted in debug already.
func (a *Allocator) Deallocate(p unsafe.Pointer) {
	if p == nil {
		return
	}
	addr := uintptr(p)
	hdrBytes := unsafe.Slice((*byte)(unsafe.Pointer(addr-headerSize)), headerSize)
	h := readHeader(hdrBytes)
	if h.magicWord != magic {
		return
	}
	r := regionFromHeader(h)
	guardBytes := uintptr(0)
	if h.guardPages > 0 {
		guardBytes = vm.PageSize()
	}
	_ = vm.Decommit(r, guardBytes, r.Size()-2*guardBytes)
	_ = vm.Release(r)
}

// MaybeDeallocate is the safe probe the small-object tier uses to
// distinguish large-tier pointers from its own. It never reads past a
// preceding guard page: if p's offset within its page is smaller than the
// header size, reading the header could underflow into an unmapped guard
// page, so it conservatively returns false instead.
func (a *Allocator) MaybeDeallocate(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	addr := uintptr(p)
	if addr%vm.PageSize() < headerSize {
		return false
	}
	hdrBytes := unsafe.Slice((*byte)(unsafe.Pointer(addr-headerSize)), headerSize)
	h := readHeader(hdrBytes)
	if h.magicWord != magic {
		return false
	}
	a.Deallocate(p)
	return true
}

// UserSize returns the original requested size recorded in p's header,
// usable by callers that need the true size of a large allocation (the
// header, not the caller, is authoritative for the large tier).
func UserSize(p unsafe.Pointer) (uintptr, bool) {
	if p == nil {
		return 0, false
	}
	addr := uintptr(p)
	if addr%vm.PageSize() < headerSize {
		return 0, false
	}
	hdrBytes := unsafe.Slice((*byte)(unsafe.Pointer(addr-headerSize)), headerSize)
	h := readHeader(hdrBytes)
	if h.magicWord != magic {
		return 0, false
	}
	return h.userSize, true
}
