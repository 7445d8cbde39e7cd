// Package userspace manages the flat guest address space: a single
// mmap-backed region with per-page protection bookkeeping. Translate and
// CheckRange are the only ways to reach host memory from a guest value,
// so every access site goes through validation.
package userspace

import (
	"fmt"
	"unsafe"
)

// PageSize is the protection granularity of the guest address space.
// Protection changes and their alignment checks operate on 64 KiB pages.
const PageSize = 0x10000

// Protection bits for guest pages. Values match the mmap PROT_* flags so
// they can be passed through to mprotect unchanged.
const (
	ProtNone  = 0x0
	ProtRead  = 0x1
	ProtWrite = 0x2
	ProtExec  = 0x4
)

// badAddr is the translation result for any guest address outside the
// region. CheckRange never accepts it.
const badAddr = uintptr(0)

// Space is a guest address space. The guest sees addresses [0, Size());
// the host sees the same bytes at Base()+addr. Pages start readable and
// writable; Protect is the only way protection changes.
type Space struct {
	raw  []byte // full mapping, kept for unmap
	mem  []byte // page-aligned guest-visible window into raw
	prot []int  // protection bits per page
}

// New creates a guest address space of at least size bytes, rounded up
// to the page granularity. The mapping is over-allocated by one page so
// the guest base can be realigned: guest page boundaries then coincide
// with host page boundaries.
func New(size int64) (*Space, error) {
	if size <= 0 {
		return nil, fmt.Errorf("userspace: invalid size %d", size)
	}
	size = (size + PageSize - 1) &^ (PageSize - 1)
	raw, err := mapAnon(int(size) + PageSize)
	if err != nil {
		return nil, fmt.Errorf("userspace: mmap failed %v", err)
	}
	base := uintptr(unsafe.Pointer(&raw[0]))
	align := int((PageSize - base%PageSize) % PageSize)
	mem := raw[align : align+int(size)]

	prot := make([]int, size/PageSize)
	for i := range prot {
		prot[i] = ProtRead | ProtWrite
	}
	return &Space{raw: raw, mem: mem, prot: prot}, nil
}

// Close releases the mapping. The space must not be used afterwards.
func (s *Space) Close() error {
	if s.raw == nil {
		return nil
	}
	err := unmap(s.raw)
	s.raw = nil
	s.mem = nil
	s.prot = nil
	return err
}

// Size returns the guest-visible extent in bytes.
func (s *Space) Size() int64 {
	return int64(len(s.mem))
}

// Base returns the host address of guest address zero.
func (s *Space) Base() uintptr {
	return uintptr(unsafe.Pointer(&s.mem[0]))
}

// Translate converts a guest-relative address into a host address.
// It never fails by itself: an out-of-range guest address maps to the
// bad-address sentinel that every subsequent CheckRange rejects.
func (s *Space) Translate(addr uint64) uintptr {
	if addr >= uint64(len(s.mem)) {
		return badAddr
	}
	return s.Base() + uintptr(addr)
}

// offset converts a host address back into a guest offset, reporting
// whether it lies inside the region.
func (s *Space) offset(ptr uintptr) (int64, bool) {
	base := s.Base()
	if ptr == badAddr || ptr < base {
		return 0, false
	}
	off := int64(ptr - base)
	if off > int64(len(s.mem)) {
		return 0, false
	}
	return off, true
}

// CheckRange reports whether the entire host range [ptr, ptr+length) is
// inside the guest region and every page in it carries at least the
// requested protection bits. prot == ProtNone checks existence only.
func (s *Space) CheckRange(ptr uintptr, length int64, prot int) bool {
	off, ok := s.offset(ptr)
	if !ok || length < 0 || length > int64(len(s.mem))-off {
		return false
	}
	if length == 0 {
		return true
	}
	for p := off / PageSize; p <= (off+length-1)/PageSize; p++ {
		if s.prot[p]&prot != prot {
			return false
		}
	}
	return true
}

// Slice returns the bytes backing a host range. The range must have been
// accepted by CheckRange first.
func (s *Space) Slice(ptr uintptr, length int64) []byte {
	off, ok := s.offset(ptr)
	if !ok || length < 0 || length > int64(len(s.mem))-off {
		panic("userspace: slice of unchecked range")
	}
	return s.mem[off : off+length]
}

// Protect applies prot to the page-aligned host range and records the
// new bits. The range must be inside the region and page aligned.
func (s *Space) Protect(ptr uintptr, length int64, prot int) error {
	off, ok := s.offset(ptr)
	if !ok || length < 0 || length > int64(len(s.mem))-off {
		return fmt.Errorf("userspace: protect out of range")
	}
	if off%PageSize != 0 || length%PageSize != 0 {
		return fmt.Errorf("userspace: protect unaligned range")
	}
	if length == 0 {
		return nil
	}
	if err := protect(s.mem[off:off+length], prot); err != nil {
		return err
	}
	for p := off / PageSize; p < (off+length)/PageSize; p++ {
		s.prot[p] = prot
	}
	return nil
}

// PageProt returns the recorded protection bits of the page containing
// the guest address.
func (s *Space) PageProt(addr uint64) int {
	if addr >= uint64(len(s.mem)) {
		return ProtNone
	}
	return s.prot[addr/PageSize]
}
