//go:build linux

package ring

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// doubleMap backs the storage with a memfd mapped twice back to back, so
// that reads and writes past the first half land on the same physical
// pages. Falls back when the buffer size in bytes is not a multiple of the
// page size.
func doubleMap[T any](capacity int) ([]T, func(), bool) {
	var zero T
	elem := int(unsafe.Sizeof(zero))
	size := capacity * elem
	page := unix.Getpagesize()
	if size == 0 || size%page != 0 {
		return nil, nil, false
	}

	fd, err := unix.MemfdCreate("ring-buffer", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, nil, false
	}
	defer unix.Close(fd)
	if err = unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, nil, false
	}

	// reserve a contiguous 2·size region, then map the fd over both halves
	region, err := unix.Mmap(-1, 0, 2*size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, nil, false
	}
	base := unsafe.Pointer(&region[0])
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_SHARED | unix.MAP_FIXED
	if _, err = mmapPtr(fd, 0, base, uintptr(size), prot, flags); err != nil {
		_ = unix.Munmap(region)
		return nil, nil, false
	}
	if _, err = mmapPtr(fd, 0, unsafe.Add(base, size), uintptr(size), prot, flags); err != nil {
		_ = munmapPtr(base, uintptr(2*size))
		return nil, nil, false
	}

	data := unsafe.Slice((*T)(base), 2*capacity)
	unmap := func() { _ = munmapPtr(base, uintptr(2 * size)) }
	return data, unmap, true
}

// mmapPtr and munmapPtr map/unmap at a caller-chosen fixed address, which
// golang.org/x/sys/unix does not expose directly (its Mmap only returns a
// fresh []byte). They call the same underlying syscalls Mmap/Munmap use.
func mmapPtr(fd int, offset int64, addr unsafe.Pointer, length uintptr, prot, flags int) (unsafe.Pointer, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_MMAP, uintptr(addr), length, uintptr(prot), uintptr(flags), uintptr(fd), uintptr(offset))
	if errno != 0 {
		return nil, errno
	}
	return unsafe.Pointer(r1), nil
}

func munmapPtr(addr unsafe.Pointer, length uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_MUNMAP, uintptr(addr), length, 0, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
