//go:build linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapCodeSegment reserves a page-aligned, read-write-executable mapping of
// size bytes, suitable for holding JIT-generated machine code. Grounded on
// the teacher's internal/asm/buffer.go CodeSegment, which calls through to an
// equivalent platform.MmapCodeSegment; the teacher's own implementation file
// was not present in the retrieved pack, so this is written fresh against
// that API contract using golang.org/x/sys/unix.
func MmapCodeSegment(size int) ([]byte, error) {
	if size <= 0 {
		panic("MmapCodeSegment: size must be positive")
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap code segment: %w", err)
	}
	return b, nil
}

// MunmapCodeSegment releases a mapping returned by MmapCodeSegment.
func MunmapCodeSegment(b []byte) error {
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("platform: munmap code segment: %w", err)
	}
	return nil
}

// RemapCodeSegment grows an existing code segment to newSize by mapping a
// fresh region and copying the old contents, since executable mappings
// cannot portably be resized in place. The caller is responsible for
// unmapping the old segment once every reference to it (e.g. already-issued
// code pointers) is known to be safe to drop.
func RemapCodeSegment(old []byte, newSize int) ([]byte, error) {
	fresh, err := MmapCodeSegment(newSize)
	if err != nil {
		return nil, err
	}
	copy(fresh, old)
	return fresh, nil
}

// PageSize reports the platform's memory page size, which asm.CodeBuffer
// uses to round segment sizes and to locate page boundaries.
func PageSize() int { return unix.Getpagesize() }
