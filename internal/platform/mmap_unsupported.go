//go:build !linux

package platform

import "errors"

// ErrUnsupported is returned on platforms without a native mmap-backed code
// segment implementation. Mirrors the teacher's own per-OS build-tag split
// for platform-specific facilities (see internal/platform/cpuid_*.go).
var ErrUnsupported = errors.New("platform: mmap code segment unsupported on this platform")

func MmapCodeSegment(size int) ([]byte, error)        { return nil, ErrUnsupported }
func MunmapCodeSegment(b []byte) error                 { return ErrUnsupported }
func RemapCodeSegment(old []byte, newSize int) ([]byte, error) { return nil, ErrUnsupported }
func PageSize() int                                    { return 4096 }
