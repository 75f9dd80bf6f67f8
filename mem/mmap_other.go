//go:build !linux

package mem

// MmapAllocator is only implemented on linux. Elsewhere every call fails
// with ErrUnsupported so callers can fall back to GoAllocator.
type MmapAllocator struct{}

func (MmapAllocator) Allocate(size int) ([]byte, error) {
	return nil, ErrUnsupported
}

func (MmapAllocator) Reallocate(b []byte, size int) ([]byte, error) {
	return nil, ErrUnsupported
}

func (MmapAllocator) Free(b []byte) {}
