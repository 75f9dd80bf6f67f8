package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmapAllocator(t *testing.T) {
	var a MmapAllocator

	b, err := a.Allocate(4096)
	require.NoError(t, err)
	require.Len(t, b, 4096)
	for i := range b {
		require.Zero(t, b[i])
	}
	copy(b, "mapped")

	b, err = a.Reallocate(b, 64<<10)
	require.NoError(t, err)
	require.Len(t, b, 64<<10)
	require.Equal(t, "mapped", string(b[:6]))

	b, err = a.Reallocate(b, 4096)
	require.NoError(t, err)
	require.Len(t, b, 4096)
	require.Equal(t, "mapped", string(b[:6]))

	a.Free(b)
}

func TestMmapAllocatorSmallBlock(t *testing.T) {
	var a MmapAllocator

	// Sub-page sizes still map whole pages; the slice only exposes the
	// requested length.
	b, err := a.Allocate(16)
	require.NoError(t, err)
	require.Len(t, b, 16)
	a.Free(b)
}
