/*
 * Copyright 2024 The memtab Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mem

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MmapAllocator serves blocks from anonymous private mappings instead of
// the Go heap. Reallocation goes through mremap, so large blocks grow
// without a copy when the kernel can extend the mapping. Free unmaps the
// pages, so a use after free faults instead of silently corrupting memory —
// useful when the tracker is being used to chase exactly that kind of bug.
type MmapAllocator struct{}

func (MmapAllocator) Allocate(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %d bytes", size)
	}
	return b, nil
}

func (a MmapAllocator) Reallocate(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return a.Allocate(size)
	}
	// from <linux/mman.h>
	const mremapMaymove = 0x1

	addr, _, errno := unix.Syscall6(
		unix.SYS_MREMAP,
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(len(b)),
		uintptr(size),
		mremapMaymove,
		0,
		0,
	)
	if errno != 0 {
		return nil, errors.Wrapf(errno, "mremap %d to %d bytes", len(b), size)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func (MmapAllocator) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	_, _, _ = unix.Syscall(
		unix.SYS_MUNMAP,
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(len(b)),
		0,
	)
}
