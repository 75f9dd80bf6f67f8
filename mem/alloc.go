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

// Package mem provides the raw-memory sources a tracker draws blocks from:
// plain Go memory, a byte-budgeted wrapper, and anonymous mmap pages.
package mem

import "github.com/pkg/errors"

var (
	// ErrBudget means a Budget's limit would be exceeded.
	ErrBudget = errors.New("allocation budget exceeded")

	// ErrUnsupported means the allocator is not available on this platform.
	ErrUnsupported = errors.New("allocator not supported on this platform")
)

// Allocator is an upstream source of raw blocks. Size is always positive.
//
// Allocate returns a zeroed block with len == size. Reallocate returns a
// block of the new size carrying the old contents up to min(old, new)
// bytes; when it fails, the original block is untouched and remains valid.
// Free releases a block obtained from the same allocator.
//
// Implementations must be safe for concurrent use.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Reallocate(b []byte, size int) ([]byte, error)
	Free(b []byte)
}

// GoAllocator hands out garbage-collected Go memory. Free is a no-op; the
// runtime reclaims blocks once unreferenced. It never fails short of the
// process itself running out of memory.
type GoAllocator struct{}

func (GoAllocator) Allocate(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (GoAllocator) Reallocate(b []byte, size int) ([]byte, error) {
	if size <= cap(b) {
		return b[:size], nil
	}
	nb := make([]byte, size)
	copy(nb, b)
	return nb, nil
}

func (GoAllocator) Free(b []byte) {}
