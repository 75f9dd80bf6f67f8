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
	"sync/atomic"

	"github.com/pkg/errors"
)

// Budget wraps an Allocator with a hard cap on bytes in use. Requests that
// would push usage past the limit fail with ErrBudget before touching the
// wrapped allocator. It gives tests and embedders a recoverable
// out-of-memory path on platforms where plain allocation never fails.
type Budget struct {
	limit int64
	inUse int64
	src   Allocator
}

// NewBudget caps src at limit bytes in use.
func NewBudget(limit int, src Allocator) *Budget {
	return &Budget{limit: int64(limit), src: src}
}

// InUse returns the bytes currently charged against the budget.
func (bu *Budget) InUse() int {
	return int(atomic.LoadInt64(&bu.inUse))
}

// Limit returns the cap in bytes.
func (bu *Budget) Limit() int {
	return int(bu.limit)
}

func (bu *Budget) Allocate(size int) ([]byte, error) {
	if err := bu.charge(int64(size)); err != nil {
		return nil, err
	}
	b, err := bu.src.Allocate(size)
	if err != nil {
		atomic.AddInt64(&bu.inUse, -int64(size))
		return nil, err
	}
	return b, nil
}

func (bu *Budget) Reallocate(b []byte, size int) ([]byte, error) {
	delta := int64(size - len(b))
	if delta > 0 {
		if err := bu.charge(delta); err != nil {
			return nil, err
		}
	}
	nb, err := bu.src.Reallocate(b, size)
	if err != nil {
		if delta > 0 {
			atomic.AddInt64(&bu.inUse, -delta)
		}
		return nil, err
	}
	if delta < 0 {
		atomic.AddInt64(&bu.inUse, delta)
	}
	return nb, nil
}

func (bu *Budget) Free(b []byte) {
	atomic.AddInt64(&bu.inUse, -int64(len(b)))
	bu.src.Free(b)
}

// charge reserves size bytes, undoing the reservation when it overshoots
// the limit.
func (bu *Budget) charge(size int64) error {
	if used := atomic.AddInt64(&bu.inUse, size); used > bu.limit {
		atomic.AddInt64(&bu.inUse, -size)
		return errors.Wrapf(ErrBudget, "%d bytes requested, %d of %d in use",
			size, used-size, bu.limit)
	}
	return nil
}
