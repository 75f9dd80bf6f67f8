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

package memtab

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Stats is a running account of tracked memory. The total covers every
// registry of every tracker sharing the Stats: each live record contributes
// its payload size plus Overhead. All counters are atomic; trackers update
// the total only after their registry lock has been released, so Stats never
// participates in lock ordering.
type Stats struct {
	total    uint64
	peak     uint64
	allocs   uint64
	reallocs uint64
	frees    uint64
}

// NewStats returns a zeroed Stats. Pass the same instance to several
// trackers to account for them jointly.
func NewStats() *Stats {
	return &Stats{}
}

// Total returns the number of tracked bytes currently outstanding.
func (s *Stats) Total() uint64 {
	return atomic.LoadUint64(&s.total)
}

// Increase adds delta to the total and returns the new total.
func (s *Stats) Increase(delta uint64) uint64 {
	total := atomic.AddUint64(&s.total, delta)
	for {
		peak := atomic.LoadUint64(&s.peak)
		if total <= peak || atomic.CompareAndSwapUint64(&s.peak, peak, total) {
			break
		}
	}
	return total
}

// Decrease subtracts delta from the total and returns the new total. The
// subtraction is unchecked: decreasing past zero wraps around, so a caller
// releasing bytes it never added will leave the total near the top of the
// uint64 range rather than fail.
func (s *Stats) Decrease(delta uint64) uint64 {
	return atomic.AddUint64(&s.total, ^(delta - 1))
}

// Peak returns the highest total observed since construction or the last
// Reset.
func (s *Stats) Peak() uint64 {
	return atomic.LoadUint64(&s.peak)
}

// Allocs is the number of successful allocations recorded.
func (s *Stats) Allocs() uint64 {
	return atomic.LoadUint64(&s.allocs)
}

// Reallocs is the number of successful reallocations recorded.
func (s *Stats) Reallocs() uint64 {
	return atomic.LoadUint64(&s.reallocs)
}

// Frees is the number of releases recorded, counting every record released
// by a FreeAll individually.
func (s *Stats) Frees() uint64 {
	return atomic.LoadUint64(&s.frees)
}

// Reset zeroes every counter. Do not call while trackers using this Stats
// still hold live records; the total would no longer match the live set.
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.total, 0)
	atomic.StoreUint64(&s.peak, 0)
	atomic.StoreUint64(&s.allocs, 0)
	atomic.StoreUint64(&s.reallocs, 0)
	atomic.StoreUint64(&s.frees, 0)
}

// String returns a one-line summary of the counters.
func (s *Stats) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "in-use: %s ", humanize.IBytes(s.Total()))
	fmt.Fprintf(&buf, "peak: %s ", humanize.IBytes(s.Peak()))
	fmt.Fprintf(&buf, "allocs: %d reallocs: %d frees: %d",
		s.Allocs(), s.Reallocs(), s.Frees())
	return buf.String()
}

func (s *Stats) markAlloc()   { atomic.AddUint64(&s.allocs, 1) }
func (s *Stats) markRealloc() { atomic.AddUint64(&s.reallocs, 1) }

func (s *Stats) markFrees(n uint64) { atomic.AddUint64(&s.frees, n) }
