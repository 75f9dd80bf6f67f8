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
	"sync"

	"github.com/pkg/errors"

	"github.com/memtab/memtab/mem"
)

const defaultMaxRecords = 1 << 20

// Config is passed to NewTracker. Zero-value fields get defaults.
type Config struct {
	// MaxRecords caps the number of simultaneously tracked allocations
	// across all registries of the tracker. 0 means 1<<20.
	MaxRecords int
	// Stats receives the byte counters. Pass a shared instance to account
	// for several trackers jointly; nil gets a fresh one.
	Stats *Stats
	// Source supplies the raw blocks. nil means mem.GoAllocator.
	Source mem.Allocator
	// Reporter receives failure reports. nil logs through the standard log
	// package.
	Reporter Reporter
}

// Tracker is an instrumented allocation layer: every block it hands out is
// indexed in a registry by address, size and label, and counted in its
// Stats, so outstanding memory can be audited at any point.
//
// One mutex guards the record table and the heads of every registry created
// from the tracker. Mutations on independent registries of the same tracker
// therefore serialize; so does the upstream reallocation call, which runs
// under the lock to keep a concurrent Free of the same block from racing it.
// The Stats update of an operation always happens after the lock is
// released, never under it.
type Tracker struct {
	mu    sync.Mutex
	table []record
	free  int32 // head of the free-slot chain through record.next
	max   int

	stats *Stats
	src   mem.Allocator
	rep   Reporter
}

// Registry is a caller-owned index of live allocations, created by
// NewRegistry. A tracker can serve any number of registries; each record
// belongs to exactly one.
type Registry struct {
	name string
	head int32
	t    *Tracker
}

// Name returns the name the registry was created with.
func (r *Registry) Name() string {
	return r.name
}

// NewTracker validates config and returns a ready tracker.
func NewTracker(config *Config) (*Tracker, error) {
	switch {
	case config == nil:
		return nil, errors.New("nil Config")
	case config.MaxRecords < 0:
		return nil, errors.New("MaxRecords can't be negative")
	}
	t := &Tracker{
		free:  none,
		max:   config.MaxRecords,
		stats: config.Stats,
		src:   config.Source,
		rep:   config.Reporter,
	}
	if t.max == 0 {
		t.max = defaultMaxRecords
	}
	if t.stats == nil {
		t.stats = NewStats()
	}
	if t.src == nil {
		t.src = mem.GoAllocator{}
	}
	if t.rep == nil {
		t.rep = logReporter{}
	}
	return t, nil
}

// NewRegistry returns an empty registry served by this tracker.
func (t *Tracker) NewRegistry(name string) *Registry {
	return &Registry{name: name, head: none, t: t}
}

// Stats returns the tracker's statistics object.
func (t *Tracker) Stats() *Stats {
	return t.stats
}

// Total returns the outstanding byte total of the tracker's Stats. When the
// Stats is shared the total spans every sharing tracker.
func (t *Tracker) Total() uint64 {
	return t.stats.Total()
}

// Alloc obtains a zeroed block of size bytes from the upstream source and
// registers it in r under label. Labels longer than MaxLabelLen are
// truncated. On any failure the upstream block is rolled back and no state
// changes; the failure is reported non-fatally and returned.
func (t *Tracker) Alloc(size int, label string, r *Registry) ([]byte, error) {
	t.check(r)
	if size <= 0 {
		err := errors.Wrapf(ErrInvalidSize, "alloc %q: %d bytes", label, size)
		t.rep.Report(err, site(), false)
		return nil, err
	}
	block, err := t.src.Allocate(size)
	if err != nil {
		err = errors.Wrapf(err, "alloc %q: %d bytes", label, size)
		t.rep.Report(err, site(), false)
		return nil, err
	}

	t.mu.Lock()
	slot := t.grab()
	if slot == none {
		t.mu.Unlock()
		t.src.Free(block)
		err := errors.Wrapf(ErrTableFull, "alloc %q: %d records", label, t.max)
		t.rep.Report(err, site(), false)
		return nil, err
	}
	rec := &t.table[slot]
	rec.block = block
	rec.size = size
	rec.setLabel(label)
	rec.prev = none
	rec.next = r.head
	if r.head != none {
		t.table[r.head].prev = slot
	}
	r.head = slot
	t.mu.Unlock()

	t.stats.Increase(uint64(size + Overhead))
	t.stats.markAlloc()
	return block, nil
}

// Realloc resizes the tracked block b in place in its record. A nil or
// empty b behaves exactly like Alloc(size, "Realloc", r). On success the
// returned block replaces b and the counter moves by the signed size delta.
// On upstream failure the original block stays valid and registered — the
// caller must keep using (and eventually Free) b, not release it by hand.
func (t *Tracker) Realloc(b []byte, size int, r *Registry) ([]byte, error) {
	t.check(r)
	if len(b) == 0 {
		return t.Alloc(size, "Realloc", r)
	}
	if size <= 0 {
		err := errors.Wrapf(ErrInvalidSize, "realloc to %d bytes", size)
		t.rep.Report(err, site(), false)
		return nil, err
	}

	t.mu.Lock()
	slot := t.find(r, b)
	if slot == none {
		t.mu.Unlock()
		err := errors.Wrapf(ErrUnknownAddress, "realloc in registry %q", r.name)
		t.rep.Report(err, site(), false)
		return nil, err
	}
	rec := &t.table[slot]
	// The upstream call runs under the lock so no other goroutine can Free
	// or Realloc this block between the lookup and the record update.
	block, err := t.src.Reallocate(rec.block, size)
	if err != nil {
		t.mu.Unlock()
		err = errors.Wrapf(err, "realloc %q from %d to %d bytes",
			rec.Label(), rec.size, size)
		t.rep.Report(err, site(), false)
		return nil, err
	}
	old := rec.size
	rec.block = block
	rec.size = size
	t.mu.Unlock()

	if size >= old {
		t.stats.Increase(uint64(size - old))
	} else {
		t.stats.Decrease(uint64(old - size))
	}
	t.stats.markRealloc()
	return block, nil
}

// Free releases the tracked block b and drops its record from r. A nil or
// empty b is a no-op. Freeing a block that is not registered in r is a
// fatal error: it is reported and then Free panics, since releasing memory
// the registry does not own means the caller's ownership accounting is
// already corrupt.
func (t *Tracker) Free(b []byte, r *Registry) {
	t.check(r)
	if len(b) == 0 {
		return
	}

	t.mu.Lock()
	slot := t.find(r, b)
	if slot == none {
		t.mu.Unlock()
		err := errors.Wrapf(ErrUnknownAddress, "free in registry %q", r.name)
		t.rep.Report(err, site(), true)
		panic(err)
	}
	rec := &t.table[slot]
	block, size := rec.block, rec.size
	t.unlink(r, slot)
	t.recycle(slot)
	t.mu.Unlock()

	t.stats.Decrease(uint64(size + Overhead))
	t.stats.markFrees(1)
	t.src.Free(block)
}

// FreeAll releases every block registered in r and empties it. The whole
// walk happens in one critical section and the counter is decreased once by
// the accumulated sum, not per record.
func (t *Tracker) FreeAll(r *Registry) {
	t.check(r)

	t.mu.Lock()
	var sum uint64
	var n uint64
	for slot := r.head; slot != none; {
		rec := &t.table[slot]
		next := rec.next
		sum += uint64(rec.size + Overhead)
		n++
		t.src.Free(rec.block)
		t.recycle(slot)
		slot = next
	}
	r.head = none
	t.mu.Unlock()

	if n > 0 {
		t.stats.Decrease(sum)
		t.stats.markFrees(n)
	}
}

// check panics, after a fatal report, when r is nil or owned by another
// tracker. Everything else in the operation relies on r's head being
// guarded by t.mu, so there is no way to continue.
func (t *Tracker) check(r *Registry) {
	if r == nil || r.t != t {
		err := errors.WithStack(ErrBadRegistry)
		t.rep.Report(err, site(), true)
		panic(err)
	}
}

// grab returns a free slot, growing the table up to max. none means full.
// Caller holds t.mu.
func (t *Tracker) grab() int32 {
	if t.free != none {
		slot := t.free
		t.free = t.table[slot].next
		return slot
	}
	if len(t.table) >= t.max {
		return none
	}
	t.table = append(t.table, record{})
	return int32(len(t.table) - 1)
}

// recycle clears a slot and chains it into the free list. Caller holds t.mu
// and has already unlinked the slot from its registry.
func (t *Tracker) recycle(slot int32) {
	rec := &t.table[slot]
	rec.block = nil
	rec.size = 0
	rec.prev = none
	rec.next = t.free
	t.free = slot
}

// find scans r head to tail for the record whose block starts at &b[0].
// Caller holds t.mu.
func (t *Tracker) find(r *Registry, b []byte) int32 {
	for slot := r.head; slot != none; slot = t.table[slot].next {
		if &t.table[slot].block[0] == &b[0] {
			return slot
		}
	}
	return none
}

// unlink removes slot from r's list in O(1). Caller holds t.mu.
func (t *Tracker) unlink(r *Registry, slot int32) {
	rec := &t.table[slot]
	if rec.prev != none {
		t.table[rec.prev].next = rec.next
	} else {
		r.head = rec.next
	}
	if rec.next != none {
		t.table[rec.next].prev = rec.prev
	}
}
