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
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
)

// DumpTo writes a report of r's live records to w, most recently allocated
// first. Each line carries a 1-based ordinal, the block address, payload
// size, label and the fixed per-record overhead. The trailing lines give the
// registry's own total and the Stats total. The two match only when r is the
// only registry on its Stats and nothing allocates concurrently: the Stats
// total is read after the registry lock is dropped, so the cross-check is
// deliberately non-atomic.
func (t *Tracker) DumpTo(w io.Writer, r *Registry) error {
	t.check(r)
	var buf bytes.Buffer
	digest := xxhash.New()

	t.mu.Lock()
	var n int
	var sum uint64
	for slot := r.head; slot != none; slot = t.table[slot].next {
		rec := &t.table[slot]
		n++
		sum += uint64(rec.size + Overhead)
		fmt.Fprintf(&buf, "%4d) addr: %p size: %d label: %q overhead: %d\n",
			n, &rec.block[0], rec.size, rec.Label(), Overhead)
		hashRecord(digest, rec)
	}
	t.mu.Unlock()

	total := t.stats.Total()
	fmt.Fprintf(&buf, "registry %q: %d records, %s tracked, fingerprint %016x\n",
		r.name, n, humanize.IBytes(sum), digest.Sum64())
	fmt.Fprintf(&buf, "all registries: %s tracked\n", humanize.IBytes(total))
	_, err := w.Write(buf.Bytes())
	return err
}

// Dump writes the report of r to stdout.
func (t *Tracker) Dump(r *Registry) {
	_ = t.DumpTo(os.Stdout, r)
}

// Fingerprint digests the (size, label) sequence of r's records in list
// order. Two fingerprints of the same registry taken at different times are
// equal iff the live set did not observably change in between, which makes
// leak checks around a code region cheap.
func (t *Tracker) Fingerprint(r *Registry) uint64 {
	t.check(r)
	digest := xxhash.New()
	t.mu.Lock()
	for slot := r.head; slot != none; slot = t.table[slot].next {
		hashRecord(digest, &t.table[slot])
	}
	t.mu.Unlock()
	return digest.Sum64()
}

func hashRecord(digest *xxhash.Digest, rec *record) {
	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], uint64(rec.size))
	digest.Write(sz[:])
	digest.Write(rec.label[:])
}

// Tracked reports whether b starts a live record of r.
func (t *Tracker) Tracked(b []byte, r *Registry) bool {
	t.check(r)
	if len(b) == 0 {
		return false
	}
	t.mu.Lock()
	slot := t.find(r, b)
	t.mu.Unlock()
	return slot != none
}

// Count returns the number of live records in r.
func (t *Tracker) Count(r *Registry) int {
	t.check(r)
	var n int
	t.mu.Lock()
	for slot := r.head; slot != none; slot = t.table[slot].next {
		n++
	}
	t.mu.Unlock()
	return n
}

// Leaks returns r's live records aggregated by label, heaviest first. The
// per-label bytes include the record overhead. Meant to be printed at the
// point where a registry is expected to be empty.
func (t *Tracker) Leaks(r *Registry) string {
	t.check(r)
	type leak struct {
		label string
		count int
		bytes uint64
	}
	byLabel := make(map[string]*leak)

	t.mu.Lock()
	var n int
	var sum uint64
	for slot := r.head; slot != none; slot = t.table[slot].next {
		rec := &t.table[slot]
		n++
		sz := uint64(rec.size + Overhead)
		sum += sz
		label := rec.Label()
		l, ok := byLabel[label]
		if !ok {
			l = &leak{label: label}
			byLabel[label] = l
		}
		l.count++
		l.bytes += sz
	}
	t.mu.Unlock()

	leaks := make([]*leak, 0, len(byLabel))
	for _, l := range byLabel {
		leaks = append(leaks, l)
	}
	sort.Slice(leaks, func(i, j int) bool {
		if leaks[i].bytes != leaks[j].bytes {
			return leaks[i].bytes > leaks[j].bytes
		}
		return leaks[i].label < leaks[j].label
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "registry %q: %d records, %s tracked\n",
		r.name, n, humanize.IBytes(sum))
	for _, l := range leaks {
		fmt.Fprintf(&buf, "  %s: %d x, %s\n",
			l.label, l.count, humanize.IBytes(l.bytes))
	}
	return buf.String()
}
