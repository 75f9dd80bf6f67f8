package memtab

import (
	"bytes"
	"unsafe"
)

// none marks the absence of a record: an empty registry, the ends of a
// registry's list, and the end of the free-slot chain.
const none int32 = -1

// labelSize is the size of the fixed label buffer carried by every record.
// The last byte is reserved for the NUL terminator.
const labelSize = 32

// MaxLabelLen is the longest label stored without truncation.
const MaxLabelLen = labelSize - 1

// Overhead is the fixed metadata cost of one tracked allocation. Every live
// record adds size+Overhead bytes to its tracker's Stats.
const Overhead = int(unsafe.Sizeof(record{}))

// record tracks one live raw allocation. Records live in the tracker's
// table; next and prev are slot handles, not pointers. Free slots are
// chained through next.
type record struct {
	block []byte
	size  int
	label [labelSize]byte
	next  int32
	prev  int32
}

// setLabel copies label into the fixed buffer, truncating to MaxLabelLen
// bytes. The remainder of the buffer is zeroed, so recycled slots never leak
// old label bytes and the final byte is always NUL.
func (rec *record) setLabel(label string) {
	n := copy(rec.label[:MaxLabelLen], label)
	for i := n; i < labelSize; i++ {
		rec.label[i] = 0
	}
}

// Label returns the stored label up to the first NUL.
func (rec *record) Label() string {
	return string(rec.label[:bytes.IndexByte(rec.label[:], 0)])
}
