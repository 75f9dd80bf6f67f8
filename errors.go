package memtab

import "github.com/pkg/errors"

// Sentinel failures of the tracking layer. Upstream allocator failures are
// not listed here; those are wrapped and passed through as-is.
var (
	// ErrInvalidSize rejects allocation or reallocation sizes <= 0.
	ErrInvalidSize = errors.New("invalid allocation size")

	// ErrTableFull means the tracker reached MaxRecords; the payload that
	// was already obtained has been rolled back.
	ErrTableFull = errors.New("record table full")

	// ErrUnknownAddress means the given block does not start any record of
	// the registry. Non-fatal on Realloc, fatal on Free.
	ErrUnknownAddress = errors.New("address not tracked by registry")

	// ErrBadRegistry means a nil registry, or one created by a different
	// tracker, was passed in. Always fatal.
	ErrBadRegistry = errors.New("registry does not belong to this tracker")
)
