package memtab

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/require"
)

func TestDumpOrder(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("dump")

	for i, label := range []string{"first", "second", "third"} {
		_, err := tr.Alloc(16*(i+1), label, r)
		require.NoError(t, err)
	}

	var out bytes.Buffer
	require.NoError(t, tr.DumpTo(&out, r))

	// Records come out newest first with 1-based ordinals.
	var lines []string
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 5)
	require.Contains(t, lines[0], "   1)")
	require.Contains(t, lines[0], `label: "third"`)
	require.Contains(t, lines[1], "   2)")
	require.Contains(t, lines[1], `label: "second"`)
	require.Contains(t, lines[2], "   3)")
	require.Contains(t, lines[2], `label: "first"`)
	require.Contains(t, lines[0], fmt.Sprintf("overhead: %d", Overhead))
	require.Contains(t, lines[3], `registry "dump": 3 records`)
	require.Contains(t, lines[4], "all registries:")
}

func TestDumpEmptyRegistry(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("empty")

	var out bytes.Buffer
	require.NoError(t, tr.DumpTo(&out, r))
	require.Contains(t, out.String(), `registry "empty": 0 records`)
}

func TestDumpTotalsAgreeWhenQuiescent(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("sole")

	_, err := tr.Alloc(100, "only", r)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, tr.DumpTo(&out, r))
	// A sole quiescent registry's total matches the Stats total, so the
	// same humanized size appears on both trailing lines.
	want := humanize.IBytes(uint64(100 + Overhead))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Contains(t, lines[len(lines)-2], want+" tracked")
	require.Contains(t, lines[len(lines)-1], want+" tracked")
}

func TestFingerprint(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	ra := tr.NewRegistry("a")
	rb := tr.NewRegistry("b")

	for _, r := range []*Registry{ra, rb} {
		_, err := tr.Alloc(16, "x", r)
		require.NoError(t, err)
		_, err = tr.Alloc(32, "y", r)
		require.NoError(t, err)
	}

	// Same (size, label) sequence, same fingerprint, regardless of which
	// slots the records landed in.
	require.Equal(t, tr.Fingerprint(ra), tr.Fingerprint(rb))

	before := tr.Fingerprint(ra)
	b, err := tr.Alloc(8, "z", ra)
	require.NoError(t, err)
	require.NotEqual(t, before, tr.Fingerprint(ra))
	tr.Free(b, ra)
	require.Equal(t, before, tr.Fingerprint(ra))

	empty := tr.NewRegistry("e")
	require.NotEqual(t, before, tr.Fingerprint(empty))
}

func TestTrackedAndCount(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("t")

	require.Equal(t, 0, tr.Count(r))
	require.False(t, tr.Tracked(nil, r))

	b, err := tr.Alloc(16, "a", r)
	require.NoError(t, err)
	require.True(t, tr.Tracked(b, r))
	require.False(t, tr.Tracked(make([]byte, 16), r))
	require.Equal(t, 1, tr.Count(r))

	other := tr.NewRegistry("other")
	require.False(t, tr.Tracked(b, other))
}

func TestLeaksAggregation(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("leaky")

	for i := 0; i < 3; i++ {
		_, err := tr.Alloc(100, "big", r)
		require.NoError(t, err)
	}
	_, err := tr.Alloc(10, "small", r)
	require.NoError(t, err)

	out := tr.Leaks(r)
	require.Contains(t, out, `registry "leaky": 4 records`)
	require.Contains(t, out, "big: 3 x")
	require.Contains(t, out, "small: 1 x")
	// Heaviest label first.
	require.Less(t, strings.Index(out, "big:"), strings.Index(out, "small:"))
}

func TestLeaksEmpty(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("clean")
	require.Contains(t, tr.Leaks(r), `registry "clean": 0 records`)
}
