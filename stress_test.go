package memtab

import (
	"io"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Every goroutine hammers its own registry of one shared tracker while a
// dumper traverses concurrently. When everything is freed the shared total
// must be exactly zero.
func TestStressAllocFree(t *testing.T) {
	tr, rep := newTestTracker(t, nil)

	stop := make(chan struct{})
	var dumps sync.WaitGroup
	dumper := tr.NewRegistry("dumper")
	_, err := tr.Alloc(64, "pinned", dumper)
	require.NoError(t, err)
	dumps.Add(1)
	go func() {
		defer dumps.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if err := tr.DumpTo(io.Discard, dumper); err != nil {
					t.Error(err)
					return
				}
				tr.Fingerprint(dumper)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < runtime.GOMAXPROCS(0); i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := tr.NewRegistry("worker")
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
			var live [][]byte
			for op := 0; op < 2000; op++ {
				switch {
				case len(live) == 0 || rng.Intn(3) == 0:
					b, err := tr.Alloc(1+rng.Intn(512), "stress", r)
					if err != nil {
						t.Error(err)
						return
					}
					live = append(live, b)
				case rng.Intn(2) == 0:
					i := rng.Intn(len(live))
					b, err := tr.Realloc(live[i], 1+rng.Intn(512), r)
					if err != nil {
						t.Error(err)
						return
					}
					live[i] = b
				default:
					i := rng.Intn(len(live))
					tr.Free(live[i], r)
					live[i] = live[len(live)-1]
					live = live[:len(live)-1]
				}
			}
			tr.FreeAll(r)
		}(i)
	}
	wg.Wait()
	close(stop)
	dumps.Wait()

	tr.FreeAll(dumper)
	require.Equal(t, uint64(0), tr.Total())
	require.Equal(t, 0, rep.count())
}

// Freeing from several goroutines sharing one registry must serialize
// cleanly through the registry lock.
func TestStressSharedRegistry(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	r := tr.NewRegistry("shared")

	const n = 1000
	blocks := make(chan []byte, n)
	for i := 0; i < n; i++ {
		b, err := tr.Alloc(32, "shared", r)
		require.NoError(t, err)
		blocks <- b
	}
	close(blocks)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range blocks {
				tr.Free(b, r)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, uint64(0), tr.Total())
	require.Equal(t, 0, tr.Count(r))
}
