package malloc

import "sync"
import "testing"
import "unsafe"
import "sync/atomic"

// Six workers hammer a shared lock-free pool with paired alloc/free.
// On join the pool must be quiescent and the counters must add up.
func TestConcurlockfree(t *testing.T) {
	nroutines, repeat := 6, 4000
	pool := NewLockfreepool(64, int64(64*6), MinimalOverhead())
	defer pool.Release()

	var wg sync.WaitGroup
	wg.Add(nroutines)
	for n := 0; n < nroutines; n++ {
		go func(tid int) {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				ptr := pool.Alloc()
				if ptr == nil {
					t.Errorf("unexpected exhaustion in worker %v", tid)
					return
				}
				pool.Free(ptr)
			}
		}(n)
	}
	wg.Wait()

	stats := pool.Stats()
	if stats.Inuse != 0 {
		t.Errorf("expected %v, got %v", 0, stats.Inuse)
	} else if want := uint64(nroutines * repeat); stats.Allocs != want {
		t.Errorf("expected %v, got %v", want, stats.Allocs)
	} else if stats.Frees != want {
		t.Errorf("expected %v, got %v", want, stats.Frees)
	} else if stats.Watermark <= 0 {
		t.Errorf("expected positive watermark, got %v", stats.Watermark)
	}
	t.Logf("casfailures: %v watermark: %v", stats.Casfailures, stats.Watermark)
}

// Each worker tags the cells it holds; a tag changing under a live
// cell would mean two successful allocations aliased the same cell.
func TestConcurnoalias(t *testing.T) {
	nroutines, repeat, liveset := 8, 2000, 4
	pool := NewLockfreepool(16, int64(nroutines*liveset), MinimalOverhead())
	defer pool.Release()

	var aliased int32
	var wg sync.WaitGroup
	wg.Add(nroutines)
	for n := 0; n < nroutines; n++ {
		go func(tag uint64) {
			defer wg.Done()
			live := make([]unsafe.Pointer, 0, liveset)
			for i := 0; i < repeat; i++ {
				if len(live) == liveset {
					for _, ptr := range live {
						if *(*uint64)(ptr) != tag {
							atomic.StoreInt32(&aliased, 1)
						}
						pool.Free(ptr)
					}
					live = live[:0]
				}
				ptr := pool.Alloc()
				if ptr == nil {
					t.Errorf("unexpected exhaustion in worker %v", tag)
					return
				}
				*(*uint64)(ptr) = tag
				live = append(live, ptr)
			}
			for _, ptr := range live {
				if *(*uint64)(ptr) != tag {
					atomic.StoreInt32(&aliased, 1)
				}
				pool.Free(ptr)
			}
		}(uint64(n + 1))
	}
	wg.Wait()

	if aliased != 0 {
		t.Errorf("two concurrent allocations returned the same cell")
	}
	if pool.Used() != 0 {
		t.Errorf("expected %v, got %v", 0, pool.Used())
	}
	checkconcurinvariant(t, pool)
}

// Concurrent alloc/free with quarantine on: the mutex-guarded FIFO
// must keep the counter identity intact.
func TestConcurquarantine(t *testing.T) {
	nroutines, repeat := 4, 1000
	pool := NewLockfreepool(64, int64(nroutines*8), DebugStrong(16))
	defer pool.Release()

	var wg sync.WaitGroup
	wg.Add(nroutines)
	for n := 0; n < nroutines; n++ {
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				if ptr := pool.Alloc(); ptr != nil {
					pool.Free(ptr)
				}
			}
		}()
	}
	wg.Wait()

	if pool.Used() != 0 {
		t.Errorf("expected %v, got %v", 0, pool.Used())
	}
	stats := pool.Stats()
	if stats.Allocs-stats.Allocfailures != stats.Frees {
		t.Errorf("counter identity broken: %+v", stats)
	}
	checkconcurinvariant(t, pool)
}

func checkconcurinvariant(t *testing.T, pool *Lockfreepool) {
	t.Helper()
	total := pool.Used() + pool.Freelen() + pool.Quarantinelen()
	if total != pool.Capacity() {
		t.Errorf("invariant broken: inuse %v + free %v + quarantine %v != %v",
			pool.Used(), pool.Freelen(), pool.Quarantinelen(), pool.Capacity())
	}
}
