package main

import "flag"
import "fmt"
import "os"
import "runtime"
import "sort"
import "sync"
import "sync/atomic"
import "time"
import "unsafe"

import "github.com/ReshiAdavan/FinAlloc/lib"
import "github.com/ReshiAdavan/FinAlloc/malloc"
import "github.com/bnclabs/golog"
import s "github.com/bnclabs/gosettings"
import hm "github.com/dustin/go-humanize"

var options struct {
	allocator string
	threads   int
	iters     int
	size      int64
	live      int64
}

func argParse() {
	flag.StringVar(&options.allocator, "allocator", "pool",
		"allocator to exercise: pool | lockfree | arena | new")
	flag.IntVar(&options.threads, "threads", 8,
		"number of worker goroutines")
	flag.IntVar(&options.iters, "iters", 100000,
		"iterations per worker")
	flag.Int64Var(&options.size, "size", 64,
		"bytes per allocation")
	flag.Int64Var(&options.live, "live", 0,
		"live set across the process, 0 means immediate free")
	flag.Parse()

	if options.threads <= 0 {
		options.threads = 1
	}
	if options.iters <= 0 {
		options.iters = 1
	}
	if options.size <= 0 {
		options.size = 1
	}
}

func main() {
	argParse()
	log.SetLogger(nil, map[string]interface{}{
		"log.level": "info", "log.file": "",
	})

	// live set split across workers, rounded up.
	livept := int64(0)
	if options.live > 0 {
		livept = (options.live + int64(options.threads) - 1) / int64(options.threads)
	}

	t0 := time.Now()
	var lats [][]int64
	switch options.allocator {
	case "pool":
		lats = runpool(livept)
	case "lockfree":
		lats = runlockfree(livept)
	case "arena":
		lats = runarena(livept)
	case "new":
		lats = runnew(livept)
	default:
		fmt.Fprintf(os.Stderr, "unknown allocator %q\n", options.allocator)
		fmt.Fprintf(os.Stderr,
			"usage: allocbench [--allocator=pool|lockfree|arena|new] "+
				"[--threads=N] [--iters=N] [--size=BYTES] [--live=LIVESET]\n")
		os.Exit(2)
	}
	summarize(options.allocator, lats, time.Since(t0))
}

// worker capacity: enough for this worker's live set, else one cell
// per iteration for immediate alloc/free.
func workercap(livept int64) int64 {
	if livept > 0 {
		return livept
	}
	return int64(options.iters)
}

func runpool(livept int64) [][]int64 {
	popts := malloc.Pooloptionsfrom(s.Settings{})
	return runworkers(func(tid int, lat []int64) []int64 {
		pool := malloc.NewPool(options.size, workercap(livept), popts)
		defer pool.Release()
		lat = measure(lat, livept, pool.Alloc, pool.Free)
		return lat
	})
}

func runlockfree(livept int64) [][]int64 {
	popts := malloc.Pooloptionsfrom(s.Settings{})
	capacity := workercap(livept) * int64(options.threads)
	pool := malloc.NewLockfreepool(options.size, capacity, popts)
	defer pool.Release()
	lats := runworkers(func(tid int, lat []int64) []int64 {
		return measure(lat, livept, pool.Alloc, pool.Free)
	})
	stats := pool.Stats()
	log.Infof("allocbench: lockfree casfailures %v watermark %v\n",
		stats.Casfailures, stats.Watermark)
	return lats
}

func runarena(livept int64) [][]int64 {
	aopts := malloc.Arenaoptionsfrom(s.Settings{})
	local := malloc.NewLocalarena(aopts)
	defer local.Purge()
	return runworkers(func(tid int, lat []int64) []int64 {
		arena := local.Instance()
		defer local.Retire(arena)
		n := 0
		alloc := func() unsafe.Pointer {
			// arenas free in bulk; rewind once the live window has
			// cycled through.
			if n++; livept == 0 && n%1024 == 0 {
				arena.Reset()
			}
			return arena.Alloc(options.size, malloc.Scalaralign)
		}
		free := func(unsafe.Pointer) {
			if livept > 0 && n%int(livept) == 0 {
				arena.Reset()
			}
		}
		return measure(lat, livept, alloc, free)
	})
}

func runnew(livept int64) [][]int64 {
	var sink atomic.Pointer[byte]
	return runworkers(func(tid int, lat []int64) []int64 {
		alloc := func() unsafe.Pointer {
			buf := make([]byte, options.size)
			sink.Store(&buf[0])
			return unsafe.Pointer(&buf[0])
		}
		free := func(unsafe.Pointer) {}
		return measure(lat, livept, alloc, free)
	})
}

// runworkers start one goroutine per worker behind a ready barrier and
// collect per-worker latency rows.
func runworkers(body func(tid int, lat []int64) []int64) [][]int64 {
	var ready int32
	var wg sync.WaitGroup
	lats := make([][]int64, options.threads)
	for tid := 0; tid < options.threads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			lat := make([]int64, 0, options.iters)
			for atomic.LoadInt32(&ready) == 0 {
				runtime.Gosched()
			}
			lats[tid] = body(tid, lat)
		}(tid)
	}
	atomic.StoreInt32(&ready, 1)
	wg.Wait()
	return lats
}

// measure run the alloc/free loop, timing each allocation. With a
// live set, the oldest pointer is freed before allocating once the
// ring is full, so occupancy never overshoots.
func measure(
	lat []int64, livept int64,
	alloc func() unsafe.Pointer, free func(unsafe.Pointer)) []int64 {

	ring := make([]unsafe.Pointer, 0, maxi64(livept, 1))
	rhead := 0
	for i := 0; i < options.iters; i++ {
		if livept > 0 && int64(len(ring)) == livept {
			free(ring[rhead])
			t0 := time.Now()
			ring[rhead] = alloc()
			lat = append(lat, int64(time.Since(t0)))
			rhead = (rhead + 1) % int(livept)
			continue
		}
		t0 := time.Now()
		ptr := alloc()
		lat = append(lat, int64(time.Since(t0)))
		if livept > 0 {
			ring = append(ring, ptr)
		} else {
			free(ptr)
		}
	}
	for _, ptr := range ring {
		free(ptr)
	}
	return lat
}

func summarize(name string, lats [][]int64, elapsed time.Duration) {
	merged := make([]int64, 0, options.threads*options.iters)
	for _, row := range lats {
		merged = append(merged, row...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })

	sum := int64(0)
	for _, v := range merged {
		sum += v
	}
	avg := int64(0)
	if len(merged) > 0 {
		avg = sum / int64(len(merged))
	}
	ops := float64(options.threads*options.iters) / (elapsed.Seconds() + 1e-9)

	total, used, free := lib.Getsysmem()
	fmt.Printf("\nRunning: %v\n", name)
	fmt.Printf("Threads=%v Iters/Thread=%v Size=%v bytes Live=%v\n",
		options.threads, options.iters, options.size, options.live)
	fmt.Printf("Time: %v  |  Throughput: %v ops/s\n",
		elapsed.Round(time.Millisecond), hm.Comma(int64(ops)))
	fmt.Printf("p50: %v ns, p95: %v ns, p99: %v ns, avg: %v ns\n",
		percentile(merged, 50), percentile(merged, 95),
		percentile(merged, 99), avg)
	fmt.Printf("sysmem: total %v, used %v, free %v\n",
		hm.Bytes(total), hm.Bytes(used), hm.Bytes(free))
}

func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[(len(sorted)*p)/100]
}

func maxi64(x, y int64) int64 {
	if x > y {
		return x
	}
	return y
}
