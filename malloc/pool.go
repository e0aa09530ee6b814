// Functions and methods of Pool are not thread safe.

package malloc

import "unsafe"
import "sync/atomic"

import "github.com/ReshiAdavan/FinAlloc/lib"

// Pool manages a contiguous block sliced into `capacity` equally sized
// cells. Free cells are threaded through a LIFO free list whose link
// lives inside the cell's first word. A cell is either live, on the
// free list, or parked in the quarantine; the three always sum to
// capacity.
type Pool struct {
	// 64-bit aligned stats, accessed atomically so that snapshots can
	// be read while the pool is in use.
	nallocs   uint64
	nfrees    uint64
	nfailures uint64
	inuse     int64
	watermark int64

	objsize  int64 // cell size after alignment
	capacity int64
	mem      Arenachunk
	base     unsafe.Pointer
	freehead unsafe.Pointer
	nfree    int64
	quar     quarring
	opts     PoolOptions

	h_occupancy *lib.Histogram
}

// NewPool create a pool of `capacity` cells of `objsize` bytes each.
// objsize is coerced up to the link-word size and rounded up to
// Scalaralign. The whole backing block is acquired up front.
func NewPool(objsize, capacity int64, opts PoolOptions) *Pool {
	if capacity <= 0 {
		panicerr("NewPool: capacity %v", capacity)
	}
	if objsize < Ptrsize {
		objsize = Ptrsize
	}
	opts = opts.normalize()
	pool := &Pool{
		objsize:  Alignup(objsize, Scalaralign),
		capacity: capacity,
		opts:     opts,
		quar:     newquarring(opts.QuarantineSize),
	}
	pool.mem = osalloc(pool.objsize*capacity, false, false)
	pool.base = pool.mem.base

	// thread the free list through the cells, last link is nil.
	for i := int64(0); i < capacity-1; i++ {
		cell := pool.cellat(i)
		*(*unsafe.Pointer)(cell) = pool.cellat(i + 1)
	}
	*(*unsafe.Pointer)(pool.cellat(capacity - 1)) = nil
	pool.freehead = pool.cellat(0)
	pool.nfree = capacity

	if opts.PoisonOnFree {
		for i := int64(0); i < capacity; i++ {
			fillbytes(pool.cellat(i), Ptrsize, pool.objsize-Ptrsize, opts.PoisonByte)
		}
	}
	if opts.SampleHistograms {
		pool.h_occupancy = lib.NewHistogram(0, uint64(capacity), opts.HistogramBuckets)
	}
	return pool
}

//---- operations

// Alloc pop a cell from the free list, nil when the pool is exhausted
// or every free cell sits in the quarantine.
func (pool *Pool) Alloc() unsafe.Pointer {
	if pool.freehead == nil {
		// failed attempts still count as calls, the stats identity
		// allocs - failures = frees + inuse depends on it.
		atomic.AddUint64(&pool.nallocs, 1)
		atomic.AddUint64(&pool.nfailures, 1)
		return nil
	}
	ptr := pool.freehead
	pool.freehead = *(*unsafe.Pointer)(ptr)
	pool.nfree--
	pool.allocscrub(ptr)
	return ptr
}

// Free return a cell to the pool, nil is a no-op. Freeing a pointer
// that is not cell-aligned within the pool is fatal.
func (pool *Pool) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	pool.validate(ptr)
	pool.freescrub(ptr)
	if pool.opts.QuarantineSize > 0 {
		if old, evicted := pool.quar.push(ptr); evicted {
			pool.pushfree(old)
		}
	} else {
		pool.pushfree(ptr)
	}
	atomic.AddInt64(&pool.inuse, -1)
	atomic.AddUint64(&pool.nfrees, 1)
}

// Release the pool's backing block to the OS. The pool is unusable
// afterwards.
func (pool *Pool) Release() {
	osfree(&pool.mem)
	pool.base, pool.freehead = nil, nil
	pool.nfree = 0
	pool.quar = newquarring(0)
}

//---- statistics

// Used number of live cells.
func (pool *Pool) Used() int64 {
	return atomic.LoadInt64(&pool.inuse)
}

// Capacity number of cells in the pool.
func (pool *Pool) Capacity() int64 {
	return pool.capacity
}

// Memory base address of the cell block.
func (pool *Pool) Memory() unsafe.Pointer {
	return pool.base
}

// Blocksize total bytes spanned by the cells.
func (pool *Pool) Blocksize() int64 {
	return pool.objsize * pool.capacity
}

// Objsize cell size after alignment.
func (pool *Pool) Objsize() int64 {
	return pool.objsize
}

// Freelen cells on the free list, quarantined cells excluded.
func (pool *Pool) Freelen() int64 {
	return pool.nfree
}

// Quarantinelen cells parked in the quarantine.
func (pool *Pool) Quarantinelen() int64 {
	return pool.quar.len()
}

// Stats relaxed snapshot of the pool counters.
func (pool *Pool) Stats() Poolstats {
	return Poolstats{
		Allocs:        atomic.LoadUint64(&pool.nallocs),
		Frees:         atomic.LoadUint64(&pool.nfrees),
		Allocfailures: atomic.LoadUint64(&pool.nfailures),
		Inuse:         atomic.LoadInt64(&pool.inuse),
		Watermark:     atomic.LoadInt64(&pool.watermark),
	}
}

// Histogram occupancy histogram, nil unless SampleHistograms is set.
func (pool *Pool) Histogram() *lib.Histogram {
	return pool.h_occupancy
}

//---- local functions

func (pool *Pool) cellat(i int64) unsafe.Pointer {
	return unsafe.Add(pool.base, int(i*pool.objsize))
}

func (pool *Pool) cellindex(ptr unsafe.Pointer) int64 {
	return (int64(uintptr(ptr)) - int64(uintptr(pool.base))) / pool.objsize
}

func (pool *Pool) validate(ptr unsafe.Pointer) {
	off := int64(uintptr(ptr)) - int64(uintptr(pool.base))
	if off < 0 || off >= pool.objsize*pool.capacity {
		panicerr("pool: pointer %p outside [%p, +%v)", ptr, pool.base, pool.Blocksize())
	}
	if off%pool.objsize != 0 {
		panicerr("pool: pointer %p not cell aligned: off %v, cell %v", ptr, off, pool.objsize)
	}
}

func (pool *Pool) pushfree(ptr unsafe.Pointer) {
	*(*unsafe.Pointer)(ptr) = pool.freehead
	pool.freehead = ptr
	pool.nfree++
}

// allocscrub post-allocation hygiene shared with the lock-free pool:
// counters, poison verification, zeroing, the OnAlloc hook and
// occupancy sampling. The hook runs after zeroing.
func (pool *Pool) allocscrub(ptr unsafe.Pointer) {
	atomic.AddUint64(&pool.nallocs, 1)
	inuse := atomic.AddInt64(&pool.inuse, 1)
	for {
		w := atomic.LoadInt64(&pool.watermark)
		if inuse <= w || atomic.CompareAndSwapInt64(&pool.watermark, w, inuse) {
			break
		}
	}
	if pool.opts.VerifyPoisonOnAlloc && pool.opts.PoisonOnFree {
		off := checkbytes(ptr, Ptrsize, pool.objsize-Ptrsize, pool.opts.PoisonByte)
		if off >= 0 {
			panicerr("pool: poison overwritten at %p+%v, write through a freed pointer", ptr, off)
		}
	}
	if pool.opts.ZeroOnAlloc {
		fillbytes(ptr, 0, pool.objsize, 0)
	}
	if pool.opts.OnAlloc != nil {
		pool.opts.OnAlloc(ptr, pool.objsize)
	}
	if pool.h_occupancy != nil {
		pool.h_occupancy.Record(uint64(inuse))
	}
}

// freescrub pre-free hygiene shared with the lock-free pool. The
// OnFree hook runs before poisoning so it can observe the dying bytes.
func (pool *Pool) freescrub(ptr unsafe.Pointer) {
	if pool.opts.OnFree != nil {
		pool.opts.OnFree(ptr, pool.objsize)
	}
	if pool.opts.PoisonOnFree {
		fillbytes(ptr, Ptrsize, pool.objsize-Ptrsize, pool.opts.PoisonByte)
	}
}

// quarring bounded FIFO of freed cells. Pushing beyond capacity evicts
// the oldest entry.
type quarring struct {
	ring []unsafe.Pointer
	head int64 // oldest entry
	n    int64
}

func newquarring(capacity int64) quarring {
	if capacity <= 0 {
		return quarring{}
	}
	return quarring{ring: make([]unsafe.Pointer, capacity)}
}

func (q *quarring) push(ptr unsafe.Pointer) (old unsafe.Pointer, evicted bool) {
	if q.n < int64(len(q.ring)) {
		q.ring[(q.head+q.n)%int64(len(q.ring))] = ptr
		q.n++
		return nil, false
	}
	old = q.ring[q.head]
	q.ring[q.head] = ptr
	q.head = (q.head + 1) % int64(len(q.ring))
	return old, true
}

func (q *quarring) len() int64 {
	return q.n
}
