package malloc

import "sync"
import "unsafe"
import "sync/atomic"

import "github.com/ReshiAdavan/FinAlloc/lib"

// Lockfreepool multi-producer/multi-consumer variant of Pool. It
// shares the backing block, options and counters of a pool base but
// replaces the link discipline: free-list links live in a side array
// indexed by cell index, never inside the cells. Cell bytes are
// therefore never read to traverse the list, which keeps CAS aliasing
// on the head harmless while poison-on-free overwrites cell bodies.
//
// next[i] is written only by the thread freeing cell i (and once at
// construction); the write is published by the release CAS on the
// head. A successful Alloc observes every write made by the thread
// that most recently freed that cell.
type Lockfreepool struct {
	// 64-bit aligned
	ncas uint64

	base *Pool
	head unsafe.Pointer   // atomic free-list head
	next []unsafe.Pointer // side-array links, atomic element access

	qmu  sync.Mutex
	quar quarring
}

// NewLockfreepool create a shared pool of `capacity` cells of
// `objsize` bytes. Same coercion rules as NewPool.
func NewLockfreepool(objsize, capacity int64, opts PoolOptions) *Lockfreepool {
	base := NewPool(objsize, capacity, opts)
	lf := &Lockfreepool{
		base: base,
		next: make([]unsafe.Pointer, capacity),
		quar: newquarring(base.opts.QuarantineSize),
	}
	// the base threaded links inside the cells; this pool keeps them
	// out of line instead.
	base.freehead, base.nfree = nil, 0
	for i := int64(0); i < capacity-1; i++ {
		lf.next[i] = base.cellat(i + 1)
	}
	lf.next[capacity-1] = nil
	lf.head = base.cellat(0)
	return lf
}

//---- operations

// Alloc pop a cell off the shared free list, nil on exhaustion. A head
// pointer outside the pool, or off a cell boundary, is fatal.
func (lf *Lockfreepool) Alloc() unsafe.Pointer {
	for {
		head := atomic.LoadPointer(&lf.head)
		if head == nil {
			atomic.AddUint64(&lf.base.nallocs, 1)
			atomic.AddUint64(&lf.base.nfailures, 1)
			return nil
		}
		lf.base.validate(head)
		next := atomic.LoadPointer(&lf.next[lf.base.cellindex(head)])
		if atomic.CompareAndSwapPointer(&lf.head, head, next) {
			lf.base.allocscrub(head)
			return head
		}
		atomic.AddUint64(&lf.ncas, 1)
	}
}

// Free return a cell to the shared pool, nil is a no-op. Out-of-range
// or misaligned pointers are fatal.
func (lf *Lockfreepool) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	lf.base.validate(ptr)
	lf.base.freescrub(ptr)
	if lf.base.opts.QuarantineSize > 0 {
		lf.qmu.Lock()
		old, evicted := lf.quar.push(ptr)
		lf.qmu.Unlock()
		if evicted {
			lf.pushfree(old)
		}
	} else {
		lf.pushfree(ptr)
	}
	atomic.AddInt64(&lf.base.inuse, -1)
	atomic.AddUint64(&lf.base.nfrees, 1)
}

// Release the backing block. Callers must have quiesced every user of
// the pool first.
func (lf *Lockfreepool) Release() {
	atomic.StorePointer(&lf.head, nil)
	lf.next = nil
	lf.base.Release()
}

//---- statistics

// Used number of live cells.
func (lf *Lockfreepool) Used() int64 {
	return lf.base.Used()
}

// Capacity number of cells in the pool.
func (lf *Lockfreepool) Capacity() int64 {
	return lf.base.Capacity()
}

// Memory base address of the cell block.
func (lf *Lockfreepool) Memory() unsafe.Pointer {
	return lf.base.Memory()
}

// Blocksize total bytes spanned by the cells.
func (lf *Lockfreepool) Blocksize() int64 {
	return lf.base.Blocksize()
}

// Objsize cell size after alignment.
func (lf *Lockfreepool) Objsize() int64 {
	return lf.base.Objsize()
}

// Freelen cells on the free list, derived from the other gauges.
func (lf *Lockfreepool) Freelen() int64 {
	return lf.Capacity() - lf.Used() - lf.Quarantinelen()
}

// Quarantinelen cells parked in the quarantine.
func (lf *Lockfreepool) Quarantinelen() int64 {
	lf.qmu.Lock()
	defer lf.qmu.Unlock()
	return lf.quar.len()
}

// Stats relaxed snapshot including the CAS-failure count.
func (lf *Lockfreepool) Stats() Poolstats {
	stats := lf.base.Stats()
	stats.Casfailures = atomic.LoadUint64(&lf.ncas)
	return stats
}

// Histogram occupancy histogram, nil unless SampleHistograms is set.
func (lf *Lockfreepool) Histogram() *lib.Histogram {
	return lf.base.Histogram()
}

//---- local functions

// pushfree publish-before-CAS: the side-array link is written first,
// the release CAS on the head publishes it.
func (lf *Lockfreepool) pushfree(ptr unsafe.Pointer) {
	idx := lf.base.cellindex(ptr)
	for {
		head := atomic.LoadPointer(&lf.head)
		atomic.StorePointer(&lf.next[idx], head)
		if atomic.CompareAndSwapPointer(&lf.head, head, ptr) {
			return
		}
		atomic.AddUint64(&lf.ncas, 1)
	}
}
