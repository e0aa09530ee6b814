// Sizepool is not thread safe; wrap it or shard it per worker.

package malloc

import "unsafe"

import "github.com/ReshiAdavan/FinAlloc/api"

// Sizepool dispatches variable-size requests to per-class fixed
// pools. Requests map to the smallest power-of-two bucket that covers
// them; a bucket's pool is constructed on first touch with
// `perbucket` cells.
type Sizepool struct {
	maxobjsize int64
	perbucket  int64
	opts       PoolOptions
	lockfree   bool
	buckets    map[int64]api.Pooler
}

// NewSizepool requests above maxobjsize are refused with nil.
// maxobjsize <= 0 means 1024, perbucket <= 0 means 1024.
func NewSizepool(maxobjsize, perbucket int64, opts PoolOptions) *Sizepool {
	if maxobjsize <= 0 {
		maxobjsize = 1024
	}
	if perbucket <= 0 {
		perbucket = 1024
	}
	return &Sizepool{
		maxobjsize: maxobjsize,
		perbucket:  perbucket,
		opts:       opts,
		buckets:    make(map[int64]api.Pooler),
	}
}

// NewLockfreesizepool same dispatch over Lockfreepool cells, for
// callers that share the per-class pools across threads. The façade
// map itself is still single-threaded: build the buckets up front by
// touching each class before sharing.
func NewLockfreesizepool(maxobjsize, perbucket int64, opts PoolOptions) *Sizepool {
	sp := NewSizepool(maxobjsize, perbucket, opts)
	sp.lockfree = true
	return sp
}

//---- operations

// Alloc a cell covering size bytes, nil when size exceeds maxobjsize
// or the bucket's pool is exhausted.
func (sp *Sizepool) Alloc(size int64) unsafe.Pointer {
	if size > sp.maxobjsize {
		return nil
	}
	return sp.bucketfor(size).Alloc()
}

// Free return ptr to the bucket that served `size`. Oversize or
// unknown buckets are a no-op, as is nil.
func (sp *Sizepool) Free(ptr unsafe.Pointer, size int64) {
	if ptr == nil || size > sp.maxobjsize {
		return
	}
	if pool, ok := sp.buckets[bucketsize(size)]; ok {
		pool.Free(ptr)
	}
}

// Release every constructed bucket.
func (sp *Sizepool) Release() {
	for _, pool := range sp.buckets {
		pool.Release()
	}
	sp.buckets = make(map[int64]api.Pooler)
}

//---- statistics

// Bucketcount buckets constructed so far.
func (sp *Sizepool) Bucketcount() int {
	return len(sp.buckets)
}

// Bucket the pool behind `size`, nil when untouched or oversize.
func (sp *Sizepool) Bucket(size int64) api.Pooler {
	if size > sp.maxobjsize {
		return nil
	}
	return sp.buckets[bucketsize(size)]
}

//---- local functions

func (sp *Sizepool) bucketfor(size int64) api.Pooler {
	bucket := bucketsize(size)
	pool, ok := sp.buckets[bucket]
	if !ok {
		if sp.lockfree {
			pool = NewLockfreepool(bucket, sp.perbucket, sp.opts)
		} else {
			pool = NewPool(bucket, sp.perbucket, sp.opts)
		}
		sp.buckets[bucket] = pool
	}
	return pool
}

func bucketsize(size int64) int64 {
	return Nextpow2(size)
}
