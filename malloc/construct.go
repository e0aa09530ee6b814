package malloc

import "unsafe"

import "github.com/ReshiAdavan/FinAlloc/api"

// Construct pop a cell from the pool and in-place initialize a zeroed
// T in it. Returns nil when the pool is exhausted; a T wider than the
// pool's cells is a programmer error and fatal. Release the object
// with Destroy.
func Construct[T any](pool api.Pooler) *T {
	var zero T
	if int64(unsafe.Sizeof(zero)) > pool.Objsize() {
		panicerr("construct: %v byte object exceeds %v byte cell",
			unsafe.Sizeof(zero), pool.Objsize())
	}
	ptr := pool.Alloc()
	if ptr == nil {
		return nil
	}
	obj := (*T)(ptr)
	*obj = zero
	return obj
}

// Destroy return an object constructed with Construct, nil is a
// no-op.
func Destroy[T any](pool api.Pooler, obj *T) {
	if obj == nil {
		return
	}
	pool.Free(unsafe.Pointer(obj))
}

// Make carve a zeroed T out of the arena with T's natural alignment.
// Arenas never free individual objects; the memory lives until Reset
// or Release.
func Make[T any](arena *Arena) *T {
	var zero T
	size := int64(unsafe.Sizeof(zero))
	align := int64(unsafe.Alignof(zero))
	obj := (*T)(arena.Alloc(size, align))
	*obj = zero
	return obj
}

// Makeslice carve an uninitialized []T of length n out of the arena.
func Makeslice[T any](arena *Arena, n int64) []T {
	if n <= 0 {
		return nil
	}
	var zero T
	size := int64(unsafe.Sizeof(zero)) * n
	align := int64(unsafe.Alignof(zero))
	ptr := arena.Alloc(size, align)
	return unsafe.Slice((*T)(ptr), n)
}
