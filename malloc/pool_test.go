package malloc

import "testing"
import "unsafe"

func TestNewpool(t *testing.T) {
	pool := NewPool(64, 10, MinimalOverhead())
	defer pool.Release()

	if pool.Objsize() != 64 {
		t.Errorf("expected %v, got %v", 64, pool.Objsize())
	} else if pool.Capacity() != 10 {
		t.Errorf("expected %v, got %v", 10, pool.Capacity())
	} else if pool.Blocksize() != 640 {
		t.Errorf("expected %v, got %v", 640, pool.Blocksize())
	} else if pool.Used() != 0 {
		t.Errorf("expected %v, got %v", 0, pool.Used())
	} else if pool.Freelen() != 10 {
		t.Errorf("expected %v, got %v", 10, pool.Freelen())
	}

	// sub-word object sizes are coerced up and aligned.
	small := NewPool(4, 4, MinimalOverhead())
	defer small.Release()
	if small.Objsize() != Scalaralign {
		t.Errorf("expected %v, got %v", Scalaralign, small.Objsize())
	}
}

func TestPoolroundtrip(t *testing.T) {
	pool := NewPool(64, 10, MinimalOverhead())
	defer pool.Release()

	ptrs := make([]unsafe.Pointer, 0, 10)
	seen := map[unsafe.Pointer]bool{}
	for i := 0; i < 10; i++ {
		ptr := pool.Alloc()
		if ptr == nil {
			t.Fatalf("unexpected exhaustion at %v", i)
		}
		if seen[ptr] {
			t.Errorf("duplicate pointer %p", ptr)
		}
		seen[ptr] = true
		off := uintptr(ptr) - uintptr(pool.Memory())
		if int64(off)%pool.Objsize() != 0 {
			t.Errorf("pointer %p not cell aligned", ptr)
		} else if int64(off) >= pool.Blocksize() {
			t.Errorf("pointer %p outside block", ptr)
		}
		ptrs = append(ptrs, ptr)
	}
	if ptr := pool.Alloc(); ptr != nil {
		t.Errorf("expected exhaustion, got %p", ptr)
	}
	if stats := pool.Stats(); stats.Allocfailures != 1 {
		t.Errorf("expected %v, got %v", 1, stats.Allocfailures)
	}
	checkpoolinvariant(t, pool)

	for _, ptr := range ptrs {
		pool.Free(ptr)
	}
	if ptr := pool.Alloc(); ptr == nil {
		t.Errorf("expected allocation after free")
	}
	checkpoolinvariant(t, pool)

	stats := pool.Stats()
	if stats.Allocs != 12 { // 11 successes, 1 failed attempt
		t.Errorf("expected %v, got %v", 12, stats.Allocs)
	} else if stats.Frees != 10 {
		t.Errorf("expected %v, got %v", 10, stats.Frees)
	} else if stats.Watermark != 10 {
		t.Errorf("expected %v, got %v", 10, stats.Watermark)
	} else if stats.Allocs-stats.Allocfailures != stats.Frees+uint64(stats.Inuse) {
		t.Errorf("counter identity broken: %+v", stats)
	}
}

func TestPoolquarantinestarve(t *testing.T) {
	pool := NewPool(32, 4, DebugStrong(4))
	defer pool.Release()

	ptrs := make([]unsafe.Pointer, 0, 4)
	for i := 0; i < 4; i++ {
		if ptr := pool.Alloc(); ptr != nil {
			ptrs = append(ptrs, ptr)
			continue
		}
		t.Fatalf("unexpected exhaustion at %v", i)
	}
	for _, ptr := range ptrs {
		pool.Free(ptr)
	}
	// every cell sits in quarantine, none on the free list.
	if n := pool.Quarantinelen(); n != 4 {
		t.Errorf("expected %v, got %v", 4, n)
	}
	if ptr := pool.Alloc(); ptr != nil {
		t.Errorf("expected quarantine starvation, got %p", ptr)
	}
	checkpoolinvariant(t, pool)
}

func TestPoolquarantinedrain(t *testing.T) {
	pool := NewPool(32, 5, DebugStrong(4))
	defer pool.Release()

	ptrs := make([]unsafe.Pointer, 0, 5)
	for i := 0; i < 5; i++ {
		ptrs = append(ptrs, pool.Alloc())
	}
	for _, ptr := range ptrs {
		pool.Free(ptr)
	}
	// the 5th free drained the oldest back to the free list.
	if n := pool.Quarantinelen(); n != 4 {
		t.Errorf("expected %v, got %v", 4, n)
	}
	if ptr := pool.Alloc(); ptr == nil {
		t.Errorf("expected allocation after drain")
	}
	checkpoolinvariant(t, pool)
}

func TestPoolhygiene(t *testing.T) {
	pool := NewPool(64, 8, DebugStrong(0))
	defer pool.Release()

	ptr := pool.Alloc()
	if off := checkbytes(ptr, 0, pool.Objsize(), 0); off != -1 {
		t.Errorf("zero_on_alloc failed at offset %v", off)
	}
	// scribble over the cell, free re-poisons it.
	fillbytes(ptr, 0, pool.Objsize(), 0xCC)
	pool.Free(ptr)

	again := pool.Alloc()
	if again == nil {
		t.Fatalf("unexpected exhaustion")
	}
	if off := checkbytes(again, 0, pool.Objsize(), 0); off != -1 {
		t.Errorf("zero_on_alloc failed at offset %v", off)
	}
	pool.Free(again)

	if h := pool.Histogram(); h == nil {
		t.Errorf("expected occupancy histogram")
	} else if n := h.Snapshot().Samples(); n != 2 {
		t.Errorf("expected %v, got %v", 2, n)
	}
}

func TestPoolpoisonverify(t *testing.T) {
	pool := NewPool(64, 4, DebugStrong(0))
	defer pool.Release()

	ptr := pool.Alloc()
	pool.Free(ptr)
	// write through the freed pointer, past the link word.
	fillbytes(ptr, Ptrsize, 8, 0xEE)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected poison-verify panic")
			}
		}()
		pool.Alloc()
	}()
}

func TestPoolfreevalidate(t *testing.T) {
	pool := NewPool(64, 4, MinimalOverhead())
	defer pool.Release()

	pool.Free(nil) // no-op

	ptr := pool.Alloc()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic on misaligned free")
			}
		}()
		pool.Free(unsafe.Pointer(uintptr(ptr) + 1))
	}()
}

func TestPoolhooks(t *testing.T) {
	var gotalloc, gotfree []byte
	opts := DebugStrong(0)
	opts.OnAlloc = func(ptr unsafe.Pointer, size int64) {
		gotalloc = append(gotalloc[:0], unsafe.Slice((*byte)(ptr), size)...)
	}
	opts.OnFree = func(ptr unsafe.Pointer, size int64) {
		gotfree = append(gotfree[:0], unsafe.Slice((*byte)(ptr), size)...)
	}
	pool := NewPool(32, 2, opts)
	defer pool.Release()

	ptr := pool.Alloc()
	// on_alloc runs after zeroing.
	for i, b := range gotalloc {
		if b != 0 {
			t.Fatalf("on_alloc saw %x at %v before zeroing", b, i)
		}
	}
	fillbytes(ptr, 0, pool.Objsize(), 0x7F)
	pool.Free(ptr)
	// on_free runs before poisoning, so it observes the dying bytes.
	for i, b := range gotfree {
		if b != 0x7F {
			t.Fatalf("on_free saw %x at %v after poisoning", b, i)
		}
	}
}

func TestPoolconstruct(t *testing.T) {
	type item struct {
		seqno uint64
		key   [16]byte
	}
	pool := NewPool(int64(unsafe.Sizeof(item{})), 8, MinimalOverhead())
	defer pool.Release()

	objs := make([]*item, 0, 8)
	for i := 0; i < 8; i++ {
		obj := Construct[item](pool)
		if obj == nil {
			t.Fatalf("unexpected exhaustion at %v", i)
		}
		if obj.seqno != 0 {
			t.Errorf("expected zeroed object, got %v", obj.seqno)
		}
		obj.seqno = uint64(i)
		objs = append(objs, obj)
	}
	if obj := Construct[item](pool); obj != nil {
		t.Errorf("expected exhaustion, got %v", obj)
	}
	for _, obj := range objs {
		Destroy(pool, obj)
	}
	if pool.Used() != 0 {
		t.Errorf("expected %v, got %v", 0, pool.Used())
	}
}

func checkpoolinvariant(t *testing.T, pool *Pool) {
	t.Helper()
	total := pool.Used() + pool.Freelen() + pool.Quarantinelen()
	if total != pool.Capacity() {
		t.Errorf("invariant broken: inuse %v + free %v + quarantine %v != %v",
			pool.Used(), pool.Freelen(), pool.Quarantinelen(), pool.Capacity())
	}
}

func BenchmarkPoolalloc(b *testing.B) {
	pool := NewPool(64, 1024, MinimalOverhead())
	defer pool.Release()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Free(pool.Alloc())
	}
}

func BenchmarkPoolallocdebug(b *testing.B) {
	pool := NewPool(64, 1024, DebugStrong(0))
	defer pool.Release()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Free(pool.Alloc())
	}
}
