// Functions and methods of Arena are not thread safe. An arena is
// owned by a single thread at any instant; use Localarena to hand
// arenas out per worker.

package malloc

import "runtime"
import "unsafe"

import "github.com/bnclabs/golog"
import humanize "github.com/dustin/go-humanize"

const blockmagic = uint32(0xABCD1234)

// blockheader is written immediately before each payload, aligned to
// Scalaralign. It is metadata only: the allocator never reads it back,
// post-mortem checkers and tests do.
type blockheader struct {
	magic       uint32
	_           uint32
	payloadsize int64
	alignment   int64
	precanary   int64
	postcanary  int64
}

const blockhdrsize = int64(unsafe.Sizeof(blockheader{}))

// Journalentry one record in the arena's allocation journal.
type Journalentry struct {
	Size    int64
	Align   int64
	Retaddr uintptr
}

// Arena bump-pointer allocator over an ordered sequence of chunks.
// The last chunk is the active one; allocation carves from its tail
// and growth appends geometrically larger chunks, either from the OS
// or from an attached Arenagroup.
type Arena struct {
	chunks         []Arenachunk
	nextchunkbytes int64
	totalbytes     int64 // cumulative user bytes satisfied
	opts           ArenaOptions
	group          *Arenagroup

	journal     []Journalentry
	journalhead int64

	logprefix string
}

// NewArena create an arena and eagerly acquire its first chunk, so
// Chunkcount() >= 1 on return.
func NewArena(opts ArenaOptions) *Arena {
	arena := &Arena{
		opts:      opts.normalize(),
		logprefix: "arena",
	}
	arena.nextchunkbytes = maxint64(arena.opts.InitialChunkSize, 4096)
	arena.chunks = append(arena.chunks, arena.newchunk(0))
	return arena
}

//---- operations

// Alloc carve `bytes` from the active chunk, aligned to `align`.
// bytes == 0 is treated as 1; align is raised to Scalaralign and
// rounded to the next power of two. Never returns nil: backing
// exhaustion panics with ErrorOutofMemory.
func (arena *Arena) Alloc(bytes, align int64) unsafe.Pointer {
	if bytes <= 0 {
		bytes = 1
	}
	if align < Scalaralign {
		align = Scalaralign
	}
	if !ispow2(align) {
		align = Nextpow2(align)
	}
	if n := len(arena.chunks); n > 0 {
		if ptr, ok := arena.tryalloc(&arena.chunks[n-1], bytes, align); ok {
			arena.totalbytes += bytes
			arena.maybejournal(bytes, align)
			return ptr
		}
	}
	return arena.allocslow(bytes, align)
}

// Reset zero every chunk's offset and the byte account. Chunks are
// kept, nothing shrinks.
func (arena *Arena) Reset() {
	for i := range arena.chunks {
		arena.chunks[i].offset = 0
	}
	arena.totalbytes = 0
}

// Release move every chunk into the attached group, or back to the
// OS. The chunk sequence ends empty and the growth cursor rewinds, so
// the arena can be reused and will regrow from scratch.
func (arena *Arena) Release() {
	for i := range arena.chunks {
		if arena.group != nil {
			arena.group.Release(arena.chunks[i])
		} else {
			osfree(&arena.chunks[i])
		}
	}
	arena.chunks = arena.chunks[:0]
	arena.totalbytes = 0
	arena.nextchunkbytes = maxint64(arena.opts.InitialChunkSize, 4096)
}

// Attachgroup route chunk acquisition and release through a shared
// slab recycler.
func (arena *Arena) Attachgroup(group *Arenagroup) {
	arena.group = group
}

//---- statistics

// Chunkcount number of chunks owned by this arena.
func (arena *Arena) Chunkcount() int64 {
	return int64(len(arena.chunks))
}

// Bytesremaining tail bytes left in the active chunk.
func (arena *Arena) Bytesremaining() int64 {
	if len(arena.chunks) == 0 {
		return 0
	}
	c := &arena.chunks[len(arena.chunks)-1]
	return c.size - c.offset
}

// Allocated cumulative user bytes satisfied since the last reset.
func (arena *Arena) Allocated() int64 {
	return arena.totalbytes
}

// Options the normalized options this arena runs with.
func (arena *Arena) Options() ArenaOptions {
	return arena.opts
}

// Journal copy of the journal ring in write order, oldest first once
// the ring has wrapped. Empty unless journaling is on and at least one
// allocation crossed the threshold.
func (arena *Arena) Journal() []Journalentry {
	if len(arena.journal) == 0 {
		return nil
	}
	out := make([]Journalentry, 0, len(arena.journal))
	n := int64(len(arena.journal))
	for i := int64(0); i < n; i++ {
		entry := arena.journal[(arena.journalhead+i)%n]
		if entry.Size > 0 {
			out = append(out, entry)
		}
	}
	return out
}

//---- local functions

// tryalloc carve from the tail of chunk c. Layout within the chunk:
//
//	[pad][header][pad][pre canary][payload][post canary]
//
// header aligned to Scalaralign, payload aligned to align.
func (arena *Arena) tryalloc(c *Arenachunk, bytes, align int64) (unsafe.Pointer, bool) {
	base := uintptr(c.base)
	cur := base + uintptr(c.offset)

	hdraddr := alignptr(cur, uintptr(Scalaralign))
	hdrend := hdraddr + uintptr(blockhdrsize)

	pre, post := int64(0), int64(0)
	if arena.opts.UseCanaries {
		pre, post = arena.opts.CanarySize, arena.opts.CanarySize
	}
	useraddr := alignptr(hdrend+uintptr(pre), uintptr(align))
	end := useraddr + uintptr(bytes) + uintptr(post)
	if end > base+uintptr(c.size) {
		return nil, false
	}

	hdr := (*blockheader)(unsafe.Pointer(hdraddr))
	hdr.magic = blockmagic
	hdr.payloadsize = bytes
	hdr.alignment = align
	hdr.precanary = pre
	hdr.postcanary = post

	userptr := unsafe.Pointer(useraddr)
	if pre > 0 {
		fillbytes(userptr, -pre, pre, arena.opts.CanaryByte)
	}
	if post > 0 {
		fillbytes(userptr, bytes, post, arena.opts.CanaryByte)
	}

	c.offset = int64(end - base)
	return userptr, true
}

func (arena *Arena) allocslow(bytes, align int64) unsafe.Pointer {
	// worst case within a fresh chunk: aligned header, pre canary,
	// full alignment slack, payload, post canary.
	pre, post := int64(0), int64(0)
	if arena.opts.UseCanaries {
		pre, post = arena.opts.CanarySize, arena.opts.CanarySize
	}
	worst := Alignup(blockhdrsize, Scalaralign) + pre + align + bytes + post

	want := maxint64(arena.nextchunkbytes, worst)
	lo, hi := maxint64(arena.opts.InitialChunkSize, worst), arena.opts.MaxChunkSize
	if want < lo {
		want = lo
	} else if want > hi {
		want = hi
	}
	arena.chunks = append(arena.chunks, arena.newchunk(want))
	log.Debugf("%v grown by %v (chunks:%v)\n",
		arena.logprefix, humanize.Bytes(uint64(want)), len(arena.chunks))

	next := int64(float64(want) * arena.opts.GrowthFactor)
	next = maxint64(next, worst)
	next = maxint64(next, arena.opts.InitialChunkSize)
	if next > arena.opts.MaxChunkSize {
		next = arena.opts.MaxChunkSize
	}
	arena.nextchunkbytes = next

	ptr, ok := arena.tryalloc(&arena.chunks[len(arena.chunks)-1], bytes, align)
	if !ok {
		// the clamp can leave the chunk short of worst; fall back to
		// an exact fit.
		arena.chunks = append(arena.chunks, arena.newchunk(worst))
		if ptr, ok = arena.tryalloc(&arena.chunks[len(arena.chunks)-1], bytes, align); !ok {
			panicerr("arena: cannot satisfy %v bytes align %v from fresh chunk", bytes, align)
		}
	}
	arena.totalbytes += bytes
	arena.maybejournal(bytes, align)
	return ptr
}

func (arena *Arena) newchunk(minbytes int64) Arenachunk {
	want := maxint64(minbytes, maxint64(arena.nextchunkbytes, 4096))
	if arena.group != nil {
		return arena.group.Acquire(want, arena.opts.GuardPages, arena.opts.PreferHuge)
	}
	return osalloc(want, arena.opts.GuardPages, arena.opts.PreferHuge)
}

func (arena *Arena) maybejournal(bytes, align int64) {
	if !arena.opts.Journaling || bytes < arena.opts.JournalThreshold {
		return
	}
	if arena.journal == nil {
		arena.journal = make([]Journalentry, Journalsize)
		arena.journalhead = 0
	}
	retaddr := uintptr(0)
	if pc, _, _, ok := runtime.Caller(2); ok {
		retaddr = pc
	}
	arena.journal[arena.journalhead] = Journalentry{Size: bytes, Align: align, Retaddr: retaddr}
	arena.journalhead = (arena.journalhead + 1) % int64(len(arena.journal))
}
