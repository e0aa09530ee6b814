package malloc

import "unsafe"

// Arenachunk is a contiguous byte region acquired from the OS. It backs
// arena allocations and pool cell blocks. A chunk is owned by at most
// one allocator at a time; retired chunks can be parked in an
// Arenagroup and handed to another arena later.
type Arenachunk struct {
	base    unsafe.Pointer
	buf     []byte // pins the region; always the full mapping
	size    int64  // usable bytes
	offset  int64  // bytes consumed, 0 <= offset <= size
	mmapped bool
}

// Size usable bytes in this chunk.
func (c *Arenachunk) Size() int64 {
	return c.size
}

// Offset bytes consumed so far.
func (c *Arenachunk) Offset() int64 {
	return c.offset
}

// Base start address of the usable region, nil for the zero chunk.
func (c *Arenachunk) Base() unsafe.Pointer {
	return c.base
}

// osalloc acquire a chunk of at least `bytes` usable bytes from the OS.
// `guards` and `hugepages` are accepted for callers that configure
// them, the portable backing ignores both. Backing exhaustion is fatal
// and panics with ErrorOutofMemory.
func osalloc(bytes int64, guards, hugepages bool) Arenachunk {
	_, _ = guards, hugepages
	if bytes < 4096 {
		bytes = 4096
	}
	bytes = Alignup(bytes, 4096)
	buf, mmapped := sysalloc(bytes)
	return Arenachunk{
		base:    unsafe.Pointer(&buf[0]),
		buf:     buf,
		size:    bytes,
		offset:  0,
		mmapped: mmapped,
	}
}

// osfree return the chunk's region to the OS. Safe on the zero chunk.
func osfree(c *Arenachunk) {
	if c.base == nil {
		return
	}
	if c.mmapped {
		sysfree(c.buf)
	}
	c.base, c.buf = nil, nil
	c.size, c.offset, c.mmapped = 0, 0, false
}
