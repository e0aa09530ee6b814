package malloc

import "sync"

import "github.com/bnclabs/golog"
import humanize "github.com/dustin/go-humanize"

// Numbins size classes maintained by Arenagroup.
const Numbins = 6

// binbytes size class for each bin: 64K, 256K, 1M, 4M, 16M, 64M.
var binbytes = [Numbins]int64{
	64 * 1024,
	256 * 1024,
	1024 * 1024,
	4 * 1024 * 1024,
	16 * 1024 * 1024,
	64 * 1024 * 1024,
}

// Arenagroup shared slab recycler. Arenas attached to a group release
// retired chunks here instead of to the OS, and later acquisitions
// are served from the size-classed bins when possible. All operations
// serialize on a single mutex; bins are unbounded, long-lived groups
// should Purge() periodically.
type Arenagroup struct {
	mu   sync.Mutex
	bins [Numbins][]Arenachunk

	logprefix string
}

// NewArenagroup create an empty recycler.
func NewArenagroup() *Arenagroup {
	return &Arenagroup{logprefix: "arenagroup"}
}

//---- operations

// Acquire a chunk of at least minbytes usable bytes, recycled when the
// matching bin has one, freshly mapped otherwise.
func (group *Arenagroup) Acquire(minbytes int64, guards, hugepages bool) Arenachunk {
	group.mu.Lock()
	idx := pickbin(minbytes)
	// a parked chunk can be smaller than its bin's class (or than an
	// oversize request in the last bin); such a chunk stays parked.
	if n := len(group.bins[idx]); n > 0 && group.bins[idx][n-1].size >= minbytes {
		c := group.bins[idx][n-1]
		group.bins[idx] = group.bins[idx][:n-1]
		group.mu.Unlock()
		c.offset = 0
		return c
	}
	group.mu.Unlock()
	log.Verbosef("%v bin %v empty, mapping %v\n",
		group.logprefix, idx, humanize.Bytes(uint64(maxint64(minbytes, binbytes[idx]))))
	return osalloc(maxint64(minbytes, binbytes[idx]), guards, hugepages)
}

// Release park a retired chunk in its size-class bin. The zero chunk
// is dropped silently.
func (group *Arenagroup) Release(c Arenachunk) {
	if c.base == nil || c.size == 0 {
		return
	}
	c.offset = 0
	group.mu.Lock()
	idx := pickbin(c.size)
	group.bins[idx] = append(group.bins[idx], c)
	group.mu.Unlock()
}

// Purge unmap every parked chunk.
func (group *Arenagroup) Purge() {
	group.mu.Lock()
	defer group.mu.Unlock()
	for i := range group.bins {
		for j := range group.bins[i] {
			osfree(&group.bins[i][j])
		}
		group.bins[i] = group.bins[i][:0]
	}
}

//---- statistics

// Binlens number of parked chunks per bin.
func (group *Arenagroup) Binlens() [Numbins]int {
	group.mu.Lock()
	defer group.mu.Unlock()
	var lens [Numbins]int
	for i := range group.bins {
		lens[i] = len(group.bins[i])
	}
	return lens
}

//---- local functions

// pickbin smallest bin whose class covers minbytes, clamped to the
// last bin.
func pickbin(minbytes int64) int {
	for i := 0; i < Numbins; i++ {
		if binbytes[i] >= minbytes {
			return i
		}
	}
	return Numbins - 1
}
