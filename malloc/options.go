package malloc

import "unsafe"

// PoolOptions debug hygiene and instrumentation knobs for Pool and
// Lockfreepool. The zero value is the minimal-overhead configuration.
type PoolOptions struct {
	// ZeroOnAlloc clears the whole cell before it is handed out.
	ZeroOnAlloc bool
	// PoisonOnFree fills the cell body, past the link word, with
	// PoisonByte when the cell is freed.
	PoisonOnFree bool
	// VerifyPoisonOnAlloc re-checks the poison pattern when a cell
	// comes back out of the free list. A mismatch means some caller
	// wrote through a stale pointer; that is fatal.
	VerifyPoisonOnAlloc bool
	// PoisonByte pattern used by PoisonOnFree, 0xA5 when left zero.
	PoisonByte byte
	// QuarantineSize > 0 parks freed cells in a FIFO of this length
	// before they rejoin the free list, bounding reuse rate.
	QuarantineSize int64
	// SampleHistograms records pool occupancy on every allocation.
	SampleHistograms bool
	// HistogramBuckets for the occupancy histogram, 64 when left zero.
	HistogramBuckets int64
	// OnAlloc runs after zeroing, on every successful allocation.
	OnAlloc func(ptr unsafe.Pointer, size int64)
	// OnFree runs before poisoning, on every deallocation.
	OnFree func(ptr unsafe.Pointer, size int64)
}

// DebugStrong preset with every hygiene knob on and a quarantine of
// `quarantine` cells.
func DebugStrong(quarantine int64) PoolOptions {
	return PoolOptions{
		ZeroOnAlloc:         true,
		PoisonOnFree:        true,
		VerifyPoisonOnAlloc: true,
		QuarantineSize:      quarantine,
		SampleHistograms:    true,
	}
}

// MinimalOverhead preset with no hygiene, no sampling.
func MinimalOverhead() PoolOptions {
	return PoolOptions{}
}

// Poolstats monotonic counters and gauges maintained by the pools.
// Each field in a snapshot is an individually consistent relaxed load;
// the snapshot as a whole is not an atomic cut.
type Poolstats struct {
	Allocs        uint64
	Frees         uint64
	Allocfailures uint64
	Casfailures   uint64 // lock-free pool only
	Inuse         int64
	Watermark     int64
}

// ArenaOptions growth and instrumentation knobs for Arena.
type ArenaOptions struct {
	// InitialChunkSize for the eagerly acquired first chunk, also the
	// floor for subsequent growth. 1 MiB when left zero.
	InitialChunkSize int64
	// GrowthFactor for geometric chunk growth, values <= 1 mean 2.0.
	GrowthFactor float64
	// MaxChunkSize caps a single chunk, 64 MiB when left zero.
	MaxChunkSize int64
	// GuardPages and PreferHuge are accepted and recorded; the
	// portable backing ignores both.
	GuardPages bool
	PreferHuge bool
	// UseCanaries frames every payload with CanarySize bytes of
	// CanaryByte on both sides. Canaries are written, never verified
	// on the hot path; external checkers read them.
	UseCanaries bool
	CanarySize  int64
	// CanaryByte pattern, 0xCA when left zero.
	CanaryByte byte
	// Journaling records {size, alignment, retaddr} for allocations of
	// at least JournalThreshold bytes into a fixed ring.
	Journaling       bool
	JournalThreshold int64
}

// Defaultarenaoptions 1 MiB initial chunk, 2x growth, 64 MiB cap.
func Defaultarenaoptions() ArenaOptions {
	return ArenaOptions{
		InitialChunkSize: Defaultchunksize,
		GrowthFactor:     2.0,
		MaxChunkSize:     Maxchunksize,
		CanaryByte:       Defaultcanarybyte,
	}
}

func (opts PoolOptions) normalize() PoolOptions {
	if opts.PoisonByte == 0 {
		opts.PoisonByte = Defaultpoisonbyte
	}
	if opts.HistogramBuckets <= 0 {
		opts.HistogramBuckets = Defaulthistbuckets
	}
	if opts.QuarantineSize < 0 {
		opts.QuarantineSize = 0
	}
	return opts
}

func (opts ArenaOptions) normalize() ArenaOptions {
	if opts.InitialChunkSize <= 0 {
		opts.InitialChunkSize = Defaultchunksize
	}
	if opts.GrowthFactor <= 1.0 {
		opts.GrowthFactor = 2.0
	}
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = Maxchunksize
	}
	if opts.CanaryByte == 0 {
		opts.CanaryByte = Defaultcanarybyte
	}
	if opts.CanarySize < 0 {
		opts.CanarySize = 0
	}
	if opts.JournalThreshold < 0 {
		opts.JournalThreshold = 0
	}
	return opts
}
