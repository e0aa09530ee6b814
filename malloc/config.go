package malloc

import s "github.com/bnclabs/gosettings"

// Scalaralign maximum scalar alignment honoured by this package.
// Every pool cell and every arena block header starts on a
// Scalaralign boundary.
const Scalaralign = int64(16)

// Ptrsize width of the in-cell free-list link word.
const Ptrsize = int64(8)

// Defaultchunksize initial arena chunk when left unconfigured.
const Defaultchunksize = int64(1024 * 1024)

// Maxchunksize cap on a single arena chunk when left unconfigured.
const Maxchunksize = int64(64 * 1024 * 1024)

// Defaultpoisonbyte pattern written into freed cells.
const Defaultpoisonbyte = byte(0xA5)

// Defaultcanarybyte pattern framing arena payloads.
const Defaultcanarybyte = byte(0xCA)

// Defaulthistbuckets buckets in the pool occupancy histogram.
const Defaulthistbuckets = int64(64)

// Journalsize fixed capacity of the arena journal ring.
const Journalsize = int64(1024)

// Pool configurable parameters and default values.
//
// "pool.zero_on_alloc" (bool, default: false)
//		Clear the whole cell before handing it out.
//
// "pool.poison_on_free" (bool, default: false)
//		Fill the cell body with pool.poison_byte on free.
//
// "pool.verify_poison_on_alloc" (bool, default: false)
//		Verify the poison pattern on the allocation path, a mismatch
//		is fatal.
//
// "pool.poison_byte" (int64, default: 0xA5)
//
// "pool.quarantine_size" (int64, default: 0)
//		Number of freed cells parked in FIFO quarantine before they
//		rejoin the free list.
//
// "pool.sample_histograms" (bool, default: false)
//		Record pool occupancy on every allocation.
//
// "pool.histogram_buckets" (int64, default: 64)
func Defaultpoolsettings() s.Settings {
	return s.Settings{
		"pool.zero_on_alloc":          false,
		"pool.poison_on_free":         false,
		"pool.verify_poison_on_alloc": false,
		"pool.poison_byte":            int64(Defaultpoisonbyte),
		"pool.quarantine_size":        int64(0),
		"pool.sample_histograms":      false,
		"pool.histogram_buckets":      Defaulthistbuckets,
	}
}

// Arena configurable parameters and default values.
//
// "arena.initial_chunk_size" (int64, default: 1 MiB)
//
// "arena.growth_factor" (float64, default: 2.0)
//		Geometric growth applied after every slow-path chunk
//		acquisition.
//
// "arena.max_chunk_size" (int64, default: 64 MiB)
//
// "arena.guard_pages" (bool, default: false)
//		Accepted, ignored by the portable backing.
//
// "arena.prefer_huge" (bool, default: false)
//		Accepted, ignored by the portable backing.
//
// "arena.use_canaries" (bool, default: false)
//
// "arena.canary_size" (int64, default: 0)
//
// "arena.canary_byte" (int64, default: 0xCA)
//
// "arena.journaling" (bool, default: false)
//
// "arena.journal_threshold" (int64, default: 0)
//		Only allocations of at least this many bytes are journaled.
func Defaultarenasettings() s.Settings {
	return s.Settings{
		"arena.initial_chunk_size": Defaultchunksize,
		"arena.growth_factor":      float64(2.0),
		"arena.max_chunk_size":     Maxchunksize,
		"arena.guard_pages":        false,
		"arena.prefer_huge":        false,
		"arena.use_canaries":       false,
		"arena.canary_size":        int64(0),
		"arena.canary_byte":        int64(Defaultcanarybyte),
		"arena.journaling":         false,
		"arena.journal_threshold":  int64(0),
	}
}

// Pooloptionsfrom build PoolOptions from a settings map, missing keys
// take their defaults. Callback hooks cannot be expressed in settings
// and are left nil.
func Pooloptionsfrom(setts s.Settings) PoolOptions {
	setts = make(s.Settings).Mixin(Defaultpoolsettings(), setts)
	return PoolOptions{
		ZeroOnAlloc:         setts.Bool("pool.zero_on_alloc"),
		PoisonOnFree:        setts.Bool("pool.poison_on_free"),
		VerifyPoisonOnAlloc: setts.Bool("pool.verify_poison_on_alloc"),
		PoisonByte:          byte(setts.Int64("pool.poison_byte")),
		QuarantineSize:      setts.Int64("pool.quarantine_size"),
		SampleHistograms:    setts.Bool("pool.sample_histograms"),
		HistogramBuckets:    setts.Int64("pool.histogram_buckets"),
	}
}

// Arenaoptionsfrom build ArenaOptions from a settings map, missing
// keys take their defaults.
func Arenaoptionsfrom(setts s.Settings) ArenaOptions {
	setts = make(s.Settings).Mixin(Defaultarenasettings(), setts)
	return ArenaOptions{
		InitialChunkSize: setts.Int64("arena.initial_chunk_size"),
		GrowthFactor:     setts.Float64("arena.growth_factor"),
		MaxChunkSize:     setts.Int64("arena.max_chunk_size"),
		GuardPages:       setts.Bool("arena.guard_pages"),
		PreferHuge:       setts.Bool("arena.prefer_huge"),
		UseCanaries:      setts.Bool("arena.use_canaries"),
		CanarySize:       setts.Int64("arena.canary_size"),
		CanaryByte:       byte(setts.Int64("arena.canary_byte")),
		Journaling:       setts.Bool("arena.journaling"),
		JournalThreshold: setts.Int64("arena.journal_threshold"),
	}
}
