// Package malloc supplies custom memory allocators for
// latency-sensitive, high-concurrency workloads, with a limited
// scope:
//
//   - Pool and Arena are not thread safe; Lockfreepool and Arenagroup
//     are.
//   - Pools hand out fixed-size cells from a single contiguous block;
//     exhaustion returns nil, the caller decides policy.
//   - Arenas bump-allocate from chunks acquired in geometrically
//     growing sizes and free everything at once on Reset or Release;
//     there is no per-object free.
//   - Retired arena chunks can be parked in an Arenagroup, a
//     size-classed recycler shared across arenas.
//   - Memory handed out is always aligned to Scalaralign; arenas
//     honour any stronger power-of-two alignment requested.
//   - Debug hygiene (zero-on-alloc, poison-on-free with verification,
//     FIFO quarantine, occupancy histograms, canary framing, an
//     allocation journal) is off by default and opt-in per allocator.
//
// Corruption found by the hygiene machinery (poison mismatch, foreign
// or misaligned pointers fed to a pool) is a programmer error and
// panics; the hot paths otherwise never fail except by returning nil.
package malloc
