package malloc

import "sync"

// Localarena hands out per-worker arenas. Go has no thread-local
// storage, so the handle keeps an idle LIFO of released arenas behind
// a mutex: a worker takes an arena with Instance, owns it exclusively
// while it works, and gives it back with Retire. Every arena is
// attached to one shared Arenagroup, so Retire returns chunks to the
// group's bins rather than to the OS and the next Instance regrows
// from recycled slabs.
type Localarena struct {
	mu    sync.Mutex
	opts  ArenaOptions
	group *Arenagroup
	idle  []*Arena
}

// NewLocalarena create a handle whose arenas run with opts.
func NewLocalarena(opts ArenaOptions) *Localarena {
	return &Localarena{opts: opts.normalize(), group: NewArenagroup()}
}

// Instance take an arena for this worker, lazily constructed when the
// idle list is empty. The caller owns it until Retire.
func (local *Localarena) Instance() *Arena {
	local.mu.Lock()
	if n := len(local.idle); n > 0 {
		arena := local.idle[n-1]
		local.idle = local.idle[:n-1]
		local.mu.Unlock()
		return arena
	}
	opts := local.opts
	local.mu.Unlock()
	arena := NewArena(opts)
	arena.Attachgroup(local.group)
	return arena
}

// Withoptions replace the options for subsequently constructed
// arenas and drop the idle list, releasing idle chunks to the group.
func (local *Localarena) Withoptions(opts ArenaOptions) {
	local.mu.Lock()
	idle := local.idle
	local.opts, local.idle = opts.normalize(), nil
	local.mu.Unlock()
	for _, arena := range idle {
		arena.Release()
	}
}

// Retire give the arena back: its chunks go to the shared group and
// the empty handle joins the idle list for the next Instance.
func (local *Localarena) Retire(arena *Arena) {
	if arena == nil {
		return
	}
	arena.Release()
	local.mu.Lock()
	local.idle = append(local.idle, arena)
	local.mu.Unlock()
}

// Group the shared slab recycler behind this handle.
func (local *Localarena) Group() *Arenagroup {
	return local.group
}

// Purge unmap every chunk parked in the shared group.
func (local *Localarena) Purge() {
	local.group.Purge()
}
