package malloc

import "sync"
import "testing"

import "github.com/stretchr/testify/require"

func TestLocalarena(t *testing.T) {
	local := NewLocalarena(Defaultarenaoptions())
	defer local.Purge()

	arena := local.Instance()
	require.NotNil(t, arena)
	require.EqualValues(t, 1, arena.Chunkcount())
	require.NotNil(t, arena.group)

	arena.Alloc(1024, 8)
	local.Retire(arena)

	// the retired handle is reused, its chunks went to the group.
	again := local.Instance()
	require.Same(t, arena, again)
	require.EqualValues(t, 0, again.Chunkcount())
	parked := 0
	for _, n := range local.Group().Binlens() {
		parked += n
	}
	require.Equal(t, 1, parked)

	// regrowth pulls the parked chunk back out.
	again.Alloc(1024, 8)
	require.EqualValues(t, 1, again.Chunkcount())
	parked = 0
	for _, n := range local.Group().Binlens() {
		parked += n
	}
	require.Equal(t, 0, parked)
	local.Retire(again)
}

func TestLocalarenawithoptions(t *testing.T) {
	local := NewLocalarena(Defaultarenaoptions())
	defer local.Purge()

	local.Retire(local.Instance())

	opts := Defaultarenaoptions()
	opts.InitialChunkSize = 32 * 1024
	opts.UseCanaries, opts.CanarySize = true, 16
	local.Withoptions(opts)

	arena := local.Instance()
	require.True(t, arena.Options().UseCanaries)
	require.EqualValues(t, 32*1024, arena.Options().InitialChunkSize)
	local.Retire(arena)

	local.Retire(nil) // no-op
}

func TestLocalarenaconcur(t *testing.T) {
	local := NewLocalarena(Defaultarenaoptions())
	defer local.Purge()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				arena := local.Instance()
				for j := 0; j < 100; j++ {
					arena.Alloc(256, 8)
				}
				arena.Reset()
				for j := 0; j < 100; j++ {
					arena.Alloc(256, 8)
				}
				local.Retire(arena)
			}
		}()
	}
	wg.Wait()
}
