package fdcache

import (
	"fmt"
	"testing"

	"github.com/hupe1980/flashvfs/internal/resource"
	"github.com/hupe1980/flashvfs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_FirstFitAndReuse(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Reset(MinSize))

	for want := range 3 {
		fd, e, err := tb.Allocate(fmt.Sprintf("/f%d", want))
		require.NoError(t, err)
		assert.Equal(t, want, fd)
		assert.Equal(t, want, e.FD())
	}

	require.NoError(t, tb.Free(1))
	fd, _, err := tb.Allocate("/again")
	require.NoError(t, err)
	assert.Equal(t, 1, fd, "closed descriptor is reused first")
	require.NoError(t, tb.Check())
}

func TestAllocate_GrowthKeepsDescriptors(t *testing.T) {
	tb := New()

	entries := map[int]*Entry{}
	for i := range 9 {
		fd, e, err := tb.Allocate(fmt.Sprintf("/f%d", i))
		require.NoError(t, err)
		entries[fd] = e
	}
	assert.Equal(t, 16, tb.Cap(), "0 -> 4 -> 8 -> 16")

	for fd, e := range entries {
		got, err := tb.Get(fd)
		require.NoError(t, err)
		assert.Same(t, e, got)
	}
	require.NoError(t, tb.Check())
}

func TestGet_Bounds(t *testing.T) {
	tb := New()
	require.NoError(t, tb.Reset(MinSize))
	_, _, err := tb.Allocate("/a")
	require.NoError(t, err)

	for _, fd := range []int{-1, 1, MinSize, MinSize + 1} {
		_, err := tb.Get(fd)
		assert.ErrorIs(t, err, ErrBadDescriptor, "fd %d", fd)
		assert.ErrorIs(t, tb.Free(fd), ErrBadDescriptor, "fd %d", fd)
	}
}

func TestInvariant_RandomOpenClose(t *testing.T) {
	rng := testutil.NewRNG(4711)
	tb := New(WithShrink(true))
	open := map[int]string{}

	for step := range 2000 {
		if len(open) == 0 || rng.Intn(3) > 0 {
			path := fmt.Sprintf("/p%d", step)
			fd, _, err := tb.Allocate(path)
			require.NoError(t, err)
			_, dup := open[fd]
			require.False(t, dup, "descriptor %d handed out twice", fd)
			open[fd] = path
		} else {
			victim := -1
			for fd := range open {
				victim = fd
				break
			}
			require.NoError(t, tb.Free(victim))
			delete(open, victim)
		}

		require.NoError(t, tb.Check())
		require.Equal(t, len(open), tb.Len())
	}

	for fd, path := range open {
		got, err := tb.FindByPath(path)
		require.NoError(t, err)
		assert.Equal(t, fd, got)
	}
}

func TestFullDrain_AnyOrder(t *testing.T) {
	rng := testutil.NewRNG(7)
	tb := New()

	const n = 37
	for i := range n {
		_, _, err := tb.Allocate(fmt.Sprintf("/f%d", i))
		require.NoError(t, err)
	}
	for _, fd := range rng.Perm(n) {
		require.NoError(t, tb.Free(fd))
	}

	assert.Zero(t, tb.Len())
	for fd := range tb.Cap() {
		_, err := tb.Get(fd)
		assert.ErrorIs(t, err, ErrBadDescriptor)
	}
	require.NoError(t, tb.Check())
}

func TestDrain(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	tb := New(WithResource(rc))
	require.NoError(t, tb.Reset(MinSize))

	for i := range 5 {
		_, _, err := tb.Allocate(fmt.Sprintf("/f%d", i))
		require.NoError(t, err)
	}
	assert.Positive(t, rc.MemoryUsage())

	drained := tb.Drain()
	require.Len(t, drained, 5)
	assert.Equal(t, "/f4", drained[0].Path, "newest first")
	assert.Zero(t, tb.Len())
	assert.Zero(t, tb.Cap())
	assert.Zero(t, rc.MemoryUsage())
	require.NoError(t, tb.Check())
}

func TestAllocate_OutOfMemoryRollsBack(t *testing.T) {
	// Four slots plus four records of "/fN".
	limit := int64(MinSize*slotBytes + 4*(recordBytes+3))

	t.Run("growth refused", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: limit})
		tb := New(WithResource(rc))
		for i := range 4 {
			_, _, err := tb.Allocate(fmt.Sprintf("/f%d", i))
			require.NoError(t, err)
		}

		_, _, err := tb.Allocate("/f4")
		assert.ErrorIs(t, err, ErrOutOfMemory)
		assert.Equal(t, MinSize, tb.Cap())
		assert.Equal(t, 4, tb.Len())
		assert.Equal(t, limit, rc.MemoryUsage())
		require.NoError(t, tb.Check())
	})

	t.Run("record refused after growth", func(t *testing.T) {
		rc := resource.NewController(resource.Config{MemoryLimitBytes: limit + MinSize*slotBytes})
		tb := New(WithResource(rc))
		for i := range 4 {
			_, _, err := tb.Allocate(fmt.Sprintf("/f%d", i))
			require.NoError(t, err)
		}

		_, _, err := tb.Allocate("/f4")
		assert.ErrorIs(t, err, ErrOutOfMemory)
		assert.Equal(t, MinSize, tb.Cap())
		assert.Equal(t, limit, rc.MemoryUsage())

		require.NoError(t, tb.Free(2))
		fd, _, err := tb.Allocate("/f5")
		require.NoError(t, err)
		assert.Equal(t, 2, fd)
	})
}

func TestFree_InconsistentListPanics(t *testing.T) {
	tb := New()
	_, _, err := tb.Allocate("/a")
	require.NoError(t, err)
	_, _, err = tb.Allocate("/b")
	require.NoError(t, err)

	// Detach the older record from the list behind the table's back.
	tb.head.next = nil
	require.Error(t, tb.Check())
	assert.Panics(t, func() { _ = tb.Free(0) })
}

func TestShrink_Hysteresis(t *testing.T) {
	tb := New(WithShrink(true))
	for i := range 16 {
		_, _, err := tb.Allocate(fmt.Sprintf("/f%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, 16, tb.Cap())

	for fd := 15; fd > 8; fd-- {
		require.NoError(t, tb.Free(fd))
		assert.Equal(t, 16, tb.Cap(), "7 trailing free slots are not enough")
	}
	require.NoError(t, tb.Free(8))
	assert.Equal(t, 12, tb.Cap())

	require.NoError(t, tb.Free(7))
	assert.Equal(t, 12, tb.Cap())
	require.NoError(t, tb.Free(6))
	assert.Equal(t, 10, tb.Cap())

	for fd := range 6 {
		_, err := tb.Get(fd)
		require.NoError(t, err)
	}
	require.NoError(t, tb.Check())

	// Without the policy the capacity never drops.
	fixed := New()
	for i := range 16 {
		_, _, err := fixed.Allocate(fmt.Sprintf("/f%d", i))
		require.NoError(t, err)
	}
	for fd := range 16 {
		require.NoError(t, fixed.Free(fd))
	}
	assert.Equal(t, 16, fixed.Cap())
}

func TestFindByPath(t *testing.T) {
	// "/Ez" and "/FY" share a djb2 hash.
	t.Run("full path", func(t *testing.T) {
		tb := New()
		fd, e, err := tb.Allocate("/Ez")
		require.NoError(t, err)
		assert.Equal(t, "/Ez", e.Path)

		got, err := tb.FindByPath("/Ez")
		require.NoError(t, err)
		assert.Equal(t, fd, got)

		_, err = tb.FindByPath("/FY")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("hash only may alias", func(t *testing.T) {
		tb := New(WithHashOnly(true))
		assert.True(t, tb.HashOnly())
		fd, e, err := tb.Allocate("/Ez")
		require.NoError(t, err)
		assert.Empty(t, e.Path)
		assert.Equal(t, e.Hash, tb.slots[fd].Hash)

		got, err := tb.FindByPath("/FY")
		require.NoError(t, err)
		assert.Equal(t, fd, got)

		_, err = tb.FindByPath("/other")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReset_RequiresEmpty(t *testing.T) {
	tb := New()
	_, _, err := tb.Allocate("/a")
	require.NoError(t, err)
	assert.Error(t, tb.Reset(MinSize))

	require.NoError(t, tb.Free(0))
	require.NoError(t, tb.Reset(MinSize))
	assert.Equal(t, MinSize, tb.Cap())
}
