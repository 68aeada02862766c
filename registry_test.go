package flashvfs

import (
	"bytes"
	"os"
	"testing"

	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/flash"
	"github.com/hupe1980/flashvfs/internal/fdcache"
	"github.com/hupe1980/flashvfs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPartition(label string) flash.Partition {
	return testutil.MemoryPartition(label, 32)
}

func TestRegistry_RegisterLookupUnregister(t *testing.T) {
	r := New(WithPartition(newPartition("data")))
	defer func() { _ = r.Close() }()

	v, err := r.Register(VolumeConfig{Label: "data", FormatIfMountFailed: true})
	require.NoError(t, err)
	assert.Equal(t, "data", v.Label())
	assert.True(t, r.Mounted("data"))

	idx, err := r.Lookup("data")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	got, err := r.Volume("data")
	require.NoError(t, err)
	assert.Same(t, v, got)

	fd, err := v.Open("/f", os.O_WRONLY|os.O_CREATE, 0)
	require.NoError(t, err)

	require.NoError(t, r.Unregister("data"))
	assert.False(t, r.Mounted("data"))
	assert.False(t, v.Mounted())
	assert.Zero(t, r.MemoryUsage())

	_, err = r.Lookup("data")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Unregister("data"), ErrNotMounted)

	_, err = v.Write(fd, []byte("x"))
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestRegistry_Capacity(t *testing.T) {
	parts := testutil.SplitChip(16, "a", "b", "c")
	r := New(WithMaxVolumes(2), WithPartition(parts[0]), WithPartition(parts[1]), WithPartition(parts[2]))
	defer func() { _ = r.Close() }()

	for _, l := range []string{"a", "b"} {
		_, err := r.Register(VolumeConfig{Label: l, FormatIfMountFailed: true})
		require.NoError(t, err)
	}
	_, err := r.Register(VolumeConfig{Label: "c", FormatIfMountFailed: true})
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	require.NoError(t, r.Unregister("a"))
	_, err = r.Register(VolumeConfig{Label: "c", FormatIfMountFailed: true})
	require.NoError(t, err)

	idx, err := r.Lookup("c")
	require.NoError(t, err)
	assert.Equal(t, 0, idx, "freed slot is reused")
}

func TestRegistry_RegisterValidation(t *testing.T) {
	parts := testutil.SplitChip(16, "a", "b")
	r := New(WithPartition(parts[0]), WithPartition(parts[1]))
	defer func() { _ = r.Close() }()

	_, err := r.Register(VolumeConfig{Label: "a", BasePath: "/a", FormatIfMountFailed: true})
	require.NoError(t, err)

	_, err = r.Register(VolumeConfig{Label: "a", FormatIfMountFailed: true})
	assert.ErrorIs(t, err, ErrAlreadyMounted, "label in use")

	_, err = r.Register(VolumeConfig{Label: "b", BasePath: "/a", FormatIfMountFailed: true})
	assert.ErrorIs(t, err, ErrAlreadyMounted, "base path in use")

	_, err = r.Register(VolumeConfig{Label: "zz"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Register(VolumeConfig{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = r.Register(VolumeConfig{Label: "b", ProgSize: 128})
	assert.ErrorIs(t, err, ErrInvalidArgument, "prog size below the page size")
}

func TestRegistry_MountWithoutFormatFails(t *testing.T) {
	r := New(WithPartition(newPartition("blank")))
	defer func() { _ = r.Close() }()

	_, err := r.Register(VolumeConfig{Label: "blank"})
	assert.ErrorIs(t, err, engine.ErrCorrupt)
	assert.False(t, r.Mounted("blank"))

	_, err = r.Lookup("blank")
	assert.ErrorIs(t, err, ErrNotFound, "failed init frees the slot")
}

func TestRegistry_PersistsAcrossRegistrations(t *testing.T) {
	part := newPartition("data")
	r := New(WithPartition(part))
	defer func() { _ = r.Close() }()

	v, err := r.Register(VolumeConfig{Label: "data", FormatIfMountFailed: true})
	require.NoError(t, err)

	// Left open on purpose; unregistering flushes it.
	fd, err := v.Open("/keep", os.O_WRONLY|os.O_CREATE, 0)
	require.NoError(t, err)
	_, err = v.Write(fd, []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, r.Unregister("data"))

	v, err = r.Register(VolumeConfig{Label: "data"})
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), readFile(t, v, "/keep"))
}

func TestRegistry_FormatMounted(t *testing.T) {
	r, v := newTestVolume(t, VolumeConfig{})
	writeFile(t, v, "/old", []byte("old"))

	fd, err := v.Open("/open", os.O_WRONLY|os.O_CREATE, 0)
	require.NoError(t, err)
	for _, p := range []string{"/1", "/2", "/3", "/4"} {
		_, err := v.Open(p, os.O_WRONLY|os.O_CREATE, 0)
		require.NoError(t, err)
	}
	require.Greater(t, v.fds.Cap(), fdcache.MinSize)

	require.NoError(t, r.Format("data"))
	assert.True(t, v.Mounted())
	assert.Zero(t, v.fds.Len())
	assert.Equal(t, fdcache.MinSize, v.fds.Cap())

	_, err = v.Stat("/old")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, v.Close(fd), ErrBadDescriptor)

	total, used, err := r.Info("data")
	require.NoError(t, err)
	assert.Equal(t, int64(64*testutil.SectorSize), total)
	assert.Zero(t, used)
}

func TestRegistry_FormatUnregistered(t *testing.T) {
	r := New(WithPartition(newPartition("spare")))
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Format("spare"))
	assert.False(t, r.Mounted("spare"), "format does not register")

	_, err := r.Register(VolumeConfig{Label: "spare"})
	require.NoError(t, err, "formatted partition mounts without FormatIfMountFailed")

	assert.ErrorIs(t, r.Format("unknown"), ErrNotFound)
}

func TestRegistry_FormatDontMount(t *testing.T) {
	r := New(WithPartition(newPartition("idle")))
	defer func() { _ = r.Close() }()

	v, err := r.Register(VolumeConfig{Label: "idle", DontMount: true})
	require.NoError(t, err)
	require.NoError(t, r.Format("idle"))
	assert.False(t, v.Mounted(), "an unmounted volume stays unmounted")

	_, _, err = r.Info("idle")
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestRegistry_Info(t *testing.T) {
	r, v := newTestVolume(t, VolumeConfig{})

	total, used, err := r.Info("data")
	require.NoError(t, err)
	assert.Equal(t, int64(64*testutil.SectorSize), total)
	assert.Zero(t, used)

	writeFile(t, v, "/big", bytes.Repeat([]byte{0xA5}, testutil.SectorSize+1))
	_, used, err = r.Info("data")
	require.NoError(t, err)
	assert.Equal(t, int64(2*testutil.SectorSize), used)

	_, _, err = r.Info("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Resolve(t *testing.T) {
	parts := testutil.SplitChip(16, "data", "logs")
	r := New(WithPartition(parts[0]), WithPartition(parts[1]))
	defer func() { _ = r.Close() }()

	data, err := r.Register(VolumeConfig{Label: "data", BasePath: "/data", FormatIfMountFailed: true})
	require.NoError(t, err)
	logs, err := r.Register(VolumeConfig{Label: "logs", BasePath: "/data/logs", FormatIfMountFailed: true})
	require.NoError(t, err)

	tests := []struct {
		path string
		vol  *Volume
		rel  string
	}{
		{"/data", data, "/"},
		{"/data/x.txt", data, "/x.txt"},
		{"/data/logs", logs, "/"},
		{"/data/logs/today", logs, "/today"},
		{"/data/logsx", data, "/logsx"},
	}
	for _, tt := range tests {
		v, rel, err := r.Resolve(tt.path)
		require.NoError(t, err, tt.path)
		assert.Same(t, tt.vol, v, tt.path)
		assert.Equal(t, tt.rel, rel, tt.path)
	}

	for _, p := range []string{"/database", "/other", "/"} {
		_, _, err := r.Resolve(p)
		assert.ErrorIs(t, err, ErrNotFound, p)
	}
}

func TestRegistry_Close(t *testing.T) {
	parts := testutil.SplitChip(16, "a", "b")
	r := New(WithPartition(parts[0]), WithPartition(parts[1]))

	vols := make([]*Volume, 0, 2)
	for _, l := range []string{"a", "b"} {
		v, err := r.Register(VolumeConfig{Label: l, FormatIfMountFailed: true})
		require.NoError(t, err)
		fd, err := v.Open("/f", os.O_WRONLY|os.O_CREATE, 0)
		require.NoError(t, err)
		_, err = v.Write(fd, []byte(l))
		require.NoError(t, err)
		vols = append(vols, v)
	}

	require.NoError(t, r.Close())
	for _, v := range vols {
		assert.False(t, v.Mounted())
	}

	r2 := New(WithPartition(parts[0]), WithPartition(parts[1]))
	defer func() { _ = r2.Close() }()
	for _, l := range []string{"a", "b"} {
		v, err := r2.Register(VolumeConfig{Label: l})
		require.NoError(t, err)
		assert.Equal(t, []byte(l), readFile(t, v, "/f"))
	}
}

func TestRegistry_MemoryLimit(t *testing.T) {
	// Room for the initial descriptor slots but not for a record.
	r, v := newTestVolume(t, VolumeConfig{}, WithMemoryLimit(40))
	assert.Equal(t, int64(fdcache.MinSize*8), r.MemoryUsage())

	_, err := v.Open("/f", os.O_WRONLY|os.O_CREATE, 0)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Zero(t, v.fds.Len())
	require.NoError(t, v.fds.Check())
}

func TestRegistry_ReadCacheAndIOLimit(t *testing.T) {
	_, v := newTestVolume(t, VolumeConfig{ReadCacheBytes: 16 * testutil.SectorSize}, WithIOLimit(1<<30))
	writeFile(t, v, "/f", []byte("cached"))

	for range 3 {
		assert.Equal(t, []byte("cached"), readFile(t, v, "/f"))
	}
	assert.Positive(t, v.DeviceStats().CacheHits)
}

func TestRegistry_ShrinkDescriptors(t *testing.T) {
	_, v := newTestVolume(t, VolumeConfig{ShrinkDescriptors: true})

	var fds []int
	for i := range 9 {
		fd, err := v.Open("/f"+string(rune('a'+i)), os.O_WRONLY|os.O_CREATE, 0)
		require.NoError(t, err)
		fds = append(fds, fd)
	}
	assert.Equal(t, 16, v.fds.Cap())

	for i := len(fds) - 1; i >= 0; i-- {
		require.NoError(t, v.Close(fds[i]))
	}
	assert.Less(t, v.fds.Cap(), 16)
	require.NoError(t, v.fds.Check())
}

func TestDefault(t *testing.T) {
	r := Default()
	assert.Same(t, r, Default())

	r.AddPartition(newPartition("default-test"))
	_, err := r.Register(VolumeConfig{Label: "default-test", FormatIfMountFailed: true})
	require.NoError(t, err)
	require.NoError(t, r.Unregister("default-test"))
}
