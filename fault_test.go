package flashvfs

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flashvfs/flash"
	"github.com/hupe1980/flashvfs/testutil"
)

func newFaultyVolume(t *testing.T, opts ...Option) (*Registry, *Volume, *flash.FaultyChip) {
	t.Helper()
	chip := flash.NewFaultyChip(flash.NewMemoryChip(64*testutil.SectorSize, testutil.SectorSize, testutil.PageSize))
	part := flash.Partition{Label: "data", Chip: chip, Size: chip.Size()}

	r := New(append([]Option{WithPartition(part)}, opts...)...)
	t.Cleanup(func() { _ = r.Close() })

	v, err := r.Register(VolumeConfig{Label: "data", FormatIfMountFailed: true})
	require.NoError(t, err)
	return r, v, chip
}

func TestFault_WriteFailureIsEIO(t *testing.T) {
	var buf bytes.Buffer
	_, v, chip := newFaultyVolume(t, WithLogger(NewLogger(slog.NewJSONHandler(&buf, nil))))
	chip.SetFault(flash.Fault{FailAfterBytes: 0})

	fd, err := v.Open("/f", os.O_WRONLY|os.O_CREATE, 0)
	if err == nil {
		_, werr := v.Write(fd, bytes.Repeat([]byte{1}, 2*testutil.SectorSize))
		err = errors.Join(werr, v.Close(fd))
	}
	assert.ErrorIs(t, err, ErrIO)
	assert.Zero(t, v.fds.Len(), "descriptor is released")
	require.NoError(t, v.fds.Check())
	assert.Contains(t, buf.String(), flash.ErrInjected.Error())
}

func TestFault_ReadFailureIsEIO(t *testing.T) {
	_, v, chip := newFaultyVolume(t)
	writeFile(t, v, "/f", bytes.Repeat([]byte{7}, 100))
	chip.SetFault(flash.Fault{FailAfterBytes: -1, FailReads: true})

	fd, err := v.Open("/f", os.O_RDONLY, 0)
	if err == nil {
		_, err = v.Read(fd, make([]byte, 100))
		require.NoError(t, v.Close(fd))
	}
	assert.ErrorIs(t, err, ErrIO)
}

func TestFault_FormatEraseFailure(t *testing.T) {
	r, v, chip := newFaultyVolume(t)
	chip.SetFault(flash.Fault{FailAfterBytes: -1, FailErase: true})

	err := r.Format("data")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, flash.ErrInjected)
	assert.False(t, v.Mounted())

	chip.SetFault(flash.Fault{FailAfterBytes: -1})
	require.NoError(t, r.Format("data"))
	require.NoError(t, r.Unregister("data"))
	_, err = r.Register(VolumeConfig{Label: "data"})
	require.NoError(t, err)
}
