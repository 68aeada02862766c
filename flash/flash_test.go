package flash

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChipSemantics(t *testing.T, c Region) {
	t.Helper()
	ctx := t.Context()

	buf := make([]byte, 8)
	_, err := c.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{ErasedByte}, 8), buf)

	_, err = c.WriteAt(ctx, []byte{0x0F, 0xF0}, 4)
	require.NoError(t, err)
	// Programming only clears bits.
	_, err = c.WriteAt(ctx, []byte{0xFF, 0x3C}, 4)
	require.NoError(t, err)

	_, err = c.ReadAt(ctx, buf[:2], 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0F, 0x30}, buf[:2])

	require.NoError(t, c.Erase(ctx, 0, 4096))
	_, err = c.ReadAt(ctx, buf[:2], 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{ErasedByte, ErasedByte}, buf[:2])

	assert.ErrorIs(t, c.Erase(ctx, 1, 4096), ErrUnaligned)
	assert.ErrorIs(t, c.Erase(ctx, 0, c.Size()+4096), ErrOutOfRange)
	_, err = c.ReadAt(ctx, buf, c.Size()-4)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = c.WriteAt(ctx, buf, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMemoryChip(t *testing.T) {
	c := NewMemoryChip(16*4096, 4096, 256)
	testChipSemantics(t, c)

	assert.Equal(t, int64(4096), SectorSize(c, 1))
	assert.Equal(t, int64(256), PageSize(c))
	assert.Equal(t, int64(1), c.Stats().Erases)
}

func TestFileChip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")

	c, err := OpenFileChip(path, 16*4096, 4096, 256)
	require.NoError(t, err)
	testChipSemantics(t, c)

	_, err = c.WriteAt(t.Context(), []byte("persist"), 8192)
	require.NoError(t, err)
	require.NoError(t, c.Sync())
	require.NoError(t, c.Close())

	c, err = OpenFileChip(path, 16*4096, 4096, 256)
	require.NoError(t, err)
	defer c.Close()

	buf := make([]byte, 7)
	_, err = c.ReadAt(t.Context(), buf, 8192)
	require.NoError(t, err)
	assert.Equal(t, "persist", string(buf))
}

func TestPartition_Validate(t *testing.T) {
	chip := NewMemoryChip(8*4096, 4096, 256)

	tests := []struct {
		name string
		p    Partition
		ok   bool
	}{
		{"valid", Partition{Label: "a", Chip: chip, Offset: 4096, Size: 4 * 4096}, true},
		{"no label", Partition{Chip: chip, Size: 4096}, false},
		{"no chip", Partition{Label: "a", Size: 4096}, false},
		{"too large", Partition{Label: "a", Chip: chip, Offset: 4096, Size: 8 * 4096}, false},
		{"unaligned", Partition{Label: "a", Chip: chip, Offset: 100, Size: 4096}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPartition)
			}
		})
	}
}

func TestPartition_EraseAll(t *testing.T) {
	chip := NewMemoryChip(4*4096, 4096, 256)
	_, err := chip.WriteAt(t.Context(), []byte{0, 0}, 4096)
	require.NoError(t, err)
	_, err = chip.WriteAt(t.Context(), []byte{0}, 0)
	require.NoError(t, err)

	p := Partition{Label: "data", Chip: chip, Offset: 4096, Size: 2 * 4096}
	require.NoError(t, p.EraseAll(t.Context()))

	buf := make([]byte, 1)
	_, _ = chip.ReadAt(t.Context(), buf, 4096)
	assert.Equal(t, byte(ErasedByte), buf[0])
	// Outside the partition is untouched.
	_, _ = chip.ReadAt(t.Context(), buf, 0)
	assert.Equal(t, byte(0), buf[0])
}
