package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(4711)
	b := NewRNG(4711)

	assert.Equal(t, a.Perm(16), b.Perm(16))
	assert.Equal(t, a.Bytes(8), b.Bytes(8))

	a.Reset()
	assert.Equal(t, NewRNG(4711).Uint64(), a.Uint64())
	assert.Equal(t, int64(4711), a.Seed())
}

func TestRNG_Paths(t *testing.T) {
	paths := NewRNG(1).Paths(100)
	require.Len(t, paths, 100)

	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate %s", p)
		seen[p] = true
		assert.Equal(t, byte('/'), p[0])
	}
}

func TestSplitChip(t *testing.T) {
	parts := SplitChip(8, "a", "b")
	require.Len(t, parts, 2)

	assert.Same(t, parts[0].Chip, parts[1].Chip)
	assert.Equal(t, int64(8*SectorSize), parts[1].Offset)
	for _, p := range parts {
		assert.NoError(t, p.Validate())
	}
	assert.NoError(t, MemoryPartition("c", 4).Validate())
}
