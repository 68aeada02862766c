package simfs

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/flashvfs/engine"
)

// superblockPair holds the two reserved superblock blocks.
var superblockPair = [2]uint32{0, 1}

// allocator hands out free blocks. The cursor rotates so that successive
// commits spread erases across the device.
type allocator struct {
	used   *roaring.Bitmap
	count  uint32
	cursor uint32
}

func newAllocator(count uint32) *allocator {
	a := &allocator{used: roaring.New(), count: count, cursor: 2}
	a.reset()
	return a
}

func (a *allocator) reset() {
	a.used.Clear()
	a.used.AddMany(superblockPair[:])
}

func (a *allocator) mark(blocks []uint32) {
	a.used.AddMany(blocks)
}

func (a *allocator) free(blocks []uint32) {
	for _, b := range blocks {
		a.used.Remove(b)
	}
}

// alloc reserves n free blocks or none at all.
func (a *allocator) alloc(n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	if uint64(a.count)-a.used.GetCardinality() < uint64(n) {
		return nil, engine.ErrNoSpc
	}

	out := make([]uint32, 0, n)
	for i := uint32(0); i < a.count && len(out) < n; i++ {
		b := (a.cursor + i) % a.count
		if !a.used.Contains(b) {
			out = append(out, b)
		}
	}
	a.cursor = (out[len(out)-1] + 1) % a.count
	a.used.AddMany(out)
	return out, nil
}
