package cache

import "context"

// CacheKey identifies one flash block of one device.
type CacheKey struct {
	// Device names the block device (the partition label).
	Device string
	// Block is the engine block index within the device.
	Block uint32
}

// BlockCache is a byte-oriented cache for whole flash blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may retain b; callers must not
	// modify it afterwards.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Remove drops a single entry.
	Remove(key CacheKey)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
