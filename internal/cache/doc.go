// Package cache provides an LRU cache for whole flash blocks.
//
// The block device adapter consults the cache before reading from the chip
// and invalidates a block whenever it is programmed or erased, so cached
// data never diverges from flash. Memory is charged to the shared
// resource.Controller; when the global budget is exhausted new blocks are
// simply not cached.
package cache
