// Package simfs is a small copy-on-write flash filesystem implementing
// engine.FS on top of an engine.BlockDevice.
//
// # On-flash layout
//
// Blocks 0 and 1 form a superblock pair. Each commit writes the whole metadata
// tree as one image (encoded with a codec.Codec, then compressed) into freshly
// allocated blocks and then rewrites the older superblock with the next
// sequence number. Mount picks the newest superblock whose header and image
// both verify, so an interrupted commit falls back to the previous state.
//
// File data lives in whole blocks that are also written copy-on-write when a
// dirty handle is synced or closed. Blocks are always erased before they are
// programmed and the allocator is a roaring bitmap of blocks in use.
//
// # Accounting
//
// FS.Size reports only blocks that hold file data, so a freshly formatted
// filesystem reports zero.
package simfs
