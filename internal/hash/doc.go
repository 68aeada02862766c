// Package hash provides the small hashing helpers used across flashvfs.
//
// # CRC32-Castagnoli (CRC32C)
//
// On-flash structures written by the reference engine (superblocks and
// metadata images) are protected with CRC32C:
//
//	checksum := hash.CRC32C(data)
//
// For streaming checksums:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
//
// # DJB2
//
// Open-file records carry the djb2 hash of their path so that busy-path checks
// can reject most candidates with a single integer compare:
//
//	h := hash.DJB2("/data/log.txt")
package hash
