// Package mmap provides shared read-write memory mappings of regular files.
//
// A file-backed flash chip maps its image once and then serves reads,
// programs and erases as plain slice operations; the kernel writes dirty
// pages back to the file.
//
// # Usage
//
//	m, err := mmap.OpenFile("flash.img", 4<<20)
//	if err != nil { ... }
//	defer m.Close()
//
//	data := m.Bytes()
//	m.Advise(mmap.AccessRandom)
//	m.Flush()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2), msync(2) and madvise(2)
//   - Windows: CreateFileMapping/MapViewOfFile and FlushViewOfFile (advice is a no-op)
//
// # Thread Safety
//
// Close is idempotent and protected by an atomic flag. Callers serialize
// overlapping writes and must not touch Bytes() after Close returns.
package mmap
