// Package fdcache maps small integer file descriptors to open-file records.
//
// The table is a dense slice indexed by descriptor plus an intrusive singly
// linked list of every open record, newest first. Descriptor lookup on the
// hot path (read, write, seek) is a bounds check and a slice index. The list
// serves the two cold paths: busy-path checks by name and bulk teardown on
// unmount.
//
// Allocation is first-fit, so a closed descriptor is handed out again by the
// next open. When the table is full it grows by GrowthFactor, never renumbering
// existing descriptors. Removing a record walks the list to find its
// predecessor, which costs O(open files).
//
// # Path identity
//
// Records carry the djb2 hash of their path. By default the full path is kept
// as well and compared on every hash match. In hash-only mode the path is not
// stored at all and two different paths with the same hash are treated as the
// same file: lookups may report false positives, never false negatives.
//
// # Concurrency
//
// A Table is not synchronized. The owning volume holds its lock across every
// call.
package fdcache
