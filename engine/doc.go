// Package engine defines the contract between flashvfs and an embedded flash
// filesystem engine.
//
// An engine owns every on-flash structure: block allocation, wear management,
// copy-on-write metadata and corruption recovery. flashvfs only drives it
// through FS, File and Dir, and gives it raw storage through a BlockDevice.
//
// Engines report failures with the small Errno enumeration. An Errno is
// negative; negating it yields the matching POSIX errno, which is what the
// call surface returns to callers.
package engine
