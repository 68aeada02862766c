package flashvfs

import (
	"errors"
	"io/fs"
	"syscall"

	"github.com/hupe1980/flashvfs/engine"
)

var (
	// ErrCapacityExceeded is returned when every registry slot is taken.
	ErrCapacityExceeded = errors.New("flashvfs: volume registry is full")
	// ErrTooManyOpenFiles is returned when a volume has no descriptor left.
	ErrTooManyOpenFiles error = syscall.ENFILE
	// ErrOutOfMemory is returned when the memory budget refuses an allocation.
	ErrOutOfMemory error = syscall.ENOMEM

	// ErrAlreadyMounted is returned when a label or mount path is in use.
	ErrAlreadyMounted = errors.New("flashvfs: volume already registered")
	// ErrNotFound is returned for unknown labels, partitions and paths.
	ErrNotFound = errors.New("flashvfs: not found")
	// ErrBadDescriptor is returned for descriptors that are not open.
	ErrBadDescriptor error = syscall.EBADF

	// ErrBusy is returned when a path that has an open descriptor is
	// unlinked or renamed.
	ErrBusy error = syscall.EBUSY
	// ErrIsDirectory is returned when unlinking a directory.
	ErrIsDirectory error = syscall.EISDIR
	// ErrNotDirectory is returned when removing a file with Rmdir.
	ErrNotDirectory error = syscall.ENOTDIR
	// ErrNotMounted is returned for calls on an unmounted or unregistered volume.
	ErrNotMounted = errors.New("flashvfs: volume not mounted")
	// ErrNotSupported is returned for Fstat on hash-only volumes.
	ErrNotSupported error = syscall.ENOTSUP
	// ErrInvalidArgument is returned for bad configuration and arguments.
	ErrInvalidArgument error = syscall.EINVAL

	// ErrIO is returned for failures of the flash backend.
	ErrIO error = syscall.EIO
)

// translateError turns err into the *fs.PathError returned by the call
// surface. Engine codes become the matching syscall.Errno, so callers can use
// errors.Is against fs.ErrNotExist and friends.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var pe *fs.PathError
	if errors.As(err, &pe) {
		return err
	}

	var code engine.Errno
	if errors.As(err, &code) {
		return &fs.PathError{Op: op, Path: path, Err: code.Errno()}
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}

// errnoName returns the symbolic engine name of the code carried by err, or
// "" when there is none.
func errnoName(err error) string {
	var code engine.Errno
	if errors.As(err, &code) {
		return code.Name()
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if code, ok := engine.FromErrno(errno); ok {
			return code.Name()
		}
	}
	return ""
}
