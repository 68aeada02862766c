package engine

import (
	"fmt"
	"syscall"
)

// Errno is an engine error code. Success is reported as a nil error,
// never as a zero Errno.
type Errno int

const (
	ErrIO          Errno = -5  // Error during device operation
	ErrCorrupt     Errno = -84 // Corrupted
	ErrNoEnt       Errno = -2  // No directory entry
	ErrExist       Errno = -17 // Entry already exists
	ErrNotDir      Errno = -20 // Entry is not a dir
	ErrIsDir       Errno = -21 // Entry is a dir
	ErrNotEmpty    Errno = -39 // Dir is not empty
	ErrBadF        Errno = -9  // Bad file number
	ErrFBig        Errno = -27 // File too large
	ErrInval       Errno = -22 // Invalid parameter
	ErrNoSpc       Errno = -28 // No space left on device
	ErrNoMem       Errno = -12 // No more memory available
	ErrNoAttr      Errno = -61 // No data/attr available
	ErrNameTooLong Errno = -36 // File name too long
)

var errnoNames = map[Errno]string{
	ErrIO:          "ERR_IO",
	ErrCorrupt:     "ERR_CORRUPT",
	ErrNoEnt:       "ERR_NOENT",
	ErrExist:       "ERR_EXIST",
	ErrNotDir:      "ERR_NOTDIR",
	ErrIsDir:       "ERR_ISDIR",
	ErrNotEmpty:    "ERR_NOTEMPTY",
	ErrBadF:        "ERR_BADF",
	ErrFBig:        "ERR_FBIG",
	ErrInval:       "ERR_INVAL",
	ErrNoSpc:       "ERR_NOSPC",
	ErrNoMem:       "ERR_NOMEM",
	ErrNoAttr:      "ERR_NOATTR",
	ErrNameTooLong: "ERR_NAMETOOLONG",
}

// Name returns the symbolic name of the code, e.g. "ERR_NOENT".
func (e Errno) Name() string {
	if n, ok := errnoNames[e]; ok {
		return n
	}
	return fmt.Sprintf("ERR_%d", int(e))
}

// FromErrno returns the engine code for a platform errno and whether the
// engine defines one.
func FromErrno(errno syscall.Errno) (Errno, bool) {
	e := Errno(-int(errno))
	_, ok := errnoNames[e]
	return e, ok
}

// Errno returns the platform error obtained by negating the code.
func (e Errno) Errno() syscall.Errno {
	return syscall.Errno(-e)
}

func (e Errno) Error() string {
	return "engine: " + e.Errno().Error()
}

// Is reports whether target matches the negated platform errno, so that
// errors.Is(ErrNoEnt, fs.ErrNotExist) holds.
func (e Errno) Is(target error) bool {
	switch t := target.(type) {
	case Errno:
		return t == e
	case syscall.Errno:
		return t == e.Errno()
	}
	return e.Errno().Is(target)
}
