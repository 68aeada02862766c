package flashvfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/internal/fdcache"
)

// FileStat is returned by FileInfo.Sys for files of a volume.
type FileStat struct {
	// BlockSize is the erase block size of the volume.
	BlockSize int64
}

type fileInfo struct {
	name    string
	size    int64
	dir     bool
	modTime time.Time
	sys     FileStat
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.dir }
func (fi *fileInfo) Sys() any           { return fi.sys }

func (fi *fileInfo) Mode() fs.FileMode {
	if fi.dir {
		return fs.ModeDir | 0o777
	}
	return 0o666
}

func (v *Volume) fileInfoLocked(p string, info engine.Info) *fileInfo {
	fi := &fileInfo{
		name: path.Base(p),
		size: info.Size,
		dir:  info.IsDir(),
		sys:  FileStat{BlockSize: int64(v.geom.BlockSize)},
	}
	if v.cfg.MTime.enabled() {
		if t := v.mtimeLocked(p); t != 0 {
			fi.modTime = time.Unix(t, 0)
		}
	}
	return fi
}

// cleanPath returns the canonical absolute form of p. Every path is cleaned
// before it reaches the descriptor table or the engine, so aliases such as
// "a", "//a" and "/b/../a" match the same open record.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// fdName names a descriptor in errors and logs.
func fdName(fd int, e *fdcache.Entry) string {
	if e != nil && e.Path != "" {
		return e.Path
	}
	return fmt.Sprintf("fd %d", fd)
}

// entryLocked resolves fd after checking that the volume is mounted.
func (v *Volume) entryLocked(op string, fd int) (*fdcache.Entry, error) {
	if err := v.checkMountedLocked(op, fdName(fd, nil)); err != nil {
		return nil, err
	}
	e, err := v.fds.Get(fd)
	if err != nil {
		return nil, translateError(op, fdName(fd, nil), err)
	}
	return e, nil
}

// failLocked logs a failed call and returns its translated error.
func (v *Volume) failLocked(op, target string, err error) error {
	v.log.LogIOError(context.Background(), op, target, err)
	return translateError(op, target, err)
}

// Open opens path and returns its descriptor. flags are os.O_* flags; perm
// is accepted for interface compatibility and ignored.
func (v *Volume) Open(path string, flags int, _ fs.FileMode) (int, error) {
	path = cleanPath(path)
	start := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	fd, err := v.openLocked(path, flags)
	v.metrics.RecordOpen(v.cfg.Label, time.Since(start), err)
	v.log.LogOpen(context.Background(), path, fd, err)
	return fd, err
}

func (v *Volume) openLocked(path string, flags int) (int, error) {
	if err := v.checkMountedLocked("open", path); err != nil {
		return -1, err
	}
	ef := engineFlags(flags)

	fd, e, err := v.fds.Allocate(path)
	if err != nil {
		return -1, translateError("open", path, err)
	}

	f, err := v.fs.OpenFile(path, ef)
	if err != nil {
		_ = v.fds.Free(fd)
		return -1, translateError("open", path, err)
	}
	e.File = f

	if ef.Writable() && v.cfg.MTime.enabled() {
		if err := v.setMTimeLocked(path, v.nextMTimeLocked(path)); err != nil {
			v.log.WarnContext(context.Background(), "mtime update failed", v.log.errorAttrs(err, "path", path)...)
		}
	}
	v.reportDescriptorsLocked()
	return fd, nil
}

// Read reads up to len(p) bytes from fd. At end of file it returns 0, io.EOF.
func (v *Volume) Read(fd int, p []byte) (int, error) {
	start := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.readLocked(fd, p)
	if err == io.EOF {
		v.metrics.RecordRead(v.cfg.Label, n, time.Since(start), nil)
	} else {
		v.metrics.RecordRead(v.cfg.Label, n, time.Since(start), err)
	}
	return n, err
}

func (v *Volume) readLocked(fd int, p []byte) (int, error) {
	e, err := v.entryLocked("read", fd)
	if err != nil {
		return 0, err
	}
	n, err := e.File.Read(p)
	if err != nil {
		return 0, v.failLocked("read", fdName(fd, e), err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes p to fd and returns the number of bytes accepted.
func (v *Volume) Write(fd int, p []byte) (int, error) {
	start := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()

	n, err := v.writeLocked(fd, p)
	v.metrics.RecordWrite(v.cfg.Label, n, time.Since(start), err)
	return n, err
}

func (v *Volume) writeLocked(fd int, p []byte) (int, error) {
	e, err := v.entryLocked("write", fd)
	if err != nil {
		return 0, err
	}
	n, err := e.File.Write(p)
	if err != nil {
		return 0, v.failLocked("write", fdName(fd, e), err)
	}
	return n, nil
}

// Seek sets the offset of fd. whence is one of the io.Seek* constants.
func (v *Volume) Seek(fd int, offset int64, whence int) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, err := v.entryLocked("seek", fd)
	if err != nil {
		return 0, err
	}
	pos, err := e.File.Seek(offset, whence)
	if err != nil {
		return 0, v.failLocked("seek", fdName(fd, e), err)
	}
	return pos, nil
}

// Close closes fd. The descriptor is released even when the engine reports
// an error while flushing.
func (v *Volume) Close(fd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.closeLocked(fd)
	v.metrics.RecordClose(v.cfg.Label, err)
	return err
}

func (v *Volume) closeLocked(fd int) error {
	e, err := v.entryLocked("close", fd)
	if err != nil {
		return err
	}
	name := fdName(fd, e)

	cerr := e.File.Close()
	if err := v.fds.Free(fd); err != nil {
		return translateError("close", name, err)
	}
	v.reportDescriptorsLocked()
	if cerr != nil {
		return v.failLocked("close", name, cerr)
	}
	return nil
}

// Fsync makes the data written to fd durable.
func (v *Volume) Fsync(fd int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, err := v.entryLocked("fsync", fd)
	if err != nil {
		return err
	}
	if err := e.File.Sync(); err != nil {
		return v.failLocked("fsync", fdName(fd, e), err)
	}
	return nil
}

// Stat describes path.
func (v *Volume) Stat(path string) (fs.FileInfo, error) {
	path = cleanPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("stat", path); err != nil {
		return nil, err
	}
	info, err := v.fs.Stat(path)
	if err != nil {
		// Stat doubles as an existence check.
		v.log.InfoContext(context.Background(), "stat failed", v.log.errorAttrs(err, "path", path)...)
		return nil, translateError("stat", path, err)
	}
	return v.fileInfoLocked(path, info), nil
}

// Fstat describes the file open as fd. The size includes unsynced writes.
// Volumes in hash-only mode do not know the path of a descriptor and return
// ErrNotSupported.
func (v *Volume) Fstat(fd int) (fs.FileInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, err := v.entryLocked("fstat", fd)
	if err != nil {
		return nil, err
	}
	if v.fds.HashOnly() {
		return nil, translateError("fstat", fdName(fd, e), ErrNotSupported)
	}

	info, err := v.fs.Stat(e.Path)
	if err != nil {
		return nil, v.failLocked("fstat", e.Path, err)
	}
	size, err := e.File.Size()
	if err != nil {
		return nil, v.failLocked("fstat", e.Path, err)
	}
	info.Size = size
	return v.fileInfoLocked(e.Path, info), nil
}

// Unlink removes the file at path. Paths with an open descriptor are busy.
func (v *Volume) Unlink(path string) error {
	path = cleanPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("unlink", path); err != nil {
		return err
	}
	info, err := v.fs.Stat(path)
	if err != nil {
		return v.failLocked("unlink", path, err)
	}
	if v.isOpenLocked(path) {
		return v.failLocked("unlink", path, fmt.Errorf("%w: has open descriptor", ErrBusy))
	}
	if info.IsDir() {
		return v.failLocked("unlink", path, ErrIsDirectory)
	}
	if err := v.fs.Remove(path); err != nil {
		return v.failLocked("unlink", path, err)
	}
	return nil
}

// Rename moves oldPath to newPath. Neither may have an open descriptor.
func (v *Volume) Rename(oldPath, newPath string) error {
	oldPath, newPath = cleanPath(oldPath), cleanPath(newPath)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("rename", oldPath); err != nil {
		return err
	}
	var err error
	switch {
	case v.isOpenLocked(oldPath):
		err = fmt.Errorf("%w: source is open", ErrBusy)
	case v.isOpenLocked(newPath):
		err = fmt.Errorf("%w: destination is open", ErrBusy)
	default:
		err = v.fs.Rename(oldPath, newPath)
	}
	if err != nil {
		v.log.LogIOError(context.Background(), "rename", oldPath+" -> "+newPath, err)
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: unwrapPath(translateError("rename", oldPath, err))}
	}
	return nil
}

func (v *Volume) isOpenLocked(path string) bool {
	_, err := v.fds.FindByPath(path)
	return err == nil
}

// unwrapPath strips the *fs.PathError added by translateError.
func unwrapPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// Mkdir creates the directory path. perm is ignored.
func (v *Volume) Mkdir(path string, _ fs.FileMode) error {
	path = cleanPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("mkdir", path); err != nil {
		return err
	}
	if err := v.fs.Mkdir(path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return translateError("mkdir", path, err)
		}
		return v.failLocked("mkdir", path, err)
	}
	return nil
}

// Rmdir removes the empty directory path.
func (v *Volume) Rmdir(path string) error {
	path = cleanPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("rmdir", path); err != nil {
		return err
	}
	info, err := v.fs.Stat(path)
	if err != nil {
		return v.failLocked("rmdir", path, err)
	}
	if !info.IsDir() {
		return v.failLocked("rmdir", path, ErrNotDirectory)
	}
	if err := v.fs.Remove(path); err != nil {
		return v.failLocked("rmdir", path, err)
	}
	return nil
}
