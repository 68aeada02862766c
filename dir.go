package flashvfs

import (
	"context"
	"io"
	"io/fs"
	"path"

	"github.com/hupe1980/flashvfs/engine"
)

// Dir iterates the entries of one directory. The "." and ".." entries
// reported by the engine are skipped. Unmounting or formatting the volume
// invalidates every open Dir.
type Dir struct {
	v    *Volume
	d    engine.Dir
	path string

	// offset counts the entries returned since open or the last rewind.
	offset int64
	last   engine.Info
	closed bool
}

type dirEntry struct {
	fi *fileInfo
}

func (e dirEntry) Name() string               { return e.fi.name }
func (e dirEntry) IsDir() bool                { return e.fi.dir }
func (e dirEntry) Type() fs.FileMode          { return e.fi.Mode().Type() }
func (e dirEntry) Info() (fs.FileInfo, error) { return e.fi, nil }

// OpenDir opens the directory at path.
func (v *Volume) OpenDir(path string) (*Dir, error) {
	path = cleanPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("opendir", path); err != nil {
		return nil, err
	}
	d, err := v.fs.OpenDir(path)
	if err != nil {
		return nil, v.failLocked("opendir", path, err)
	}
	dir := &Dir{v: v, d: d, path: path}
	v.dirs[dir] = struct{}{}
	return dir, nil
}

func (d *Dir) checkLocked(op string) error {
	if d.closed {
		return translateError(op, d.path, ErrBadDescriptor)
	}
	return d.v.checkMountedLocked(op, d.path)
}

// readLocked advances to the next real entry and stores it in d.last; ok is
// false at the end.
func (d *Dir) readLocked() (bool, error) {
	for {
		info, ok, err := d.d.Read()
		if err != nil {
			return false, d.v.failLocked("readdir", d.path, err)
		}
		if !ok {
			return false, nil
		}
		if info.Name == "." || info.Name == ".." {
			continue
		}
		d.offset++
		d.last = info
		return true, nil
	}
}

// ReadDir returns the next entry, or io.EOF after the last one.
func (d *Dir) ReadDir() (fs.DirEntry, error) {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()

	if err := d.checkLocked("readdir"); err != nil {
		return nil, err
	}
	ok, err := d.readLocked()
	if err != nil {
		return nil, err
	}
	if !ok {
		d.v.log.DebugContext(context.Background(), "end of directory", "path", d.path)
		return nil, io.EOF
	}
	return dirEntry{fi: d.v.fileInfoLocked(path.Join(d.path, d.last.Name), d.last)}, nil
}

// Tell returns the number of entries read so far.
func (d *Dir) Tell() int64 {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()
	return d.offset
}

// SeekDir positions the iterator so that the next ReadDir returns entry
// offset. Seeking backwards rewinds and replays; seeking past the last entry
// stops at the end.
func (d *Dir) SeekDir(offset int64) error {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()

	if err := d.checkLocked("seekdir"); err != nil {
		return err
	}
	if offset < d.offset {
		if err := d.d.Rewind(); err != nil {
			return d.v.failLocked("seekdir", d.path, err)
		}
		d.offset = 0
	}
	for d.offset < offset {
		ok, err := d.readLocked()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}
	return nil
}

// Close releases the engine iterator. A Dir invalidated by an unmount or
// format reports ErrBadDescriptor.
func (d *Dir) Close() error {
	d.v.mu.Lock()
	defer d.v.mu.Unlock()

	if d.closed {
		return translateError("closedir", d.path, ErrBadDescriptor)
	}
	if err := d.closeLocked(); err != nil {
		return d.v.failLocked("closedir", d.path, err)
	}
	return nil
}

// closeLocked releases the engine iterator and forgets the Dir. Later calls
// on it fail with ErrBadDescriptor.
func (d *Dir) closeLocked() error {
	d.closed = true
	delete(d.v.dirs, d)
	return d.d.Close()
}
