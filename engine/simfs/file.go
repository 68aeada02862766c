package simfs

import (
	"io"

	"github.com/hupe1980/flashvfs/engine"
)

// file buffers the whole content of an open file; writes become durable on
// Sync or Close.
type file struct {
	fs     *FS
	path   string
	flags  engine.OpenFlag
	pos    int64
	data   []byte
	dirty  bool
	closed bool
}

func (f *file) Read(p []byte) (int, error) {
	if f.closed || !f.flags.Readable() {
		return 0, engine.ErrBadF
	}
	if f.pos >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	if f.closed || !f.flags.Writable() {
		return 0, engine.ErrBadF
	}
	if f.flags&engine.OpenAppend != 0 {
		f.pos = int64(len(f.data))
	}

	end := f.pos + int64(len(p))
	if end > fileMax {
		return 0, engine.ErrFBig
	}
	if end > int64(len(f.data)) {
		// Writing past the end zero-fills the gap.
		f.data = append(f.data, make([]byte, end-int64(len(f.data)))...)
	}
	copy(f.data[f.pos:], p)
	f.pos = end
	f.dirty = true
	return len(p), nil
}

func (f *file) Seek(off int64, whence int) (int64, error) {
	if f.closed {
		return 0, engine.ErrBadF
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = off
	case io.SeekCurrent:
		pos = f.pos + off
	case io.SeekEnd:
		pos = int64(len(f.data)) + off
	default:
		return 0, engine.ErrInval
	}
	if pos < 0 || pos > fileMax {
		return 0, engine.ErrInval
	}
	f.pos = pos
	return pos, nil
}

func (f *file) Size() (int64, error) {
	if f.closed {
		return 0, engine.ErrBadF
	}
	return int64(len(f.data)), nil
}

func (f *file) Sync() error {
	if f.closed {
		return engine.ErrBadF
	}
	if !f.dirty {
		return nil
	}
	if err := f.fs.flush(f); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

func (f *file) Close() error {
	if f.closed {
		return engine.ErrBadF
	}
	err := f.Sync()
	f.closed = true
	f.data = nil
	delete(f.fs.files, f)
	return err
}
