package mmap

import (
	"io"
	"os"
	"sync/atomic"
)

// Mapping represents a shared read-write memory-mapped file.
// It owns the underlying byte slice and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	size   int
	closed atomic.Bool
	// unmap and flush are the platform-specific release and sync functions.
	unmap func([]byte) error
	flush func([]byte) error
}

// OpenFile maps the file at path read-write, creating it when missing.
// A file shorter than size is extended with zero bytes first; a longer file
// is mapped only up to size.
func OpenFile(path string, size int64) (*Mapping, error) {
	if size <= 0 || int64(int(size)) != size {
		return nil, ErrInvalidSize
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
	}

	data, unmapFunc, flushFunc, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:  data,
		size:  int(size),
		unmap: unmapFunc,
		flush: flushFunc,
	}, nil
}

// Close flushes and unmaps the memory. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.data == nil {
		return nil
	}
	ferr := m.flush(m.data)
	if err := m.unmap(m.data); err != nil {
		return err
	}
	return ferr
}

// Flush writes dirty pages back to the file synchronously.
func (m *Mapping) Flush() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.flush(m.data)
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Advise provides hints to the kernel about how the memory will be accessed.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osAdvise(m.data, pattern)
}

// ReadAt implements io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Writes never extend the mapping.
func (m *Mapping) WriteAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if off+int64(len(p)) > int64(len(m.data)) {
		return 0, ErrOutOfBounds
	}
	return copy(m.data[off:], p), nil
}
