package flash

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/hupe1980/flashvfs/internal/mmap"
)

// FileChip is a NOR chip persisted in a memory-mapped image file.
type FileChip struct {
	mu     sync.RWMutex
	m      *mmap.Mapping
	sector int64
	page   int64
}

// OpenFileChip maps the image at path, creating an erased image of size bytes
// when the file does not exist yet.
func OpenFileChip(path string, size, sectorSize, pageSize int64) (*FileChip, error) {
	fresh := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		fresh = true
	} else if err != nil {
		return nil, err
	}

	m, err := mmap.OpenFile(path, size)
	if err != nil {
		return nil, err
	}
	_ = m.Advise(mmap.AccessRandom)

	if fresh {
		fill(m.Bytes())
		if err := m.Flush(); err != nil {
			_ = m.Close()
			return nil, err
		}
	}

	return &FileChip{m: m, sector: sectorSize, page: pageSize}, nil
}

// ReadAt implements Region.
func (c *FileChip) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := c.m.Bytes()
	if data == nil {
		return 0, ErrClosed
	}
	if err := checkRange(int64(len(data)), off, len(p)); err != nil {
		return 0, err
	}
	return copy(p, data[off:]), nil
}

// WriteAt implements Region.
func (c *FileChip) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.m.Bytes()
	if data == nil {
		return 0, ErrClosed
	}
	if err := checkRange(int64(len(data)), off, len(p)); err != nil {
		return 0, err
	}
	program(data[off:off+int64(len(p))], p)
	return len(p), nil
}

// Erase implements Region.
func (c *FileChip) Erase(_ context.Context, off, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.m.Bytes()
	if data == nil {
		return ErrClosed
	}
	if err := checkErase(int64(len(data)), c.sector, off, size); err != nil {
		return err
	}
	fill(data[off : off+size])
	return nil
}

// Size implements Region.
func (c *FileChip) Size() int64 { return int64(c.m.Size()) }

// SectorSize implements Geometry.
func (c *FileChip) SectorSize() int64 { return c.sector }

// PageSize implements Geometry.
func (c *FileChip) PageSize() int64 { return c.page }

// Sync flushes the image to its file.
func (c *FileChip) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Flush()
}

// Close flushes and unmaps the image.
func (c *FileChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Close()
}
