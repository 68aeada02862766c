package flash

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stats counts operations issued against a chip.
type Stats struct {
	Reads  int64
	Writes int64
	Erases int64
}

// MemoryChip is a RAM-backed NOR chip.
type MemoryChip struct {
	mu     sync.RWMutex
	data   []byte
	sector int64
	page   int64

	reads, writes, erases atomic.Int64
}

// NewMemoryChip creates an erased chip of size bytes.
func NewMemoryChip(size, sectorSize, pageSize int64) *MemoryChip {
	c := &MemoryChip{
		data:   make([]byte, size),
		sector: sectorSize,
		page:   pageSize,
	}
	fill(c.data)
	return c
}

// ReadAt implements Region.
func (c *MemoryChip) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := checkRange(int64(len(c.data)), off, len(p)); err != nil {
		return 0, err
	}
	c.reads.Add(1)
	return copy(p, c.data[off:]), nil
}

// WriteAt implements Region.
func (c *MemoryChip) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := checkRange(int64(len(c.data)), off, len(p)); err != nil {
		return 0, err
	}
	c.writes.Add(1)
	program(c.data[off:off+int64(len(p))], p)
	return len(p), nil
}

// Erase implements Region.
func (c *MemoryChip) Erase(_ context.Context, off, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := checkErase(int64(len(c.data)), c.sector, off, size); err != nil {
		return err
	}
	c.erases.Add(1)
	fill(c.data[off : off+size])
	return nil
}

// Size implements Region.
func (c *MemoryChip) Size() int64 { return int64(len(c.data)) }

// SectorSize implements Geometry.
func (c *MemoryChip) SectorSize() int64 { return c.sector }

// PageSize implements Geometry.
func (c *MemoryChip) PageSize() int64 { return c.page }

// Stats returns a snapshot of the operation counters.
func (c *MemoryChip) Stats() Stats {
	return Stats{
		Reads:  c.reads.Load(),
		Writes: c.writes.Load(),
		Erases: c.erases.Load(),
	}
}
