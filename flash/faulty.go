package flash

import (
	"context"
	"errors"
	"sync"
)

// ErrInjected is the default error returned by a FaultyChip.
var ErrInjected = errors.New("flash: injected fault")

// Fault defines the failures a FaultyChip injects.
type Fault struct {
	FailAfterBytes int64 // Fail writes once this many bytes were programmed. -1 to disable.
	FailReads      bool
	FailErase      bool
	Err            error
}

// FaultyChip wraps a Region and injects errors. It is meant for tests of the
// error paths above the flash layer.
type FaultyChip struct {
	Region

	mu      sync.Mutex
	fault   Fault
	written int64
}

// NewFaultyChip wraps r with every fault disabled.
func NewFaultyChip(r Region) *FaultyChip {
	return &FaultyChip{
		Region: r,
		fault:  Fault{FailAfterBytes: -1, Err: ErrInjected},
	}
}

// SetFault replaces the active fault and resets the write counter.
func (c *FaultyChip) SetFault(f Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Err == nil {
		f.Err = ErrInjected
	}
	c.fault = f
	c.written = 0
}

// Written returns the bytes programmed since the last SetFault.
func (c *FaultyChip) Written() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// ReadAt implements Region.
func (c *FaultyChip) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	fail, err := c.fault.FailReads, c.fault.Err
	c.mu.Unlock()
	if fail {
		return 0, err
	}
	return c.Region.ReadAt(ctx, p, off)
}

// WriteAt implements Region. A write crossing the byte limit is programmed
// up to the limit and then fails.
func (c *FaultyChip) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.fault.FailAfterBytes
	if limit < 0 || c.written+int64(len(p)) <= limit {
		n, err := c.Region.WriteAt(ctx, p, off)
		c.written += int64(n)
		return n, err
	}

	allowed := max(limit-c.written, 0)
	n, err := c.Region.WriteAt(ctx, p[:allowed], off)
	c.written += int64(n)
	if err != nil {
		return n, err
	}
	return n, c.fault.Err
}

// Erase implements Region.
func (c *FaultyChip) Erase(ctx context.Context, off, size int64) error {
	c.mu.Lock()
	fail, err := c.fault.FailErase, c.fault.Err
	c.mu.Unlock()
	if fail {
		return err
	}
	return c.Region.Erase(ctx, off, size)
}

// SectorSize implements Geometry. It is 0 when the wrapped region has no
// geometry.
func (c *FaultyChip) SectorSize() int64 { return SectorSize(c.Region, 0) }

// PageSize implements Geometry.
func (c *FaultyChip) PageSize() int64 { return PageSize(c.Region) }
