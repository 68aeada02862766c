// Package blockdev adapts a flash.Region to the engine.BlockDevice contract.
//
// Engine requests address a block and an offset inside it; the adapter turns
// them into base + block*blockSize + off on the chip. Writes are synchronous,
// so Sync is a no-op, and every backend failure collapses to engine.ErrIO.
package blockdev

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/flash"
	"github.com/hupe1980/flashvfs/internal/cache"
	"github.com/hupe1980/flashvfs/internal/resource"
)

// ErrInvalidGeometry is returned by New for impossible layouts.
var ErrInvalidGeometry = errors.New("blockdev: invalid geometry")

// Config describes where a device lives on its chip.
type Config struct {
	// Name identifies the device in cache keys and error reports.
	Name       string
	Region     flash.Region
	Base       int64
	BlockSize  uint32
	BlockCount uint32

	// Cache optionally keeps whole blocks in memory.
	Cache cache.BlockCache
	// Resource optionally throttles flash IO.
	Resource *resource.Controller
	// OnError observes the backend error before it is collapsed.
	OnError func(op string, block uint32, err error)
}

// Stats counts device operations.
type Stats struct {
	Reads     int64
	Progs     int64
	Erases    int64
	CacheHits int64
	Errors    int64
}

// Device implements engine.BlockDevice.
type Device struct {
	cfg Config

	reads, progs, erases, hits, errs atomic.Int64
}

var _ engine.BlockDevice = (*Device)(nil)

// New validates cfg and returns a device.
func New(cfg Config) (*Device, error) {
	if cfg.Region == nil || cfg.BlockSize == 0 || cfg.BlockCount == 0 || cfg.Base < 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidGeometry, cfg)
	}
	end := cfg.Base + int64(cfg.BlockSize)*int64(cfg.BlockCount)
	if end > cfg.Region.Size() {
		return nil, fmt.Errorf("%w: %s ends at %d beyond chip of %d bytes",
			ErrInvalidGeometry, cfg.Name, end, cfg.Region.Size())
	}
	return &Device{cfg: cfg}, nil
}

// addr maps a block-relative position to an absolute chip offset.
func (d *Device) addr(block, off uint32) int64 {
	return d.cfg.Base + int64(block)*int64(d.cfg.BlockSize) + int64(off)
}

func (d *Device) check(block, off uint32, n int) bool {
	return block < d.cfg.BlockCount && int64(off)+int64(n) <= int64(d.cfg.BlockSize)
}

func (d *Device) fail(op string, block uint32, err error) error {
	d.errs.Add(1)
	if d.cfg.OnError != nil {
		d.cfg.OnError(op, block, err)
	}
	return engine.ErrIO
}

func (d *Device) key(block uint32) cache.CacheKey {
	return cache.CacheKey{Device: d.cfg.Name, Block: block}
}

// Read implements engine.BlockDevice.
func (d *Device) Read(block, off uint32, p []byte) error {
	if !d.check(block, off, len(p)) {
		return d.fail("read", block, flash.ErrOutOfRange)
	}
	ctx := context.Background()
	d.reads.Add(1)

	if d.cfg.Cache == nil {
		if err := d.cfg.Resource.AcquireIO(ctx, len(p)); err != nil {
			return d.fail("read", block, err)
		}
		if _, err := d.cfg.Region.ReadAt(ctx, p, d.addr(block, off)); err != nil {
			return d.fail("read", block, err)
		}
		return nil
	}

	data, ok := d.cfg.Cache.Get(ctx, d.key(block))
	if ok {
		d.hits.Add(1)
	} else {
		data = make([]byte, d.cfg.BlockSize)
		if err := d.cfg.Resource.AcquireIO(ctx, len(data)); err != nil {
			return d.fail("read", block, err)
		}
		if _, err := d.cfg.Region.ReadAt(ctx, data, d.addr(block, 0)); err != nil {
			return d.fail("read", block, err)
		}
		d.cfg.Cache.Set(ctx, d.key(block), data)
	}
	copy(p, data[off:])
	return nil
}

// Prog implements engine.BlockDevice.
func (d *Device) Prog(block, off uint32, p []byte) error {
	if !d.check(block, off, len(p)) {
		return d.fail("prog", block, flash.ErrOutOfRange)
	}
	ctx := context.Background()
	d.progs.Add(1)
	d.invalidate(block)

	if err := d.cfg.Resource.AcquireIO(ctx, len(p)); err != nil {
		return d.fail("prog", block, err)
	}
	if _, err := d.cfg.Region.WriteAt(ctx, p, d.addr(block, off)); err != nil {
		return d.fail("prog", block, err)
	}
	return nil
}

// Erase implements engine.BlockDevice.
func (d *Device) Erase(block uint32) error {
	if !d.check(block, 0, 0) {
		return d.fail("erase", block, flash.ErrOutOfRange)
	}
	ctx := context.Background()
	d.erases.Add(1)
	d.invalidate(block)

	if err := d.cfg.Resource.AcquireIO(ctx, int(d.cfg.BlockSize)); err != nil {
		return d.fail("erase", block, err)
	}
	if err := d.cfg.Region.Erase(ctx, d.addr(block, 0), int64(d.cfg.BlockSize)); err != nil {
		return d.fail("erase", block, err)
	}
	return nil
}

// Sync implements engine.BlockDevice. Programs are already durable.
func (d *Device) Sync() error {
	return nil
}

// InvalidateAll drops every cached block of this device.
func (d *Device) InvalidateAll() {
	if d.cfg.Cache == nil {
		return
	}
	name := d.cfg.Name
	d.cfg.Cache.Invalidate(func(k cache.CacheKey) bool { return k.Device == name })
}

func (d *Device) invalidate(block uint32) {
	if d.cfg.Cache == nil {
		return
	}
	d.cfg.Cache.Remove(d.key(block))
}

// Stats returns a snapshot of the counters.
func (d *Device) Stats() Stats {
	return Stats{
		Reads:     d.reads.Load(),
		Progs:     d.progs.Load(),
		Erases:    d.erases.Load(),
		CacheHits: d.hits.Load(),
		Errors:    d.errs.Load(),
	}
}
