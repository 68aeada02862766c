// Package flash defines the physical flash layer beneath the block device
// adapter together with a few concrete chips.
//
// A Region is byte addressable and follows NOR semantics: programming can only
// clear bits, erasing sets a whole sector back to ErasedByte. Chips may report
// their page and sector sizes through the optional Geometry interface.
package flash

import (
	"context"
	"errors"
	"fmt"
)

// ErasedByte is the value of every byte of a freshly erased sector.
const ErasedByte = 0xFF

var (
	// ErrOutOfRange is returned for accesses beyond the end of a region.
	ErrOutOfRange = errors.New("flash: access out of range")
	// ErrUnaligned is returned when an erase is not sector aligned.
	ErrUnaligned = errors.New("flash: erase not sector aligned")
	// ErrClosed is returned when using a closed chip.
	ErrClosed = errors.New("flash: chip is closed")
)

// Region is byte-addressable flash.
type Region interface {
	// ReadAt reads len(p) bytes at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// WriteAt programs p at off. Bits can only go from 1 to 0.
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)
	// Erase resets [off, off+size) to ErasedByte. Both ends must be sector aligned.
	Erase(ctx context.Context, off, size int64) error
	// Size returns the capacity in bytes.
	Size() int64
}

// Geometry is implemented by regions that know their physical layout.
type Geometry interface {
	// SectorSize is the erase unit in bytes.
	SectorSize() int64
	// PageSize is the program unit in bytes.
	PageSize() int64
}

// SectorSize returns the erase unit of r, or def if r does not report one.
func SectorSize(r Region, def int64) int64 {
	if g, ok := r.(Geometry); ok && g.SectorSize() > 0 {
		return g.SectorSize()
	}
	return def
}

// PageSize returns the program unit of r, or 0 if r does not report one.
func PageSize(r Region) int64 {
	if g, ok := r.(Geometry); ok {
		return g.PageSize()
	}
	return 0
}

func checkRange(size, off int64, n int) error {
	if off < 0 || off+int64(n) > size {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+int64(n), size)
	}
	return nil
}

func checkErase(size, sector, off, n int64) error {
	if off < 0 || n < 0 || off+n > size {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, off, off+n, size)
	}
	if off%sector != 0 || n%sector != 0 {
		return fmt.Errorf("%w: [%d, %d) sector %d", ErrUnaligned, off, off+n, sector)
	}
	return nil
}

// program applies NOR programming of src onto dst.
func program(dst, src []byte) {
	for i, b := range src {
		dst[i] &= b
	}
}

func fill(b []byte) {
	for i := range b {
		b[i] = ErasedByte
	}
}
