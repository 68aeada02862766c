package flash

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidPartition is returned by Partition.Validate.
var ErrInvalidPartition = errors.New("flash: invalid partition")

// Partition is a named range of a chip holding one filesystem.
type Partition struct {
	Label  string
	Chip   Region
	Offset int64
	Size   int64
}

// Validate checks that the partition lies inside its chip on sector boundaries.
func (p Partition) Validate() error {
	switch {
	case p.Label == "":
		return fmt.Errorf("%w: empty label", ErrInvalidPartition)
	case p.Chip == nil:
		return fmt.Errorf("%w: %s has no chip", ErrInvalidPartition, p.Label)
	case p.Offset < 0 || p.Size <= 0 || p.Offset+p.Size > p.Chip.Size():
		return fmt.Errorf("%w: %s [%d, %d) outside chip of %d bytes",
			ErrInvalidPartition, p.Label, p.Offset, p.Offset+p.Size, p.Chip.Size())
	}

	sector := SectorSize(p.Chip, 1)
	if p.Offset%sector != 0 || p.Size%sector != 0 {
		return fmt.Errorf("%w: %s not aligned to %d byte sectors", ErrInvalidPartition, p.Label, sector)
	}
	return nil
}

// EraseAll resets every sector of the partition.
func (p Partition) EraseAll(ctx context.Context) error {
	return p.Chip.Erase(ctx, p.Offset, p.Size)
}
