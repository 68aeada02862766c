package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/flashvfs/flash"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Perm returns a pseudo-random permutation of [0,n).
func (r *RNG) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(n)
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Paths returns n distinct absolute file paths spread over a few directories.
func (r *RNG) Paths(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		p := fmt.Sprintf("/d%d/f%06d.bin", r.rand.Intn(4), r.rand.Intn(1_000_000))
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Default geometry of chips built by the helpers below.
const (
	SectorSize = 4096
	PageSize   = 256
)

// MemoryPartition returns a partition covering a fresh in-memory chip of the
// given number of sectors.
func MemoryPartition(label string, sectors int) flash.Partition {
	size := int64(sectors) * SectorSize
	return flash.Partition{
		Label: label,
		Chip:  flash.NewMemoryChip(size, SectorSize, PageSize),
		Size:  size,
	}
}

// SplitChip carves one fresh in-memory chip into equally sized partitions.
func SplitChip(sectorsEach int, labels ...string) []flash.Partition {
	each := int64(sectorsEach) * SectorSize
	chip := flash.NewMemoryChip(each*int64(len(labels)), SectorSize, PageSize)

	parts := make([]flash.Partition, len(labels))
	for i, l := range labels {
		parts[i] = flash.Partition{Label: l, Chip: chip, Offset: int64(i) * each, Size: each}
	}
	return parts
}
