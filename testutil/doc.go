// Package testutil provides testing utilities for flashvfs.
//
// This package is intended for use in tests and benchmarks only.
//
// # Randomized Workloads
//
//	rng := testutil.NewRNG(seed)
//	paths := rng.Paths(64)
//	order := rng.Perm(len(paths))
//
// # Flash Fixtures
//
//	p := testutil.MemoryPartition("storage", 64)
//	parts := testutil.SplitChip(32, "a", "b")
package testutil
