// Package sim assembles the particle migration engine and the distance
// constraint solver into a runnable simulation.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - system.go: Domain ring, the per-step migration pipeline, and the
//     constraint solve hookup
//   - config.go: YAML configuration, defaults, and validation
//   - telemetry.go: per-step CSV output
//
// # Architecture
//
// The sim package orchestrates; the mechanisms live in sub-packages:
//   - sim/particle/: SoA particle store, flag classification, stable
//     partition, compaction, and transfer buffers
//   - sim/constraint/: constraint group, dense matrix assembly, and the
//     solver pipeline with its full/fast factorization split
//   - sim/sparse/: CSR matrices, fill-reducing ordering, and sparse LU
//
// Each step runs a strict sequence per domain: drift, boundary flagging,
// classify, partition, compact, exchange with ring neighbors, append. When
// constraints are configured the step then assembles and solves the
// constraint system and applies the resulting forces to the velocities.
package sim
