// Package sim implements the cellular defense substrate: a deterministic,
// single-threaded simulation of autonomous defense cells under adversarial
// stimulus.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - cell.go: the cell state machine and the Decide priority ladder
//   - signal.go: the signal bus, topics, and the attested consensus wire
//   - simulator.go: the two-phase step loop (drain, decide all, apply all)
//
// # Architecture
//
// The sim package holds the engine; supporting concerns live in
// sub-packages:
//   - sim/attest/: signing, the public key directory, claim verification
//   - sim/trace/: pure-data per-step metric records consumed by evo/
//
// Each step drains the bus into an immutable snapshot before any cell
// decides, so a cell never observes an action taken in the same step.
// Signals published in step N are delivered in step N+1, which is why the
// attestation freshness window is one step.
//
// All randomness flows through PartitionedRNG subsystems keyed by a
// SimulationKey; two runs with the same key and configuration are
// bit-for-bit identical.
package sim
