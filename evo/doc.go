// Package evo implements the genetic-algorithm attack harness that evolves
// stimulus schedules and scenario perturbations against the defense
// substrate in sim/.
//
// # Reading Guide
//
//   - harness.go: the candidate backlog, outcome archive, and generation loop
//   - fitness.go: RunStatistics folding, the weighted fitness score, breach
//     detection, and the mutation recommendation ladder
//   - mutation.go: the closed mutation vocabulary and its tagged JSON form
//   - selection.go / crossover.go: parent selection and uniform crossover
//
// The harness never runs simulations itself; an Executor callback bridges
// to sim.Simulator (see cmd/evolve.go for the in-process one). State is
// persistable either as a JSON snapshot (state.go) or in sqlite
// (store.go) for resumable runs.
package evo
