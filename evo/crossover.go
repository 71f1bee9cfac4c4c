package evo

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/defense-sim/defense-sim/sim"
)

// UniformCrossover combines two parents into a child candidate.
//
// The child keeps the first parent's scenario reference. Its stimulus
// schedule is built over the union of both parents' step keys; for a step
// present in both, a fair coin picks one parent's whole command set — the
// per-step command group is the atomic unit, never individual commands.
// The pending mutation is inherited from a coin-chosen parent; when
// neither parent carries one, a random stimulus boost is synthesized so
// the child always perturbs something.
func UniformCrossover(a, b *AttackCandidate, rng *rand.Rand) *AttackCandidate {
	schedule := sim.NewStimulusSchedule()
	for _, step := range unionSteps(a.Schedule, b.Schedule) {
		fromA := a.Schedule.CommandsFor(step)
		fromB := b.Schedule.CommandsFor(step)
		switch {
		case len(fromA) == 0:
			schedule.SetStep(step, fromB)
		case len(fromB) == 0:
			schedule.SetStep(step, fromA)
		case rng.Intn(2) == 0:
			schedule.SetStep(step, fromA)
		default:
			schedule.SetStep(step, fromB)
		}
	}

	var mutation Mutation
	if rng.Intn(2) == 0 {
		mutation = a.Mutation
	} else {
		mutation = b.Mutation
	}
	if mutation == nil {
		mutation = a.Mutation
	}
	if mutation == nil {
		mutation = b.Mutation
	}
	if mutation == nil {
		mutation = randomStimulusBoost(rng)
	}

	generation := a.Generation
	if b.Generation > generation {
		generation = b.Generation
	}

	return &AttackCandidate{
		ID:          "x-" + uuid.NewString()[:8],
		ScenarioRef: a.ScenarioRef,
		Schedule:    schedule,
		Generation:  generation + 1,
		ParentID:    a.ID,
		Mutation:    mutation,
	}
}

func unionSteps(a, b *sim.StimulusSchedule) []int {
	seen := make(map[int]bool)
	var union []int
	for _, step := range a.Steps() {
		if !seen[step] {
			seen[step] = true
			union = append(union, step)
		}
	}
	for _, step := range b.Steps() {
		if !seen[step] {
			seen[step] = true
			union = append(union, step)
		}
	}
	sort.Ints(union)
	return union
}
