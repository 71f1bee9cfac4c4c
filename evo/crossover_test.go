package evo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defense-sim/defense-sim/sim"
)

func scheduleWith(cmds ...sim.StimulusCommand) *sim.StimulusSchedule {
	schedule := sim.NewStimulusSchedule()
	for _, cmd := range cmds {
		schedule.Append(cmd)
	}
	return schedule
}

func TestUniformCrossover_ChildCoversUnionOfStepKeys(t *testing.T) {
	// GIVEN parents with partially overlapping stimulus steps
	a := &AttackCandidate{
		ID:          "a",
		ScenarioRef: "scenario-a.yaml",
		Generation:  2,
		Schedule: scheduleWith(
			sim.StimulusCommand{Step: 0, Topic: sim.TopicActivator, Magnitude: 0.5},
			sim.StimulusCommand{Step: 2, Topic: sim.TopicActivator, Magnitude: 0.6},
			sim.StimulusCommand{Step: 2, Topic: sim.TopicInhibitor, Magnitude: 0.1},
		),
	}
	b := &AttackCandidate{
		ID:          "b",
		ScenarioRef: "scenario-b.yaml",
		Generation:  4,
		Schedule: scheduleWith(
			sim.StimulusCommand{Step: 2, Topic: sim.TopicCooperative, Magnitude: 0.9},
			sim.StimulusCommand{Step: 5, Topic: sim.TopicActivator, Magnitude: 0.3},
		),
	}
	rng := rand.New(rand.NewSource(13))

	// WHEN crossed over
	child := UniformCrossover(a, b, rng)

	// THEN the child keeps the first parent's scenario, advances past the
	// older generation, and covers exactly the union of step keys
	assert.Equal(t, "scenario-a.yaml", child.ScenarioRef)
	assert.Equal(t, "a", child.ParentID)
	assert.Equal(t, 5, child.Generation)
	assert.Equal(t, []int{0, 2, 5}, child.Schedule.Steps())

	// AND a shared step is taken wholesale from one parent, never merged
	shared := child.Schedule.CommandsFor(2)
	fromA := assert.ObjectsAreEqual(a.Schedule.CommandsFor(2), shared)
	fromB := assert.ObjectsAreEqual(b.Schedule.CommandsFor(2), shared)
	assert.True(t, fromA || fromB, "shared step must be one parent's whole command set")
	assert.False(t, fromA && fromB)
}

func TestUniformCrossover_SynthesizesMutationWhenParentsCarryNone(t *testing.T) {
	a := &AttackCandidate{ID: "a", Schedule: sim.NewStimulusSchedule()}
	b := &AttackCandidate{ID: "b", Schedule: sim.NewStimulusSchedule()}
	rng := rand.New(rand.NewSource(13))

	child := UniformCrossover(a, b, rng)

	// THEN the child always carries a perturbation
	require.NotNil(t, child.Mutation)
	boost, ok := child.Mutation.(IncreaseStimulus)
	require.True(t, ok, "fallback must be a stimulus boost")
	assert.Greater(t, boost.Factor, 1.0)
}

func TestUniformCrossover_InheritsParentMutation(t *testing.T) {
	// GIVEN exactly one parent carrying a pending mutation
	spike := AddSpike{Step: 7, Intensity: 0.8}
	a := &AttackCandidate{ID: "a", Schedule: sim.NewStimulusSchedule(), Mutation: spike}
	b := &AttackCandidate{ID: "b", Schedule: sim.NewStimulusSchedule()}
	rng := rand.New(rand.NewSource(13))

	// THEN the child inherits it rather than synthesizing a new one
	for i := 0; i < 10; i++ {
		child := UniformCrossover(a, b, rng)
		assert.Equal(t, spike, child.Mutation)
	}
}
