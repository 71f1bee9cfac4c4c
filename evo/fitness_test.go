package evo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defense-sim/defense-sim/sim"
	"github.com/defense-sim/defense-sim/sim/trace"
)

func TestAnalyze_EmptyDataset_Fails(t *testing.T) {
	_, err := Analyze(nil)
	if !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestAnalyze_RegressionFixture_ThreeSteps(t *testing.T) {
	// GIVEN the canonical three-step run with a noisy first step
	steps := []trace.StepMetrics{
		{Step: 0, ThreatScore: 0.42, CellCount: 3, SignalsTotal: 4,
			SignalsByTopic: map[string]int{sim.TopicActivator: 3, sim.TopicInhibitor: 1}},
		{Step: 1, ThreatScore: 0.85, CellCount: 3},
		{Step: 2, ThreatScore: 0.63, CellCount: 3},
	}

	// WHEN analyzed
	analysis, err := Analyze(steps)
	require.NoError(t, err)

	// THEN statistics fold all three steps, fitness is well-formed, and a
	// follow-up mutation is recommended
	assert.Equal(t, 3, analysis.Statistics.StepCount)
	assert.InDelta(t, 0.85, analysis.Statistics.MaxThreat, 1e-9)
	assert.Equal(t, 3, analysis.Statistics.SignalsByTopic[sim.TopicActivator])
	assert.GreaterOrEqual(t, analysis.Fitness, 0.0)
	assert.LessOrEqual(t, analysis.Fitness, 1.0)
	assert.NotNil(t, analysis.Recommendation)
}

func TestAnalyze_FitnessAlwaysInUnitInterval(t *testing.T) {
	// GIVEN pathologically large inputs on every component
	steps := []trace.StepMetrics{
		{Step: 0, ThreatScore: 40.0, CellCount: 100, Replications: 50,
			LineageShiftsTotal: 30, StimulusTotal: 90,
			LineageShiftsByLineage: map[string]int{"Healer": 30}},
		{Step: 1, ThreatScore: 55.0, CellCount: 1, StimulusTotal: 120},
	}

	analysis, err := Analyze(steps)
	require.NoError(t, err)

	// THEN clamped components keep fitness inside [0,1]
	assert.GreaterOrEqual(t, analysis.Fitness, 0.0)
	assert.LessOrEqual(t, analysis.Fitness, 1.0)
	assert.True(t, analysis.Breach, "max threat far beyond the breach bar")
}

func TestAnalyze_BreachOnPopulationCollapse(t *testing.T) {
	// GIVEN a quiet run whose population halves
	steps := []trace.StepMetrics{
		{Step: 0, ThreatScore: 0.2, CellCount: 10},
		{Step: 1, ThreatScore: 0.2, CellCount: 4, Deaths: 6},
	}

	analysis, err := Analyze(steps)
	require.NoError(t, err)

	// THEN the cell-loss component alone flags the breach
	assert.Greater(t, analysis.Components.CellLoss, breachCellLoss)
	assert.True(t, analysis.Breach)
}

func TestRecommendMutation_LadderOrder(t *testing.T) {
	// Low fitness boosts the weaker stimulus topic before anything else.
	stats := &RunStatistics{StepCount: 10, StimulusByTopic: map[string]float64{
		sim.TopicActivator: 2.0, sim.TopicInhibitor: 0.5,
	}}
	m := RecommendMutation(stats, 0.2, true)
	require.IsType(t, IncreaseStimulus{}, m)
	assert.Equal(t, sim.TopicInhibitor, m.(IncreaseStimulus).Topic)

	// A breach with sparse signal volume asks for a mid-run spike.
	stats = &RunStatistics{StepCount: 10, SignalsTotal: 2, LineageShiftsTotal: 5,
		StimulusByTopic: map[string]float64{}}
	m = RecommendMutation(stats, 0.5, true)
	require.IsType(t, AddSpike{}, m)
	assert.Equal(t, 5, m.(AddSpike).Step)

	// A breach with plenty of signals damps the inhibitor instead.
	stats.SignalsTotal = 40
	m = RecommendMutation(stats, 0.5, true)
	require.IsType(t, DecreaseStimulus{}, m)

	// Low lineage-shift pressure boosts the activator.
	stats = &RunStatistics{StepCount: 20, SignalsTotal: 40,
		StimulusByTopic: map[string]float64{}}
	m = RecommendMutation(stats, 0.5, false)
	require.IsType(t, IncreaseStimulus{}, m)
	assert.Equal(t, sim.TopicActivator, m.(IncreaseStimulus).Topic)

	// Diffuse shifts concentrate pressure on the most frequent lineage.
	stats = &RunStatistics{StepCount: 10, LineageShiftsTotal: 6,
		LineageShifts:   map[string]int{"Healer": 3, "Encryption": 2, "Firewall": 1},
		StimulusByTopic: map[string]float64{}}
	m = RecommendMutation(stats, 0.5, false)
	require.IsType(t, IncreaseStimulus{}, m)
	assert.Equal(t, "healer", m.(IncreaseStimulus).Topic)

	// A hot replication rate invites inhibitor pressure.
	stats = &RunStatistics{StepCount: 10, Replications: 7, LineageShiftsTotal: 5,
		LineageShifts:   map[string]int{"Healer": 5},
		StimulusByTopic: map[string]float64{}}
	m = RecommendMutation(stats, 0.5, false)
	require.IsType(t, IncreaseStimulus{}, m)
	assert.Equal(t, sim.TopicInhibitor, m.(IncreaseStimulus).Topic)

	// Nothing left to tune: the candidate is settled.
	stats = &RunStatistics{StepCount: 10, Replications: 2, LineageShiftsTotal: 5,
		LineageShifts:   map[string]int{"Healer": 5},
		StimulusByTopic: map[string]float64{}}
	assert.Nil(t, RecommendMutation(stats, 0.5, false))
}
