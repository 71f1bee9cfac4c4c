package evo

import (
	"errors"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/defense-sim/defense-sim/sim"
	"github.com/defense-sim/defense-sim/sim/trace"
)

// ErrEmptyDataset is returned when a run produced zero telemetry rows.
// Fatal to that evaluation only; the harness skips the candidate.
var ErrEmptyDataset = errors.New("no step metrics to analyze")

// Fitness sub-component weights. They sum to 1.0, so a fitness score built
// from clamped components always lands in [0,1].
const (
	weightThreat      = 0.35
	weightSuppression = 0.20
	weightCellLoss    = 0.15
	weightLineage     = 0.20
	weightStimulus    = 0.10
)

// Breach thresholds: any one of these conditions flags the run as a breach.
const (
	breachFitness  = 0.65
	breachThreat   = 1.1
	breachCellLoss = 0.45
	breachLineage  = 0.8
)

// RunStatistics is the left-to-right fold of a run's step metrics. Derived
// once, never mutated afterwards.
type RunStatistics struct {
	StepCount int `json:"step_count"`

	AvgThreat float64 `json:"avg_threat"`
	MaxThreat float64 `json:"max_threat"`

	AvgPopulation float64 `json:"avg_population"`
	MinPopulation int     `json:"min_population"`
	MaxPopulation int     `json:"max_population"`

	Replications       int     `json:"replications"`
	Deaths             int     `json:"deaths"`
	SignalsTotal       int     `json:"signals_total"`
	LineageShiftsTotal int     `json:"lineage_shifts_total"`
	StimulusTotal      float64 `json:"stimulus_total"`

	SignalsByTopic  map[string]int     `json:"signals_by_topic,omitempty"`
	StimulusByTopic map[string]float64 `json:"stimulus_by_topic,omitempty"`
	LineageShifts   map[string]int     `json:"lineage_shifts,omitempty"`
}

// FitnessComponents are the clamped sub-scores behind a fitness value, kept
// for notes and regression visibility.
type FitnessComponents struct {
	Threat      float64 `json:"threat"`
	Suppression float64 `json:"suppression"`
	CellLoss    float64 `json:"cell_loss"`
	Lineage     float64 `json:"lineage"`
	Stimulus    float64 `json:"stimulus"`
}

// Analysis is one candidate's full evaluation: the folded statistics, the
// scalar fitness, the breach flag, and the recommended follow-up mutation
// (nil when the candidate is settled).
type Analysis struct {
	Statistics     RunStatistics
	Components     FitnessComponents
	Fitness        float64
	Breach         bool
	Recommendation Mutation
}

// Analyze folds a run's ordered step metrics into statistics, scores them,
// and derives the recommended mutation.
func Analyze(steps []trace.StepMetrics) (*Analysis, error) {
	if len(steps) == 0 {
		return nil, ErrEmptyDataset
	}

	stats := foldStatistics(steps)
	components := scoreComponents(&stats)
	fitness := weightThreat*components.Threat +
		weightSuppression*components.Suppression +
		weightCellLoss*components.CellLoss +
		weightLineage*components.Lineage +
		weightStimulus*components.Stimulus

	breach := fitness > breachFitness ||
		stats.MaxThreat > breachThreat ||
		components.CellLoss > breachCellLoss ||
		components.Lineage > breachLineage

	return &Analysis{
		Statistics:     stats,
		Components:     components,
		Fitness:        fitness,
		Breach:         breach,
		Recommendation: RecommendMutation(&stats, fitness, breach),
	}, nil
}

func foldStatistics(steps []trace.StepMetrics) RunStatistics {
	stats := RunStatistics{
		StepCount:       len(steps),
		SignalsByTopic:  make(map[string]int),
		StimulusByTopic: make(map[string]float64),
		LineageShifts:   make(map[string]int),
	}

	threats := make([]float64, len(steps))
	populations := make([]float64, len(steps))
	stats.MinPopulation = steps[0].CellCount
	stats.MaxPopulation = steps[0].CellCount

	for i, step := range steps {
		threats[i] = step.ThreatScore
		populations[i] = float64(step.CellCount)
		if step.CellCount < stats.MinPopulation {
			stats.MinPopulation = step.CellCount
		}
		if step.CellCount > stats.MaxPopulation {
			stats.MaxPopulation = step.CellCount
		}

		stats.Replications += step.Replications
		stats.Deaths += step.Deaths
		stats.SignalsTotal += step.SignalsTotal
		stats.LineageShiftsTotal += step.LineageShiftsTotal
		stats.StimulusTotal += step.StimulusTotal

		for topic, count := range step.SignalsByTopic {
			stats.SignalsByTopic[topic] += count
		}
		for topic, magnitude := range step.StimulusByTopic {
			stats.StimulusByTopic[topic] += magnitude
		}
		for lineage, count := range step.LineageShiftsByLineage {
			stats.LineageShifts[lineage] += count
		}
	}

	stats.AvgThreat = stat.Mean(threats, nil)
	stats.MaxThreat = floats.Max(threats)
	stats.AvgPopulation = stat.Mean(populations, nil)
	return stats
}

func scoreComponents(stats *RunStatistics) FitnessComponents {
	return FitnessComponents{
		Threat:      clamp01(stats.AvgThreat / 1.5),
		Suppression: clamp01(1 - stats.replicationRate()),
		CellLoss:    clamp01(stats.cellLoss()),
		Lineage:     clamp01(0.6*stats.shiftPressure() + 0.4*stats.lineageFocus()),
		Stimulus:    clamp01(stats.StimulusTotal / float64(stats.StepCount) / 1.5),
	}
}

// replicationRate is replications per executed step.
func (s *RunStatistics) replicationRate() float64 {
	if s.StepCount == 0 {
		return 0
	}
	return float64(s.Replications) / float64(s.StepCount)
}

// cellLoss is the relative spread between peak and trough population.
func (s *RunStatistics) cellLoss() float64 {
	if s.MaxPopulation == 0 {
		return 0
	}
	return float64(s.MaxPopulation-s.MinPopulation) / float64(s.MaxPopulation)
}

// shiftPressure normalizes lineage shifts against run length.
func (s *RunStatistics) shiftPressure() float64 {
	if s.StepCount == 0 {
		return 0
	}
	pressure := float64(s.LineageShiftsTotal) / float64(s.StepCount)
	if pressure > 1 {
		return 1
	}
	return pressure
}

// lineageFocus is the dominant lineage's share of all shifts.
func (s *RunStatistics) lineageFocus() float64 {
	if s.LineageShiftsTotal == 0 {
		return 0
	}
	_, dominant := s.dominantLineage()
	return float64(dominant) / float64(s.LineageShiftsTotal)
}

// dominantLineage returns the most-shifted-to lineage and its count, with
// alphabetical tie-breaking for determinism.
func (s *RunStatistics) dominantLineage() (string, int) {
	var name string
	count := -1
	for lineage, shifts := range s.LineageShifts {
		if shifts > count || (shifts == count && lineage < name) {
			name = lineage
			count = shifts
		}
	}
	if count < 0 {
		return "", 0
	}
	return name, count
}

// RecommendMutation derives the follow-up mutation for an evaluated run via
// a fixed-priority ladder; the first matching rule wins. Nil means the
// candidate is settled.
func RecommendMutation(stats *RunStatistics, fitness float64, breach bool) Mutation {
	if fitness < 0.4 {
		return IncreaseStimulus{Topic: weakerStimulusTopic(stats), Factor: 1.5}
	}

	if breach {
		if stats.SignalsTotal < stats.StepCount {
			return AddSpike{Step: stats.StepCount / 2, Intensity: 0.9}
		}
		return DecreaseStimulus{Topic: sim.TopicInhibitor, Factor: 0.5}
	}

	if stats.shiftPressure() < 0.1 {
		return IncreaseStimulus{Topic: sim.TopicActivator, Factor: 1.5}
	}

	if diffuse, lineage := stats.diffuseShifts(); diffuse {
		return IncreaseStimulus{Topic: strings.ToLower(lineage), Factor: 1.5}
	}

	if stats.replicationRate() > 0.6 {
		return IncreaseStimulus{Topic: sim.TopicInhibitor, Factor: 1.5}
	}

	activator := stats.StimulusByTopic[sim.TopicActivator]
	inhibitor := stats.StimulusByTopic[sim.TopicInhibitor]
	if inhibitor > activator && activator > 0 {
		return IncreaseStimulus{Topic: sim.TopicActivator, Factor: 1.5}
	}

	return nil
}

// weakerStimulusTopic picks whichever of activator/inhibitor has received
// less injected stimulus, preferring activator on a tie.
func weakerStimulusTopic(stats *RunStatistics) string {
	if stats.StimulusByTopic[sim.TopicActivator] <= stats.StimulusByTopic[sim.TopicInhibitor] {
		return sim.TopicActivator
	}
	return sim.TopicInhibitor
}

// diffuseShifts reports whether lineage shifts are spread thin: more than
// three total with no single lineage holding a majority. Returns the most
// frequent lineage so the recommendation can concentrate pressure on it.
func (s *RunStatistics) diffuseShifts() (bool, string) {
	if s.LineageShiftsTotal <= 3 {
		return false, ""
	}
	name, count := s.dominantLineage()
	if count*2 > s.LineageShiftsTotal {
		return false, ""
	}
	return true, name
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
