package evo

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/defense-sim/defense-sim/sim"
	"github.com/defense-sim/defense-sim/sim/trace"
)

// Config governs the generation loop.
type Config struct {
	// BatchSize is how many candidates each breeding round produces and,
	// consequently, the ceiling on NextBatch.
	BatchSize int `json:"batch_size"`
	// MaxGenerations bounds the outcome archive; zero disables archiving
	// entirely.
	MaxGenerations int `json:"max_generations"`
	// RetainElite re-enqueues settled candidates as seeds for the next
	// round.
	RetainElite bool `json:"retain_elite"`
	// CrossoverRate is the probability a bred candidate comes from two
	// parents rather than one parent plus a mutation.
	CrossoverRate float64 `json:"crossover_rate"`
	Selection     SelectionSpec `json:"selection"`
}

// AttackCandidate is one scenario variant awaiting execution. Candidates
// are consumed exactly once; a re-run requires re-enqueueing.
type AttackCandidate struct {
	ID          string                `json:"id"`
	ScenarioRef string                `json:"scenario_ref"`
	Schedule    *sim.StimulusSchedule `json:"schedule,omitempty"`
	Generation  int                   `json:"generation"`
	ParentID    string                `json:"parent_id,omitempty"`
	Mutation    Mutation              `json:"-"`
}

// candidateWire carries the mutation as its tagged envelope so candidates
// survive snapshot round-trips.
type candidateWire struct {
	ID          string                `json:"id"`
	ScenarioRef string                `json:"scenario_ref"`
	Schedule    *sim.StimulusSchedule `json:"schedule,omitempty"`
	Generation  int                   `json:"generation"`
	ParentID    string                `json:"parent_id,omitempty"`
	Mutation    json.RawMessage       `json:"mutation,omitempty"`
}

func (c AttackCandidate) MarshalJSON() ([]byte, error) {
	mutation, err := MarshalMutation(c.Mutation)
	if err != nil {
		return nil, err
	}
	return json.Marshal(candidateWire{
		ID:          c.ID,
		ScenarioRef: c.ScenarioRef,
		Schedule:    c.Schedule,
		Generation:  c.Generation,
		ParentID:    c.ParentID,
		Mutation:    mutation,
	})
}

func (c *AttackCandidate) UnmarshalJSON(data []byte) error {
	var wire candidateWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	mutation, err := UnmarshalMutation(wire.Mutation)
	if err != nil {
		return err
	}
	c.ID = wire.ID
	c.ScenarioRef = wire.ScenarioRef
	c.Schedule = wire.Schedule
	c.Generation = wire.Generation
	c.ParentID = wire.ParentID
	c.Mutation = mutation
	return nil
}

// AttackOutcome is an archived evaluation: the candidate as executed, its
// fitness, the breach flag, and the full run statistics. Immutable once
// recorded.
type AttackOutcome struct {
	Candidate  AttackCandidate `json:"candidate"`
	Fitness    float64         `json:"fitness"`
	Breach     bool            `json:"breach"`
	Notes      string          `json:"notes,omitempty"`
	Statistics RunStatistics   `json:"statistics"`
}

// Executor runs a candidate's scenario and returns its per-step metrics.
// The simulation engine is plugged in here; the harness never imports a
// concrete runner.
type Executor func(cand *AttackCandidate) ([]trace.StepMetrics, error)

// Evaluation is what one candidate's trip through the loop yields.
type Evaluation struct {
	Outcome  AttackOutcome
	Analysis *Analysis
	// FollowUp is the recommendation-derived child, populated by
	// Evaluate; RunGenerations breeds via the archive instead.
	FollowUp *AttackCandidate
}

// Harness owns the candidate backlog (strict FIFO) and the bounded outcome
// archive, and runs the sequential generation loop.
type Harness struct {
	cfg       Config
	selection Selection
	backlog   []AttackCandidate
	archive   []AttackOutcome

	selectRNG *rand.Rand
	breedRNG  *rand.Rand
}

// NewHarness builds a harness from config. Randomness is partitioned per
// subsystem off the simulation key, so harness runs replay exactly.
func NewHarness(cfg Config, key sim.SimulationKey) (*Harness, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	selection, err := cfg.Selection.Build()
	if err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(key)
	return &Harness{
		cfg:       cfg,
		selection: selection,
		selectRNG: rng.ForSubsystem(sim.SubsystemSelection),
		breedRNG:  rng.ForSubsystem(sim.SubsystemBreeding),
	}, nil
}

// Config returns the harness configuration.
func (h *Harness) Config() Config {
	return h.cfg
}

// Enqueue appends a candidate to the backlog tail.
func (h *Harness) Enqueue(cand AttackCandidate) {
	h.backlog = append(h.backlog, cand)
}

// BacklogLen reports how many candidates await execution.
func (h *Harness) BacklogLen() int {
	return len(h.backlog)
}

// Archive returns the recorded outcomes, oldest first.
func (h *Harness) Archive() []AttackOutcome {
	return h.archive
}

// NextBatch pops up to BatchSize candidates from the backlog head.
func (h *Harness) NextBatch() []AttackCandidate {
	n := h.cfg.BatchSize
	if n > len(h.backlog) {
		n = len(h.backlog)
	}
	batch := append([]AttackCandidate(nil), h.backlog[:n]...)
	h.backlog = h.backlog[n:]
	return batch
}

// popAll drains the entire backlog: one generation round evaluates
// everything that is currently pending, regardless of batch size.
func (h *Harness) popAll() []AttackCandidate {
	batch := h.backlog
	h.backlog = nil
	return batch
}

// RecordOutcome appends to the archive and prunes it to MaxGenerations.
// A zero limit clears the archive entirely.
func (h *Harness) RecordOutcome(outcome AttackOutcome) {
	h.archive = append(h.archive, outcome)
	if h.cfg.MaxGenerations <= 0 {
		h.archive = nil
		return
	}
	if overflow := len(h.archive) - h.cfg.MaxGenerations; overflow > 0 {
		h.archive = h.archive[overflow:]
	}
}

// Evaluate runs a single candidate through the executor and the fitness
// evaluator, records the outcome, and derives the follow-up candidate from
// the recommendation when one exists.
func (h *Harness) Evaluate(cand AttackCandidate, exec Executor) (*Evaluation, error) {
	steps, err := exec(&cand)
	if err != nil {
		return nil, fmt.Errorf("execute candidate %s: %w", cand.ID, err)
	}
	analysis, err := Analyze(steps)
	if err != nil {
		return nil, fmt.Errorf("analyze candidate %s: %w", cand.ID, err)
	}

	outcome := AttackOutcome{
		Candidate:  cand,
		Fitness:    analysis.Fitness,
		Breach:     analysis.Breach,
		Notes:      describeRecommendation(analysis.Recommendation),
		Statistics: analysis.Statistics,
	}
	h.RecordOutcome(outcome)

	eval := &Evaluation{Outcome: outcome, Analysis: analysis}
	if analysis.Recommendation != nil {
		eval.FollowUp = mutatedChild(&cand, analysis.Recommendation)
	}
	return eval, nil
}

// RunGenerations repeats up to n rounds: drain the entire backlog, execute
// and archive every candidate, then breed the next round's batch. An
// executor error aborts immediately with the outcomes recorded so far; an
// analysis error is fatal only to that one candidate.
func (h *Harness) RunGenerations(n int, exec Executor) ([]Evaluation, error) {
	var evals []Evaluation
	for round := 1; round <= n; round++ {
		batch := h.popAll()
		if len(batch) == 0 {
			logrus.Debugf("Backlog empty at round %d, stopping", round)
			break
		}
		logrus.Debugf("Round %d: evaluating %d candidates", round, len(batch))

		for i := range batch {
			cand := batch[i]
			steps, err := exec(&cand)
			if err != nil {
				return evals, fmt.Errorf("execute candidate %s: %w", cand.ID, err)
			}
			analysis, err := Analyze(steps)
			if err != nil {
				logrus.Warnf("Skipping candidate %s: %v", cand.ID, err)
				continue
			}

			outcome := AttackOutcome{
				Candidate:  cand,
				Fitness:    analysis.Fitness,
				Breach:     analysis.Breach,
				Notes:      describeRecommendation(analysis.Recommendation),
				Statistics: analysis.Statistics,
			}
			h.RecordOutcome(outcome)
			evals = append(evals, Evaluation{Outcome: outcome, Analysis: analysis})

			if analysis.Recommendation == nil && h.cfg.RetainElite {
				elite := cand
				elite.Mutation = nil
				h.Enqueue(elite)
			}
		}

		if round < n && len(h.archive) > 0 {
			if err := h.breed(); err != nil {
				logrus.Warnf("Breeding failed in round %d: %v", round, err)
			}
		}
	}
	return evals, nil
}

// breed enqueues exactly BatchSize new candidates from the archive: with
// probability CrossoverRate a two-parent crossover, otherwise one parent
// plus its recommended (or random) mutation.
func (h *Harness) breed() error {
	for i := 0; i < h.cfg.BatchSize; i++ {
		var child *AttackCandidate
		if h.breedRNG.Float64() < h.cfg.CrossoverRate {
			first, err := h.selection.Pick(h.selectRNG, h.archive)
			if err != nil {
				return err
			}
			second, err := h.selection.Pick(h.selectRNG, h.archive)
			if err != nil {
				return err
			}
			child = UniformCrossover(&first.Candidate, &second.Candidate, h.breedRNG)
		} else {
			parent, err := h.selection.Pick(h.selectRNG, h.archive)
			if err != nil {
				return err
			}
			mutation := RecommendMutation(&parent.Statistics, parent.Fitness, parent.Breach)
			if mutation == nil {
				mutation = randomStimulusBoost(h.breedRNG)
			}
			child = mutatedChild(&parent.Candidate, mutation)
		}
		h.Enqueue(*child)
	}
	return nil
}

// mutatedChild derives a next-generation candidate carrying the given
// pending mutation. The schedule is cloned so the mutation, applied at
// execution time, cannot leak into the parent.
func mutatedChild(parent *AttackCandidate, mutation Mutation) *AttackCandidate {
	return &AttackCandidate{
		ID:          "m-" + uuid.NewString()[:8],
		ScenarioRef: parent.ScenarioRef,
		Schedule:    parent.Schedule.Clone(),
		Generation:  parent.Generation + 1,
		ParentID:    parent.ID,
		Mutation:    mutation,
	}
}

func describeRecommendation(m Mutation) string {
	if m == nil {
		return "settled"
	}
	return "recommend: " + m.Describe()
}
