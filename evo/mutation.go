package evo

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/defense-sim/defense-sim/sim"
)

// Mutation is one structured edit to an attack candidate's scenario or
// stimulus schedule. The vocabulary is closed and exhaustively matched
// wherever mutations are applied or serialized.
type Mutation interface {
	// Kind is the stable tag used for persistence.
	Kind() string
	// Describe renders the mutation for notes and logs.
	Describe() string
	// Apply edits the candidate's materialized scenario and schedule.
	Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule)
}

// IncreaseStimulus multiplies every scheduled command on Topic by Factor.
type IncreaseStimulus struct {
	Topic  string  `json:"topic"`
	Factor float64 `json:"factor"`
}

// DecreaseStimulus damps every scheduled command on Topic by Factor (< 1).
type DecreaseStimulus struct {
	Topic  string  `json:"topic"`
	Factor float64 `json:"factor"`
}

// AddSpike inserts a threat spike into the scenario.
type AddSpike struct {
	Step      int     `json:"step"`
	Intensity float64 `json:"intensity"`
}

// ChangeEventTiming moves the Index-th scheduled command (in flat step
// order) to NewStep. Out-of-range indices are a no-op.
type ChangeEventTiming struct {
	Index   int `json:"index"`
	NewStep int `json:"new_step"`
}

// ChangeReproductionRate scales the scenario's reproduction rate.
type ChangeReproductionRate struct {
	Factor float64 `json:"factor"`
}

// ChangeInitialPopulation replaces the seed cell count.
type ChangeInitialPopulation struct {
	Count int `json:"count"`
}

// ChangeThreatProfile replaces the background threat level.
type ChangeThreatProfile struct {
	Background float64 `json:"background"`
}

// ChangeSpikeTiming moves an existing spike to a new step.
type ChangeSpikeTiming struct {
	Index   int `json:"index"`
	NewStep int `json:"new_step"`
}

// ChangeSpikeDuration replaces an existing spike's duration.
type ChangeSpikeDuration struct {
	Index int `json:"index"`
	Steps int `json:"steps"`
}

func (IncreaseStimulus) Kind() string        { return "increase_stimulus" }
func (DecreaseStimulus) Kind() string        { return "decrease_stimulus" }
func (AddSpike) Kind() string                { return "add_spike" }
func (ChangeEventTiming) Kind() string       { return "change_event_timing" }
func (ChangeReproductionRate) Kind() string  { return "change_reproduction_rate" }
func (ChangeInitialPopulation) Kind() string { return "change_initial_population" }
func (ChangeThreatProfile) Kind() string     { return "change_threat_profile" }
func (ChangeSpikeTiming) Kind() string       { return "change_spike_timing" }
func (ChangeSpikeDuration) Kind() string     { return "change_spike_duration" }

func (m IncreaseStimulus) Describe() string {
	return fmt.Sprintf("increase %s stimulus x%.2f", m.Topic, m.Factor)
}

func (m DecreaseStimulus) Describe() string {
	return fmt.Sprintf("decrease %s stimulus x%.2f", m.Topic, m.Factor)
}

func (m AddSpike) Describe() string {
	return fmt.Sprintf("add spike %.2f at step %d", m.Intensity, m.Step)
}

func (m ChangeEventTiming) Describe() string {
	return fmt.Sprintf("move stimulus event %d to step %d", m.Index, m.NewStep)
}

func (m ChangeReproductionRate) Describe() string {
	return fmt.Sprintf("scale reproduction rate x%.2f", m.Factor)
}

func (m ChangeInitialPopulation) Describe() string {
	return fmt.Sprintf("set initial population to %d", m.Count)
}

func (m ChangeThreatProfile) Describe() string {
	return fmt.Sprintf("set background threat to %.2f", m.Background)
}

func (m ChangeSpikeTiming) Describe() string {
	return fmt.Sprintf("move spike %d to step %d", m.Index, m.NewStep)
}

func (m ChangeSpikeDuration) Describe() string {
	return fmt.Sprintf("set spike %d duration to %d steps", m.Index, m.Steps)
}

func (m IncreaseStimulus) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	schedule.Scale(m.Topic, m.Factor)
}

func (m DecreaseStimulus) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	schedule.Scale(m.Topic, m.Factor)
}

func (m AddSpike) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	cfg.Spikes = append(cfg.Spikes, sim.ThreatSpike{Step: m.Step, Intensity: m.Intensity})
}

func (m ChangeEventTiming) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	if schedule == nil {
		return
	}
	index := 0
	for _, step := range schedule.Steps() {
		cmds := schedule.CommandsFor(step)
		for i, cmd := range cmds {
			if index == m.Index {
				remaining := append(append([]sim.StimulusCommand(nil), cmds[:i]...), cmds[i+1:]...)
				schedule.SetStep(step, remaining)
				cmd.Step = m.NewStep
				schedule.Append(cmd)
				return
			}
			index++
		}
	}
}

func (m ChangeReproductionRate) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	cfg.ReproductionRate *= m.Factor
}

func (m ChangeInitialPopulation) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	if m.Count > 0 {
		cfg.InitialCellCount = m.Count
	}
}

func (m ChangeThreatProfile) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	cfg.ThreatProfile.BackgroundThreat = m.Background
}

func (m ChangeSpikeTiming) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	if m.Index >= 0 && m.Index < len(cfg.Spikes) {
		cfg.Spikes[m.Index].Step = m.NewStep
	}
}

func (m ChangeSpikeDuration) Apply(cfg *sim.ScenarioConfig, schedule *sim.StimulusSchedule) {
	if m.Index >= 0 && m.Index < len(cfg.Spikes) {
		cfg.Spikes[m.Index].Duration = m.Steps
	}
}

// randomStimulusBoost synthesizes the fallback mutation used when breeding
// has no recommendation to work from: a moderate boost on a random core
// topic.
func randomStimulusBoost(rng *rand.Rand) Mutation {
	topic := sim.TopicActivator
	if rng.Intn(2) == 1 {
		topic = sim.TopicInhibitor
	}
	return IncreaseStimulus{Topic: topic, Factor: 1.25 + rng.Float64()*0.5}
}

// mutationEnvelope is the tagged wire form: the Kind plus the variant's own
// fields as payload.
type mutationEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalMutation serializes a mutation into its tagged envelope. A nil
// mutation serializes to JSON null.
func MarshalMutation(m Mutation) ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(mutationEnvelope{Kind: m.Kind(), Payload: payload})
}

// UnmarshalMutation rebuilds a mutation from its tagged envelope. JSON null
// yields a nil mutation.
func UnmarshalMutation(data []byte) (Mutation, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env mutationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse mutation envelope: %w", err)
	}

	var target Mutation
	switch env.Kind {
	case IncreaseStimulus{}.Kind():
		var m IncreaseStimulus
		target = &m
	case DecreaseStimulus{}.Kind():
		var m DecreaseStimulus
		target = &m
	case AddSpike{}.Kind():
		var m AddSpike
		target = &m
	case ChangeEventTiming{}.Kind():
		var m ChangeEventTiming
		target = &m
	case ChangeReproductionRate{}.Kind():
		var m ChangeReproductionRate
		target = &m
	case ChangeInitialPopulation{}.Kind():
		var m ChangeInitialPopulation
		target = &m
	case ChangeThreatProfile{}.Kind():
		var m ChangeThreatProfile
		target = &m
	case ChangeSpikeTiming{}.Kind():
		var m ChangeSpikeTiming
		target = &m
	case ChangeSpikeDuration{}.Kind():
		var m ChangeSpikeDuration
		target = &m
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return nil, fmt.Errorf("parse %s mutation: %w", env.Kind, err)
	}
	return dereference(target), nil
}

// dereference unwraps the pointer targets used during decoding so mutations
// travel by value everywhere else.
func dereference(m Mutation) Mutation {
	switch v := m.(type) {
	case *IncreaseStimulus:
		return *v
	case *DecreaseStimulus:
		return *v
	case *AddSpike:
		return *v
	case *ChangeEventTiming:
		return *v
	case *ChangeReproductionRate:
		return *v
	case *ChangeInitialPopulation:
		return *v
	case *ChangeThreatProfile:
		return *v
	case *ChangeSpikeTiming:
		return *v
	case *ChangeSpikeDuration:
		return *v
	default:
		return m
	}
}
