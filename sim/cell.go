package sim

import (
	"sort"

	"github.com/google/uuid"

	"github.com/defense-sim/defense-sim/sim/attest"
)

// Lineage is a cell's differentiated role.
type Lineage string

const (
	LineageStem               Lineage = "Stem"
	LineageFirewall           Lineage = "Firewall"
	LineageIntrusionDetection Lineage = "IntrusionDetection"
	LineageEncryption         Lineage = "Encryption"
	LineageHealer             Lineage = "Healer"
)

// Behavioral constants shared by every cell regardless of genome.
const (
	// MaxEnergy is the energy ceiling; a replicated child starts at
	// DefaultEnergy.
	MaxEnergy     = 1.5
	DefaultEnergy = 1.0

	// EnergyEpsilon is the floor below which a cell dies.
	EnergyEpsilon = 0.01

	// DefaultTrust seeds the score for a neighbor seen for the first time.
	DefaultTrust = 0.5
	// TrustReward / TrustPenalty move a neighbor's score on attestation
	// verification success / failure.
	TrustReward  = 0.05
	TrustPenalty = 0.15

	// VoteQuorum is the aggregate attested accusation weight beyond which
	// a neighbor is quarantined by consensus.
	VoteQuorum = 1.5

	// MemoryWindow is how many steps an immune-memory entry suppresses
	// re-reporting of a matching threat event.
	MemoryWindow = 50

	// suppressionCeiling: anomaly reporting is skipped while inhibitor
	// pressure is at or above this level.
	suppressionCeiling = 0.2
)

// ThreatEvent is one entry in a cell's immune memory.
type ThreatEvent struct {
	Step       int     `json:"step"`
	Topic      string  `json:"topic"`
	Magnitude  float64 `json:"magnitude"`
	Confidence float64 `json:"confidence"`
}

// Environment is the immutable per-step view a cell decides against. The
// simulator builds one per cell from the drained signal snapshot; a cell
// never observes actions taken by other cells in the same step.
type Environment struct {
	Step              int
	LocalThreat       float64
	Signals           []Signal
	DetectedNeighbors []string
}

// Cell is one autonomous agent of the defense substrate.
type Cell struct {
	ID      string
	Lineage Lineage
	Energy  float64
	Stress  float64
	Dead    bool

	Genome    Genome
	Memory    []ThreatEvent
	Trust     map[string]float64
	Blacklist map[string]bool

	Signer *attest.Signer
}

// NewCell returns a stem cell with the default genome and full energy.
// The caller is responsible for attaching a Signer and registering its key.
func NewCell(id string) *Cell {
	return &Cell{
		ID:        id,
		Lineage:   LineageStem,
		Energy:    DefaultEnergy,
		Genome:    DefaultGenome(),
		Trust:     make(map[string]float64),
		Blacklist: make(map[string]bool),
	}
}

// signalPressure is the aggregated view of one step's visible signals.
type signalPressure struct {
	activator   float64
	inhibitor   float64
	cooperative float64
	// votes accumulates attested accusation weight per accused identity.
	votes map[string]float64
	// loudestSource is the origin of the highest-magnitude attributed
	// activator signal, used to pick whom to accuse.
	loudestSource    string
	loudestMagnitude float64
}

// Decide evaluates one tick. Passive updates — signal aggregation, trust
// deltas, trust pruning, stress and energy integration — are applied to the
// cell's state unconditionally; then the priority ladder picks exactly one
// headline action. Receiving a hostile signal therefore both damages trust
// in its sender and still lets the cell act this tick.
func (c *Cell) Decide(env *Environment, dir *attest.PublicKeyDirectory) Action {
	pressure := c.absorbSignals(env, dir)
	c.pruneTrust(env.DetectedNeighbors)

	effectiveThreat := env.LocalThreat + pressure.activator - pressure.inhibitor*c.Genome.ThreatInhibitorFactor
	if effectiveThreat < 0 {
		effectiveThreat = 0
	}

	c.Stress = clampFloat(c.Stress*c.Genome.StressDecay+effectiveThreat*c.Genome.StressSensitivity, 0, 1)
	c.Energy = clampFloat(c.Energy+c.Genome.EnergyRecharge-effectiveThreat*c.Genome.ThreatEnergyDrain-pressure.inhibitor*c.Genome.InhibitorEnergyDrain, 0, MaxEnergy)

	if c.Energy <= EnergyEpsilon {
		c.Dead = true
		return Die{}
	}

	if accused, ok := c.quorumAccused(pressure.votes, env.DetectedNeighbors); ok {
		return Disconnect{Target: accused}
	}

	for _, neighbor := range env.DetectedNeighbors {
		if score, ok := c.Trust[neighbor]; ok && score < c.Genome.MinTrustThreshold {
			return Disconnect{Target: neighbor}
		}
	}

	if c.Stress > c.Genome.IsolationThreshold && len(env.DetectedNeighbors) > 0 {
		return Disconnect{Target: env.DetectedNeighbors[0]}
	}

	if action, ok := c.reportAnomaly(env, pressure, effectiveThreat); ok {
		return action
	}

	if effectiveThreat >= c.Genome.ReproductionThreshold && c.Energy >= c.Genome.ReproductionEnergyMin {
		c.Energy -= c.Genome.ReproductionCost
		return Replicate{ChildID: c.ID + "-" + uuid.NewString()[:8]}
	}

	if c.Stress >= c.Genome.StressDifferentiationThreshold && c.Lineage != LineageIntrusionDetection {
		return Differentiate{Lineage: LineageIntrusionDetection}
	}

	if pressure.inhibitor >= c.Genome.HealerInhibitorThreshold && c.Stress <= c.Genome.HealerStressLimit && c.Lineage != LineageHealer {
		return Differentiate{Lineage: LineageHealer}
	}

	if pressure.cooperative >= c.Genome.EncryptionCooperativeThreshold && c.Energy >= c.Genome.EncryptionEnergyMin && c.Lineage != LineageEncryption {
		return Differentiate{Lineage: LineageEncryption}
	}

	if effectiveThreat >= c.Genome.SignalEmissionThreshold {
		return EmitSignal{Topic: TopicActivator, Magnitude: effectiveThreat}
	}

	return Idle{}
}

// absorbSignals folds the visible signals into aggregate pressure and
// applies trust deltas for every attributed signal. Accusation votes count
// only when carried by a cryptographically valid, fresh, payload-bound
// attestation; unattested signals on consensus topics are always penalized.
func (c *Cell) absorbSignals(env *Environment, dir *attest.PublicKeyDirectory) signalPressure {
	pressure := signalPressure{votes: make(map[string]float64)}

	for i := range env.Signals {
		sig := &env.Signals[i]

		switch sig.Topic {
		case TopicActivator:
			pressure.activator += sig.Magnitude
			if sig.Source != "" && sig.Magnitude > pressure.loudestMagnitude {
				pressure.loudestSource = sig.Source
				pressure.loudestMagnitude = sig.Magnitude
			}
		case TopicInhibitor:
			pressure.inhibitor += sig.Magnitude
		case TopicCooperative:
			pressure.cooperative += sig.Magnitude
		}

		if sig.Source == "" {
			continue
		}

		if sig.Attestation == nil {
			if IsConsensusTopic(sig.Topic) {
				c.adjustTrust(sig.Source, -TrustPenalty)
			}
			continue
		}

		if err := dir.Verify(sig.Attestation, env.Step, sig.CanonicalPayload()); err != nil {
			c.adjustTrust(sig.Source, -TrustPenalty)
			continue
		}
		c.adjustTrust(sig.Source, TrustReward)

		if accused, ok := AccusedFromTopic(sig.Topic); ok {
			pressure.votes[accused] += sig.Magnitude
		}
	}

	return pressure
}

func (c *Cell) adjustTrust(source string, delta float64) {
	score, ok := c.Trust[source]
	if !ok {
		score = DefaultTrust
	}
	c.Trust[source] = clampFloat(score+delta, 0, 1)
}

// pruneTrust drops trust entries for neighbors no longer detected.
func (c *Cell) pruneTrust(detected []string) {
	if len(c.Trust) == 0 {
		return
	}
	visible := make(map[string]bool, len(detected))
	for _, id := range detected {
		visible[id] = true
	}
	for id := range c.Trust {
		if !visible[id] {
			delete(c.Trust, id)
		}
	}
}

// quorumAccused returns the first accused identity (in sorted order, for
// determinism) whose aggregate vote weight exceeds VoteQuorum and that is a
// currently detected neighbor.
func (c *Cell) quorumAccused(votes map[string]float64, detected []string) (string, bool) {
	if len(votes) == 0 {
		return "", false
	}
	accusedIDs := make([]string, 0, len(votes))
	for id := range votes {
		accusedIDs = append(accusedIDs, id)
	}
	sort.Strings(accusedIDs)
	for _, id := range accusedIDs {
		if votes[id] > VoteQuorum && contains(detected, id) {
			return id, true
		}
	}
	return "", false
}

// reportAnomaly evaluates the IntrusionDetection reporting rung: fires only
// when the cell is an unsuppressed detector seeing effective threat above
// its sensitivity with no matching immune-memory entry inside MemoryWindow.
// Recording the event adapts the genome defensively: the detector becomes
// more sensitive and harder to suppress.
func (c *Cell) reportAnomaly(env *Environment, pressure signalPressure, effectiveThreat float64) (Action, bool) {
	if c.Lineage != LineageIntrusionDetection {
		return nil, false
	}
	if effectiveThreat <= c.Genome.AnomalySensitivity || pressure.inhibitor >= suppressionCeiling {
		return nil, false
	}
	for _, event := range c.Memory {
		if event.Topic == TopicActivator && env.Step-event.Step <= MemoryWindow {
			return nil, false
		}
	}
	if pressure.loudestSource == "" || c.Signer == nil {
		return nil, false
	}

	confidence := clampFloat(effectiveThreat, 0, 1)
	c.Memory = append(c.Memory, ThreatEvent{
		Step:       env.Step,
		Topic:      TopicActivator,
		Magnitude:  effectiveThreat,
		Confidence: confidence,
	})
	c.Genome.AnomalySensitivity = clampFloat(c.Genome.AnomalySensitivity*0.95, 0.1, 1.5)
	c.Genome.ThreatInhibitorFactor = clampFloat(c.Genome.ThreatInhibitorFactor*0.95, 0.1, 2.0)

	topic := AccuseTopic(pressure.loudestSource)
	vote := Signal{Topic: topic, Magnitude: confidence, Source: c.ID}
	att, ok := c.Signer.Attest(env.Step, vote.CanonicalPayload())
	if !ok {
		return nil, false
	}
	return ReportAnomaly{
		Topic:       topic,
		Confidence:  confidence,
		Accused:     pressure.loudestSource,
		Attestation: att,
	}, true
}

// CloneForChild copies the inheritable state for a replicated child:
// genome (mutated separately by the simulator), immune memory, and trust
// map. The child starts alive with full default energy.
func (c *Cell) CloneForChild(childID string) *Cell {
	child := NewCell(childID)
	child.Genome = c.Genome
	child.Memory = append([]ThreatEvent(nil), c.Memory...)
	for id, score := range c.Trust {
		child.Trust[id] = score
	}
	return child
}
