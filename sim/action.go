package sim

import "github.com/defense-sim/defense-sim/sim/attest"

// Action is the single headline behavioral decision a cell returns per tick.
// The vocabulary is closed: the simulator switches exhaustively over these
// variants and nothing outside this package may add one.
//
// Passive state updates (trust deltas, stress and energy integration,
// immune-memory recording) are applied inside Decide before the action is
// chosen and are not represented here.
type Action interface {
	isAction()
}

// Idle does nothing this tick.
type Idle struct{}

// Die removes the cell from the population; the simulator deletes every
// topology edge referencing it.
type Die struct{}

// Replicate spawns a child with an inherited, independently mutated genome.
type Replicate struct {
	ChildID string
}

// Differentiate shifts the cell to a new lineage.
type Differentiate struct {
	Lineage Lineage
}

// Disconnect severs the edge to a neighbor and blacklists it locally.
type Disconnect struct {
	Target string
}

// EmitSignal publishes a broadcast signal for the next step.
type EmitSignal struct {
	Topic     string
	Magnitude float64
}

// ReportAnomaly publishes an attested accusation vote on a consensus topic.
type ReportAnomaly struct {
	Topic       string
	Confidence  float64
	Accused     string
	Attestation *attest.Attestation
}

func (Idle) isAction()          {}
func (Die) isAction()           {}
func (Replicate) isAction()     {}
func (Differentiate) isAction() {}
func (Disconnect) isAction()    {}
func (EmitSignal) isAction()    {}
func (ReportAnomaly) isAction() {}
