package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/defense-sim/defense-sim/sim/attest"
	"github.com/defense-sim/defense-sim/sim/trace"
)

// Simulator owns a run of the defense substrate: the cell population, the
// signal bus, the topology, the attestation key directory, and the
// partitioned RNG. It is single-threaded; determinism comes from ordered
// iteration and the SimulationKey, never from scheduling.
type Simulator struct {
	scenario  *ScenarioConfig
	cells     []*Cell
	bus       *SignalBus
	topology  *Topology
	directory *attest.PublicKeyDirectory
	telemetry TelemetrySink
	rng       *PartitionedRNG
}

// NewSimulator seeds the initial population from the scenario. Seed cells
// are named cell-0..cell-N-1; under the graph topology they are linked into
// a linear chain. Every cell gets a signing key from the deterministic key
// stream and publishes it in the run's directory.
func NewSimulator(cfg *ScenarioConfig, key SimulationKey, sink TelemetrySink) (*Simulator, error) {
	if sink == nil {
		sink = &InMemorySink{}
	}
	s := &Simulator{
		scenario:  cfg,
		bus:       &SignalBus{},
		topology:  NewTopology(cfg.Topology.Strategy),
		directory: attest.NewDirectory(),
		telemetry: sink,
		rng:       NewPartitionedRNG(key),
	}

	ids := make([]string, 0, cfg.InitialCellCount)
	for i := 0; i < cfg.InitialCellCount; i++ {
		cell := NewCell(fmt.Sprintf("cell-%d", i))
		// A reproduction rate above 1 lowers the bar to replicate;
		// children inherit the scaled threshold through the genome.
		cell.Genome.ReproductionThreshold = clampFloat(cell.Genome.ReproductionThreshold/cfg.ReproductionRate, 0.2, 1.5)
		if err := s.attachSigner(cell); err != nil {
			return nil, err
		}
		s.cells = append(s.cells, cell)
		ids = append(ids, cell.ID)
	}
	s.topology.SeedChain(ids)

	sink.Record(TelemetryEvent{
		Kind:      EventScenario,
		Scenario:  cfg.ScenarioName,
		CellCount: len(s.cells),
	})
	logrus.Debugf("Seeded scenario %q with %d cells (%s topology)", cfg.ScenarioName, len(s.cells), cfg.Topology.Strategy)
	return s, nil
}

func (s *Simulator) attachSigner(cell *Cell) error {
	signer, err := attest.NewSigner(cell.ID, s.rng.ForSubsystem(SubsystemKeys))
	if err != nil {
		return err
	}
	cell.Signer = signer
	s.directory.Register(cell.ID, signer.PublicKey())
	return nil
}

// Cells returns the live population in iteration order.
func (s *Simulator) Cells() []*Cell {
	return s.cells
}

// Directory exposes the run's attestation key directory.
func (s *Simulator) Directory() *attest.PublicKeyDirectory {
	return s.directory
}

// Bus exposes the pending signal queue, mainly so callers can inject
// stimulus between steps.
func (s *Simulator) Bus() *SignalBus {
	return s.bus
}

// Topology exposes the neighbor graph.
func (s *Simulator) Topology() *Topology {
	return s.topology
}

// decision pairs a cell with the action it chose, so the apply phase can
// run after every cell has decided.
type decision struct {
	cell   *Cell
	action Action
}

// Step advances the simulation one tick. Phase one drains the bus into an
// immutable snapshot and lets every cell decide against it; phase two
// applies the chosen actions in population order. No cell ever observes an
// action taken in the same step.
func (s *Simulator) Step(stepIdx int, threat float64) trace.StepMetrics {
	metrics := trace.StepMetrics{
		Step:                   stepIdx,
		ThreatScore:            threat,
		SignalsByTopic:         make(map[string]int),
		LineageShiftsByLineage: make(map[string]int),
	}

	snapshot := s.bus.Drain()

	decisions := make([]decision, 0, len(s.cells))
	for _, cell := range s.cells {
		env := s.buildEnvironment(cell, stepIdx, threat, snapshot)
		decisions = append(decisions, decision{cell: cell, action: cell.Decide(env, s.directory)})
	}

	var children []*Cell
	for _, d := range decisions {
		s.apply(stepIdx, d, &metrics, &children)
	}
	s.cells = append(s.cells, children...)
	s.reap(stepIdx)

	metrics.CellCount = len(s.cells)
	s.telemetry.Record(TelemetryEvent{
		Kind:        EventStepSummary,
		Step:        stepIdx,
		ThreatScore: threat,
		CellCount:   len(s.cells),
	})
	return metrics
}

// buildEnvironment assembles one cell's immutable view of the step: the
// visible slice of the drained snapshot plus the detected neighbor set.
func (s *Simulator) buildEnvironment(cell *Cell, stepIdx int, threat float64, snapshot []Signal) *Environment {
	var visible []Signal
	for i := range snapshot {
		if s.topology.Visible(&snapshot[i], cell.ID, cell.Blacklist) {
			visible = append(visible, snapshot[i])
		}
	}
	return &Environment{
		Step:              stepIdx,
		LocalThreat:       threat,
		Signals:           visible,
		DetectedNeighbors: s.detectedNeighbors(cell),
	}
}

// detectedNeighbors is every other live cell under the global strategy, or
// the adjacency list under the graph strategy. Blacklisted peers are never
// detected; quarantine is permanent from the quarantining side.
func (s *Simulator) detectedNeighbors(cell *Cell) []string {
	var detected []string
	if s.topology.Strategy == TopologyGraph {
		for _, id := range s.topology.Neighbors(cell.ID) {
			if !cell.Blacklist[id] {
				detected = append(detected, id)
			}
		}
		return detected
	}
	for _, other := range s.cells {
		if other.ID != cell.ID && !other.Dead && !cell.Blacklist[other.ID] {
			detected = append(detected, other.ID)
		}
	}
	sort.Strings(detected)
	return detected
}

func (s *Simulator) apply(stepIdx int, d decision, metrics *trace.StepMetrics, children *[]*Cell) {
	cell := d.cell
	switch a := d.action.(type) {
	case Idle:

	case Die:
		metrics.Deaths++
		s.telemetry.Record(TelemetryEvent{
			Kind:   EventCellDied,
			Step:   stepIdx,
			CellID: cell.ID,
		})

	case Replicate:
		child := cell.CloneForChild(a.ChildID)
		child.Genome.Mutate(s.rng.ForSubsystem(SubsystemGenome))
		if err := s.attachSigner(child); err != nil {
			logrus.Warnf("Failed to issue signing key for %s: %v", child.ID, err)
			return
		}
		*children = append(*children, child)
		metrics.Replications++
		s.telemetry.Record(TelemetryEvent{
			Kind:     EventCellReplicated,
			Step:     stepIdx,
			CellID:   cell.ID,
			TargetID: child.ID,
		})
		if s.topology.Strategy == TopologyGraph {
			s.topology.AddEdge(cell.ID, child.ID)
			s.telemetry.Record(TelemetryEvent{
				Kind:     EventLinkAdded,
				Step:     stepIdx,
				CellID:   cell.ID,
				TargetID: child.ID,
			})
		}

	case Differentiate:
		cell.Lineage = a.Lineage
		metrics.LineageShiftsTotal++
		metrics.LineageShiftsByLineage[string(a.Lineage)]++
		s.telemetry.Record(TelemetryEvent{
			Kind:    EventLineageShift,
			Step:    stepIdx,
			CellID:  cell.ID,
			Lineage: string(a.Lineage),
		})

	case Disconnect:
		if s.topology.RemoveEdge(cell.ID, a.Target) {
			s.telemetry.Record(TelemetryEvent{
				Kind:     EventLinkRemoved,
				Step:     stepIdx,
				CellID:   cell.ID,
				TargetID: a.Target,
			})
		}
		cell.Blacklist[a.Target] = true
		s.bus.PurgeFrom(a.Target)
		s.telemetry.Record(TelemetryEvent{
			Kind:     EventPeerQuarantined,
			Step:     stepIdx,
			CellID:   cell.ID,
			TargetID: a.Target,
		})

	case EmitSignal:
		sig := Signal{Topic: a.Topic, Magnitude: a.Magnitude, Source: cell.ID}
		if cell.Signer != nil {
			if att, ok := cell.Signer.Attest(stepIdx, sig.CanonicalPayload()); ok {
				sig.Attestation = att
			}
		}
		s.bus.Publish(sig)
		metrics.SignalsTotal++
		metrics.SignalsByTopic[a.Topic]++
		s.telemetry.Record(TelemetryEvent{
			Kind:      EventSignalEmitted,
			Step:      stepIdx,
			CellID:    cell.ID,
			Topic:     a.Topic,
			Magnitude: a.Magnitude,
		})

	case ReportAnomaly:
		s.bus.Publish(Signal{
			Topic:       a.Topic,
			Magnitude:   a.Confidence,
			Source:      cell.ID,
			Attestation: a.Attestation,
		})
		metrics.SignalsTotal++
		metrics.SignalsByTopic[a.Topic]++
		s.telemetry.Record(TelemetryEvent{
			Kind:       EventAnomalyDetected,
			Step:       stepIdx,
			CellID:     cell.ID,
			TargetID:   a.Accused,
			Confidence: a.Confidence,
		})
		s.telemetry.Record(TelemetryEvent{
			Kind:       EventVoteCast,
			Step:       stepIdx,
			CellID:     cell.ID,
			TargetID:   a.Accused,
			Topic:      a.Topic,
			Confidence: a.Confidence,
		})
	}
}

// reap removes dead cells: population slot, published key, every topology
// edge. Removed edges are logged so the graph history stays auditable.
func (s *Simulator) reap(stepIdx int) {
	live := s.cells[:0]
	for _, cell := range s.cells {
		if !cell.Dead {
			live = append(live, cell)
			continue
		}
		s.directory.Remove(cell.ID)
		for _, edge := range s.topology.RemoveCell(cell.ID) {
			s.telemetry.Record(TelemetryEvent{
				Kind:     EventLinkRemoved,
				Step:     stepIdx,
				CellID:   edge.A,
				TargetID: edge.B,
			})
		}
	}
	s.cells = live
}

// Run executes the scenario end to end: for each step it injects the
// scenario threat (plus an activator stimulus when the threat crosses the
// spike threshold), plays the external stimulus schedule, then advances one
// tick. Returns the ordered per-step metrics.
func (s *Simulator) Run(schedule *StimulusSchedule) []trace.StepMetrics {
	results := make([]trace.StepMetrics, 0, s.scenario.SimulationSteps)
	for step := 0; step < s.scenario.SimulationSteps; step++ {
		threat := s.scenario.ThreatAt(step)

		stimulusByTopic := make(map[string]float64)
		if threat >= s.scenario.ThreatProfile.SpikeThreshold {
			s.bus.Publish(Signal{Topic: TopicActivator, Magnitude: threat})
			stimulusByTopic[TopicActivator] += threat
		}
		for _, cmd := range schedule.CommandsFor(step) {
			s.bus.Publish(Signal{
				Topic:     cmd.Topic,
				Magnitude: cmd.Magnitude,
				Target:    cmd.Target,
			})
			stimulusByTopic[cmd.Topic] += cmd.Magnitude
		}

		metrics := s.Step(step, threat)
		for _, magnitude := range stimulusByTopic {
			metrics.StimulusTotal += magnitude
		}
		if len(stimulusByTopic) > 0 {
			metrics.StimulusByTopic = stimulusByTopic
		}
		results = append(results, metrics)

		if len(s.cells) == 0 {
			logrus.Debugf("Population extinct at step %d, ending run early", step)
			break
		}
	}
	return results
}
