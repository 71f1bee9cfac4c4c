package sim

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/defense-sim/defense-sim/sim/attest"
)

func testSigner(t *testing.T, id string, dir *attest.PublicKeyDirectory) *attest.Signer {
	t.Helper()
	signer, err := attest.NewSigner(id, rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	dir.Register(id, signer.PublicKey())
	return signer
}

func TestDecide_NoThreat_IdlesAndRecharges(t *testing.T) {
	// GIVEN a fresh stem cell in a quiet environment
	cell := NewCell("c1")
	dir := attest.NewDirectory()

	// WHEN it decides one tick
	action := cell.Decide(&Environment{Step: 0}, dir)

	// THEN it idles and its energy recharges within bounds
	if _, ok := action.(Idle); !ok {
		t.Fatalf("expected Idle, got %T", action)
	}
	if cell.Energy <= DefaultEnergy || cell.Energy > MaxEnergy {
		t.Errorf("expected recharged energy in (1.0, 1.5], got %v", cell.Energy)
	}
	if cell.Dead {
		t.Error("cell must not die in a quiet environment")
	}
}

func TestDecide_EnergyExhaustion_Dies(t *testing.T) {
	// GIVEN a nearly drained cell under crushing threat
	cell := NewCell("c1")
	cell.Energy = 0.05
	dir := attest.NewDirectory()

	// WHEN the threat drains the remaining energy past the epsilon floor
	action := cell.Decide(&Environment{Step: 0, LocalThreat: 5.0}, dir)

	// THEN the cell dies exactly at the floor, never below zero energy
	if _, ok := action.(Die); !ok {
		t.Fatalf("expected Die, got %T", action)
	}
	if !cell.Dead {
		t.Error("dead flag must be set")
	}
	if cell.Energy < 0 || cell.Energy > EnergyEpsilon {
		t.Errorf("expected clamped energy <= epsilon, got %v", cell.Energy)
	}
}

func TestDecide_EnergyAlwaysClamped(t *testing.T) {
	// GIVEN many ticks across quiet and hostile environments
	cell := NewCell("c1")
	dir := attest.NewDirectory()
	threats := []float64{0, 0.4, 2.0, 0, 0.9, 0, 0, 3.0, 0.1, 0}

	for step, threat := range threats {
		if cell.Dead {
			break
		}
		cell.Decide(&Environment{Step: step, LocalThreat: threat}, dir)

		// THEN energy and stress never leave their ranges
		if cell.Energy < 0 || cell.Energy > MaxEnergy {
			t.Fatalf("step %d: energy %v out of [0, 1.5]", step, cell.Energy)
		}
		if cell.Stress < 0 || cell.Stress > 1 {
			t.Fatalf("step %d: stress %v out of [0, 1]", step, cell.Stress)
		}
	}
}

func TestDecide_HighThreat_ReplicatesAndPaysCost(t *testing.T) {
	// GIVEN a well-fed cell over the reproduction threshold
	cell := NewCell("c1")
	dir := attest.NewDirectory()

	// WHEN effective threat crosses the reproduction threshold
	action := cell.Decide(&Environment{Step: 0, LocalThreat: 0.9}, dir)

	// THEN it replicates, pays the energy cost, and names a derived child
	rep, ok := action.(Replicate)
	if !ok {
		t.Fatalf("expected Replicate, got %T", action)
	}
	if !strings.HasPrefix(rep.ChildID, "c1-") {
		t.Errorf("child id %q must derive from the parent", rep.ChildID)
	}
	if cell.Energy >= DefaultEnergy {
		t.Errorf("replication must deduct energy, got %v", cell.Energy)
	}
}

func TestDecide_HostileSignal_DamagesTrustWithoutBlockingAction(t *testing.T) {
	// GIVEN an unattested signal on a consensus topic from a neighbor
	cell := NewCell("c1")
	dir := attest.NewDirectory()
	env := &Environment{
		Step:              3,
		Signals:           []Signal{{Topic: AccuseTopic("victim"), Magnitude: 0.9, Source: "mal"}},
		DetectedNeighbors: []string{"mal"},
	}

	// WHEN the cell decides
	action := cell.Decide(env, dir)

	// THEN the sender is penalized and the cell still takes its tick
	if got := cell.Trust["mal"]; got != DefaultTrust-TrustPenalty {
		t.Errorf("expected trust %v, got %v", DefaultTrust-TrustPenalty, got)
	}
	if _, ok := action.(Idle); !ok {
		t.Errorf("expected Idle alongside the trust penalty, got %T", action)
	}
}

func TestDecide_UnattestedVote_NeverCounts(t *testing.T) {
	// GIVEN two unattested accusation signals whose magnitudes exceed quorum
	cell := NewCell("c1")
	dir := attest.NewDirectory()
	env := &Environment{
		Step: 3,
		Signals: []Signal{
			{Topic: AccuseTopic("bad"), Magnitude: 1.0, Source: "p1"},
			{Topic: AccuseTopic("bad"), Magnitude: 1.0, Source: "p2"},
		},
		DetectedNeighbors: []string{"bad", "p1", "p2"},
	}

	// THEN no quarantine happens: unsigned votes carry no weight
	if action := cell.Decide(env, dir); action == (Disconnect{Target: "bad"}) {
		t.Error("unattested votes must never reach quorum")
	}
}

func TestDecide_AttestedQuorum_QuarantinesAccused(t *testing.T) {
	// GIVEN two verified accusation votes whose weight sums past quorum
	cell := NewCell("c1")
	dir := attest.NewDirectory()
	s1 := testSigner(t, "p1", dir)
	s2 := testSigner(t, "p2", dir)

	v1 := Signal{Topic: AccuseTopic("bad"), Magnitude: 0.8, Source: "p1"}
	v1.Attestation, _ = s1.Attest(3, v1.CanonicalPayload())
	v2 := Signal{Topic: AccuseTopic("bad"), Magnitude: 0.8, Source: "p2"}
	v2.Attestation, _ = s2.Attest(3, v2.CanonicalPayload())

	env := &Environment{
		Step:              3,
		Signals:           []Signal{v1, v2},
		DetectedNeighbors: []string{"bad", "p1", "p2"},
	}

	// WHEN the cell decides
	action := cell.Decide(env, dir)

	// THEN it disconnects the accused and rewards the verified voters
	if action != (Disconnect{Target: "bad"}) {
		t.Fatalf("expected Disconnect{bad}, got %#v", action)
	}
	if got := cell.Trust["p1"]; got != DefaultTrust+TrustReward {
		t.Errorf("verified voter trust should rise, got %v", got)
	}
}

func TestDecide_LowTrustNeighbor_Disconnected(t *testing.T) {
	// GIVEN a neighbor whose trust fell below the genome floor
	cell := NewCell("c1")
	cell.Trust["shady"] = 0.1
	dir := attest.NewDirectory()
	env := &Environment{Step: 0, DetectedNeighbors: []string{"shady"}}

	if action := cell.Decide(env, dir); action != (Disconnect{Target: "shady"}) {
		t.Errorf("expected Disconnect{shady}, got %#v", action)
	}
}

func TestDecide_TrustPrunedForVanishedNeighbors(t *testing.T) {
	cell := NewCell("c1")
	cell.Trust["gone"] = 0.9
	cell.Trust["here"] = 0.9
	dir := attest.NewDirectory()

	cell.Decide(&Environment{Step: 0, DetectedNeighbors: []string{"here"}}, dir)

	if _, ok := cell.Trust["gone"]; ok {
		t.Error("trust entries for vanished neighbors must be pruned")
	}
	if _, ok := cell.Trust["here"]; !ok {
		t.Error("trust entries for detected neighbors must survive")
	}
}

func TestDecide_DetectorReportsAnomalyOnce(t *testing.T) {
	// GIVEN an intrusion-detection cell seeing a loud attributed activator
	cell := NewCell("c1")
	cell.Lineage = LineageIntrusionDetection
	dir := attest.NewDirectory()
	cell.Signer = testSigner(t, "c1", dir)

	env := &Environment{
		Step:              4,
		LocalThreat:       0.3,
		Signals:           []Signal{{Topic: TopicActivator, Magnitude: 0.6, Source: "noisy"}},
		DetectedNeighbors: []string{"noisy"},
	}

	// WHEN it decides
	action := cell.Decide(env, dir)

	// THEN it accuses the loudest source with a fresh attestation
	report, ok := action.(ReportAnomaly)
	if !ok {
		t.Fatalf("expected ReportAnomaly, got %T", action)
	}
	if report.Accused != "noisy" {
		t.Errorf("expected accusation of noisy, got %q", report.Accused)
	}
	if report.Attestation == nil {
		t.Fatal("anomaly report must carry an attestation")
	}
	vote := Signal{Topic: report.Topic, Magnitude: report.Confidence, Source: "c1"}
	if err := dir.Verify(report.Attestation, 4, vote.CanonicalPayload()); err != nil {
		t.Errorf("report attestation must verify: %v", err)
	}
	if len(cell.Memory) != 1 {
		t.Fatalf("expected one immune memory entry, got %d", len(cell.Memory))
	}

	// AND a matching event inside the memory window suppresses a repeat
	env.Step = 5
	if _, ok := cell.Decide(env, dir).(ReportAnomaly); ok {
		t.Error("matching immune memory must suppress re-reporting")
	}
}

func TestCloneForChild_InheritsStateWithFullEnergy(t *testing.T) {
	// GIVEN a parent with adapted genome, memory, and trust
	parent := NewCell("p")
	parent.Energy = 0.4
	parent.Genome.AnomalySensitivity = 0.33
	parent.Memory = []ThreatEvent{{Step: 2, Topic: TopicActivator, Magnitude: 0.9}}
	parent.Trust["peer"] = 0.7

	// WHEN it clones for a child
	child := parent.CloneForChild("p-child")

	// THEN the child inherits genome, memory, and trust but starts fresh
	if child.Genome.AnomalySensitivity != 0.33 {
		t.Error("child must inherit the parent genome")
	}
	if len(child.Memory) != 1 || child.Trust["peer"] != 0.7 {
		t.Error("child must inherit immune memory and trust")
	}
	if child.Energy != DefaultEnergy || child.Dead {
		t.Error("child must start alive with full default energy")
	}
	if child.Lineage != LineageStem {
		t.Error("child must start as a stem cell")
	}
}

func TestGenomeMutate_StaysWithinBounds(t *testing.T) {
	// GIVEN repeated mutation of an inherited genome
	genome := DefaultGenome()
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 500; i++ {
		genome.Mutate(rng)
	}

	// THEN every parameter stays inside its clamp bounds
	for _, p := range genome.params() {
		if *p.value < p.min || *p.value > p.max {
			t.Fatalf("parameter escaped [%v, %v]: %v", p.min, p.max, *p.value)
		}
	}
}
