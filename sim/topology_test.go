package sim

import (
	"testing"
)

func TestTopology_ChainRouting(t *testing.T) {
	// GIVEN a linear chain a - b - c
	top := NewTopology(TopologyGraph)
	top.SeedChain([]string{"a", "b", "c"})

	sig := Signal{Topic: TopicActivator, Magnitude: 0.5, Source: "a"}

	// THEN the signal reaches the adjacent node only
	if !top.Visible(&sig, "b", nil) {
		t.Error("adjacent node must see the signal")
	}
	if top.Visible(&sig, "c", nil) {
		t.Error("non-adjacent node must not see the signal")
	}
	if top.Visible(&sig, "a", nil) {
		t.Error("a cell never sees its own signal")
	}
}

func TestTopology_GlobalDeliversToAll(t *testing.T) {
	top := NewTopology(TopologyGlobal)
	sig := Signal{Topic: TopicActivator, Source: "a"}

	if !top.Visible(&sig, "z", nil) {
		t.Error("global topology needs no adjacency")
	}
	if top.Visible(&sig, "z", map[string]bool{"a": true}) {
		t.Error("blacklisted sources are filtered under every strategy")
	}
}

func TestTopology_UnicastTargetFiltering(t *testing.T) {
	top := NewTopology(TopologyGlobal)
	sig := Signal{Topic: TopicActivator, Target: "b"}

	if !top.Visible(&sig, "b", nil) {
		t.Error("the unicast target must receive the signal")
	}
	if top.Visible(&sig, "c", nil) {
		t.Error("non-targets must not receive a unicast signal")
	}
}

func TestTopology_SystemSignalsAlwaysRoutable(t *testing.T) {
	// GIVEN a graph topology with no adjacency at all
	top := NewTopology(TopologyGraph)
	sig := Signal{Topic: TopicActivator}

	// THEN an unattributed system signal still reaches every cell
	if !top.Visible(&sig, "isolated", nil) {
		t.Error("system signals bypass adjacency")
	}
}

func TestTopology_RemoveEdgeBothDirections(t *testing.T) {
	top := NewTopology(TopologyGraph)
	top.AddEdge("a", "b")

	if !top.RemoveEdge("a", "b") {
		t.Fatal("existing edge should report removal")
	}
	if len(top.Neighbors("a")) != 0 || len(top.Neighbors("b")) != 0 {
		t.Error("edge must vanish from both adjacency lists")
	}
	if top.RemoveEdge("a", "b") {
		t.Error("second removal must report nothing removed")
	}
}

func TestTopology_RemoveCellReportsEdges(t *testing.T) {
	// GIVEN a hub with two spokes
	top := NewTopology(TopologyGraph)
	top.AddEdge("hub", "s1")
	top.AddEdge("hub", "s2")

	removed := top.RemoveCell("hub")

	if len(removed) != 2 {
		t.Fatalf("expected 2 removed edges, got %d", len(removed))
	}
	if len(top.Neighbors("s1")) != 0 || len(top.Neighbors("s2")) != 0 {
		t.Error("spokes must forget the removed hub")
	}
}

func TestTopology_AddEdgeDeduplicates(t *testing.T) {
	top := NewTopology(TopologyGraph)
	top.AddEdge("a", "b")
	top.AddEdge("a", "b")
	top.AddEdge("b", "a")
	top.AddEdge("a", "a")

	if got := top.Neighbors("a"); len(got) != 1 {
		t.Errorf("expected a single deduplicated edge, got %v", got)
	}
}

func TestSignalBus_DrainPreservesOrderAndEmpties(t *testing.T) {
	bus := &SignalBus{}
	bus.Publish(Signal{Topic: TopicActivator, Source: "a"})
	bus.Publish(Signal{Topic: TopicInhibitor, Source: "b"})

	drained := bus.Drain()

	if len(drained) != 2 || drained[0].Source != "a" || drained[1].Source != "b" {
		t.Errorf("drain must preserve publication order, got %v", drained)
	}
	if bus.Len() != 0 {
		t.Error("drain must empty the bus")
	}
}

func TestSignalBus_PurgeFromDropsBroadcastAndTargeted(t *testing.T) {
	// GIVEN pending traffic from a peer about to be quarantined
	bus := &SignalBus{}
	bus.Publish(Signal{Topic: TopicActivator, Source: "mal"})
	bus.Publish(Signal{Topic: TopicActivator, Source: "ok"})
	bus.Publish(Signal{Topic: TopicInhibitor, Source: "mal", Target: "victim"})

	bus.PurgeFrom("mal")

	drained := bus.Drain()
	if len(drained) != 1 || drained[0].Source != "ok" {
		t.Errorf("purge must drop every signal from the source, got %v", drained)
	}
}

func TestAccuseTopic_RoundTrip(t *testing.T) {
	topic := AccuseTopic("cell-3")

	if !IsConsensusTopic(topic) {
		t.Error("accusation topics are consensus topics")
	}
	accused, ok := AccusedFromTopic(topic)
	if !ok || accused != "cell-3" {
		t.Errorf("expected cell-3, got %q (%v)", accused, ok)
	}
	if _, ok := AccusedFromTopic(TopicActivator); ok {
		t.Error("plain topics carry no accusation")
	}
	if IsConsensusTopic(TopicActivator) {
		t.Error("activator is not a consensus topic")
	}
}
