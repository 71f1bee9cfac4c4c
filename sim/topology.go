package sim

import "sort"

// TopologyStrategy selects the delivery model for the signal router.
type TopologyStrategy string

const (
	// TopologyGlobal delivers every signal to every cell, subject only to
	// blacklist and unicast-target filtering. No adjacency is kept.
	TopologyGlobal TopologyStrategy = "global"

	// TopologyGraph delivers a signal only when its source is adjacent to
	// the recipient in an explicit bidirectional neighbor graph.
	TopologyGraph TopologyStrategy = "graph"
)

// Edge is one removed or added adjacency pair, reported for logging.
type Edge struct {
	A, B string
}

// Topology routes signals and maintains the neighbor graph. Adjacency is
// keyed by cell identity rather than held as a pointer graph: removal is a
// map delete plus symmetric edge cleanup, never a traversal.
type Topology struct {
	Strategy  TopologyStrategy
	adjacency map[string][]string
}

// NewTopology returns an empty topology with the given strategy.
func NewTopology(strategy TopologyStrategy) *Topology {
	return &Topology{
		Strategy:  strategy,
		adjacency: make(map[string][]string),
	}
}

// SeedChain links ids into a linear chain: ids[0]-ids[1]-...-ids[n-1].
// Only meaningful under TopologyGraph; a no-op under TopologyGlobal.
func (t *Topology) SeedChain(ids []string) {
	if t.Strategy != TopologyGraph {
		return
	}
	for i := 1; i < len(ids); i++ {
		t.AddEdge(ids[i-1], ids[i])
	}
}

// AddEdge inserts a bidirectional edge between a and b. Duplicate edges are
// ignored.
func (t *Topology) AddEdge(a, b string) {
	if a == b || t.Strategy != TopologyGraph {
		return
	}
	if !contains(t.adjacency[a], b) {
		t.adjacency[a] = append(t.adjacency[a], b)
	}
	if !contains(t.adjacency[b], a) {
		t.adjacency[b] = append(t.adjacency[b], a)
	}
}

// RemoveEdge deletes the edge between a and b in both directions. It
// reports whether an edge existed.
func (t *Topology) RemoveEdge(a, b string) bool {
	removedA := removeFrom(t.adjacency, a, b)
	removedB := removeFrom(t.adjacency, b, a)
	return removedA || removedB
}

// RemoveCell deletes id and every edge referencing it, returning the
// removed edges for logging.
func (t *Topology) RemoveCell(id string) []Edge {
	var removed []Edge
	for _, neighbor := range t.adjacency[id] {
		removeFrom(t.adjacency, neighbor, id)
		removed = append(removed, Edge{A: id, B: neighbor})
	}
	delete(t.adjacency, id)
	return removed
}

// Neighbors returns id's adjacency list sorted for deterministic iteration.
// Under TopologyGlobal the caller supplies the full population instead.
func (t *Topology) Neighbors(id string) []string {
	neighbors := append([]string(nil), t.adjacency[id]...)
	sort.Strings(neighbors)
	return neighbors
}

// Visible reports whether a drained signal is deliverable to recipient.
// Blacklisted sources and mismatched unicast targets are filtered under
// both strategies; under TopologyGraph the source must additionally be
// adjacent to the recipient. System signals (empty source) are always
// routable.
func (t *Topology) Visible(sig *Signal, recipient string, blacklist map[string]bool) bool {
	if sig.Source == recipient {
		return false
	}
	if sig.Source != "" && blacklist[sig.Source] {
		return false
	}
	if sig.Target != "" && sig.Target != recipient {
		return false
	}
	if t.Strategy == TopologyGraph && sig.Source != "" {
		return contains(t.adjacency[recipient], sig.Source)
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeFrom(adjacency map[string][]string, key, value string) bool {
	list := adjacency[key]
	for i, v := range list {
		if v == value {
			adjacency[key] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}
