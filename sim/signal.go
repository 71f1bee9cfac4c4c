package sim

import (
	"fmt"
	"strings"

	"github.com/defense-sim/defense-sim/sim/attest"
)

// Well-known signal topics. Activator raises effective threat, inhibitor
// damps it, cooperative invites Encryption differentiation. Consensus
// topics carry attested accusation votes and are never trusted unsigned.
const (
	TopicActivator   = "activator"
	TopicInhibitor   = "inhibitor"
	TopicCooperative = "cooperative"

	consensusPrefix = "consensus:"
	accusePrefix    = "consensus:accuse:"
)

// AccuseTopic builds the consensus accusation topic for a given accused
// identity.
func AccuseTopic(accused string) string {
	return accusePrefix + accused
}

// AccusedFromTopic extracts the accused identity from an accusation topic,
// returning false for any other topic.
func AccusedFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, accusePrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, accusePrefix), true
}

// IsConsensusTopic reports whether a topic participates in the attested
// consensus protocol.
func IsConsensusTopic(topic string) bool {
	return strings.HasPrefix(topic, consensusPrefix)
}

// Signal is one message on the bus. Source is empty for system-injected
// stimuli. Target, when set, restricts delivery to a single recipient.
type Signal struct {
	Topic       string              `json:"topic"`
	Magnitude   float64             `json:"magnitude"`
	Source      string              `json:"source,omitempty"`
	Target      string              `json:"target,omitempty"`
	Attestation *attest.Attestation `json:"attestation,omitempty"`
}

// CanonicalPayload is the string an attestation over this signal binds.
// Sender and receiver must compute it identically, so it is derived only
// from fields that travel with the signal.
func (s *Signal) CanonicalPayload() string {
	return fmt.Sprintf("%s:%.4f", s.Topic, s.Magnitude)
}

// SignalBus is the FIFO queue of signals pending delivery at the next step.
// Publishing never delivers immediately; the simulator drains the bus into
// an immutable snapshot at the start of each step.
type SignalBus struct {
	queue []Signal
}

// Publish appends a signal to the back of the queue.
func (b *SignalBus) Publish(sig Signal) {
	b.queue = append(b.queue, sig)
}

// Len returns the number of pending signals.
func (b *SignalBus) Len() int {
	return len(b.queue)
}

// Drain removes and returns all pending signals in publication order.
func (b *SignalBus) Drain() []Signal {
	drained := b.queue
	b.queue = nil
	return drained
}

// PurgeFrom drops every pending signal originating from source, broadcast
// and targeted alike. A quarantined node must not get one last word in.
func (b *SignalBus) PurgeFrom(source string) {
	kept := b.queue[:0]
	for _, sig := range b.queue {
		if sig.Source != source {
			kept = append(kept, sig)
		}
	}
	b.queue = kept
}
