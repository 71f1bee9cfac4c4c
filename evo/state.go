package evo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/defense-sim/defense-sim/sim"
)

// Snapshot is the harness's complete persistable state. A restored harness
// carries the same config, backlog, and archive verbatim; only the RNG
// streams restart from the supplied key.
type Snapshot struct {
	Config  Config            `json:"config"`
	Backlog []AttackCandidate `json:"backlog"`
	Archive []AttackOutcome   `json:"archive"`
}

// Snapshot captures the harness state.
func (h *Harness) Snapshot() Snapshot {
	return Snapshot{
		Config:  h.cfg,
		Backlog: append([]AttackCandidate(nil), h.backlog...),
		Archive: append([]AttackOutcome(nil), h.archive...),
	}
}

// RestoreHarness rebuilds a harness from a snapshot.
func RestoreHarness(snap Snapshot, key sim.SimulationKey) (*Harness, error) {
	h, err := NewHarness(snap.Config, key)
	if err != nil {
		return nil, err
	}
	h.backlog = append([]AttackCandidate(nil), snap.Backlog...)
	h.archive = append([]AttackOutcome(nil), snap.Archive...)
	return h, nil
}

// SaveState writes a snapshot to a JSON file.
func SaveState(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode harness state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write harness state %s: %w", path, err)
	}
	return nil
}

// LoadState reads a snapshot from a JSON file.
func LoadState(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read harness state %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse harness state %s: %w", path, err)
	}
	return snap, nil
}
