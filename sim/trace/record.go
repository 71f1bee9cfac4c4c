// Package trace provides per-step metric records exchanged between the
// simulation engine and the evolution harness. This package has no
// dependencies on sim/ or evo/ — it stores pure data types.
package trace

// StepMetrics captures one simulation step's aggregate telemetry.
// The evolution harness consumes an ordered slice of these to score an
// attack candidate; the simulator produces one per step.
type StepMetrics struct {
	Step                   int                `json:"step"`
	ThreatScore            float64            `json:"threat_score"`
	CellCount              int                `json:"cell_count"`
	Replications           int                `json:"replications"`
	Deaths                 int                `json:"deaths"`
	SignalsTotal           int                `json:"signals_total"`
	LineageShiftsTotal     int                `json:"lineage_shifts_total"`
	StimulusTotal          float64            `json:"stimulus_total"`
	SignalsByTopic         map[string]int     `json:"signals_by_topic,omitempty"`
	LineageShiftsByLineage map[string]int     `json:"lineage_shifts_by_lineage,omitempty"`
	StimulusByTopic        map[string]float64 `json:"stimulus_by_topic,omitempty"`
}
