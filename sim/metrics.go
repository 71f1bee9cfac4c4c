package sim

import (
	"fmt"

	"github.com/defense-sim/defense-sim/sim/trace"
)

// RunReport aggregates a whole run's per-step metrics for final display.
type RunReport struct {
	Steps        int
	FinalCells   int
	Replications int
	Deaths       int
	Signals      int
	Shifts       int
	Stimulus     float64
	PeakThreat   float64
}

// Summarize folds a run's step metrics into a report.
func Summarize(steps []trace.StepMetrics) RunReport {
	report := RunReport{Steps: len(steps)}
	for _, step := range steps {
		report.Replications += step.Replications
		report.Deaths += step.Deaths
		report.Signals += step.SignalsTotal
		report.Shifts += step.LineageShiftsTotal
		report.Stimulus += step.StimulusTotal
		if step.ThreatScore > report.PeakThreat {
			report.PeakThreat = step.ThreatScore
		}
		report.FinalCells = step.CellCount
	}
	return report
}

// Print displays the run report at the end of a simulation.
func (r RunReport) Print() {
	fmt.Println("=== Simulation Report ===")
	fmt.Printf("Steps Executed    : %d\n", r.Steps)
	fmt.Printf("Final Cell Count  : %d\n", r.FinalCells)
	fmt.Printf("Replications      : %d\n", r.Replications)
	fmt.Printf("Deaths            : %d\n", r.Deaths)
	fmt.Printf("Signals Emitted   : %d\n", r.Signals)
	fmt.Printf("Lineage Shifts    : %d\n", r.Shifts)
	fmt.Printf("Stimulus Injected : %.2f\n", r.Stimulus)
	fmt.Printf("Peak Threat       : %.2f\n", r.PeakThreat)
}
