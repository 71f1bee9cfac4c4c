package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/defense-sim/defense-sim/evo"
	sim "github.com/defense-sim/defense-sim/sim"
	"github.com/defense-sim/defense-sim/sim/trace"
)

var (
	// CLI flags for the evolution harness
	evolveSeed     int64   // Master seed for selection/breeding RNG streams
	evolveLog      string  // Log verbosity level
	evolveScenario string  // Scenario YAML the seed candidate references
	evolveStimulus string  // Optional seed stimulus schedule (JSONL)
	generations    int     // Rounds to run
	batchSize      int     // Candidates bred per round
	maxGenerations int     // Outcome archive bound
	retainElite    bool    // Re-enqueue settled candidates
	crossoverRate  float64 // Probability of two-parent breeding
	selectionName  string  // Selection strategy (tournament, roulette)
	tournamentK    int     // Tournament sample size
	statePath      string  // Harness state JSON file
	dbPath         string  // Harness state sqlite database
)

// evolveCmd runs the generation loop against an in-process executor.
var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Evolve attack candidates against the defense substrate",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(evolveLog)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", evolveLog)
		}
		logrus.SetLevel(level)

		cfg := evo.Config{
			BatchSize:      batchSize,
			MaxGenerations: maxGenerations,
			RetainElite:    retainElite,
			CrossoverRate:  crossoverRate,
			Selection: evo.SelectionSpec{
				Strategy:    selectionName,
				TournamentK: tournamentK,
			},
		}
		key := sim.NewSimulationKey(evolveSeed)

		ctx := context.Background()
		var store *evo.Store
		if dbPath != "" {
			store = evo.NewStore(dbPath)
			if err := store.Init(ctx); err != nil {
				logrus.Fatalf("Failed to open store: %v", err)
			}
			defer store.Close()
		}

		harness, err := resumeOrSeed(ctx, cfg, key, store)
		if err != nil {
			logrus.Fatalf("Failed to build harness: %v", err)
		}

		evals, err := harness.RunGenerations(generations, executeCandidate)
		if err != nil {
			logrus.Errorf("Generation loop aborted: %v", err)
		}
		for _, eval := range evals {
			logrus.Infof("Candidate %s gen=%d fitness=%.3f breach=%v (%s)",
				eval.Outcome.Candidate.ID, eval.Outcome.Candidate.Generation,
				eval.Outcome.Fitness, eval.Outcome.Breach, eval.Outcome.Notes)
			if store != nil {
				if err := store.AppendOutcome(ctx, eval.Outcome); err != nil {
					logrus.Warnf("Failed to record outcome: %v", err)
				}
			}
		}

		snap := harness.Snapshot()
		if store != nil {
			if err := store.SaveSnapshot(ctx, snap); err != nil {
				logrus.Fatalf("Failed to persist harness state: %v", err)
			}
		} else if statePath != "" {
			if err := evo.SaveState(statePath, snap); err != nil {
				logrus.Fatalf("Failed to persist harness state: %v", err)
			}
		}
		logrus.Infof("Evolution complete: %d evaluations, %d archived, %d pending",
			len(evals), len(harness.Archive()), harness.BacklogLen())
	},
}

// resumeOrSeed restores a persisted harness when state exists; otherwise it
// seeds a fresh harness with one candidate referencing the scenario file.
func resumeOrSeed(ctx context.Context, cfg evo.Config, key sim.SimulationKey, store *evo.Store) (*evo.Harness, error) {
	if store != nil {
		if snap, ok, err := store.LoadSnapshot(ctx); err != nil {
			return nil, err
		} else if ok {
			logrus.Infof("Resuming from store: %d pending, %d archived", len(snap.Backlog), len(snap.Archive))
			return evo.RestoreHarness(snap, key)
		}
	} else if statePath != "" {
		if snap, err := evo.LoadState(statePath); err == nil {
			logrus.Infof("Resuming from %s: %d pending, %d archived", statePath, len(snap.Backlog), len(snap.Archive))
			return evo.RestoreHarness(snap, key)
		}
	}

	harness, err := evo.NewHarness(cfg, key)
	if err != nil {
		return nil, err
	}
	seedCand := evo.AttackCandidate{
		ID:          "seed-0",
		ScenarioRef: evolveScenario,
		Schedule:    sim.NewStimulusSchedule(),
	}
	if evolveStimulus != "" {
		schedule, err := sim.LoadStimulusSchedule(evolveStimulus)
		if err != nil {
			return nil, err
		}
		seedCand.Schedule = schedule
	}
	harness.Enqueue(seedCand)
	return harness, nil
}

// executeCandidate is the in-process executor: materialize the candidate's
// scenario and schedule, apply its pending mutation, run the simulator.
func executeCandidate(cand *evo.AttackCandidate) ([]trace.StepMetrics, error) {
	scenario := sim.DefaultScenario()
	if cand.ScenarioRef != "" {
		loaded, err := sim.LoadScenario(cand.ScenarioRef)
		if err != nil {
			return nil, err
		}
		scenario = loaded
	}
	schedule := cand.Schedule.Clone()
	if schedule == nil {
		schedule = sim.NewStimulusSchedule()
	}
	if cand.Mutation != nil {
		cand.Mutation.Apply(scenario, schedule)
	}

	simulator, err := sim.NewSimulator(scenario, sim.NewSimulationKey(evolveSeed), nil)
	if err != nil {
		return nil, err
	}
	return simulator.Run(schedule), nil
}

func init() {
	evolveCmd.Flags().Int64Var(&evolveSeed, "seed", 42, "Master seed for deterministic evolution")
	evolveCmd.Flags().StringVar(&evolveLog, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	evolveCmd.Flags().StringVar(&evolveScenario, "scenario", "", "Scenario YAML the seed candidate runs against")
	evolveCmd.Flags().StringVar(&evolveStimulus, "stimulus", "", "Seed stimulus schedule JSONL file")
	evolveCmd.Flags().IntVar(&generations, "generations", 5, "Generation rounds to run")
	evolveCmd.Flags().IntVar(&batchSize, "batch-size", 4, "Candidates bred per round")
	evolveCmd.Flags().IntVar(&maxGenerations, "max-generations", 50, "Outcome archive bound (0 disables archiving)")
	evolveCmd.Flags().BoolVar(&retainElite, "retain-elite", true, "Re-enqueue settled candidates as seeds")
	evolveCmd.Flags().Float64Var(&crossoverRate, "crossover-rate", 0.3, "Probability of two-parent breeding")
	evolveCmd.Flags().StringVar(&selectionName, "selection", "tournament", "Selection strategy (tournament, roulette)")
	evolveCmd.Flags().IntVar(&tournamentK, "tournament-k", 3, "Tournament sample size")
	evolveCmd.Flags().StringVar(&statePath, "state", "", "Harness state JSON file for resumable runs")
	evolveCmd.Flags().StringVar(&dbPath, "db", "", "Harness state sqlite database (overrides --state)")

	rootCmd.AddCommand(evolveCmd)
}
