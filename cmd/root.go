package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/defense-sim/defense-sim/sim"
)

var (
	// CLI flags shared by the simulation subcommands
	seed          int64  // Master seed for all partitioned RNG subsystems
	logLevel      string // Log verbosity level
	scenarioPath  string // Scenario YAML file
	stimulusPath  string // Optional stimulus schedule (JSONL)
	telemetryPath string // Optional telemetry output (JSONL)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "defense-sim",
	Short: "Co-evolutionary adversarial testing for a cellular defense substrate",
}

// runCmd executes a single simulation run from a scenario file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one defense simulation scenario",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		scenario := sim.DefaultScenario()
		if scenarioPath != "" {
			scenario, err = sim.LoadScenario(scenarioPath)
			if err != nil {
				logrus.Fatalf("Failed to load scenario: %v", err)
			}
		}

		schedule := sim.NewStimulusSchedule()
		if stimulusPath != "" {
			schedule, err = sim.LoadStimulusSchedule(stimulusPath)
			if err != nil {
				logrus.Fatalf("Failed to load stimulus schedule: %v", err)
			}
		}

		var sink sim.TelemetrySink
		if telemetryPath != "" {
			file, err := sim.NewJSONLSink(telemetryPath)
			if err != nil {
				logrus.Fatalf("Failed to open telemetry output: %v", err)
			}
			defer file.Close()
			sink = sim.NewTelemetryPipeline(file)
		}

		logrus.Infof("Starting scenario %q: %d cells, %d steps, %s topology",
			scenario.ScenarioName, scenario.InitialCellCount, scenario.SimulationSteps, scenario.Topology.Strategy)

		simulator, err := sim.NewSimulator(scenario, sim.NewSimulationKey(seed), sink)
		if err != nil {
			logrus.Fatalf("Failed to build simulator: %v", err)
		}
		steps := simulator.Run(schedule)
		sim.Summarize(steps).Print()

		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed for deterministic runs")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML file (defaults to the baseline scenario)")
	runCmd.Flags().StringVar(&stimulusPath, "stimulus", "", "Stimulus schedule JSONL file")
	runCmd.Flags().StringVar(&telemetryPath, "telemetry", "", "Telemetry output JSONL file")

	rootCmd.AddCommand(runCmd)
}
