package sim

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ThreatSpike is a transient threat increase. Duration of 0 is treated as a
// single-step spike.
type ThreatSpike struct {
	Step      int     `yaml:"step" json:"step"`
	Intensity float64 `yaml:"intensity" json:"intensity"`
	Duration  int     `yaml:"duration,omitempty" json:"duration,omitempty"`
}

// ThreatProfile describes the ambient threat environment.
type ThreatProfile struct {
	BackgroundThreat float64 `yaml:"background_threat" json:"background_threat"`
	SpikeThreshold   float64 `yaml:"spike_threshold" json:"spike_threshold"`
}

// TopologyConfig selects the signal delivery model for a run.
type TopologyConfig struct {
	Strategy TopologyStrategy `yaml:"strategy" json:"strategy"`
}

// ScenarioConfig is the in-memory scenario descriptor. The on-disk YAML
// format mirrors these fields; missing fields get the defaults below.
type ScenarioConfig struct {
	ScenarioName     string         `yaml:"scenario_name" json:"scenario_name"`
	InitialCellCount int            `yaml:"initial_cell_count" json:"initial_cell_count"`
	SimulationSteps  int            `yaml:"simulation_steps" json:"simulation_steps"`
	ReproductionRate float64        `yaml:"reproduction_rate" json:"reproduction_rate"`
	ThreatProfile    ThreatProfile  `yaml:"threat_profile" json:"threat_profile"`
	Topology         TopologyConfig `yaml:"topology" json:"topology"`
	Spikes           []ThreatSpike  `yaml:"spikes" json:"spikes,omitempty"`
}

// DefaultScenario returns the baseline single-cell smoke scenario.
func DefaultScenario() *ScenarioConfig {
	return &ScenarioConfig{
		ScenarioName:     "baseline",
		InitialCellCount: 1,
		SimulationSteps:  1,
		ReproductionRate: 1.0,
		ThreatProfile: ThreatProfile{
			BackgroundThreat: 0.1,
			SpikeThreshold:   0.8,
		},
		Topology: TopologyConfig{Strategy: TopologyGlobal},
	}
}

// applyDefaults fills zero-valued fields after unmarshaling, mirroring the
// defaulting the YAML schema promises.
func (c *ScenarioConfig) applyDefaults() {
	defaults := DefaultScenario()
	if c.ScenarioName == "" {
		c.ScenarioName = defaults.ScenarioName
	}
	if c.InitialCellCount <= 0 {
		c.InitialCellCount = defaults.InitialCellCount
	}
	if c.SimulationSteps <= 0 {
		c.SimulationSteps = defaults.SimulationSteps
	}
	if c.ReproductionRate <= 0 {
		c.ReproductionRate = defaults.ReproductionRate
	}
	if c.ThreatProfile.BackgroundThreat == 0 && c.ThreatProfile.SpikeThreshold == 0 {
		c.ThreatProfile = defaults.ThreatProfile
	}
	if c.Topology.Strategy == "" {
		c.Topology.Strategy = TopologyGlobal
	}
}

// ThreatAt returns the threat level for a step: background plus every
// active spike. A spike with Duration d covers steps [Step, Step+d); with
// Duration 0 it covers exactly its own step.
func (c *ScenarioConfig) ThreatAt(step int) float64 {
	threat := c.ThreatProfile.BackgroundThreat
	for _, spike := range c.Spikes {
		duration := spike.Duration
		if duration < 1 {
			duration = 1
		}
		if step >= spike.Step && step < spike.Step+duration {
			threat += spike.Intensity
		}
	}
	if threat < 0 {
		return 0
	}
	return threat
}

// Clone returns a deep copy, so mutation operators can edit a candidate's
// scenario without touching the parent's.
func (c *ScenarioConfig) Clone() *ScenarioConfig {
	clone := *c
	clone.Spikes = append([]ThreatSpike(nil), c.Spikes...)
	return &clone
}

// LoadScenario reads a scenario descriptor from a YAML file.
func LoadScenario(path string) (*ScenarioConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario %s: %w", path, err)
	}
	defer f.Close()
	return ReadScenario(f)
}

// ReadScenario parses a scenario descriptor from a reader.
func ReadScenario(r io.Reader) (*ScenarioConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var cfg ScenarioConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}
