package sim

import (
	"math"
	"math/rand"
)

// Genome is the fixed set of continuous parameters governing one cell's
// thresholds and rates. It is immutable during a cell's lifetime; a
// replicated child inherits a copy and mutates it once.
//
// All parameters are positive; clamping bounds live in genomeBounds below.
type Genome struct {
	// Threat response
	ThreatInhibitorFactor float64 `json:"threat_inhibitor_factor"` // how strongly inhibitor signals damp threat
	StressDecay           float64 `json:"stress_decay"`            // multiplicative stress decay per step
	StressSensitivity     float64 `json:"stress_sensitivity"`      // stress gained per unit of effective threat

	// Energy budget
	EnergyRecharge      float64 `json:"energy_recharge"`       // passive energy regained per step
	ThreatEnergyDrain   float64 `json:"threat_energy_drain"`   // energy lost per unit of effective threat
	InhibitorEnergyDrain float64 `json:"inhibitor_energy_drain"` // energy lost per unit of inhibitor pressure

	// Replication
	ReproductionThreshold float64 `json:"reproduction_threshold"`  // effective threat required to replicate
	ReproductionEnergyMin float64 `json:"reproduction_energy_min"` // energy floor required to replicate
	ReproductionCost      float64 `json:"reproduction_cost"`       // energy deducted on replication

	// Differentiation
	StressDifferentiationThreshold float64 `json:"stress_differentiation_threshold"` // stress that forces IntrusionDetection
	HealerInhibitorThreshold       float64 `json:"healer_inhibitor_threshold"`       // inhibitor pressure that invites Healer
	HealerStressLimit              float64 `json:"healer_stress_limit"`              // max stress at which Healer shift is allowed
	EncryptionCooperativeThreshold float64 `json:"encryption_cooperative_threshold"` // cooperative pressure that invites Encryption
	EncryptionEnergyMin            float64 `json:"encryption_energy_min"`            // energy floor for Encryption shift

	// Signaling and anomaly detection
	SignalEmissionThreshold float64 `json:"signal_emission_threshold"` // effective threat that triggers an activator emission
	AnomalySensitivity      float64 `json:"anomaly_sensitivity"`       // effective threat that triggers anomaly reporting
	IsolationThreshold      float64 `json:"isolation_threshold"`       // stress that triggers defensive disconnection
	MinTrustThreshold       float64 `json:"min_trust_threshold"`       // trust floor below which neighbors are cut
}

// DefaultGenome returns the stem genome every seed cell starts with.
func DefaultGenome() Genome {
	return Genome{
		ThreatInhibitorFactor:          0.8,
		StressDecay:                    0.85,
		StressSensitivity:              0.4,
		EnergyRecharge:                 0.05,
		ThreatEnergyDrain:              0.08,
		InhibitorEnergyDrain:           0.05,
		ReproductionThreshold:          0.75,
		ReproductionEnergyMin:          0.6,
		ReproductionCost:               0.35,
		StressDifferentiationThreshold: 0.7,
		HealerInhibitorThreshold:       0.6,
		HealerStressLimit:              0.3,
		EncryptionCooperativeThreshold: 0.5,
		EncryptionEnergyMin:            0.8,
		SignalEmissionThreshold:        0.6,
		AnomalySensitivity:             0.65,
		IsolationThreshold:             0.9,
		MinTrustThreshold:              0.2,
	}
}

// mutationJitter is the relative amplitude applied to each parameter when a
// genome is inherited.
const mutationJitter = 0.05

// Mutate jitters every parameter by up to ±mutationJitter of its current
// value, drawing from the supplied random source. The receiver is modified
// in place; call it on a child's copy, never on a live cell's genome.
func (g *Genome) Mutate(rng *rand.Rand) {
	for _, p := range g.params() {
		jitter := 1 + (rng.Float64()*2-1)*mutationJitter
		*p.value = clampFloat(*p.value*jitter, p.min, p.max)
	}
}

type boundedParam struct {
	value    *float64
	min, max float64
}

// params enumerates every parameter with its clamping bounds. Thresholds
// stay within the signal magnitude range; rates stay small and positive.
func (g *Genome) params() []boundedParam {
	return []boundedParam{
		{&g.ThreatInhibitorFactor, 0.1, 2.0},
		{&g.StressDecay, 0.5, 0.99},
		{&g.StressSensitivity, 0.05, 1.0},
		{&g.EnergyRecharge, 0.01, 0.2},
		{&g.ThreatEnergyDrain, 0.01, 0.3},
		{&g.InhibitorEnergyDrain, 0.01, 0.3},
		{&g.ReproductionThreshold, 0.2, 1.5},
		{&g.ReproductionEnergyMin, 0.2, 1.5},
		{&g.ReproductionCost, 0.1, 0.8},
		{&g.StressDifferentiationThreshold, 0.2, 1.0},
		{&g.HealerInhibitorThreshold, 0.1, 1.5},
		{&g.HealerStressLimit, 0.05, 0.8},
		{&g.EncryptionCooperativeThreshold, 0.1, 1.5},
		{&g.EncryptionEnergyMin, 0.2, 1.5},
		{&g.SignalEmissionThreshold, 0.1, 1.5},
		{&g.AnomalySensitivity, 0.1, 1.5},
		{&g.IsolationThreshold, 0.3, 1.0},
		{&g.MinTrustThreshold, 0.0, 0.9},
	}
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
