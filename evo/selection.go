package evo

import (
	"errors"
	"fmt"
	"math/rand"
)

// Selection errors. Both are fatal to the current breeding attempt only;
// the archive is never touched by a failed selection.
var (
	ErrEmptyArchive   = errors.New("selection from empty archive")
	ErrZeroTournament = errors.New("tournament size must be positive")
)

// Selection picks a parent outcome from the archive. Implementations draw
// all randomness from the supplied source; they hold no RNG state of their
// own.
type Selection interface {
	Pick(rng *rand.Rand, archive []AttackOutcome) (*AttackOutcome, error)
}

// Tournament samples min(K, len(archive)) distinct outcomes uniformly
// without replacement and returns the fittest. Ties go to the earlier
// sampled outcome.
type Tournament struct {
	K int
}

func (t Tournament) Pick(rng *rand.Rand, archive []AttackOutcome) (*AttackOutcome, error) {
	if len(archive) == 0 {
		return nil, ErrEmptyArchive
	}
	if t.K <= 0 {
		return nil, ErrZeroTournament
	}

	size := t.K
	if size > len(archive) {
		size = len(archive)
	}
	order := rng.Perm(len(archive))[:size]

	best := &archive[order[0]]
	for _, idx := range order[1:] {
		if archive[idx].Fitness > best.Fitness {
			best = &archive[idx]
		}
	}
	return best, nil
}

// Roulette draws an outcome weighted by fitness. When total fitness is not
// positive there is nothing to weight by, so it falls back to a uniform
// draw.
type Roulette struct{}

func (Roulette) Pick(rng *rand.Rand, archive []AttackOutcome) (*AttackOutcome, error) {
	if len(archive) == 0 {
		return nil, ErrEmptyArchive
	}

	total := 0.0
	for _, outcome := range archive {
		total += outcome.Fitness
	}
	if total <= 0 {
		return &archive[rng.Intn(len(archive))], nil
	}

	target := rng.Float64() * total
	for i := range archive {
		target -= archive[i].Fitness
		if target <= 0 {
			return &archive[i], nil
		}
	}
	return &archive[len(archive)-1], nil
}

// Selection strategy names accepted in configuration.
const (
	StrategyTournament = "tournament"
	StrategyRoulette   = "roulette"
)

// SelectionSpec is the serializable selection configuration.
type SelectionSpec struct {
	Strategy    string `json:"strategy"`
	TournamentK int    `json:"tournament_k,omitempty"`
}

// Build materializes the configured strategy. An empty spec defaults to a
// 3-way tournament.
func (s SelectionSpec) Build() (Selection, error) {
	switch s.Strategy {
	case "", StrategyTournament:
		k := s.TournamentK
		if k == 0 {
			k = 3
		}
		if k < 0 {
			return nil, ErrZeroTournament
		}
		return Tournament{K: k}, nil
	case StrategyRoulette:
		return Roulette{}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", s.Strategy)
	}
}
