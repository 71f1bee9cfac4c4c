package evo

import (
	"errors"
	"math/rand"
	"testing"
)

func archiveWithFitness(values ...float64) []AttackOutcome {
	archive := make([]AttackOutcome, len(values))
	for i, fitness := range values {
		archive[i] = AttackOutcome{
			Candidate: AttackCandidate{ID: string(rune('a' + i))},
			Fitness:   fitness,
		}
	}
	return archive
}

func TestTournament_ResultIsArchiveMember(t *testing.T) {
	// GIVEN a mixed-fitness archive and a modest tournament
	archive := archiveWithFitness(0.1, 0.9, 0.4, 0.7, 0.2)
	rng := rand.New(rand.NewSource(5))
	selection := Tournament{K: 2}

	// WHEN picking repeatedly
	for i := 0; i < 100; i++ {
		picked, err := selection.Pick(rng, archive)
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}

		// THEN the winner is always a member of the archive
		found := false
		for j := range archive {
			if picked == &archive[j] {
				found = true
			}
		}
		if !found {
			t.Fatal("tournament returned a non-member")
		}
	}
}

func TestTournament_SampleClampedToPopulation(t *testing.T) {
	// GIVEN a tournament larger than the archive
	archive := archiveWithFitness(0.1, 0.9, 0.4)
	rng := rand.New(rand.NewSource(5))
	selection := Tournament{K: 50}

	// THEN the effective sample is the whole archive, so the global
	// maximum always wins
	for i := 0; i < 20; i++ {
		picked, err := selection.Pick(rng, archive)
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if picked.Fitness != 0.9 {
			t.Fatalf("expected the global maximum, got %v", picked.Fitness)
		}
	}
}

func TestTournament_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	if _, err := (Tournament{K: 3}).Pick(rng, nil); !errors.Is(err, ErrEmptyArchive) {
		t.Errorf("expected ErrEmptyArchive, got %v", err)
	}
	if _, err := (Tournament{K: 0}).Pick(rng, archiveWithFitness(0.5)); !errors.Is(err, ErrZeroTournament) {
		t.Errorf("expected ErrZeroTournament, got %v", err)
	}
}

func TestRoulette_ZeroTotalFallsBackToUniform(t *testing.T) {
	// GIVEN an archive with no fitness mass
	archive := archiveWithFitness(0, 0, 0)
	rng := rand.New(rand.NewSource(5))

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		picked, err := (Roulette{}).Pick(rng, archive)
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		seen[picked.Candidate.ID] = true
	}

	// THEN every member remains reachable
	if len(seen) != len(archive) {
		t.Errorf("uniform fallback should reach all members, saw %d", len(seen))
	}
}

func TestRoulette_WeightsByFitness(t *testing.T) {
	// GIVEN one dominant outcome
	archive := archiveWithFitness(0.01, 0.98, 0.01)
	rng := rand.New(rand.NewSource(5))

	wins := 0
	for i := 0; i < 300; i++ {
		picked, err := (Roulette{}).Pick(rng, archive)
		if err != nil {
			t.Fatalf("pick failed: %v", err)
		}
		if picked.Fitness == 0.98 {
			wins++
		}
	}

	// THEN it wins the overwhelming majority of draws
	if wins < 250 {
		t.Errorf("dominant outcome won only %d of 300 draws", wins)
	}
}

func TestSelectionSpec_Build(t *testing.T) {
	if _, err := (SelectionSpec{Strategy: "tournament", TournamentK: 4}).Build(); err != nil {
		t.Errorf("tournament spec should build: %v", err)
	}
	if _, err := (SelectionSpec{Strategy: "roulette"}).Build(); err != nil {
		t.Errorf("roulette spec should build: %v", err)
	}
	if _, err := (SelectionSpec{}).Build(); err != nil {
		t.Errorf("empty spec should default: %v", err)
	}
	if _, err := (SelectionSpec{Strategy: "rank"}).Build(); err == nil {
		t.Error("unknown strategy must fail")
	}
}
