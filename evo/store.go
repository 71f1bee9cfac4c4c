package evo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store persists harness snapshots and an append-only outcome history in a
// sqlite database, so long evolution runs can resume after interruption.
type Store struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewStore returns an unopened store for the given database path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Init opens the database and creates the schema. Idempotent.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("store path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS harness_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS outcomes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			candidate_id TEXT NOT NULL,
			fitness REAL NOT NULL,
			breach INTEGER NOT NULL,
			payload TEXT NOT NULL
		);
	`)
	if err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *Store) getDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("store not initialized")
	}
	return s.db, nil
}

// SaveSnapshot upserts the single harness state row.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO harness_state (id, payload) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, string(payload))
	return err
}

// LoadSnapshot reads the harness state row; the bool reports whether one
// exists.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Snapshot{}, false, err
	}
	var payload string
	err = db.QueryRowContext(ctx, `SELECT payload FROM harness_state WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

// AppendOutcome records one evaluation in the history table.
func (s *Store) AppendOutcome(ctx context.Context, outcome AttackOutcome) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	breach := 0
	if outcome.Breach {
		breach = 1
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO outcomes (candidate_id, fitness, breach, payload)
		VALUES (?, ?, ?, ?)
	`, outcome.Candidate.ID, outcome.Fitness, breach, string(payload))
	return err
}

// History returns every recorded outcome, oldest first.
func (s *Store) History(ctx context.Context) ([]AttackOutcome, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT payload FROM outcomes ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []AttackOutcome
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var outcome AttackOutcome
		if err := json.Unmarshal([]byte(payload), &outcome); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		history = append(history, outcome)
	}
	return history, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
