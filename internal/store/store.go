// Package store persists completed stabilizer sessions to sqlite so the
// report layer can chart drift behaviour across runs.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eedt-data/drift.report/internal/drift"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("run not found")

type Store struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path. Schema management
// is handled separately through the migrate commands.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer with a patient busy handler suits the workload:
	// one stabilizer loop writing, the HTTP layer reading.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &Store{db}, nil
}

// DriftRun is one completed (or snapshotted) stabilizer session.
type DriftRun struct {
	ID                    string               `json:"id"`
	Backend               string               `json:"backend"`
	StartedAt             time.Time            `json:"started_at"`
	FinishedAt            time.Time            `json:"finished_at"`
	TotalCircuits         int                  `json:"total_circuits"`
	NominalCount          int                  `json:"nominal_count"`
	CorrectiveCount       int                  `json:"corrective_count"`
	AverageOverhead       float64              `json:"average_overhead"`
	FinalMode             string               `json:"final_mode"`
	EstimatedPhase        float64              `json:"estimated_phase"`
	MeanFidelity          float64              `json:"mean_fidelity"`
	T1Us                  float64              `json:"t1_us"`
	RecommendedIntervalUs float64              `json:"recommended_interval_us"`
	FidelityHistory       []float64            `json:"fidelity_history"`
	FilterHistory         []drift.FilterRecord `json:"filter_history"`
}

// InsertRun writes one run. A missing ID is assigned a fresh UUID.
func (s *Store) InsertRun(run *DriftRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Backend == "" {
		run.Backend = "simulator"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	fidelityJSON, err := json.Marshal(run.FidelityHistory)
	if err != nil {
		return fmt.Errorf("failed to encode fidelity history: %w", err)
	}
	filterJSON, err := json.Marshal(run.FilterHistory)
	if err != nil {
		return fmt.Errorf("failed to encode filter history: %w", err)
	}

	return retryOnBusy(func() error {
		_, err := s.Exec(
			`INSERT INTO drift_runs (
				id, backend, started_at, finished_at, total_circuits, nominal_count,
				corrective_count, average_overhead, final_mode, estimated_phase,
				mean_fidelity, t1_us, recommended_interval_us,
				fidelity_history, filter_history
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Backend, run.StartedAt.Unix(), run.FinishedAt.Unix(),
			run.TotalCircuits, run.NominalCount, run.CorrectiveCount,
			run.AverageOverhead, run.FinalMode, run.EstimatedPhase,
			run.MeanFidelity, run.T1Us, run.RecommendedIntervalUs,
			string(fidelityJSON), string(filterJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		return nil
	})
}

const runColumns = `id, backend, started_at, finished_at, total_circuits, nominal_count,
	corrective_count, average_overhead, final_mode, estimated_phase,
	mean_fidelity, t1_us, recommended_interval_us, fidelity_history, filter_history`

func scanRun(row interface{ Scan(...interface{}) error }) (*DriftRun, error) {
	var run DriftRun
	var startedAt, finishedAt int64
	var fidelityJSON, filterJSON string

	err := row.Scan(
		&run.ID, &run.Backend, &startedAt, &finishedAt, &run.TotalCircuits,
		&run.NominalCount, &run.CorrectiveCount, &run.AverageOverhead,
		&run.FinalMode, &run.EstimatedPhase, &run.MeanFidelity, &run.T1Us,
		&run.RecommendedIntervalUs, &fidelityJSON, &filterJSON,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.FinishedAt = time.Unix(finishedAt, 0).UTC()
	if err := json.Unmarshal([]byte(fidelityJSON), &run.FidelityHistory); err != nil {
		return nil, fmt.Errorf("failed to decode fidelity history: %w", err)
	}
	if err := json.Unmarshal([]byte(filterJSON), &run.FilterHistory); err != nil {
		return nil, fmt.Errorf("failed to decode filter history: %w", err)
	}
	return &run, nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(id string) (*DriftRun, error) {
	row := s.QueryRow(`SELECT `+runColumns+` FROM drift_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*DriftRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(
		`SELECT `+runColumns+` FROM drift_runs ORDER BY finished_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*DriftRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently finished run.
func (s *Store) LatestRun() (*DriftRun, error) {
	row := s.QueryRow(`SELECT ` + runColumns + ` FROM drift_runs ORDER BY finished_at DESC, id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}
	return run, nil
}

// retryOnBusy retries fn a few times when sqlite reports lock contention.
// The busy_timeout pragma handles most contention; this covers the
// SQLITE_BUSY errors that still escape it under WAL checkpointing.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
