package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Run is one localisation session.
type Run struct {
	ID          string
	StartedAt   time.Time
	EndedAt     *time.Time
	Reason      string
	LogDir      string
	Convention  string
	FrequencyHz float64
}

// RunRepository provides access to the runs table.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Create inserts a run. An empty ID is replaced by a new one and a zero
// StartedAt by the current time.
func (r *RunRepository) Create(run *Run) error {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (id, started_at, reason, log_dir, convention, frequency_hz)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Reason, run.LogDir, run.Convention, run.FrequencyHz,
	)
	return err
}

// Finish records how and when a run ended.
func (r *RunRepository) Finish(id string, endedAt time.Time, reason string) error {
	result, err := r.db.Exec(
		`UPDATE runs SET ended_at = ?, reason = ? WHERE id = ?`,
		endedAt.UTC(), reason, id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, started_at, ended_at, reason, log_dir, convention, frequency_hz
		 FROM runs WHERE id = ?`,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, started_at, ended_at, reason, log_dir, convention, frequency_hz
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	run := &Run{}
	var ended sql.NullTime
	err := sc.Scan(&run.ID, &run.StartedAt, &ended, &run.Reason, &run.LogDir, &run.Convention, &run.FrequencyHz)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		run.EndedAt = &t
	}
	return run, nil
}
