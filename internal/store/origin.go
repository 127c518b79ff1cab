package store

import (
	"database/sql"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/posemath"
	"github.com/ayusman/arucoloc/internal/timeutil"
)

// OriginRecord is an origin pose as it was set, in the camera frame.
type OriginRecord struct {
	ID         int64
	RunID      string
	RecordedAt time.Time
	Position   r3.Vec
	Rotation   posemath.Euler
}

// OriginRepository provides access to the origins table.
type OriginRepository struct {
	db *sql.DB
}

// Origins returns the origin repository for this store.
func (s *Store) Origins() *OriginRepository {
	return &OriginRepository{db: s.db}
}

// Create inserts an origin record and sets its ID.
func (r *OriginRepository) Create(o *OriginRecord) error {
	result, err := r.db.Exec(
		`INSERT INTO origins (run_id, recorded_at, x, y, z, roll, pitch, yaw)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.RecordedAt.UTC(),
		o.Position.X, o.Position.Y, o.Position.Z,
		o.Rotation.Roll, o.Rotation.Pitch, o.Rotation.Yaw,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = id
	return nil
}

// ListByRun returns the origins of a run in the order they were set.
func (r *OriginRepository) ListByRun(runID string) ([]*OriginRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, run_id, recorded_at, x, y, z, roll, pitch, yaw
		 FROM origins WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*OriginRecord
	for rows.Next() {
		o := &OriginRecord{}
		err := rows.Scan(&o.ID, &o.RunID, &o.RecordedAt,
			&o.Position.X, &o.Position.Y, &o.Position.Z,
			&o.Rotation.Roll, &o.Rotation.Pitch, &o.Rotation.Yaw)
		if err != nil {
			return nil, err
		}
		records = append(records, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// OriginRecorder stores every origin set for one run.
type OriginRecorder struct {
	repo  *OriginRepository
	runID string
	clock timeutil.Clock
}

// OriginRecorder returns a recorder bound to runID.
func (s *Store) OriginRecorder(runID string, clock timeutil.Clock) *OriginRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &OriginRecorder{repo: s.Origins(), runID: runID, clock: clock}
}

// RecordOrigin stores p with the current time.
func (r *OriginRecorder) RecordOrigin(p posemath.Pose) error {
	return r.repo.Create(&OriginRecord{
		RunID:      r.runID,
		RecordedAt: r.clock.Now(),
		Position:   p.T,
		Rotation:   posemath.EulerXYZDegrees(p.R),
	})
}
