package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per localisation session
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			reason TEXT NOT NULL DEFAULT '',
			log_dir TEXT NOT NULL DEFAULT '',
			convention TEXT NOT NULL CHECK(convention IN ('ENU', 'NED')),
			frequency_hz REAL NOT NULL DEFAULT 0
		)`,

		// Origins table - every origin set during a run, in camera frame
		`CREATE TABLE IF NOT EXISTS origins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			recorded_at DATETIME NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			roll REAL NOT NULL,
			pitch REAL NOT NULL,
			yaw REAL NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_origins_run_id ON origins(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
