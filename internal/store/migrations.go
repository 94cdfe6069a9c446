package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Students table - one row per enrolled person
		`CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Face embeddings table - vectors are stored as JSON arrays
		`CREATE TABLE IF NOT EXISTS face_embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
			dims INTEGER NOT NULL,
			vector TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Attendance table - one row per verification session; distance is
		// NULL when nothing was compared
		`CREATE TABLE IF NOT EXISTS attendance (
			id TEXT PRIMARY KEY,
			student_id TEXT REFERENCES students(id) ON DELETE SET NULL,
			label TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL CHECK(outcome IN ('spoof_rejected', 'liveness_failed', 'recognized', 'unrecognized')),
			reason TEXT NOT NULL DEFAULT '',
			distance REAL,
			blinks INTEGER NOT NULL DEFAULT 0,
			head_movement INTEGER NOT NULL DEFAULT 0,
			spoof_confidence REAL NOT NULL DEFAULT 0,
			frames INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_face_embeddings_student_id ON face_embeddings(student_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_finished_at ON attendance(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_student_id ON attendance(student_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
