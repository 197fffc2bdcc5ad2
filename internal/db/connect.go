package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:grading.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/grading?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema applies the idempotent schema for the given driver.
// Exposed so store tests can run against a bare in-memory sqlite handle.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,               -- admin|doctor|student
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS academic_appointments (
  id TEXT PRIMARY KEY,
  year TEXT NOT NULL,
  status TEXT NOT NULL,             -- Active|Inactive
  first_term_start INTEGER NOT NULL,
  first_term_end INTEGER NOT NULL,
  second_term_start INTEGER NOT NULL,
  second_term_end INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS teams (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  specialty TEXT NOT NULL,
  supervisor_id TEXT NOT NULL,
  appointment_id TEXT NOT NULL REFERENCES academic_appointments(id),
  has_project INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS team_members (
  team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  full_name TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (team_id, student_id)
);

CREATE TABLE IF NOT EXISTS criteria (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  max_grade REAL NOT NULL,
  evaluator_role TEXT NOT NULL,     -- Admin|Supervisor|Examiner
  target_scope TEXT NOT NULL,       -- Student|Team
  specialty TEXT NOT NULL,
  term TEXT NOT NULL,               -- First|Second
  appointment_id TEXT NOT NULL REFERENCES academic_appointments(id),
  active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL,
  updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS schedules (
  id TEXT PRIMARY KEY,
  team_id TEXT NOT NULL REFERENCES teams(id),
  appointment_id TEXT NOT NULL REFERENCES academic_appointments(id),
  schedule_date INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'Upcoming',   -- Upcoming|Finished
  is_graded INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS committee_members (
  schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
  doctor_id TEXT NOT NULL,
  role TEXT NOT NULL,               -- Supervisor|Examiner
  has_completed_evaluation INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (schedule_id, doctor_id)
);

CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
  criteria_id TEXT NOT NULL REFERENCES criteria(id),
  team_id TEXT NOT NULL,
  student_id TEXT,                  -- NULL = team-scope entry
  evaluator_role TEXT NOT NULL,     -- resolved role, never the account role
  evaluator_id TEXT NOT NULL,
  appointment_id TEXT NOT NULL,
  grade REAL NOT NULL,
  evaluated_at INTEGER NOT NULL,
  updated_at INTEGER,
  UNIQUE (schedule_id, criteria_id, team_id, student_id, evaluator_role, evaluator_id)
);

CREATE TABLE IF NOT EXISTS student_totals (
  student_id TEXT NOT NULL,
  team_id TEXT NOT NULL,
  total REAL NOT NULL,
  computed_at INTEGER NOT NULL,
  PRIMARY KEY (student_id, team_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
  offset_id INTEGER PRIMARY KEY AUTOINCREMENT,
  actor TEXT NOT NULL,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS academic_appointments (
  id TEXT PRIMARY KEY,
  year TEXT NOT NULL,
  status TEXT NOT NULL,
  first_term_start BIGINT NOT NULL,
  first_term_end BIGINT NOT NULL,
  second_term_start BIGINT NOT NULL,
  second_term_end BIGINT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS teams (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  specialty TEXT NOT NULL,
  supervisor_id TEXT NOT NULL,
  appointment_id TEXT NOT NULL REFERENCES academic_appointments(id),
  has_project BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS team_members (
  team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  full_name TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  PRIMARY KEY (team_id, student_id)
);

CREATE TABLE IF NOT EXISTS criteria (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  max_grade DOUBLE PRECISION NOT NULL,
  evaluator_role TEXT NOT NULL,
  target_scope TEXT NOT NULL,
  specialty TEXT NOT NULL,
  term TEXT NOT NULL,
  appointment_id TEXT NOT NULL REFERENCES academic_appointments(id),
  active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at BIGINT NOT NULL,
  updated_at BIGINT
);

CREATE TABLE IF NOT EXISTS schedules (
  id TEXT PRIMARY KEY,
  team_id TEXT NOT NULL REFERENCES teams(id),
  appointment_id TEXT NOT NULL REFERENCES academic_appointments(id),
  schedule_date BIGINT NOT NULL,
  status TEXT NOT NULL DEFAULT 'Upcoming',
  is_graded BOOLEAN NOT NULL DEFAULT FALSE,
  created_at BIGINT NOT NULL,
  updated_at BIGINT
);

CREATE TABLE IF NOT EXISTS committee_members (
  schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
  doctor_id TEXT NOT NULL,
  role TEXT NOT NULL,
  has_completed_evaluation BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (schedule_id, doctor_id)
);

CREATE TABLE IF NOT EXISTS evaluations (
  id TEXT PRIMARY KEY,
  schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
  criteria_id TEXT NOT NULL REFERENCES criteria(id),
  team_id TEXT NOT NULL,
  student_id TEXT,
  evaluator_role TEXT NOT NULL,
  evaluator_id TEXT NOT NULL,
  appointment_id TEXT NOT NULL,
  grade DOUBLE PRECISION NOT NULL,
  evaluated_at BIGINT NOT NULL,
  updated_at BIGINT,
  UNIQUE (schedule_id, criteria_id, team_id, student_id, evaluator_role, evaluator_id)
);

CREATE TABLE IF NOT EXISTS student_totals (
  student_id TEXT NOT NULL,
  team_id TEXT NOT NULL,
  total DOUBLE PRECISION NOT NULL,
  computed_at BIGINT NOT NULL,
  PRIMARY KEY (student_id, team_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
  offset_id BIGSERIAL PRIMARY KEY,
  actor TEXT NOT NULL,
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
