package team

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("team not found")

type Store interface {
	Put(ctx context.Context, t Team) error
	Get(ctx context.Context, id string) (Team, error)
	List(ctx context.Context, specialty, appointmentID string) ([]Team, error)
	// TeamOfStudent finds the team a student belongs to within an appointment.
	TeamOfStudent(ctx context.Context, studentID, appointmentID string) (Team, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Put(ctx context.Context, t Team) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id=$1`, t.ID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `INSERT INTO teams
			(id, name, specialty, supervisor_id, appointment_id, has_project)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			t.ID, t.Name, t.Specialty, t.SupervisorID, t.AppointmentID, t.HasProject)
	case err == nil:
		_, err = tx.ExecContext(ctx, `UPDATE teams SET name=$1, specialty=$2, supervisor_id=$3,
			appointment_id=$4, has_project=$5 WHERE id=$6`,
			t.Name, t.Specialty, t.SupervisorID, t.AppointmentID, t.HasProject, t.ID)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=$1`, t.ID); err != nil {
		return err
	}
	for _, m := range t.Members {
		if _, err := tx.ExecContext(ctx, `INSERT INTO team_members (team_id, student_id, full_name, email)
			VALUES ($1,$2,$3,$4)`, t.ID, m.ID, m.FullName, m.Email); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, id string) (Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, specialty, supervisor_id, appointment_id, has_project
		FROM teams WHERE id=$1`, id)
	t, err := scanTeam(row)
	if err != nil {
		return Team{}, err
	}
	t.Members, err = s.members(ctx, t.ID)
	return t, err
}

func (s *SQLStore) TeamOfStudent(ctx context.Context, studentID, appointmentID string) (Team, error) {
	row := s.db.QueryRowContext(ctx, `SELECT t.id, t.name, t.specialty, t.supervisor_id, t.appointment_id, t.has_project
		FROM teams t JOIN team_members m ON m.team_id = t.id
		WHERE m.student_id=$1 AND t.appointment_id=$2`, studentID, appointmentID)
	t, err := scanTeam(row)
	if err != nil {
		return Team{}, err
	}
	t.Members, err = s.members(ctx, t.ID)
	return t, err
}

func (s *SQLStore) List(ctx context.Context, specialty, appointmentID string) ([]Team, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if specialty == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, name, specialty, supervisor_id, appointment_id, has_project
			FROM teams WHERE appointment_id=$1 ORDER BY name`, appointmentID)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, name, specialty, supervisor_id, appointment_id, has_project
			FROM teams WHERE appointment_id=$1 AND specialty=$2 ORDER BY name`, appointmentID, specialty)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Team{}
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Specialty, &t.SupervisorID, &t.AppointmentID, &t.HasProject); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Members, err = s.members(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) members(ctx context.Context, teamID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT student_id, full_name, email
		FROM team_members WHERE team_id=$1 ORDER BY full_name`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.FullName, &m.Email); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanTeam(row rowScanner) (Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.Name, &t.Specialty, &t.SupervisorID, &t.AppointmentID, &t.HasProject)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	return t, err
}
