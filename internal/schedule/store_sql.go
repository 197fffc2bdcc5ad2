package schedule

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gradeworks/capstone-grading/internal/criteria"
)

type Store interface {
	// Create persists the defense together with its committee rows in one
	// transaction. The caller is expected to have run ValidateNew first.
	Create(ctx context.Context, d Defense) (Defense, error)
	Get(ctx context.Context, id string) (Defense, error)
	// ByTeam returns the team's defense under one appointment. A team has at
	// most one.
	ByTeam(ctx context.Context, teamID, appointmentID string) (Defense, error)
	// ListForDoctor returns every defense whose committee includes the doctor,
	// newest first.
	ListForDoctor(ctx context.Context, doctorID, appointmentID string) ([]Defense, error)
	List(ctx context.Context, appointmentID string) ([]Defense, error)
	// MarkEvaluatorComplete flips the evaluator's completion flag. It is
	// idempotent; flipping an already-set flag is not an error.
	MarkEvaluatorComplete(ctx context.Context, scheduleID, doctorID string) error
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Create(ctx context.Context, d Defense) (Defense, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusUpcoming
	}
	d.CreatedAt = time.Now().Unix()

	var dup string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM schedules WHERE team_id=$1 AND appointment_id=$2`,
		d.TeamID, d.AppointmentID).Scan(&dup)
	if err == nil {
		return Defense{}, errors.New("team already has a defense scheduled under this appointment")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Defense{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Defense{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO schedules
		(id, team_id, appointment_id, schedule_date, status, is_graded, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,FALSE,$6,$6)`,
		d.ID, d.TeamID, d.AppointmentID, d.Date, d.Status, d.CreatedAt)
	if err != nil {
		return Defense{}, err
	}
	for i := range d.Committee {
		m := &d.Committee[i]
		m.ScheduleID = d.ID
		_, err = tx.ExecContext(ctx, `INSERT INTO committee_members
			(schedule_id, doctor_id, role, has_completed_evaluation)
			VALUES ($1,$2,$3,FALSE)`,
			m.ScheduleID, m.DoctorID, m.Role)
		if err != nil {
			return Defense{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Defense{}, err
	}
	return d, nil
}

const defenseCols = `id, team_id, appointment_id, schedule_date, status, is_graded, created_at, updated_at`

func (s *SQLStore) Get(ctx context.Context, id string) (Defense, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+defenseCols+` FROM schedules WHERE id=$1`, id)
	d, err := scanDefense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Defense{}, ErrNotFound
	}
	if err != nil {
		return Defense{}, err
	}
	d.Committee, err = s.committee(ctx, d.ID)
	return d, err
}

func (s *SQLStore) ByTeam(ctx context.Context, teamID, appointmentID string) (Defense, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+defenseCols+` FROM schedules WHERE team_id=$1 AND appointment_id=$2`,
		teamID, appointmentID)
	d, err := scanDefense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Defense{}, ErrNotFound
	}
	if err != nil {
		return Defense{}, err
	}
	d.Committee, err = s.committee(ctx, d.ID)
	return d, err
}

func (s *SQLStore) ListForDoctor(ctx context.Context, doctorID, appointmentID string) ([]Defense, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+prefixed("s")+` FROM schedules s
		JOIN committee_members cm ON cm.schedule_id = s.id
		WHERE cm.doctor_id=$1 AND s.appointment_id=$2
		ORDER BY s.schedule_date DESC`,
		doctorID, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.collectWithCommittee(ctx, rows)
}

func (s *SQLStore) List(ctx context.Context, appointmentID string) ([]Defense, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+defenseCols+` FROM schedules
		WHERE appointment_id=$1 ORDER BY schedule_date DESC`, appointmentID)
	if err != nil {
		return nil, err
	}
	return s.collectWithCommittee(ctx, rows)
}

func (s *SQLStore) MarkEvaluatorComplete(ctx context.Context, scheduleID, doctorID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE committee_members
		SET has_completed_evaluation=TRUE WHERE schedule_id=$1 AND doctor_id=$2`,
		scheduleID, doctorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) committee(ctx context.Context, scheduleID string) ([]CommitteeMember, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT schedule_id, doctor_id, role, has_completed_evaluation
		FROM committee_members WHERE schedule_id=$1 ORDER BY role, doctor_id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CommitteeMember{}
	for rows.Next() {
		var m CommitteeMember
		var role string
		if err := rows.Scan(&m.ScheduleID, &m.DoctorID, &role, &m.HasCompletedEvaluation); err != nil {
			return nil, err
		}
		m.Role = criteria.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) collectWithCommittee(ctx context.Context, rows *sql.Rows) ([]Defense, error) {
	defer rows.Close()
	out := []Defense{}
	for rows.Next() {
		d, err := scanDefense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	for i := range out {
		c, err := s.committee(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Committee = c
	}
	return out, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanDefense(row rowScanner) (Defense, error) {
	var d Defense
	err := row.Scan(&d.ID, &d.TeamID, &d.AppointmentID, &d.Date, &d.Status,
		&d.IsGraded, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func prefixed(alias string) string {
	return alias + ".id, " + alias + ".team_id, " + alias + ".appointment_id, " +
		alias + ".schedule_date, " + alias + ".status, " + alias + ".is_graded, " +
		alias + ".created_at, " + alias + ".updated_at"
}
