package term

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	// Create inserts the appointment. Creating an Active appointment
	// deactivates whichever one was active before.
	Create(ctx context.Context, a Appointment) (Appointment, error)
	Active(ctx context.Context) (Appointment, error)
	List(ctx context.Context) ([]Appointment, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) Create(ctx context.Context, a Appointment) (Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	a.CreatedAt = time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Appointment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if a.Status == StatusActive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE academic_appointments SET status=$1 WHERE status=$2`,
			StatusInactive, StatusActive); err != nil {
			return Appointment{}, err
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO academic_appointments
		(id, year, status, first_term_start, first_term_end, second_term_start, second_term_end, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Year, a.Status, a.FirstTermStart, a.FirstTermEnd, a.SecondTermStart, a.SecondTermEnd, a.CreatedAt)
	if err != nil {
		return Appointment{}, err
	}
	return a, tx.Commit()
}

func (s *SQLStore) Active(ctx context.Context) (Appointment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, year, status, first_term_start, first_term_end,
		second_term_start, second_term_end, created_at
		FROM academic_appointments WHERE status=$1`, StatusActive)
	var a Appointment
	err := row.Scan(&a.ID, &a.Year, &a.Status, &a.FirstTermStart, &a.FirstTermEnd,
		&a.SecondTermStart, &a.SecondTermEnd, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Appointment{}, ErrNoActive
	}
	if err != nil {
		return Appointment{}, err
	}
	return a, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, year, status, first_term_start, first_term_end,
		second_term_start, second_term_end, created_at
		FROM academic_appointments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Appointment{}
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.Year, &a.Status, &a.FirstTermStart, &a.FirstTermEnd,
			&a.SecondTermStart, &a.SecondTermEnd, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
