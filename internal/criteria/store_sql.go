package criteria

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("criterion not found")
	ErrDuplicate = errors.New("an active criterion with the same name, role, scope, specialty and term already exists")
)

type Store interface {
	Create(ctx context.Context, c Criterion) (Criterion, error)
	Update(ctx context.Context, c Criterion) (Criterion, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Criterion, error)
	// ListActive returns the active criteria for a specialty under one
	// appointment. An empty result is not an error; callers distinguish
	// "no criteria configured" from "not yet evaluated".
	ListActive(ctx context.Context, specialty, appointmentID string) ([]Criterion, error)
	GetByRole(ctx context.Context, specialty, appointmentID string, role Role) ([]Criterion, error)
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const criterionCols = `id, name, description, max_grade, evaluator_role, target_scope,
	specialty, term, appointment_id, active, created_at, updated_at`

func (s *SQLStore) Create(ctx context.Context, c Criterion) (Criterion, error) {
	if err := c.Validate(); err != nil {
		return Criterion{}, err
	}
	var dup int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM criteria
		WHERE name=$1 AND evaluator_role=$2 AND target_scope=$3 AND specialty=$4 AND term=$5
		AND appointment_id=$6 AND active=TRUE`,
		c.Name, c.EvaluatorRole, c.TargetScope, c.Specialty, c.Term, c.AppointmentID).Scan(&dup)
	if err == nil {
		return Criterion{}, ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Criterion{}, err
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Active = true
	c.CreatedAt = time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `INSERT INTO criteria
		(id, name, description, max_grade, evaluator_role, target_scope, specialty, term, appointment_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.Name, c.Description, c.MaxGrade, c.EvaluatorRole, c.TargetScope,
		c.Specialty, c.Term, c.AppointmentID, c.Active, c.CreatedAt)
	if err != nil {
		return Criterion{}, err
	}
	return c, nil
}

func (s *SQLStore) Update(ctx context.Context, c Criterion) (Criterion, error) {
	if err := c.Validate(); err != nil {
		return Criterion{}, err
	}
	existing, err := s.Get(ctx, c.ID)
	if err != nil {
		return Criterion{}, err
	}
	c.AppointmentID = existing.AppointmentID // never re-homed to another term
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `UPDATE criteria SET name=$1, description=$2, max_grade=$3,
		evaluator_role=$4, target_scope=$5, specialty=$6, term=$7, active=$8, updated_at=$9
		WHERE id=$10`,
		c.Name, c.Description, c.MaxGrade, c.EvaluatorRole, c.TargetScope,
		c.Specialty, c.Term, c.Active, c.UpdatedAt, c.ID)
	if err != nil {
		return Criterion{}, err
	}
	return c, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM criteria WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Criterion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+criterionCols+` FROM criteria WHERE id=$1`, id)
	c, err := scanCriterion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Criterion{}, ErrNotFound
	}
	return c, err
}

func (s *SQLStore) ListActive(ctx context.Context, specialty, appointmentID string) ([]Criterion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+criterionCols+` FROM criteria
		WHERE active=TRUE AND specialty=$1 AND appointment_id=$2 ORDER BY name`,
		specialty, appointmentID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *SQLStore) GetByRole(ctx context.Context, specialty, appointmentID string, role Role) ([]Criterion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+criterionCols+` FROM criteria
		WHERE active=TRUE AND specialty=$1 AND appointment_id=$2 AND evaluator_role=$3 ORDER BY name`,
		specialty, appointmentID, role)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanCriterion(row rowScanner) (Criterion, error) {
	var (
		c       Criterion
		updated sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.MaxGrade, &c.EvaluatorRole, &c.TargetScope,
		&c.Specialty, &c.Term, &c.AppointmentID, &c.Active, &c.CreatedAt, &updated)
	if err != nil {
		return Criterion{}, err
	}
	if updated.Valid {
		c.UpdatedAt = updated.Int64
	}
	return c, nil
}

func collect(rows *sql.Rows) ([]Criterion, error) {
	defer rows.Close()
	out := []Criterion{}
	for rows.Next() {
		c, err := scanCriterion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
