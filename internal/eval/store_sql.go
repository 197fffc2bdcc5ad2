package eval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gradeworks/capstone-grading/internal/audit"
	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/grading"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type Store interface {
	// Submit records a batch of grades for one defense. The whole batch is
	// validated, written, and checked for completion and finalization inside
	// a single transaction.
	Submit(ctx context.Context, caller Caller, req SubmitRequest) (SubmitResult, error)
	// ListForEvaluator returns the grades the caller has recorded on one
	// defense, under the role resolved from the committee.
	ListForEvaluator(ctx context.Context, caller Caller, scheduleID string) ([]Entry, error)
	// StudentGrades aggregates the grade sheet for one student under the
	// active appointment and refreshes the cached total.
	StudentGrades(ctx context.Context, studentID string) (StudentGrades, error)
	// ExportRows renders the CSV rows for a fully graded defense.
	ExportRows(ctx context.Context, scheduleID string) ([][]string, error)
	// ExportSpecialty renders one sheet across every scheduled team of a
	// specialty; all of them must be fully graded.
	ExportSpecialty(ctx context.Context, specialty string) ([][]string, error)
	// PendingSchedules lists the doctor's defenses whose seat is still
	// incomplete, soonest first.
	PendingSchedules(ctx context.Context, doctorID string) ([]schedule.Defense, error)
}

// SQLStore runs the evaluation engine over SQL state. Submissions to the
// same defense are serialized by an in-process keyed lock on top of the
// transaction, which keeps sqlite's single writer happy; on postgres the
// schedule row is additionally locked FOR UPDATE.
type SQLStore struct {
	db     *sql.DB
	driver string
	engine grading.Engine
	audit  *audit.Repo

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSQLStore(db *sql.DB, driver string, engine grading.Engine) *SQLStore {
	return &SQLStore{db: db, driver: driver, engine: engine, locks: map[string]*sync.Mutex{}}
}

// WithAudit makes every submission and finalization leave an audit record
// in the same transaction as the writes it describes.
func (s *SQLStore) WithAudit(r *audit.Repo) *SQLStore {
	s.audit = r
	return s
}

func (s *SQLStore) lock(scheduleID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[scheduleID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[scheduleID] = l
	}
	return l
}

func (s *SQLStore) Submit(ctx context.Context, caller Caller, req SubmitRequest) (SubmitResult, error) {
	l := s.lock(req.ScheduleID)
	l.Lock()
	defer l.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	snap, err := s.loadSnapshot(ctx, tx, req.ScheduleID, true)
	if err != nil {
		return SubmitResult{}, err
	}
	role, evaluatorID, err := ResolveEvaluatorRole(snap, caller, req.DoctorID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := time.Now()
	muts, err := planUpsert(snap, role, evaluatorID, req, now)
	if err != nil {
		return SubmitResult{}, err
	}

	var res SubmitResult
	for _, m := range muts {
		switch m.op {
		case opInsert:
			res.Accepted++
			_, err = tx.ExecContext(ctx, `INSERT INTO evaluations
				(id, schedule_id, criteria_id, team_id, student_id, evaluator_role, evaluator_id, appointment_id, grade, evaluated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				m.entry.ID, m.entry.ScheduleID, m.entry.CriteriaID, m.entry.TeamID,
				nullable(m.entry.StudentID), m.entry.EvaluatorRole, m.entry.EvaluatorID,
				m.entry.AppointmentID, m.entry.Grade, m.entry.EvaluatedAt)
		case opUpdate:
			res.Updated++
			_, err = tx.ExecContext(ctx, `UPDATE evaluations SET grade=$1, updated_at=$2 WHERE id=$3`,
				m.entry.Grade, m.entry.UpdatedAt, m.entry.ID)
		case opNoop:
			res.Unchanged++
		}
		if err != nil {
			return SubmitResult{}, err
		}
	}
	snap.apply(muts)

	if role != criteria.RoleAdmin && EvaluatorDone(snap, role, evaluatorID) {
		_, err = tx.ExecContext(ctx, `UPDATE committee_members SET has_completed_evaluation=TRUE
			WHERE schedule_id=$1 AND doctor_id=$2`, snap.Defense.ID, evaluatorID)
		if err != nil {
			return SubmitResult{}, err
		}
		snap.markComplete(evaluatorID)
		res.EvaluatorComplete = true
	}

	if !snap.Defense.IsGraded && ReadyToFinalize(snap) {
		_, err = tx.ExecContext(ctx, `UPDATE schedules SET is_graded=TRUE, status=$1, updated_at=$2
			WHERE id=$3 AND is_graded=FALSE`, schedule.StatusFinished, now.Unix(), snap.Defense.ID)
		if err != nil {
			return SubmitResult{}, err
		}
		snap.Defense.IsGraded = true
		snap.Defense.Status = schedule.StatusFinished
		res.ScheduleNowGraded = true
	}

	if err := s.refreshTotals(ctx, tx, snap, now); err != nil {
		return SubmitResult{}, err
	}
	if s.audit != nil {
		payload, _ := json.Marshal(map[string]any{
			"evaluator_role": role,
			"evaluator_id":   evaluatorID,
			"accepted":       res.Accepted,
			"updated":        res.Updated,
			"unchanged":      res.Unchanged,
		})
		err = s.audit.Append(ctx, tx, audit.Event{
			Actor: caller.ID, Type: audit.TypeSubmission,
			Key: snap.Defense.ID, DataJSON: string(payload),
		})
		if err != nil {
			return SubmitResult{}, err
		}
		if res.ScheduleNowGraded {
			err = s.audit.Append(ctx, tx, audit.Event{
				Actor: caller.ID, Type: audit.TypeFinalized,
				Key: snap.Defense.ID, DataJSON: `{}`,
			})
			if err != nil {
				return SubmitResult{}, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

// refreshTotals recomputes the cached per-student totals for the whole team
// from the snapshot's post-write entries.
func (s *SQLStore) refreshTotals(ctx context.Context, tx *sql.Tx, snap Snapshot, now time.Time) error {
	for _, id := range snap.Team.MemberIDs() {
		sg, err := StudentView(snap, s.engine, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE student_totals SET total=$1, computed_at=$2
			WHERE student_id=$3 AND team_id=$4`, sg.Total, now.Unix(), id, snap.Team.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			_, err = tx.ExecContext(ctx, `INSERT INTO student_totals (student_id, team_id, total, computed_at)
				VALUES ($1,$2,$3,$4)`, id, snap.Team.ID, sg.Total, now.Unix())
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLStore) ListForEvaluator(ctx context.Context, caller Caller, scheduleID string) ([]Entry, error) {
	snap, err := s.loadSnapshot(ctx, s.db, scheduleID, false)
	if err != nil {
		return nil, err
	}
	role, evaluatorID, err := ResolveEvaluatorRole(snap, caller, "")
	if err != nil {
		return nil, err
	}
	out := []Entry{}
	for _, e := range snap.Entries {
		if e.EvaluatorRole == role && e.EvaluatorID == evaluatorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *SQLStore) StudentGrades(ctx context.Context, studentID string) (StudentGrades, error) {
	appt, err := s.activeAppointment(ctx, s.db)
	if err != nil {
		return StudentGrades{}, err
	}
	var teamID string
	err = s.db.QueryRowContext(ctx, `SELECT tm.team_id FROM team_members tm
		JOIN teams t ON t.id = tm.team_id
		WHERE tm.student_id=$1 AND t.appointment_id=$2`, studentID, appt.ID).Scan(&teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return StudentGrades{}, fmt.Errorf("%w: student %q has no team this appointment", ErrNotFound, studentID)
	}
	if err != nil {
		return StudentGrades{}, err
	}
	var scheduleID string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM schedules WHERE team_id=$1 AND appointment_id=$2`,
		teamID, appt.ID).Scan(&scheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return StudentGrades{}, fmt.Errorf("%w: team %q has no scheduled defense", ErrNotFound, teamID)
	}
	if err != nil {
		return StudentGrades{}, err
	}

	snap, err := s.loadSnapshot(ctx, s.db, scheduleID, false)
	if err != nil {
		return StudentGrades{}, err
	}
	sg, err := StudentView(snap, s.engine, studentID)
	if err != nil {
		return StudentGrades{}, err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE student_totals SET total=$1, computed_at=$2
		WHERE student_id=$3 AND team_id=$4`, sg.Total, time.Now().Unix(), studentID, teamID)
	if err != nil {
		return StudentGrades{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = s.db.ExecContext(ctx, `INSERT INTO student_totals (student_id, team_id, total, computed_at)
			VALUES ($1,$2,$3,$4)`, studentID, teamID, sg.Total, time.Now().Unix())
		if err != nil {
			return StudentGrades{}, err
		}
	}
	return sg, nil
}

func (s *SQLStore) ExportRows(ctx context.Context, scheduleID string) ([][]string, error) {
	snap, err := s.loadSnapshot(ctx, s.db, scheduleID, false)
	if err != nil {
		return nil, err
	}
	return ExportTable(snap, s.engine)
}

// PendingSchedules recomputes required-pair coverage rather than trusting
// the stored completion flags, so criteria added after a seat was flagged
// put the defense back on the doctor's list.
func (s *SQLStore) PendingSchedules(ctx context.Context, doctorID string) ([]schedule.Defense, error) {
	appt, err := s.activeAppointment(ctx, s.db)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT s.id FROM schedules s
		JOIN committee_members cm ON cm.schedule_id = s.id
		WHERE cm.doctor_id=$1 AND s.appointment_id=$2
		ORDER BY s.schedule_date ASC`, doctorID, appt.ID)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []schedule.Defense{}
	for _, id := range ids {
		snap, err := s.loadSnapshot(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		role, err := committeeRole(snap, doctorID)
		if err != nil {
			continue
		}
		if !EvaluatorDone(snap, role, doctorID) {
			out = append(out, snap.Defense)
		}
	}
	return out, nil
}

// ExportSpecialty renders one combined grade sheet for every scheduled team
// of a specialty under the active appointment. Any partially graded defense
// fails the whole export.
func (s *SQLStore) ExportSpecialty(ctx context.Context, specialty string) ([][]string, error) {
	appt, err := s.activeAppointment(ctx, s.db)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT s.id FROM schedules s
		JOIN teams t ON t.id = s.team_id
		WHERE t.specialty=$1 AND s.appointment_id=$2 ORDER BY t.name`,
		specialty, appt.ID)
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no scheduled defenses for specialty %q", ErrNotFound, specialty)
	}

	out := [][]string{}
	for i, id := range ids {
		snap, err := s.loadSnapshot(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		table, err := ExportTable(snap, s.engine)
		if err != nil {
			return nil, err
		}
		for j, row := range table {
			if j == 0 {
				if i == 0 {
					out = append(out, append([]string{"Team"}, row...))
				}
				continue
			}
			out = append(out, append([]string{snap.Team.Name}, row...))
		}
	}
	return out, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx so the snapshot loader
// serves reads inside and outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadSnapshot batch-reads everything engine decisions need about one
// defense. With forUpdate set and a postgres backend the schedule row is
// locked until the surrounding transaction ends.
func (s *SQLStore) loadSnapshot(ctx context.Context, q querier, scheduleID string, forUpdate bool) (Snapshot, error) {
	var snap Snapshot
	var err error

	snap.Appointment, err = s.activeAppointment(ctx, q)
	if err != nil {
		return Snapshot{}, err
	}

	sel := `SELECT id, team_id, appointment_id, schedule_date, status, is_graded, created_at, updated_at
		FROM schedules WHERE id=$1`
	if forUpdate && s.driver == "postgres" {
		sel += ` FOR UPDATE`
	}
	d := &snap.Defense
	err = q.QueryRowContext(ctx, sel, scheduleID).Scan(&d.ID, &d.TeamID, &d.AppointmentID,
		&d.Date, &d.Status, &d.IsGraded, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: schedule %q", ErrNotFound, scheduleID)
	}
	if err != nil {
		return Snapshot{}, err
	}
	if d.AppointmentID != snap.Appointment.ID {
		return Snapshot{}, fmt.Errorf("%w: schedule %q is not under the active appointment", ErrNotFound, scheduleID)
	}

	rows, err := q.QueryContext(ctx, `SELECT schedule_id, doctor_id, role, has_completed_evaluation
		FROM committee_members WHERE schedule_id=$1 ORDER BY role, doctor_id`, scheduleID)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var m schedule.CommitteeMember
		if err := rows.Scan(&m.ScheduleID, &m.DoctorID, &m.Role, &m.HasCompletedEvaluation); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		d.Committee = append(d.Committee, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	t := &snap.Team
	err = q.QueryRowContext(ctx, `SELECT id, name, specialty, supervisor_id, appointment_id, has_project
		FROM teams WHERE id=$1`, d.TeamID).Scan(&t.ID, &t.Name, &t.Specialty, &t.SupervisorID,
		&t.AppointmentID, &t.HasProject)
	if err != nil {
		return Snapshot{}, err
	}
	rows, err = q.QueryContext(ctx, `SELECT student_id, full_name, email FROM team_members
		WHERE team_id=$1 ORDER BY student_id`, t.ID)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var m team.Member
		if err := rows.Scan(&m.ID, &m.FullName, &m.Email); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		t.Members = append(t.Members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = q.QueryContext(ctx, `SELECT id, name, description, max_grade, evaluator_role, target_scope,
		specialty, term, appointment_id, active, created_at, updated_at FROM criteria
		WHERE active=TRUE AND specialty=$1 AND appointment_id=$2 ORDER BY evaluator_role, name`,
		t.Specialty, snap.Appointment.ID)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var c criteria.Criterion
		var updated sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.MaxGrade, &c.EvaluatorRole,
			&c.TargetScope, &c.Specialty, &c.Term, &c.AppointmentID, &c.Active, &c.CreatedAt, &updated); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		if updated.Valid {
			c.UpdatedAt = updated.Int64
		}
		snap.Criteria = append(snap.Criteria, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	rows, err = q.QueryContext(ctx, `SELECT id, schedule_id, criteria_id, team_id, student_id,
		evaluator_role, evaluator_id, appointment_id, grade, evaluated_at, updated_at
		FROM evaluations WHERE schedule_id=$1`, scheduleID)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var e Entry
		var student sql.NullString
		var updated sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ScheduleID, &e.CriteriaID, &e.TeamID, &student,
			&e.EvaluatorRole, &e.EvaluatorID, &e.AppointmentID, &e.Grade, &e.EvaluatedAt, &updated); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		if student.Valid {
			e.StudentID = student.String
		}
		if updated.Valid {
			e.UpdatedAt = updated.Int64
		}
		snap.Entries = append(snap.Entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *SQLStore) activeAppointment(ctx context.Context, q querier) (term.Appointment, error) {
	var a term.Appointment
	err := q.QueryRowContext(ctx, `SELECT id, year, status, first_term_start, first_term_end,
		second_term_start, second_term_end, created_at FROM academic_appointments
		WHERE status=$1`, term.StatusActive).Scan(&a.ID, &a.Year, &a.Status,
		&a.FirstTermStart, &a.FirstTermEnd, &a.SecondTermStart, &a.SecondTermEnd, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return term.Appointment{}, term.ErrNoActive
	}
	return a, err
}

// nullable maps the empty subject of team-scope entries onto SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
