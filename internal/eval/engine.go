package eval

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

// Snapshot is everything the engine needs about one defense, read in a
// single batch at the start of a transaction. All decisions (role
// resolution, validation, completion, finalization) run over the snapshot
// so the logic stays in one place and off the hot query path.
type Snapshot struct {
	Appointment term.Appointment
	Defense     schedule.Defense
	Team        team.Team
	Criteria    []criteria.Criterion
	Entries     []Entry
}

func (s Snapshot) criterion(id string) (criteria.Criterion, bool) {
	for _, c := range s.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return criteria.Criterion{}, false
}

// criteriaForRole returns the active criteria one evaluator role grades.
func (s Snapshot) criteriaForRole(role criteria.Role) []criteria.Criterion {
	out := []criteria.Criterion{}
	for _, c := range s.Criteria {
		if c.EvaluatorRole == role {
			out = append(out, c)
		}
	}
	return out
}

// ResolveEvaluatorRole derives the evaluator role for a submission from the
// defense's committee, never from anything the client sent. An admin grades
// as Admin unless onBehalfOf names a doctor, in which case that doctor must
// hold a committee seat and the grades are recorded under their role and id.
// A doctor may only act as themselves.
func ResolveEvaluatorRole(snap Snapshot, caller Caller, onBehalfOf string) (criteria.Role, string, error) {
	if caller.AccountRole == "admin" {
		if onBehalfOf == "" {
			return criteria.RoleAdmin, caller.ID, nil
		}
		role, err := committeeRole(snap, onBehalfOf)
		if err != nil {
			return "", "", err
		}
		return role, onBehalfOf, nil
	}
	if onBehalfOf != "" && onBehalfOf != caller.ID {
		return "", "", ErrUnauthorized
	}
	role, err := committeeRole(snap, caller.ID)
	if err != nil {
		return "", "", err
	}
	return role, caller.ID, nil
}

func committeeRole(snap Snapshot, doctorID string) (criteria.Role, error) {
	for _, m := range snap.Defense.Committee {
		if m.DoctorID != doctorID {
			continue
		}
		if m.Role == criteria.RoleSupervisor && snap.Team.SupervisorID != doctorID {
			// committee says supervisor but the team disagrees; treat the
			// seat as invalid rather than trust either side
			return "", ErrUnauthorized
		}
		return m.Role, nil
	}
	return "", ErrUnauthorized
}

type mutationOp int

const (
	opInsert mutationOp = iota
	opUpdate
	opNoop
)

type mutation struct {
	op    mutationOp
	entry Entry
}

// planUpsert validates a whole batch against the snapshot and maps each item
// onto an insert, update or no-op by the composite entry key. Any invalid
// item fails the entire batch before a single write happens.
func planUpsert(snap Snapshot, role criteria.Role, evaluatorID string, req SubmitRequest, now time.Time) ([]mutation, error) {
	if req.TeamID != snap.Team.ID {
		return nil, fmt.Errorf("%w: team %q is not the scheduled team", ErrNotFound, req.TeamID)
	}

	muts := make([]mutation, 0, len(req.Grades))
	seen := map[string]bool{}
	for _, item := range req.Grades {
		c, ok := snap.criterion(item.CriteriaID)
		if !ok {
			return nil, fmt.Errorf("%w: criterion %q", ErrNotFound, item.CriteriaID)
		}
		if c.EvaluatorRole != role {
			return nil, fmt.Errorf("%w: criterion %q belongs to %s", ErrRoleMismatch, c.Name, c.EvaluatorRole)
		}
		studentID := item.StudentID
		if c.TargetScope == criteria.ScopeTeam {
			if studentID != "" {
				return nil, fmt.Errorf("team-scope criterion %q cannot target a student", c.Name)
			}
		} else {
			if studentID == "" {
				return nil, fmt.Errorf("student-scope criterion %q requires a student id", c.Name)
			}
			if !snap.Team.HasMember(studentID) {
				return nil, fmt.Errorf("%w: student %q is not on the team", ErrNotFound, studentID)
			}
		}
		if item.Grade < 0 || item.Grade > c.MaxGrade {
			return nil, fmt.Errorf("%w: criterion %q allows [0, %g], got %g",
				ErrOutOfRange, c.Name, c.MaxGrade, item.Grade)
		}
		key := item.CriteriaID + "|" + studentID
		if seen[key] {
			return nil, fmt.Errorf("duplicate grade for criterion %q student %q in one batch", c.Name, studentID)
		}
		seen[key] = true

		muts = append(muts, planOne(snap, role, evaluatorID, item.CriteriaID, studentID, item.Grade, now))
	}
	return muts, nil
}

func planOne(snap Snapshot, role criteria.Role, evaluatorID, criteriaID, studentID string, grade float64, now time.Time) mutation {
	for _, e := range snap.Entries {
		if e.CriteriaID == criteriaID && e.StudentID == studentID &&
			e.EvaluatorRole == role && e.EvaluatorID == evaluatorID {
			if e.Grade == grade {
				return mutation{op: opNoop, entry: e}
			}
			e.Grade = grade
			e.UpdatedAt = now.Unix()
			return mutation{op: opUpdate, entry: e}
		}
	}
	return mutation{op: opInsert, entry: Entry{
		ID:            uuid.NewString(),
		ScheduleID:    snap.Defense.ID,
		CriteriaID:    criteriaID,
		TeamID:        snap.Team.ID,
		StudentID:     studentID,
		EvaluatorRole: role,
		EvaluatorID:   evaluatorID,
		AppointmentID: snap.Appointment.ID,
		Grade:         grade,
		EvaluatedAt:   now.Unix(),
	}}
}

// apply folds accepted mutations back into the snapshot so completion and
// aggregation run over post-write state without a re-read.
func (s *Snapshot) apply(muts []mutation) {
	for _, m := range muts {
		switch m.op {
		case opInsert:
			s.Entries = append(s.Entries, m.entry)
		case opUpdate:
			for i := range s.Entries {
				if s.Entries[i].ID == m.entry.ID {
					s.Entries[i] = m.entry
					break
				}
			}
		}
	}
}
