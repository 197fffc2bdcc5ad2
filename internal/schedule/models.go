package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type Status string

const (
	StatusUpcoming Status = "Upcoming"
	StatusFinished Status = "Finished"
)

var ErrNotFound = errors.New("schedule not found")

// CommitteeMember is one evaluator assigned to a defense: exactly one
// Supervisor row (the team's supervisor) plus zero or more Examiner rows,
// fixed at schedule-creation time.
type CommitteeMember struct {
	ScheduleID             string        `json:"schedule_id"`
	DoctorID               string        `json:"doctor_id"`
	Role                   criteria.Role `json:"role"`
	HasCompletedEvaluation bool          `json:"has_completed_evaluation"`
}

// Defense is a scheduled capstone defense for one team. is_graded is
// monotonic: the finalization guard flips it once and nothing resets it.
type Defense struct {
	ID            string            `json:"id"`
	TeamID        string            `json:"team_id"`
	AppointmentID string            `json:"appointment_id"`
	Date          int64             `json:"date"`
	Status        Status            `json:"status"`
	IsGraded      bool              `json:"is_graded"`
	CreatedAt     int64             `json:"created_at"`
	UpdatedAt     int64             `json:"updated_at,omitempty"`
	Committee     []CommitteeMember `json:"committee,omitempty"`
}

// Supervisor returns the Supervisor committee row, if assigned.
func (d Defense) Supervisor() (CommitteeMember, bool) {
	for _, m := range d.Committee {
		if m.Role == criteria.RoleSupervisor {
			return m, true
		}
	}
	return CommitteeMember{}, false
}

// Examiners returns the Examiner committee rows.
func (d Defense) Examiners() []CommitteeMember {
	out := []CommitteeMember{}
	for _, m := range d.Committee {
		if m.Role == criteria.RoleExaminer {
			out = append(out, m)
		}
	}
	return out
}

// ValidateNew enforces the schedule-creation rules: a future date inside one
// of the active appointment's term windows, a project-holding team under that
// appointment, at least one examiner, and a committee that does not include
// the supervisor as examiner.
func ValidateNew(date time.Time, t team.Team, appt term.Appointment, examinerIDs []string, now time.Time) error {
	if !date.After(now) {
		return fmt.Errorf("schedule date must be in the future")
	}
	if _, ok := appt.TermAt(date); !ok {
		return fmt.Errorf("schedule date must fall inside a term window of the active appointment")
	}
	if t.AppointmentID != appt.ID {
		return fmt.Errorf("team does not belong to the active appointment")
	}
	if !t.HasProject {
		return fmt.Errorf("team has no approved project")
	}
	if len(examinerIDs) == 0 {
		return fmt.Errorf("committee examiner list cannot be empty")
	}
	seen := map[string]bool{}
	for _, id := range examinerIDs {
		if id == t.SupervisorID {
			return fmt.Errorf("supervisor cannot be included among the examiners")
		}
		if seen[id] {
			return fmt.Errorf("duplicate examiner id %q", id)
		}
		seen[id] = true
	}
	return nil
}
