package criteria

import (
	"fmt"
	"time"

	"github.com/gradeworks/capstone-grading/internal/term"
)

// Role is the evaluator role a criterion is scored by. The same values are
// used for committee membership and stored evaluation entries.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleSupervisor Role = "Supervisor"
	RoleExaminer   Role = "Examiner"
)

func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleSupervisor || r == RoleExaminer
}

// Scope says whether a criterion is graded once per team or once per student.
type Scope string

const (
	ScopeStudent Scope = "Student"
	ScopeTeam    Scope = "Team"
)

func ValidScope(s Scope) bool { return s == ScopeStudent || s == ScopeTeam }

// Criterion is one rubric item, scoped to specialty/term/appointment.
// Admin-editable, but edits are not retroactively re-validated against
// existing evaluations.
type Criterion struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	MaxGrade      float64   `json:"max_grade"`
	EvaluatorRole Role      `json:"evaluator_role"`
	TargetScope   Scope     `json:"target_scope"`
	Specialty     string    `json:"specialty"`
	Term          term.Term `json:"term"`
	AppointmentID string    `json:"appointment_id"`
	Active        bool      `json:"active"`
	CreatedAt     int64     `json:"created_at"`
	UpdatedAt     int64     `json:"updated_at,omitempty"` // 0 = never updated
}

// Validate checks the field-level rules shared by create and update.
func (c Criterion) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	if c.MaxGrade <= 0 {
		return fmt.Errorf("max grade must be greater than zero")
	}
	if !ValidRole(c.EvaluatorRole) {
		return fmt.Errorf("invalid evaluator role %q", c.EvaluatorRole)
	}
	if !ValidScope(c.TargetScope) {
		return fmt.Errorf("invalid target scope %q", c.TargetScope)
	}
	if !term.ValidTerm(c.Term) {
		return fmt.Errorf("invalid term %q", c.Term)
	}
	if c.Specialty == "" {
		return fmt.Errorf("specialty required")
	}
	return nil
}

// ValidateCreationWindow enforces that criteria are only created while the
// active appointment is inside the matching term window.
func ValidateCreationWindow(c Criterion, appt term.Appointment, now time.Time) error {
	if appt.InWindow(c.Term, now) {
		return nil
	}
	start, end := appt.Window(c.Term)
	return fmt.Errorf("cannot create criteria outside of %s-term dates (%s to %s)",
		c.Term,
		time.Unix(start, 0).Format("2006-01-02"),
		time.Unix(end, 0).Format("2006-01-02"))
}
