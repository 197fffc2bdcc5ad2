package eval

import (
	"github.com/gradeworks/capstone-grading/internal/criteria"
)

// Entry is one recorded grade. The composite key (schedule, criterion, team,
// student, evaluator role, evaluator) identifies it; resubmitting the same
// key updates the row instead of inserting a second one. StudentID is empty
// for team-scope entries.
type Entry struct {
	ID            string        `json:"id"`
	ScheduleID    string        `json:"schedule_id"`
	CriteriaID    string        `json:"criteria_id"`
	TeamID        string        `json:"team_id"`
	StudentID     string        `json:"student_id,omitempty"`
	EvaluatorRole criteria.Role `json:"evaluator_role"`
	EvaluatorID   string        `json:"evaluator_id"`
	AppointmentID string        `json:"appointment_id"`
	Grade         float64       `json:"grade"`
	EvaluatedAt   int64         `json:"evaluated_at"`
	UpdatedAt     int64         `json:"updated_at,omitempty"`
}

// GradeItem is one grade inside a submission batch. StudentID is left empty
// for team-scope criteria; a non-empty value there is rejected up front.
type GradeItem struct {
	CriteriaID string  `json:"criteria_id" validate:"required"`
	StudentID  string  `json:"student_id"`
	Grade      float64 `json:"grade"`
}

// SubmitRequest is an evaluation batch for one defense. DoctorID is only
// meaningful when an admin submits on behalf of a committee doctor; doctors
// always submit as themselves and the field is ignored for them.
type SubmitRequest struct {
	ScheduleID string      `json:"schedule_id" validate:"required"`
	TeamID     string      `json:"team_id" validate:"required"`
	DoctorID   string      `json:"doctor_id"`
	Grades     []GradeItem `json:"grades" validate:"required,min=1,dive"`
}

// Caller identifies the authenticated account behind a request. AccountRole
// is the login role ("admin" or "doctor"), never the evaluator role; the
// evaluator role is always re-derived from the committee.
type Caller struct {
	ID          string
	AccountRole string
}

// SubmitResult reports what a submission batch changed.
type SubmitResult struct {
	Accepted          int  `json:"accepted"`
	Updated           int  `json:"updated"`
	Unchanged         int  `json:"unchanged"`
	EvaluatorComplete bool `json:"evaluator_complete"`
	ScheduleNowGraded bool `json:"schedule_now_graded"`
}

// GradeLine is one published value on a student's grade sheet. Examiner
// lines are averages over the examiners that have graded so far.
type GradeLine struct {
	CriteriaID string         `json:"criteria_id"`
	Criterion  string         `json:"criterion"`
	Role       criteria.Role  `json:"role"`
	Scope      criteria.Scope `json:"scope"`
	MaxGrade   float64        `json:"max_grade"`
	Value      float64        `json:"value"`
}

// StudentGrades is the aggregated sheet for one student: every published
// line plus the rounded total.
type StudentGrades struct {
	StudentID string      `json:"student_id"`
	FullName  string      `json:"full_name"`
	TeamID    string      `json:"team_id"`
	Lines     []GradeLine `json:"lines"`
	Total     float64     `json:"total"`
}
