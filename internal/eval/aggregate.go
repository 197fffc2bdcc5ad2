package eval

import (
	"fmt"

	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/grading"
)

// gradesFor collects the raw grades recorded for one (criterion, subject)
// pair across all evaluators of the criterion's role.
func gradesFor(snap Snapshot, c criteria.Criterion, studentID string) []float64 {
	subject := studentID
	if c.TargetScope == criteria.ScopeTeam {
		subject = ""
	}
	out := []float64{}
	for _, e := range snap.Entries {
		if e.CriteriaID == c.ID && e.StudentID == subject && e.EvaluatorRole == c.EvaluatorRole {
			out = append(out, e.Grade)
		}
	}
	return out
}

// StudentView builds the aggregated grade sheet for one team member.
// Team-scope values are broadcast to every member; each published line is
// rounded on its own while the total is the rounded sum of the unrounded
// values, so the total can differ from the sum of the printed lines.
func StudentView(snap Snapshot, eng grading.Engine, studentID string) (StudentGrades, error) {
	if !snap.Team.HasMember(studentID) {
		return StudentGrades{}, fmt.Errorf("%w: student %q is not on the team", ErrNotFound, studentID)
	}
	sg := StudentGrades{
		StudentID: studentID,
		TeamID:    snap.Team.ID,
		Lines:     []GradeLine{},
	}
	for _, m := range snap.Team.Members {
		if m.ID == studentID {
			sg.FullName = m.FullName
		}
	}
	sum := 0.0
	for _, c := range snap.Criteria {
		v, ok := eng.Reduce(c.EvaluatorRole, gradesFor(snap, c, studentID))
		if !ok {
			continue
		}
		sg.Lines = append(sg.Lines, GradeLine{
			CriteriaID: c.ID,
			Criterion:  c.Name,
			Role:       c.EvaluatorRole,
			Scope:      c.TargetScope,
			MaxGrade:   c.MaxGrade,
			Value:      grading.Round(v),
		})
		sum += v
	}
	sg.Total = grading.Round(sum)
	return sg, nil
}
