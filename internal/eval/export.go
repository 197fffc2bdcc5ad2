package eval

import (
	"fmt"

	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/grading"
)

// checkExportable verifies that every committee seat has covered every
// required pair, naming the first gap found so the admin knows exactly who
// still owes which grade.
func checkExportable(snap Snapshot) error {
	if len(snap.Criteria) == 0 {
		return fmt.Errorf("%w: no criteria configured for specialty %q", ErrPrecondition, snap.Team.Specialty)
	}
	for _, m := range snap.Defense.Committee {
		pairs := requiredPairs(snap, m.Role)
		if len(pairs) == 0 {
			return fmt.Errorf("%w: no %s criteria configured for specialty %q",
				ErrPrecondition, m.Role, snap.Team.Specialty)
		}
		have := map[[2]string]bool{}
		for _, e := range snap.Entries {
			if e.EvaluatorRole == m.Role && e.EvaluatorID == m.DoctorID {
				have[[2]string{e.CriteriaID, e.StudentID}] = true
			}
		}
		for _, p := range pairs {
			if have[p] {
				continue
			}
			c, _ := snap.criterion(p[0])
			if p[1] == "" {
				return fmt.Errorf("%w: %s %s has not graded criterion %q for the team",
					ErrPrecondition, m.Role, m.DoctorID, c.Name)
			}
			return fmt.Errorf("%w: %s %s has not graded criterion %q for student %s",
				ErrPrecondition, m.Role, m.DoctorID, c.Name, p[1])
		}
	}
	return nil
}

// ExportTable renders the defense's grade sheet as rows ready for CSV: one
// header row, one row per team member, a Total column last. It refuses to
// render a partially graded defense.
func ExportTable(snap Snapshot, eng grading.Engine) ([][]string, error) {
	if err := checkExportable(snap); err != nil {
		return nil, err
	}

	header := []string{"Student ID", "Student Name"}
	for _, c := range snap.Criteria {
		col := fmt.Sprintf("%s: %s", c.EvaluatorRole, c.Name)
		if c.EvaluatorRole == criteria.RoleExaminer {
			col += " (Avg)"
		}
		header = append(header, col)
	}
	header = append(header, "Total")
	table := [][]string{header}

	for _, member := range snap.Team.Members {
		sg, err := StudentView(snap, eng, member.ID)
		if err != nil {
			return nil, err
		}
		byID := map[string]GradeLine{}
		for _, l := range sg.Lines {
			byID[l.CriteriaID] = l
		}
		row := []string{member.ID, member.FullName}
		for _, c := range snap.Criteria {
			if l, ok := byID[c.ID]; ok {
				row = append(row, fmt.Sprintf("%.2f", l.Value))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, fmt.Sprintf("%.2f", sg.Total))
		table = append(table, row)
	}
	return table, nil
}
