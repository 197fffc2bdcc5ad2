package eval

import (
	"errors"
	"strings"
	"testing"

	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/grading"
)

func entry(criteriaID, studentID string, role criteria.Role, evaluatorID string, grade float64) Entry {
	return Entry{
		ID: "e-" + criteriaID + "-" + studentID + "-" + evaluatorID,
		ScheduleID: "sched-1", CriteriaID: criteriaID, TeamID: "team-1",
		StudentID: studentID, EvaluatorRole: role, EvaluatorID: evaluatorID,
		AppointmentID: "appt-1", Grade: grade, EvaluatedAt: 1,
	}
}

func TestStudentViewExaminerAverage(t *testing.T) {
	snap := testSnapshot()
	snap.Entries = []Entry{
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex1", 10),
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex2", 14),
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex3", 18),
	}

	sg, err := StudentView(snap, grading.NewDefaultEngine(), "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sg.Lines) != 1 {
		t.Fatalf("lines: %d, want 1", len(sg.Lines))
	}
	if sg.Lines[0].Value != 14 {
		t.Fatalf("examiner average: %v, want 14", sg.Lines[0].Value)
	}
	if sg.Total != 14 {
		t.Fatalf("total: %v, want 14", sg.Total)
	}
	if sg.FullName != "Amal Hassan" {
		t.Fatalf("full name: %q", sg.FullName)
	}
}

func TestStudentViewTeamScopeBroadcast(t *testing.T) {
	snap := testSnapshot()
	snap.Entries = []Entry{
		entry("c-adm", "", criteria.RoleAdmin, "root", 18),
		entry("c-sup", "stu-1", criteria.RoleSupervisor, "doc-sup", 25),
	}
	eng := grading.NewDefaultEngine()

	// both members see the team-scope admin line
	for _, id := range []string{"stu-1", "stu-2"} {
		sg, err := StudentView(snap, eng, id)
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, l := range sg.Lines {
			if l.CriteriaID == "c-adm" && l.Value == 18 {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: team-scope line not broadcast: %+v", id, sg.Lines)
		}
	}

	// only stu-1 has the supervisor line
	sg, _ := StudentView(snap, eng, "stu-1")
	if len(sg.Lines) != 2 || sg.Total != 43 {
		t.Fatalf("stu-1: lines=%d total=%v, want 2 lines total 43", len(sg.Lines), sg.Total)
	}
	sg, _ = StudentView(snap, eng, "stu-2")
	if len(sg.Lines) != 1 || sg.Total != 18 {
		t.Fatalf("stu-2: lines=%d total=%v, want 1 line total 18", len(sg.Lines), sg.Total)
	}
}

func TestStudentViewRoundsLinesAndTotalSeparately(t *testing.T) {
	snap := testSnapshot()
	// two examiner pairs each averaging x.5: lines round up, total rounds the
	// unrounded sum
	snap.Entries = []Entry{
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex1", 12),
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex2", 13),
		entry("c-exm-team", "", criteria.RoleExaminer, "doc-ex1", 7),
		entry("c-exm-team", "", criteria.RoleExaminer, "doc-ex2", 8),
	}
	sg, err := StudentView(snap, grading.NewDefaultEngine(), "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if sg.Lines[0].Value != 13 || sg.Lines[1].Value != 8 {
		t.Fatalf("lines: %v, %v, want 13 and 8", sg.Lines[0].Value, sg.Lines[1].Value)
	}
	// 12.5 + 7.5 = 20, not 13 + 8 = 21
	if sg.Total != 20 {
		t.Fatalf("total: %v, want 20", sg.Total)
	}
}

func TestStudentViewNotOnTeam(t *testing.T) {
	snap := testSnapshot()
	if _, err := StudentView(snap, grading.NewDefaultEngine(), "stu-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func fullyGradedSnapshot() Snapshot {
	snap := testSnapshot()
	snap.Entries = []Entry{
		entry("c-adm", "", criteria.RoleAdmin, "root", 16),
		entry("c-sup", "stu-1", criteria.RoleSupervisor, "doc-sup", 28),
		entry("c-sup", "stu-2", criteria.RoleSupervisor, "doc-sup", 22),
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex1", 20),
		entry("c-exm", "stu-2", criteria.RoleExaminer, "doc-ex1", 18),
		entry("c-exm-team", "", criteria.RoleExaminer, "doc-ex1", 9),
		entry("c-exm", "stu-1", criteria.RoleExaminer, "doc-ex2", 22),
		entry("c-exm", "stu-2", criteria.RoleExaminer, "doc-ex2", 16),
		entry("c-exm-team", "", criteria.RoleExaminer, "doc-ex2", 7),
	}
	for i := range snap.Defense.Committee {
		snap.Defense.Committee[i].HasCompletedEvaluation = true
	}
	return snap
}

func TestExportTable(t *testing.T) {
	snap := fullyGradedSnapshot()
	rows, err := ExportTable(snap, grading.NewDefaultEngine())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: %d, want header + 2 students", len(rows))
	}
	header := strings.Join(rows[0], ";")
	if !strings.Contains(header, "Admin: Documentation") ||
		!strings.Contains(header, "Supervisor: Implementation") ||
		!strings.Contains(header, "Examiner: Presentation (Avg)") ||
		!strings.Contains(header, "Total") {
		t.Fatalf("header: %v", rows[0])
	}
	// stu-1: 16 + 28 + (20+22)/2 + (9+7)/2 = 16+28+21+8 = 73
	got := rows[1][len(rows[1])-1]
	if got != "73.00" {
		t.Fatalf("stu-1 total: %q, want 73.00", got)
	}
}

func TestExportTablePreconditionNamesGap(t *testing.T) {
	snap := fullyGradedSnapshot()
	// drop one examiner grade
	kept := []Entry{}
	for _, e := range snap.Entries {
		if e.EvaluatorID == "doc-ex2" && e.CriteriaID == "c-exm" && e.StudentID == "stu-2" {
			continue
		}
		kept = append(kept, e)
	}
	snap.Entries = kept

	_, err := ExportTable(snap, grading.NewDefaultEngine())
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("got %v, want ErrPrecondition", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "doc-ex2") || !strings.Contains(msg, "Presentation") || !strings.Contains(msg, "stu-2") {
		t.Fatalf("error does not name the gap: %q", msg)
	}
}

func TestExportTableNoCriteria(t *testing.T) {
	snap := testSnapshot()
	snap.Criteria = nil
	if _, err := ExportTable(snap, grading.NewDefaultEngine()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("got %v, want ErrPrecondition", err)
	}
}
