package eval

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gradeworks/capstone-grading/internal/audit"
	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/db"
	"github.com/gradeworks/capstone-grading/internal/grading"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type fixture struct {
	db    *sql.DB
	eval  *SQLStore
	sched *schedule.SQLStore
	appt  term.Appointment
	team  team.Team
	def   schedule.Defense
}

// seed stands up a sqlite-backed world: an active appointment, one team of
// two students, criteria for every evaluator role, and a scheduled defense
// with one supervisor and two examiners.
func seed(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "eval_test.db")
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbh.Close() })

	now := time.Now().Unix()
	appt, err := term.NewSQLStore(dbh).Create(ctx, term.Appointment{
		Year:            "2026",
		FirstTermStart:  now - 86400,
		FirstTermEnd:    now + 90*86400,
		SecondTermStart: now + 91*86400,
		SecondTermEnd:   now + 180*86400,
	})
	if err != nil {
		t.Fatal(err)
	}

	tm := team.Team{
		ID: "team-1", Name: "Falcons", Specialty: "CS",
		SupervisorID: "doc-sup", AppointmentID: appt.ID, HasProject: true,
		Members: []team.Member{
			{ID: "stu-1", FullName: "Amal Hassan"},
			{ID: "stu-2", FullName: "Omar Saleh"},
		},
	}
	if err := team.NewSQLStore(dbh).Put(ctx, tm); err != nil {
		t.Fatal(err)
	}

	cs := criteria.NewSQLStore(dbh)
	for _, c := range []criteria.Criterion{
		{Name: "Implementation", MaxGrade: 30, EvaluatorRole: criteria.RoleSupervisor,
			TargetScope: criteria.ScopeStudent, Specialty: "CS", Term: term.TermFirst, AppointmentID: appt.ID},
		{Name: "Presentation", MaxGrade: 25, EvaluatorRole: criteria.RoleExaminer,
			TargetScope: criteria.ScopeStudent, Specialty: "CS", Term: term.TermFirst, AppointmentID: appt.ID},
		{Name: "Report", MaxGrade: 10, EvaluatorRole: criteria.RoleExaminer,
			TargetScope: criteria.ScopeTeam, Specialty: "CS", Term: term.TermFirst, AppointmentID: appt.ID},
		{Name: "Documentation", MaxGrade: 20, EvaluatorRole: criteria.RoleAdmin,
			TargetScope: criteria.ScopeTeam, Specialty: "CS", Term: term.TermFirst, AppointmentID: appt.ID},
	} {
		if _, err := cs.Create(ctx, c); err != nil {
			t.Fatalf("create criterion %s: %v", c.Name, err)
		}
	}

	ss := schedule.NewSQLStore(dbh)
	def, err := ss.Create(ctx, schedule.Defense{
		TeamID: tm.ID, AppointmentID: appt.ID, Date: now + 7*86400,
		Committee: []schedule.CommitteeMember{
			{DoctorID: "doc-sup", Role: criteria.RoleSupervisor},
			{DoctorID: "doc-ex1", Role: criteria.RoleExaminer},
			{DoctorID: "doc-ex2", Role: criteria.RoleExaminer},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	es := NewSQLStore(dbh, "sqlite", grading.NewDefaultEngine()).WithAudit(audit.NewRepo(dbh))
	return &fixture{db: dbh, eval: es, sched: ss, appt: appt, team: tm, def: def}
}

func (f *fixture) criterionID(t *testing.T, name string) string {
	t.Helper()
	var id string
	if err := f.db.QueryRow(`SELECT id FROM criteria WHERE name=$1`, name).Scan(&id); err != nil {
		t.Fatalf("criterion %s: %v", name, err)
	}
	return id
}

func (f *fixture) submit(t *testing.T, caller Caller, onBehalf string, items ...GradeItem) SubmitResult {
	t.Helper()
	res, err := f.eval.Submit(context.Background(), caller, SubmitRequest{
		ScheduleID: f.def.ID, TeamID: f.team.ID, DoctorID: onBehalf, Grades: items,
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestSubmitLifecycle(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	impl := f.criterionID(t, "Implementation")
	pres := f.criterionID(t, "Presentation")
	rep := f.criterionID(t, "Report")

	// partial supervisor batch: accepted but seat not complete
	res := f.submit(t, Caller{ID: "doc-sup", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: impl, StudentID: "stu-1", Grade: 28})
	if res.Accepted != 1 || res.EvaluatorComplete || res.ScheduleNowGraded {
		t.Fatalf("partial supervisor: %+v", res)
	}

	// second student closes the supervisor's seat
	res = f.submit(t, Caller{ID: "doc-sup", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: impl, StudentID: "stu-2", Grade: 22})
	if !res.EvaluatorComplete || res.ScheduleNowGraded {
		t.Fatalf("supervisor done: %+v", res)
	}

	res = f.submit(t, Caller{ID: "doc-ex1", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: pres, StudentID: "stu-1", Grade: 20},
		GradeItem{CriteriaID: pres, StudentID: "stu-2", Grade: 18},
		GradeItem{CriteriaID: rep, Grade: 9})
	if !res.EvaluatorComplete || res.ScheduleNowGraded {
		t.Fatalf("first examiner done: %+v", res)
	}

	// the last examiner's batch is the exact finalization point
	res = f.submit(t, Caller{ID: "doc-ex2", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: pres, StudentID: "stu-1", Grade: 22},
		GradeItem{CriteriaID: pres, StudentID: "stu-2", Grade: 16},
		GradeItem{CriteriaID: rep, Grade: 7})
	if !res.EvaluatorComplete || !res.ScheduleNowGraded {
		t.Fatalf("last examiner: %+v", res)
	}

	d, err := f.sched.Get(ctx, f.def.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsGraded || d.Status != schedule.StatusFinished {
		t.Fatalf("defense after finalization: graded=%v status=%s", d.IsGraded, d.Status)
	}

	// resubmitting an identical grade is a no-op and is_graded stays set
	res = f.submit(t, Caller{ID: "doc-ex2", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: rep, Grade: 7})
	if res.Unchanged != 1 || res.Accepted != 0 || res.ScheduleNowGraded {
		t.Fatalf("idempotent resubmit: %+v", res)
	}
	d, _ = f.sched.Get(ctx, f.def.ID)
	if !d.IsGraded {
		t.Fatal("is_graded must be monotonic")
	}

	// stu-1: supervisor 28 + examiner avg 21 + report avg 8 = 57
	sg, err := f.eval.StudentGrades(ctx, "stu-1")
	if err != nil {
		t.Fatal(err)
	}
	if sg.Total != 57 {
		t.Fatalf("stu-1 total: %v, want 57", sg.Total)
	}
	var cached float64
	if err := f.db.QueryRow(`SELECT total FROM student_totals WHERE student_id='stu-1' AND team_id=$1`,
		f.team.ID).Scan(&cached); err != nil {
		t.Fatal(err)
	}
	if cached != 57 {
		t.Fatalf("cached total: %v, want 57", cached)
	}

	rows, err := f.eval.ExportRows(ctx, f.def.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("export rows: %d, want 3", len(rows))
	}

	events, err := audit.NewRepo(f.db).Recent(ctx, f.def.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	var finalized bool
	for _, e := range events {
		if e.Type == audit.TypeFinalized {
			finalized = true
		}
	}
	if !finalized {
		t.Fatalf("no finalization audit event in %d events", len(events))
	}
}

func TestSubmitAdminOnBehalf(t *testing.T) {
	f := seed(t)
	impl := f.criterionID(t, "Implementation")

	// the admin submits supervisor grades for the supervisor
	f.submit(t, Caller{ID: "root", AccountRole: "admin"}, "doc-sup",
		GradeItem{CriteriaID: impl, StudentID: "stu-1", Grade: 15})

	var role, evaluator string
	err := f.db.QueryRow(`SELECT evaluator_role, evaluator_id FROM evaluations WHERE criteria_id=$1`,
		impl).Scan(&role, &evaluator)
	if err != nil {
		t.Fatal(err)
	}
	if role != string(criteria.RoleSupervisor) || evaluator != "doc-sup" {
		t.Fatalf("recorded as (%s, %s), want (Supervisor, doc-sup)", role, evaluator)
	}

	// on behalf of a doctor with no committee seat
	_, err = f.eval.Submit(context.Background(), Caller{ID: "root", AccountRole: "admin"}, SubmitRequest{
		ScheduleID: f.def.ID, TeamID: f.team.ID, DoctorID: "doc-stranger",
		Grades: []GradeItem{{CriteriaID: impl, StudentID: "stu-1", Grade: 10}},
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestSubmitRejectsOutsiders(t *testing.T) {
	f := seed(t)
	impl := f.criterionID(t, "Implementation")

	_, err := f.eval.Submit(context.Background(), Caller{ID: "doc-stranger", AccountRole: "doctor"}, SubmitRequest{
		ScheduleID: f.def.ID, TeamID: f.team.ID,
		Grades: []GradeItem{{CriteriaID: impl, StudentID: "stu-1", Grade: 10}},
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestSubmitFailedBatchWritesNothing(t *testing.T) {
	f := seed(t)
	impl := f.criterionID(t, "Implementation")

	_, err := f.eval.Submit(context.Background(), Caller{ID: "doc-sup", AccountRole: "doctor"}, SubmitRequest{
		ScheduleID: f.def.ID, TeamID: f.team.ID,
		Grades: []GradeItem{
			{CriteriaID: impl, StudentID: "stu-1", Grade: 20},
			{CriteriaID: impl, StudentID: "stu-2", Grade: 99},
		},
	})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(1) FROM evaluations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("evaluations written by a failed batch: %d", n)
	}
}

func TestPendingSchedules(t *testing.T) {
	f := seed(t)
	ctx := context.Background()
	impl := f.criterionID(t, "Implementation")

	list, err := f.eval.PendingSchedules(ctx, "doc-sup")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != f.def.ID {
		t.Fatalf("pending before grading: %+v", list)
	}

	f.submit(t, Caller{ID: "doc-sup", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: impl, StudentID: "stu-1", Grade: 28},
		GradeItem{CriteriaID: impl, StudentID: "stu-2", Grade: 22})

	list, err = f.eval.PendingSchedules(ctx, "doc-sup")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("pending after completion: %+v", list)
	}
	// examiners are still pending
	list, _ = f.eval.PendingSchedules(ctx, "doc-ex1")
	if len(list) != 1 {
		t.Fatalf("examiner pending: %+v", list)
	}
}

func TestListForEvaluator(t *testing.T) {
	f := seed(t)
	impl := f.criterionID(t, "Implementation")
	pres := f.criterionID(t, "Presentation")

	f.submit(t, Caller{ID: "doc-sup", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: impl, StudentID: "stu-1", Grade: 28})
	f.submit(t, Caller{ID: "doc-ex1", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: pres, StudentID: "stu-1", Grade: 20})

	entries, err := f.eval.ListForEvaluator(context.Background(), Caller{ID: "doc-sup", AccountRole: "doctor"}, f.def.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].CriteriaID != impl {
		t.Fatalf("supervisor sees %+v", entries)
	}
}

func TestSubmitCrossAppointmentIsolation(t *testing.T) {
	f := seed(t)
	impl := f.criterionID(t, "Implementation")

	// opening a new academic year deactivates the old appointment; the old
	// schedule is no longer reachable by the engine
	now := time.Now().Unix()
	if _, err := term.NewSQLStore(f.db).Create(context.Background(), term.Appointment{
		Year: "2027", FirstTermStart: now, FirstTermEnd: now + 90*86400,
		SecondTermStart: now + 91*86400, SecondTermEnd: now + 180*86400,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := f.eval.Submit(context.Background(), Caller{ID: "doc-sup", AccountRole: "doctor"}, SubmitRequest{
		ScheduleID: f.def.ID, TeamID: f.team.ID,
		Grades: []GradeItem{{CriteriaID: impl, StudentID: "stu-1", Grade: 10}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func gradeEverything(t *testing.T, f *fixture) {
	t.Helper()
	impl := f.criterionID(t, "Implementation")
	pres := f.criterionID(t, "Presentation")
	rep := f.criterionID(t, "Report")
	doc := f.criterionID(t, "Documentation")

	f.submit(t, Caller{ID: "doc-sup", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: impl, StudentID: "stu-1", Grade: 28},
		GradeItem{CriteriaID: impl, StudentID: "stu-2", Grade: 22})
	f.submit(t, Caller{ID: "doc-ex1", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: pres, StudentID: "stu-1", Grade: 20},
		GradeItem{CriteriaID: pres, StudentID: "stu-2", Grade: 18},
		GradeItem{CriteriaID: rep, Grade: 9})
	f.submit(t, Caller{ID: "doc-ex2", AccountRole: "doctor"}, "",
		GradeItem{CriteriaID: pres, StudentID: "stu-1", Grade: 22},
		GradeItem{CriteriaID: pres, StudentID: "stu-2", Grade: 16},
		GradeItem{CriteriaID: rep, Grade: 7})
	f.submit(t, Caller{ID: "root", AccountRole: "admin"}, "",
		GradeItem{CriteriaID: doc, Grade: 16})
}

func TestExportSpecialty(t *testing.T) {
	f := seed(t)
	ctx := context.Background()

	if _, err := f.eval.ExportSpecialty(ctx, "EE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown specialty: got %v, want ErrNotFound", err)
	}
	if _, err := f.eval.ExportSpecialty(ctx, "CS"); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("ungraded defense: got %v, want ErrPrecondition", err)
	}

	gradeEverything(t, f)
	rows, err := f.eval.ExportSpecialty(ctx, "CS")
	if err != nil {
		t.Fatal(err)
	}
	// header + 2 students, each row prefixed with the team name
	if len(rows) != 3 {
		t.Fatalf("rows: %d, want 3", len(rows))
	}
	if rows[0][0] != "Team" || rows[1][0] != "Falcons" {
		t.Fatalf("team column: %v / %v", rows[0], rows[1])
	}
}

func TestSubmitSameScheduleConcurrently(t *testing.T) {
	f := seed(t)
	pres := f.criterionID(t, "Presentation")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, doc := range []string{"doc-ex1", "doc-ex2"} {
		wg.Add(1)
		go func(doc string) {
			defer wg.Done()
			_, err := f.eval.Submit(context.Background(), Caller{ID: doc, AccountRole: "doctor"}, SubmitRequest{
				ScheduleID: f.def.ID, TeamID: f.team.ID,
				Grades: []GradeItem{{CriteriaID: pres, StudentID: "stu-1", Grade: 20}},
			})
			errs <- err
		}(doc)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(1) FROM evaluations WHERE criteria_id=$1`, pres).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("entries after concurrent submits: %d, want 2", n)
	}
}
