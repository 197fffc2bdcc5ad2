package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	auth "github.com/gradeworks/capstone-grading/internal/auth/middleware"
	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/db"
	"github.com/gradeworks/capstone-grading/internal/eval"
	"github.com/gradeworks/capstone-grading/internal/grading"
	"github.com/gradeworks/capstone-grading/internal/rbac"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type testServer struct {
	router     chi.Router
	svc        *auth.AuthService
	db         *sql.DB
	scheduleID string
	criterion  string // the supervisor criterion id
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "api_test.db")
	dbh, err := db.Open(ctx, db.DriverSQLite, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dbh.Close() })

	now := time.Now().Unix()
	appt, err := term.NewSQLStore(dbh).Create(ctx, term.Appointment{
		Year: "2026", FirstTermStart: now - 86400, FirstTermEnd: now + 90*86400,
		SecondTermStart: now + 91*86400, SecondTermEnd: now + 180*86400,
	})
	if err != nil {
		t.Fatal(err)
	}
	tm := team.Team{
		ID: "team-1", Name: "Falcons", Specialty: "CS",
		SupervisorID: "doc-sup", AppointmentID: appt.ID, HasProject: true,
		Members: []team.Member{{ID: "stu-1", FullName: "Amal Hassan"}},
	}
	if err := team.NewSQLStore(dbh).Put(ctx, tm); err != nil {
		t.Fatal(err)
	}
	crit, err := criteria.NewSQLStore(dbh).Create(ctx, criteria.Criterion{
		Name: "Implementation", MaxGrade: 30, EvaluatorRole: criteria.RoleSupervisor,
		TargetScope: criteria.ScopeStudent, Specialty: "CS", Term: term.TermFirst,
		AppointmentID: appt.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	def, err := schedule.NewSQLStore(dbh).Create(ctx, schedule.Defense{
		TeamID: tm.ID, AppointmentID: appt.ID, Date: now + 7*86400,
		Committee: []schedule.CommitteeMember{
			{DoctorID: "doc-sup", Role: criteria.RoleSupervisor},
			{DoctorID: "doc-ex1", Role: criteria.RoleExaminer},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	evalStore := eval.NewSQLStore(dbh, "sqlite", grading.NewDefaultEngine())
	svc := auth.NewAuthService("api-test-secret")

	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(svc))
		pr.With(rbac.Require("eval:submit")).
			Post("/evaluations", SubmitEvaluationHandler(evalStore))
		pr.With(rbac.Require("grades:view-own")).
			Get("/grades/me", MyGradesHandler(evalStore))
		pr.With(rbac.Require("schedule:export")).
			Get("/schedules/{scheduleID}/export", ExportScheduleHandler(evalStore))
	})

	return &testServer{router: r, svc: svc, db: dbh, scheduleID: def.ID, criterion: crit.ID}
}

func (ts *testServer) do(t *testing.T, method, path, sub, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	tok, err := ts.svc.IssueJWT(sub, role)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitEvaluationEndpoint(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"schedule_id": ts.scheduleID,
		"team_id":     "team-1",
		"grades":      []map[string]any{{"criteria_id": ts.criterion, "student_id": "stu-1", "grade": 28}},
	}
	rec := ts.do(t, "POST", "/evaluations", "doc-sup", "doctor", body)
	if rec.Code != 200 {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body.String())
	}
	var res eval.SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Accepted != 1 || !res.EvaluatorComplete {
		t.Fatalf("result: %+v", res)
	}

	// students are not allowed through the rbac gate
	rec = ts.do(t, "POST", "/evaluations", "stu-1", "student", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student submit: %d, want 403", rec.Code)
	}

	// a doctor without a committee seat passes rbac but fails role resolution
	rec = ts.do(t, "POST", "/evaluations", "doc-stranger", "doctor", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stranger submit: %d, want 401", rec.Code)
	}

	// out-of-range grade maps to 400
	bad := map[string]any{
		"schedule_id": ts.scheduleID,
		"team_id":     "team-1",
		"grades":      []map[string]any{{"criteria_id": ts.criterion, "student_id": "stu-1", "grade": 99}},
	}
	rec = ts.do(t, "POST", "/evaluations", "doc-sup", "doctor", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range: %d, want 400", rec.Code)
	}
}

func TestGradesAndExportEndpoints(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]any{
		"schedule_id": ts.scheduleID,
		"team_id":     "team-1",
		"grades":      []map[string]any{{"criteria_id": ts.criterion, "student_id": "stu-1", "grade": 28}},
	}
	if rec := ts.do(t, "POST", "/evaluations", "doc-sup", "doctor", body); rec.Code != 200 {
		t.Fatalf("seed submit: %d %s", rec.Code, rec.Body.String())
	}

	rec := ts.do(t, "GET", "/grades/me", "stu-1", "student", nil)
	if rec.Code != 200 {
		t.Fatalf("grades/me: %d %s", rec.Code, rec.Body.String())
	}
	var sg eval.StudentGrades
	if err := json.Unmarshal(rec.Body.Bytes(), &sg); err != nil {
		t.Fatal(err)
	}
	if len(sg.Lines) != 1 || sg.Total != 28 {
		t.Fatalf("sheet: %+v", sg)
	}

	// no examiner criteria exist yet, so the examiner seat cannot be
	// satisfied and export stays blocked
	rec = ts.do(t, "GET", "/schedules/"+ts.scheduleID+"/export", "root", "admin", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("export before completion: %d, want 412", rec.Code)
	}
}
