package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/gradeworks/capstone-grading/internal/api/http"
	"github.com/gradeworks/capstone-grading/internal/audit"
	auth "github.com/gradeworks/capstone-grading/internal/auth/middleware"
	"github.com/gradeworks/capstone-grading/internal/config"
	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/db"
	"github.com/gradeworks/capstone-grading/internal/eval"
	"github.com/gradeworks/capstone-grading/internal/grading"
	"github.com/gradeworks/capstone-grading/internal/rbac"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := seedAdmin(ctx, dbh, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	termStore := term.NewSQLStore(dbh)
	teamStore := team.NewSQLStore(dbh)
	critStore := criteria.NewSQLStore(dbh)
	schedStore := schedule.NewSQLStore(dbh)
	auditRepo := audit.NewRepo(dbh)
	evalStore := eval.NewSQLStore(dbh, cfg.DBDriver, grading.NewDefaultEngine()).WithAudit(auditRepo)

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, true))

		// Accounts (admin)
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("users:update_role")).
			Patch("/users/{userID}/role", api.AdminUpdateUserRoleHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", api.ChangePasswordHandler(dbh))

		// Academic appointments
		pr.With(rbac.Require("appointment:create")).
			Post("/appointments", api.CreateAppointmentHandler(termStore))
		pr.With(rbac.Require("appointment:list")).
			Get("/appointments", api.ListAppointmentsHandler(termStore))
		pr.With(rbac.RequireAny("criteria:view", "criteria:view-own")).
			Get("/appointments/active", api.ActiveAppointmentHandler(termStore))

		// Teams (admin manages, students see their own)
		pr.With(rbac.Require("team:put")).
			Put("/teams", api.PutTeamHandler(teamStore, termStore))
		pr.With(rbac.Require("team:put")).
			Post("/teams/bulk", api.BulkUpsertTeamsHandler(teamStore, termStore))
		pr.With(rbac.Require("team:list")).
			Get("/teams", api.ListTeamsHandler(teamStore, termStore))
		pr.With(rbac.Require("team:view")).
			Get("/teams/{teamID}", api.GetTeamHandler(teamStore))
		pr.With(rbac.Require("schedule:view-own")).
			Get("/teams/mine", api.MyTeamHandler(teamStore, termStore))

		// Criteria
		pr.With(rbac.Require("criteria:create")).
			Post("/criteria", api.CreateCriterionHandler(critStore, termStore))
		pr.With(rbac.Require("criteria:update")).
			Put("/criteria/{criterionID}", api.UpdateCriterionHandler(critStore))
		pr.With(rbac.Require("criteria:delete")).
			Delete("/criteria/{criterionID}", api.DeleteCriterionHandler(critStore))
		pr.With(rbac.Require("criteria:view")).
			Get("/criteria", api.ListCriteriaHandler(critStore, termStore))
		pr.With(rbac.Require("criteria:view-own")).
			Get("/criteria/student", api.StudentCriteriaHandler(critStore, teamStore, termStore))

		// Defense schedules
		pr.With(rbac.Require("schedule:create")).
			Post("/schedules", api.CreateScheduleHandler(schedStore, teamStore, termStore))
		pr.With(rbac.Require("schedule:list")).
			Get("/schedules", api.ListSchedulesHandler(schedStore, termStore))
		pr.With(rbac.Require("schedule:view-own")).
			Get("/schedules/mine", api.MySchedulesHandler(schedStore, termStore))
		pr.With(rbac.Require("schedule:view-own")).
			Get("/schedules/team", api.TeamScheduleHandler(schedStore, teamStore, termStore))
		pr.With(rbac.RequireAny("schedule:list", "schedule:view-own")).
			Get("/schedules/{scheduleID}", api.GetScheduleHandler(schedStore))

		// Evaluation engine
		pr.With(rbac.Require("eval:submit")).
			Post("/evaluations", api.SubmitEvaluationHandler(evalStore))
		pr.With(rbac.Require("eval:view-own")).
			Get("/schedules/{scheduleID}/evaluations/mine", api.MyEvaluationsHandler(evalStore))
		pr.With(rbac.Require("eval:view-own")).
			Get("/schedules/pending", api.PendingSchedulesHandler(evalStore))
		pr.With(rbac.Require("grades:view")).
			Get("/students/{studentID}/grades", api.StudentGradesHandler(evalStore))
		pr.With(rbac.Require("grades:view-own")).
			Get("/grades/me", api.MyGradesHandler(evalStore))
		pr.With(rbac.Require("schedule:export")).
			Get("/schedules/{scheduleID}/export", api.ExportScheduleHandler(evalStore))
		pr.With(rbac.Require("schedule:export")).
			Get("/export/{specialty}", api.ExportSpecialtyHandler(evalStore))
		pr.With(rbac.Require("audit:list")).
			Get("/audit", api.AuditLogHandler(auditRepo))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

// seedAdmin guarantees a usable admin account on first boot when
// ADMIN_PASS_HASH is provided. Existing accounts are left untouched.
func seedAdmin(ctx context.Context, dbh *sql.DB, cfg config.Config) error {
	if cfg.AdminPassHash == "" {
		return nil
	}
	var one int
	err := dbh.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, cfg.AdminUser).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = dbh.ExecContext(ctx, `INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1,$2,$3,'admin',$4)`, cfg.AdminUser, cfg.AdminUser, cfg.AdminPassHash, time.Now().Unix())
	return err
}
