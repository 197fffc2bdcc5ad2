package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authmw "github.com/gradeworks/capstone-grading/internal/auth/middleware"
	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type createScheduleReq struct {
	TeamID      string   `json:"team_id" validate:"required"`
	Date        int64    `json:"date" validate:"required"`
	ExaminerIDs []string `json:"examiner_ids" validate:"required,min=1"`
}

// CreateScheduleHandler books a defense for a team: the date must land in a
// term window of the active appointment and the committee is fixed here as
// the team's supervisor plus the given examiners.
func CreateScheduleHandler(ss schedule.Store, ts team.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createScheduleReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		t, err := ts.Get(r.Context(), req.TeamID)
		if err != nil {
			fail(w, err)
			return
		}
		date := time.Unix(req.Date, 0)
		if err := schedule.ValidateNew(date, t, appt, req.ExaminerIDs, time.Now()); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d := schedule.Defense{
			TeamID:        t.ID,
			AppointmentID: appt.ID,
			Date:          req.Date,
			Committee: []schedule.CommitteeMember{
				{DoctorID: t.SupervisorID, Role: criteria.RoleSupervisor},
			},
		}
		for _, id := range req.ExaminerIDs {
			d.Committee = append(d.Committee, schedule.CommitteeMember{DoctorID: id, Role: criteria.RoleExaminer})
		}
		created, err := ss.Create(r.Context(), d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func GetScheduleHandler(ss schedule.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := ss.Get(r.Context(), chi.URLParam(r, "scheduleID"))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func ListSchedulesHandler(ss schedule.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		list, err := ss.List(r.Context(), appt.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// MySchedulesHandler lists the defenses whose committee includes the
// authenticated doctor.
func MySchedulesHandler(ss schedule.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := authmw.SubjectFromContext(r.Context())
		if doctorID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		list, err := ss.ListForDoctor(r.Context(), doctorID, appt.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// TeamScheduleHandler returns the defense booked for the authenticated
// student's team.
func TeamScheduleHandler(ss schedule.Store, ts team.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := authmw.SubjectFromContext(r.Context())
		if studentID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		t, err := ts.TeamOfStudent(r.Context(), studentID, appt.ID)
		if err != nil {
			fail(w, err)
			return
		}
		d, err := ss.ByTeam(r.Context(), t.ID, appt.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}
