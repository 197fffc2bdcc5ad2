package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/gradeworks/capstone-grading/internal/auth/middleware"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type teamMemberReq struct {
	ID       string `json:"id" validate:"required"`
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type putTeamReq struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Specialty    string          `json:"specialty" validate:"required"`
	SupervisorID string          `json:"supervisor_id" validate:"required"`
	HasProject   bool            `json:"has_project"`
	Members      []teamMemberReq `json:"members" validate:"required,min=1,dive"`
}

// PutTeamHandler creates or replaces a team under the active appointment,
// members included.
func PutTeamHandler(ts team.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req putTeamReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		t := team.Team{
			ID:            req.ID,
			Name:          req.Name,
			Specialty:     req.Specialty,
			SupervisorID:  req.SupervisorID,
			AppointmentID: appt.ID,
			HasProject:    req.HasProject,
		}
		for _, m := range req.Members {
			t.Members = append(t.Members, team.Member{ID: m.ID, FullName: m.FullName, Email: m.Email})
		}
		if err := ts.Put(r.Context(), t); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// BulkUpsertTeamsHandler imports a roster: a JSON array of teams, each
// replaced wholesale under the active appointment.
func BulkUpsertTeamsHandler(ts team.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []putTeamReq
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			http.Error(w, "expected JSON array of teams", http.StatusBadRequest)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		count := 0
		for _, req := range reqs {
			if err := validate.Struct(req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			t := team.Team{
				ID:            req.ID,
				Name:          req.Name,
				Specialty:     req.Specialty,
				SupervisorID:  req.SupervisorID,
				AppointmentID: appt.ID,
				HasProject:    req.HasProject,
			}
			for _, m := range req.Members {
				t.Members = append(t.Members, team.Member{ID: m.ID, FullName: m.FullName, Email: m.Email})
			}
			if err := ts.Put(r.Context(), t); err != nil {
				fail(w, err)
				return
			}
			count++
		}
		writeJSON(w, http.StatusOK, map[string]int{"upserted": count})
	}
}

func ListTeamsHandler(ts team.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		list, err := ts.List(r.Context(), r.URL.Query().Get("specialty"), appt.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func GetTeamHandler(ts team.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := ts.Get(r.Context(), chi.URLParam(r, "teamID"))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// MyTeamHandler returns the team the authenticated student belongs to under
// the active appointment.
func MyTeamHandler(ts team.Store, as term.Store) http.HandlerFunc {
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
		writeJSON(w, http.StatusOK, t)
	}
}
