package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authmw "github.com/gradeworks/capstone-grading/internal/auth/middleware"
	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

type criterionReq struct {
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description"`
	MaxGrade      float64 `json:"max_grade" validate:"required,gt=0"`
	EvaluatorRole string  `json:"evaluator_role" validate:"required,oneof=Admin Supervisor Examiner"`
	TargetScope   string  `json:"target_scope" validate:"required,oneof=Student Team"`
	Specialty     string  `json:"specialty" validate:"required"`
	Term          string  `json:"term" validate:"required,oneof=First Second"`
	Active        bool    `json:"active"`
}

func (req criterionReq) model() criteria.Criterion {
	return criteria.Criterion{
		Name:          req.Name,
		Description:   req.Description,
		MaxGrade:      req.MaxGrade,
		EvaluatorRole: criteria.Role(req.EvaluatorRole),
		TargetScope:   criteria.Scope(req.TargetScope),
		Specialty:     req.Specialty,
		Term:          term.Term(req.Term),
		Active:        req.Active,
	}
}

// CreateCriterionHandler defines a new active criterion under the active
// appointment. Creation is only allowed while the criterion's term window
// is open.
func CreateCriterionHandler(cs criteria.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req criterionReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		c := req.model()
		c.AppointmentID = appt.ID
		if err := criteria.ValidateCreationWindow(c, appt, time.Now()); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		created, err := cs.Create(r.Context(), c)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func UpdateCriterionHandler(cs criteria.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req criterionReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c := req.model()
		c.ID = chi.URLParam(r, "criterionID")
		updated, err := cs.Update(r.Context(), c)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func DeleteCriterionHandler(cs criteria.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cs.Delete(r.Context(), chi.URLParam(r, "criterionID")); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// StudentCriteriaHandler returns the active criteria for the authenticated
// student's own specialty, resolved through their team.
func StudentCriteriaHandler(cs criteria.Store, ts team.Store, as term.Store) http.HandlerFunc {
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
		list, err := cs.ListActive(r.Context(), t.Specialty, appt.ID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// ListCriteriaHandler returns active criteria for a specialty, optionally
// narrowed to one evaluator role with ?role=.
func ListCriteriaHandler(cs criteria.Store, as term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialty := r.URL.Query().Get("specialty")
		if specialty == "" {
			http.Error(w, "specialty required", http.StatusBadRequest)
			return
		}
		appt, err := as.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		var list []criteria.Criterion
		if role := r.URL.Query().Get("role"); role != "" {
			if !criteria.ValidRole(criteria.Role(role)) {
				http.Error(w, "invalid role", http.StatusBadRequest)
				return
			}
			list, err = cs.GetByRole(r.Context(), specialty, appt.ID, criteria.Role(role))
		} else {
			list, err = cs.ListActive(r.Context(), specialty, appt.ID)
		}
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
