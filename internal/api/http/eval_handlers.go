package http

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/gradeworks/capstone-grading/internal/auth/middleware"
	"github.com/gradeworks/capstone-grading/internal/eval"
	"github.com/gradeworks/capstone-grading/internal/rbac"
)

func callerFrom(r *http.Request) (eval.Caller, bool) {
	c := eval.Caller{
		ID:          authmw.SubjectFromContext(r.Context()),
		AccountRole: rbac.RoleFromContext(r.Context()),
	}
	return c, c.ID != ""
}

// SubmitEvaluationHandler records a grade batch for one defense. The
// evaluator role is derived server-side from the committee; a doctor_id in
// the body only matters when an admin submits on behalf of a doctor.
func SubmitEvaluationHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req eval.SubmitRequest
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := es.Submit(r.Context(), caller, req)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// MyEvaluationsHandler returns the grades the caller has recorded on one
// defense so a partially done evaluator can resume where they stopped.
func MyEvaluationsHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerFrom(r)
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		entries, err := es.ListForEvaluator(r.Context(), caller, chi.URLParam(r, "scheduleID"))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// StudentGradesHandler serves the aggregated sheet for one student.
func StudentGradesHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sg, err := es.StudentGrades(r.Context(), chi.URLParam(r, "studentID"))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	}
}

// MyGradesHandler serves the authenticated student their own sheet.
func MyGradesHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID := authmw.SubjectFromContext(r.Context())
		if studentID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sg, err := es.StudentGrades(r.Context(), studentID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	}
}

// PendingSchedulesHandler lists the authenticated doctor's defenses that
// still need grades from them.
func PendingSchedulesHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID := authmw.SubjectFromContext(r.Context())
		if doctorID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		list, err := es.PendingSchedules(r.Context(), doctorID)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// ExportScheduleHandler streams the defense's grade sheet as CSV. It fails
// with 412 until every committee member has fully graded.
func ExportScheduleHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheduleID := chi.URLParam(r, "scheduleID")
		rows, err := es.ExportRows(r.Context(), scheduleID)
		if err != nil {
			fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="grades-%s.csv"`, scheduleID))
		cw := csv.NewWriter(w)
		for _, row := range rows {
			if err := cw.Write(row); err != nil {
				return
			}
		}
		cw.Flush()
	}
}

// ExportSpecialtyHandler streams the combined CSV for every scheduled team
// of one specialty.
func ExportSpecialtyHandler(es eval.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialty := chi.URLParam(r, "specialty")
		rows, err := es.ExportSpecialty(r.Context(), specialty)
		if err != nil {
			fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="grades-%s.csv"`, specialty))
		cw := csv.NewWriter(w)
		for _, row := range rows {
			if err := cw.Write(row); err != nil {
				return
			}
		}
		cw.Flush()
	}
}
