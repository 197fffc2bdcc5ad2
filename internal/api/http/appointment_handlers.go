package http

import (
	"net/http"

	"github.com/gradeworks/capstone-grading/internal/term"
)

type createAppointmentReq struct {
	Year            string `json:"year" validate:"required"`
	FirstTermStart  int64  `json:"first_term_start" validate:"required"`
	FirstTermEnd    int64  `json:"first_term_end" validate:"required,gtfield=FirstTermStart"`
	SecondTermStart int64  `json:"second_term_start" validate:"required,gtfield=FirstTermEnd"`
	SecondTermEnd   int64  `json:"second_term_end" validate:"required,gtfield=SecondTermStart"`
}

// CreateAppointmentHandler opens a new academic year. The previous Active
// appointment, if any, is deactivated in the same transaction.
func CreateAppointmentHandler(st term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAppointmentReq
		if err := decodeValid(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a, err := st.Create(r.Context(), term.Appointment{
			Year:            req.Year,
			FirstTermStart:  req.FirstTermStart,
			FirstTermEnd:    req.FirstTermEnd,
			SecondTermStart: req.SecondTermStart,
			SecondTermEnd:   req.SecondTermEnd,
		})
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func ListAppointmentsHandler(st term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := st.List(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func ActiveAppointmentHandler(st term.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := st.Active(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
