package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/gradeworks/capstone-grading/internal/criteria"
	"github.com/gradeworks/capstone-grading/internal/eval"
	"github.com/gradeworks/capstone-grading/internal/schedule"
	"github.com/gradeworks/capstone-grading/internal/team"
	"github.com/gradeworks/capstone-grading/internal/term"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps the engine's sentinel errors onto HTTP statuses and falls back
// to 500 for anything unrecognized.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, eval.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, eval.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, team.ErrNotFound),
		errors.Is(err, criteria.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, eval.ErrOutOfRange),
		errors.Is(err, eval.ErrRoleMismatch),
		errors.Is(err, criteria.ErrDuplicate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, eval.ErrPrecondition), errors.Is(err, term.ErrNoActive):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// decodeValid decodes a JSON body into v and runs struct validation on it.
func decodeValid(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("bad json body")
	}
	return validate.Struct(v)
}
