package term

import (
	"errors"
	"time"
)

// Term names the half of an academic year a criterion or schedule belongs to.
type Term string

const (
	TermFirst  Term = "First"
	TermSecond Term = "Second"
)

func ValidTerm(t Term) bool { return t == TermFirst || t == TermSecond }

const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// ErrNoActive is returned when no academic appointment is currently active.
// Every engine operation is scoped to the active appointment, so the caller
// cannot evaluate, schedule or export until one exists.
var ErrNoActive = errors.New("no active academic appointment")

// Appointment is the time-boxed academic-year context (year + two term
// windows) that scopes criteria, schedules and evaluations. At most one is
// Active at a time.
type Appointment struct {
	ID              string `json:"id"`
	Year            string `json:"year"`
	Status          string `json:"status"`
	FirstTermStart  int64  `json:"first_term_start"`
	FirstTermEnd    int64  `json:"first_term_end"`
	SecondTermStart int64  `json:"second_term_start"`
	SecondTermEnd   int64  `json:"second_term_end"`
	CreatedAt       int64  `json:"created_at"`
}

// Window returns the start and end of the given term.
func (a Appointment) Window(t Term) (start, end int64) {
	if t == TermSecond {
		return a.SecondTermStart, a.SecondTermEnd
	}
	return a.FirstTermStart, a.FirstTermEnd
}

// InWindow reports whether ts falls inside the given term's window.
func (a Appointment) InWindow(t Term, ts time.Time) bool {
	start, end := a.Window(t)
	u := ts.Unix()
	return u >= start && u <= end
}

// TermAt resolves which term window contains ts, if any.
func (a Appointment) TermAt(ts time.Time) (Term, bool) {
	if a.InWindow(TermFirst, ts) {
		return TermFirst, true
	}
	if a.InWindow(TermSecond, ts) {
		return TermSecond, true
	}
	return "", false
}
