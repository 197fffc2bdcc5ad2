package grading

import (
	"math"

	"github.com/gradeworks/capstone-grading/internal/criteria"
)

// Reducer collapses every recorded grade for one (criterion, subject) pair
// into the single value that is published for it.
type Reducer interface {
	Reduce(grades []float64) (float64, bool)
}

// Engine routes by evaluator role to the correct Reducer.
type Engine interface {
	Reduce(role criteria.Role, grades []float64) (float64, bool)
}

type defaultEngine struct {
	reducers map[criteria.Role]Reducer
}

func (e *defaultEngine) Reduce(role criteria.Role, grades []float64) (float64, bool) {
	r, ok := e.reducers[role]
	if !ok {
		return 0, false
	}
	return r.Reduce(grades)
}

// NewDefaultEngine installs the built-in reducers: Admin and Supervisor
// grades pass through unchanged (there is exactly one evaluator of each),
// Examiner grades collapse to their arithmetic mean.
func NewDefaultEngine() Engine {
	return &defaultEngine{
		reducers: map[criteria.Role]Reducer{
			criteria.RoleAdmin:      singleStrategy{},
			criteria.RoleSupervisor: singleStrategy{},
			criteria.RoleExaminer:   meanStrategy{},
		},
	}
}

// singleStrategy publishes the sole recorded grade.
type singleStrategy struct{}

func (singleStrategy) Reduce(grades []float64) (float64, bool) {
	if len(grades) == 0 {
		return 0, false
	}
	return grades[0], true
}

// meanStrategy publishes the arithmetic mean over however many examiners
// have graded so far.
type meanStrategy struct{}

func (meanStrategy) Reduce(grades []float64) (float64, bool) {
	if len(grades) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, g := range grades {
		sum += g
	}
	return sum / float64(len(grades)), true
}

// Round rounds half away from zero to the nearest integer, the convention
// used for every published grade line and total.
func Round(v float64) float64 { return math.Round(v) }
