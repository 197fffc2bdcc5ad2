package eval

import "errors"

var (
	// ErrUnauthorized means the caller has no evaluator role on the defense:
	// not the team's supervisor and not an assigned examiner.
	ErrUnauthorized = errors.New("caller is not an evaluator on this defense")

	// ErrNotFound covers missing schedules, criteria and students referenced
	// by a submission.
	ErrNotFound = errors.New("referenced record not found")

	// ErrRoleMismatch means a grade targets a criterion owned by a different
	// evaluator role than the one resolved for the caller.
	ErrRoleMismatch = errors.New("criterion is not graded by the caller's evaluator role")

	// ErrOutOfRange means a grade falls outside [0, criterion max].
	ErrOutOfRange = errors.New("grade outside the criterion's allowed range")

	// ErrPrecondition means an operation that requires a fully graded
	// defense ran before grading finished.
	ErrPrecondition = errors.New("defense grading is not complete")
)
