package eval

import (
	"github.com/gradeworks/capstone-grading/internal/criteria"
)

// requiredPairs lists every (criterion, subject) an evaluator of the given
// role must grade: team-scope criteria once with an empty subject,
// student-scope criteria once per team member.
func requiredPairs(snap Snapshot, role criteria.Role) [][2]string {
	pairs := [][2]string{}
	for _, c := range snap.criteriaForRole(role) {
		if c.TargetScope == criteria.ScopeTeam {
			pairs = append(pairs, [2]string{c.ID, ""})
			continue
		}
		for _, id := range snap.Team.MemberIDs() {
			pairs = append(pairs, [2]string{c.ID, id})
		}
	}
	return pairs
}

// EvaluatorDone reports whether the evaluator has graded every pair their
// role requires. A role with no criteria configured can never be done; the
// defense stays open until an admin defines criteria for it.
func EvaluatorDone(snap Snapshot, role criteria.Role, evaluatorID string) bool {
	pairs := requiredPairs(snap, role)
	if len(pairs) == 0 {
		return false
	}
	have := map[[2]string]bool{}
	for _, e := range snap.Entries {
		if e.EvaluatorRole == role && e.EvaluatorID == evaluatorID {
			have[[2]string{e.CriteriaID, e.StudentID}] = true
		}
	}
	for _, p := range pairs {
		if !have[p] {
			return false
		}
	}
	return true
}

// ReadyToFinalize is the finalization guard: every committee seat is flagged
// complete and every seat's required pairs are actually covered by entries.
// The flag check alone is not trusted; coverage is re-verified from the
// entries read in the same transaction.
func ReadyToFinalize(snap Snapshot) bool {
	if len(snap.Defense.Committee) == 0 {
		return false
	}
	for _, m := range snap.Defense.Committee {
		if !m.HasCompletedEvaluation {
			return false
		}
		if !EvaluatorDone(snap, m.Role, m.DoctorID) {
			return false
		}
	}
	return true
}

// markComplete mirrors a committee flag flip into the snapshot so the guard
// sees it without a re-read.
func (s *Snapshot) markComplete(doctorID string) {
	for i := range s.Defense.Committee {
		if s.Defense.Committee[i].DoctorID == doctorID {
			s.Defense.Committee[i].HasCompletedEvaluation = true
		}
	}
}
