package team

// Member is one student on a capstone team.
type Member struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

// Team is a finalized capstone team: the engine consumes it read-only as
// grading context (specialty, members, supervisor).
type Team struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Specialty     string   `json:"specialty"`
	SupervisorID  string   `json:"supervisor_id"`
	AppointmentID string   `json:"appointment_id"`
	HasProject    bool     `json:"has_project"`
	Members       []Member `json:"members,omitempty"`
}

// MemberIDs returns the student ids in roster order.
func (t Team) MemberIDs() []string {
	out := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		out = append(out, m.ID)
	}
	return out
}

// HasMember reports whether the student is on the team.
func (t Team) HasMember(studentID string) bool {
	for _, m := range t.Members {
		if m.ID == studentID {
			return true
		}
	}
	return false
}
