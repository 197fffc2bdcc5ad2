package http

import (
	"net/http"
	"strconv"

	"github.com/gradeworks/capstone-grading/internal/audit"
)

// AuditLogHandler lists recent engine audit events, optionally narrowed to
// one schedule with ?key=.
func AuditLogHandler(repo *audit.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := repo.Recent(r.Context(), r.URL.Query().Get("key"), limit)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
