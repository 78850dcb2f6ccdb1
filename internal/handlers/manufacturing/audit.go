package manufacturing

import (
	"net/http"
	"strconv"

	"wotrack/internal/audit"
	"wotrack/internal/models"
	"wotrack/internal/response"
)

// AuditLog handles GET /audit with optional module, record_id, action and
// limit filters.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{Module: q.Get("module"), RecordID: q.Get("record_id"), Action: q.Get("action")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Err(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	entries, err := audit.List(r.Context(), h.Store.DB(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	response.JSONList(w, entries, len(entries))
}
