package manufacturing

import (
	"net/http"
	"strings"

	"wotrack/internal/response"
)

// ServeHTTP routes /api/v1/ requests, matching on path segments.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
	path = strings.TrimSuffix(path, "/")
	parts := strings.Split(path, "/")
	n := len(parts)
	get, post, put := r.Method == http.MethodGet, r.Method == http.MethodPost, r.Method == http.MethodPut

	switch {
	// Components
	case parts[0] == "components" && n == 1 && get:
		h.ListComponents(w, r)
	case parts[0] == "components" && n == 1 && post:
		h.CreateComponent(w, r)
	case parts[0] == "components" && n == 2 && get:
		h.GetComponent(w, r, parts[1])
	case parts[0] == "components" && n == 3 && parts[2] == "processes" && post:
		h.CreateProcess(w, r, parts[1])
	case parts[0] == "components" && n == 4 && parts[2] == "processes" && parts[3] == "import" && post:
		h.ImportProcesses(w, r, parts[1])
	case parts[0] == "components" && n == 3 && parts[2] == "materials" && get:
		h.ListMaterialRequirements(w, r, parts[1])
	case parts[0] == "components" && n == 3 && parts[2] == "materials" && post:
		h.CreateMaterialRequirement(w, r, parts[1])

	// Work orders
	case parts[0] == "workorders" && n == 1 && get:
		h.ListWorkOrders(w, r)
	case parts[0] == "workorders" && n == 1 && post:
		h.CreateWorkOrder(w, r)
	case parts[0] == "workorders" && n == 2 && get:
		h.GetWorkOrder(w, r, parts[1])
	case parts[0] == "workorders" && n == 3 && parts[2] == "instances" && post:
		h.AddInstance(w, r, parts[1])
	case parts[0] == "workorders" && n == 3 && parts[2] == "board" && get:
		h.Board(w, r, parts[1])
	case parts[0] == "workorders" && n == 3 && parts[2] == "board.xlsx" && get:
		h.ExportBoard(w, r, parts[1])
	case parts[0] == "workorders" && n == 3 && parts[2] == "stages" && get:
		h.ListStages(w, r, parts[1])
	case parts[0] == "workorders" && n == 4 && parts[2] == "stages" && put:
		h.UpdateStage(w, r, parts[1], parts[3])

	// Instances
	case parts[0] == "instances" && n == 2 && get:
		h.GetInstance(w, r, parts[1])
	case parts[0] == "instances" && n == 3 && parts[2] == "materials" && get:
		h.ListAllocations(w, r, parts[1])
	case parts[0] == "instances" && n == 3 && parts[2] == "materials" && post:
		h.AssignMaterial(w, r, parts[1])
	case parts[0] == "instances" && n == 4 && parts[2] == "materials" && parts[3] == "plan" && get:
		h.PlanMaterials(w, r, parts[1])
	case parts[0] == "instances" && n == 3 && parts[2] == "usage" && get:
		h.ListUsage(w, r, parts[1])
	case parts[0] == "instances" && n == 3 && parts[2] == "processes" && get:
		h.ListProcesses(w, r, parts[1])
	case parts[0] == "instances" && n == 4 && parts[2] == "processes" && put:
		h.UpdateProcess(w, r, parts[1], parts[3])
	case parts[0] == "instances" && n == 6 && parts[2] == "processes" && parts[4] == "materials" && put:
		h.RecordUsage(w, r, parts[1], parts[3], parts[5])

	// Audit
	case parts[0] == "audit" && n == 1 && get:
		h.AuditLog(w, r)

	default:
		response.Err(w, "not found", http.StatusNotFound)
	}
}
