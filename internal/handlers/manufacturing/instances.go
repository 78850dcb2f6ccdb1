package manufacturing

import (
	"net/http"

	"wotrack/internal/production"
	"wotrack/internal/response"
)

// GetInstance handles GET /instances/{id}.
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	inst, err := h.Engine.GetInstance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, inst)
}

// ListAllocations handles GET /instances/{id}/materials.
func (h *Handler) ListAllocations(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	list, err := h.Engine.ListAllocations(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, list, len(list))
}

type allocationRequest struct {
	RawMaterialID int64 `json:"raw_material_id"`
	Quantity      int   `json:"quantity"`
}

// AssignMaterial handles POST /instances/{id}/materials.
func (h *Handler) AssignMaterial(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	var req allocationRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Engine.AssignMaterial(r.Context(), id, req.RawMaterialID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, res)
}

// PlanMaterials handles GET /instances/{id}/materials/plan.
func (h *Handler) PlanMaterials(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	plan, err := h.Engine.PlanMaterials(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, plan, len(plan))
}

// ListUsage handles GET /instances/{id}/usage.
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	list, err := h.Engine.ListMaterialUsage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, list, len(list))
}

// ListProcesses handles GET /instances/{id}/processes.
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	list, err := h.Engine.ListProcessStatuses(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, list, len(list))
}

// UpdateProcess handles PUT /instances/{id}/processes/{pid}.
func (h *Handler) UpdateProcess(w http.ResponseWriter, r *http.Request, idStr, pidStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	pid, ok := parseID(w, "process id", pidStr)
	if !ok {
		return
	}
	var u production.ProcessUpdate
	if !decode(w, r, &u) {
		return
	}
	ps, err := h.Engine.UpdateProcessStatus(r.Context(), id, pid, u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, ps)
}

type usageRequest struct {
	UsedQuantity int `json:"used_quantity"`
}

// RecordUsage handles PUT /instances/{id}/processes/{pid}/materials/{rmid}.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request, idStr, pidStr, rmStr string) {
	id, ok := parseID(w, "instance id", idStr)
	if !ok {
		return
	}
	pid, ok := parseID(w, "process id", pidStr)
	if !ok {
		return
	}
	rmid, ok := parseID(w, "raw material id", rmStr)
	if !ok {
		return
	}
	var req usageRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Engine.RecordMaterialUsage(r.Context(), id, pid, rmid, req.UsedQuantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, u)
}
