package manufacturing

import (
	"bytes"
	"fmt"
	"net/http"

	"wotrack/internal/logging"
	"wotrack/internal/models"
	"wotrack/internal/production"
	"wotrack/internal/response"
	"wotrack/internal/sheets"
)

// ListWorkOrders handles GET /workorders with an optional order_id filter.
func (h *Handler) ListWorkOrders(w http.ResponseWriter, r *http.Request) {
	var orderID int64
	if raw := r.URL.Query().Get("order_id"); raw != "" {
		id, ok := parseID(w, "order_id", raw)
		if !ok {
			return
		}
		orderID = id
	}
	list, err := h.Engine.ListWorkOrders(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, list, len(list))
}

// CreateWorkOrder handles POST /workorders.
func (h *Handler) CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	var in production.WorkOrderInput
	if !decode(w, r, &in) {
		return
	}
	wo, err := h.Engine.CreateWorkOrder(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, wo)
}

// GetWorkOrder handles GET /workorders/{id}.
func (h *Handler) GetWorkOrder(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "work order id", idStr)
	if !ok {
		return
	}
	wo, err := h.Engine.GetWorkOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, wo)
}

type instanceRequest struct {
	ComponentID int64 `json:"component_id"`
	Quantity    int   `json:"quantity"`
}

// AddInstance handles POST /workorders/{id}/instances.
func (h *Handler) AddInstance(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "work order id", idStr)
	if !ok {
		return
	}
	var req instanceRequest
	if !decode(w, r, &req) {
		return
	}
	inst, err := h.Engine.AddComponentInstance(r.Context(), id, req.ComponentID, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, inst)
}

// Board handles GET /workorders/{id}/board.
func (h *Handler) Board(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "work order id", idStr)
	if !ok {
		return
	}
	rows, err := h.Engine.Board(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, rows, len(rows))
}

// ExportBoard handles GET /workorders/{id}/board.xlsx.
func (h *Handler) ExportBoard(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "work order id", idStr)
	if !ok {
		return
	}
	rows, err := h.Engine.Board(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stages, err := h.Engine.ListStages(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := sheets.WriteBoard(&buf, rows, stages); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Engine.RecordBoardExport(r.Context(), id, len(rows)); err != nil && h.Logger != nil {
		h.Logger.WarnContext(r.Context(), "audit of board export failed", logging.Error(err))
	}

	w.Header().Set("Content-Type", sheets.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=work-order-%d-board.xlsx", id))
	w.Write(buf.Bytes())
}

// ListStages handles GET /workorders/{id}/stages.
func (h *Handler) ListStages(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "work order id", idStr)
	if !ok {
		return
	}
	stages, err := h.Engine.ListStages(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, stages, len(stages))
}

type stageRequest struct {
	StageDate string `json:"stage_date"`
}

// UpdateStage handles PUT /workorders/{id}/stages/{name}.
func (h *Handler) UpdateStage(w http.ResponseWriter, r *http.Request, idStr, name string) {
	id, ok := parseID(w, "work order id", idStr)
	if !ok {
		return
	}
	var req stageRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.Engine.UpdateStage(r.Context(), id, models.StageName(name), req.StageDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, st)
}
