package manufacturing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"wotrack/internal/production"
	"wotrack/internal/response"
	"wotrack/internal/sheets"
)

// ListComponents handles GET /components.
func (h *Handler) ListComponents(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.ListComponents(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, list, len(list))
}

// CreateComponent handles POST /components.
func (h *Handler) CreateComponent(w http.ResponseWriter, r *http.Request) {
	var in production.ComponentInput
	if !decode(w, r, &in) {
		return
	}
	c, err := h.Engine.RegisterComponent(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, c)
}

// GetComponent handles GET /components/{id}.
func (h *Handler) GetComponent(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "component id", idStr)
	if !ok {
		return
	}
	c, err := h.Engine.GetComponent(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSON(w, c)
}

// CreateProcess handles POST /components/{id}/processes.
func (h *Handler) CreateProcess(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "component id", idStr)
	if !ok {
		return
	}
	var in production.ProcessInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.Engine.RegisterProcess(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, p)
}

// ImportProcesses handles POST /components/{id}/processes/import. The body
// is either an xlsx routing workbook or a JSON array of processes.
func (h *Handler) ImportProcesses(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "component id", idStr)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var inputs []production.ProcessInput
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !decode(w, r, &inputs) {
			return
		}
	} else {
		var err error
		inputs, err = sheets.ReadProcessRoutings(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Err(w, "workbook too large", http.StatusRequestEntityTooLarge)
				return
			}
			response.Err(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	procs, err := h.Engine.ImportProcesses(r.Context(), id, inputs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Status(w, http.StatusCreated, procs)
}

type requirementRequest struct {
	RawMaterialID   int64           `json:"raw_material_id"`
	QuantityPerUnit decimal.Decimal `json:"quantity_per_unit"`
}

// CreateMaterialRequirement handles POST /components/{id}/materials.
func (h *Handler) CreateMaterialRequirement(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "component id", idStr)
	if !ok {
		return
	}
	var req requirementRequest
	if !decode(w, r, &req) {
		return
	}
	mr, err := h.Engine.RegisterMaterialRequirement(r.Context(), id, req.RawMaterialID, req.QuantityPerUnit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, mr)
}

// ListMaterialRequirements handles GET /components/{id}/materials.
func (h *Handler) ListMaterialRequirements(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, "component id", idStr)
	if !ok {
		return
	}
	list, err := h.Engine.ListMaterialRequirements(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.JSONList(w, list, len(list))
}
