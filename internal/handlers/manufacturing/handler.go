// Package manufacturing exposes the production engine over HTTP/JSON.
package manufacturing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"wotrack/internal/logging"
	"wotrack/internal/production"
	"wotrack/internal/response"
	"wotrack/internal/store"
)

// maxUploadBytes bounds routing workbook uploads.
const maxUploadBytes = 10 << 20

// Handler holds dependencies for manufacturing handlers.
type Handler struct {
	Engine *production.Engine
	// Store backs the read-only audit log endpoint.
	Store  *store.Store
	Logger *slog.Logger
}

// parseID parses a path id, writing a 400 when it is not a positive integer.
func parseID(w http.ResponseWriter, name, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Err(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decode reads a JSON body, writing a 400 on malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := response.DecodeBody(r, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Err(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		response.Err(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if production.KindOf(err) == "" && h.Logger != nil {
		h.Logger.ErrorContext(r.Context(), "request failed", logging.String("path", r.URL.Path), logging.Error(err))
	}
	response.Error(w, err)
}
