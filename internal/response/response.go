package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"wotrack/internal/models"
	"wotrack/internal/production"
	"wotrack/internal/validation"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string                       `json:"error"`
	Kind    string                       `json:"kind,omitempty"`
	Details []validation.ValidationError `json:"details,omitempty"`
	Limit   *int                         `json:"limit,omitempty"`
	Avail   *int                         `json:"available,omitempty"`
}

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data any) {
	Status(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	Status(w, http.StatusCreated, data)
}

// Status writes data in the standard envelope with an explicit status code.
func Status(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// JSONList writes a list response with its total.
func JSONList(w http.ResponseWriter, data any, total int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{Data: data, Meta: &models.Meta{Total: total}})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	write(w, code, ErrorBody{Error: msg})
}

// Error maps an engine error onto its HTTP status and writes it.
func Error(w http.ResponseWriter, err error) {
	kind := production.KindOf(err)
	body := ErrorBody{Error: err.Error(), Kind: string(kind)}

	var ve *validation.ValidationErrors
	if errors.As(err, &ve) {
		body.Details = ve.Errors
	}
	var ce *production.CapacityError
	if errors.As(err, &ce) {
		body.Limit, body.Avail = &ce.Limit, &ce.Available
	}

	code := StatusFor(kind)
	if code == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	write(w, code, body)
}

// StatusFor returns the HTTP status of an error kind.
func StatusFor(kind production.Kind) int {
	switch kind {
	case production.KindNotFound:
		return http.StatusNotFound
	case production.KindValidation:
		return http.StatusBadRequest
	case production.KindNotApplicable, production.KindCapacity:
		return http.StatusUnprocessableEntity
	case production.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// DecodeBody decodes a JSON request body into the given value, rejecting
// unknown fields.
func DecodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func write(w http.ResponseWriter, code int, body ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
