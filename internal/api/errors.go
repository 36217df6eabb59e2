package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/rm2thaddeus/devgraph/internal/errors"
	"github.com/rm2thaddeus/devgraph/internal/query"
	"github.com/rm2thaddeus/devgraph/internal/storage"
)

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the status derived from the
// error taxonomy. Stage failures inside an ingestion run never reach
// here; those come back as a 200 with the failed stage in the body.
func WriteError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  "INTERNAL",
	}

	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		resp.Code = appErr.Type.String()
		if len(appErr.Context) > 0 {
			resp.Details = appErr.Context
		}
	case errors.Is(err, query.ErrNotFound) || errors.Is(err, storage.ErrNotFound):
		resp.Code = "NOT_FOUND"
	}

	WriteJSON(w, resp, statusForError(err))
}

// statusForError maps errors to HTTP status codes. Validation problems
// are the caller's fault, store trouble means the service cannot answer
// right now, and upstream services failing is a gateway problem.
func statusForError(err error) int {
	if errors.Is(err, query.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}

	switch appErr.Type {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeDatabase:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeNetwork, apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

