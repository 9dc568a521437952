package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Candidates []string `json:"candidates,omitempty"`
	Details    []string `json:"details,omitempty"`
}

// renderJSON writes v with the given status
func renderJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// renderError maps a repository error to a status and error code
func renderError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Message: err.Error()}
	status := http.StatusInternalServerError

	var nf *schema.NotFoundError
	switch {
	case errors.As(err, &nf):
		status = http.StatusNotFound
		resp.Error = "not_found"
		resp.Candidates = nf.Candidates
	case errors.Is(err, schema.ErrValidation):
		status = http.StatusUnprocessableEntity
		resp.Error = "validation_failed"
		for _, cause := range schema.Errors(err) {
			resp.Details = append(resp.Details, cause.Error())
		}
	case errors.Is(err, schema.ErrUnsupported):
		status = http.StatusUnprocessableEntity
		resp.Error = "unsupported"
	case errors.Is(err, schema.ErrClosed):
		status = http.StatusServiceUnavailable
		resp.Error = "unavailable"
	default:
		resp.Error = "internal_server_error"
	}
	renderJSON(w, status, resp)
}
