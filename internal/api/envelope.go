// Package api exposes the HTTP surface: auth, projects, documents,
// versions, review runs, issues, knowledge base, export, and signed file
// access.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/swscloud/reviewd/internal/errors"
)

// envelope is the uniform response wrapper.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: 0, Message: "ok", Data: data})
}

// respondErr maps error categories onto HTTP statuses and wraps the
// message in the envelope.
func respondErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCategory(err) {
	case errors.CategoryValidation:
		status = http.StatusBadRequest
	case errors.CategoryAuth:
		status = http.StatusUnauthorized
	case errors.CategoryNotFound:
		status = http.StatusNotFound
	case errors.CategoryConfig:
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: status, Message: err.Error()})
}

func respondForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(envelope{Code: http.StatusForbidden, Message: "insufficient role"})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, errors.SeverityWarning, "malformed request body")
	}
	return nil
}
