// Package apierror is the structured error body shared by the API server and
// its clients.
package apierror

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in Body.Error.Code.
const (
	CodeNotFound         = "not_found"
	CodeValidationFailed = "validation_failed"
	CodePositionConflict = "position_conflict"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeInternal         = "internal"
)

// Detail describes a failed request.
type Detail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Body is the JSON envelope of every error response.
type Body struct {
	Error Detail `json:"error"`
}

// Write sends a structured error response.
func Write(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Body{Error: Detail{Code: code, Message: message}})
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
