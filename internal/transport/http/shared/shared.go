// Package shared holds the response helpers every handler package uses, so
// error envelopes and JSON encoding stay uniform across the API.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "courier/pkg/domain-errors"
)

// ErrorResponse is the JSON envelope for every non-2xx response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status. Encoding failures are silent;
// the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error to its HTTP status and envelope.
// Errors without a domain code map to 500 with no detail leaked.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	description := ""

	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		code = dErr.Code
		description = dErr.Message
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), ErrorResponse{
		Error:       string(code),
		Description: description,
	})
}
