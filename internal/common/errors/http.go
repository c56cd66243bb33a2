// internal/common/errors/http.go
package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success bool           `json:"success"`
	Error   *StandardError `json:"error"`
}

// WriteHTTP writes err as JSON with the status from HTTPStatus. Internal
// details never leave the process.
func WriteHTTP(w http.ResponseWriter, err error) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr)
	body := *stdErr
	if status >= http.StatusInternalServerError {
		body.Details = ""
	}
	if secs, ok := body.Metadata["retryAfterSeconds"].(int); ok {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: &body})
}
