// internal/api/respond.go
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pmc-registration/internal/authz"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/models"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read request body")
	}
	return body, nil
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// principal is always present behind authenticate.
func principal(r *http.Request) models.User {
	u, _ := authz.PrincipalFrom(r.Context())
	return u
}

func required(field string) apperrors.FieldError {
	return apperrors.FieldError{Field: field, Code: "REQUIRED_FIELD_MISSING", Message: field + " is required"}
}
