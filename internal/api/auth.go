// internal/api/auth.go
package api

import (
	"net/http"
	"strings"

	apperrors "pmc-registration/internal/common/errors"
)

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type officerLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) generateLoginOTP(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("emailAddress"))
	if email == "" {
		apperrors.WriteHTTP(w, apperrors.NewValidationError("emailAddress is required", required("emailAddress")))
		return
	}
	issued, err := h.deps.Login.RequestOTP(r.Context(), email)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issued)
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if req.Email == "" {
		apperrors.WriteHTTP(w, apperrors.NewValidationError("email is required", required("email")))
		return
	}
	if req.OTP == "" {
		apperrors.WriteHTTP(w, apperrors.NewOTPRequiredError())
		return
	}
	resp, err := h.deps.Login.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) officerLogin(w http.ResponseWriter, r *http.Request) {
	var req officerLoginRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		apperrors.WriteHTTP(w, apperrors.NewInvalidCredentialsError())
		return
	}
	resp, err := h.deps.Login.OfficerLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	resp, err := h.deps.Login.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// logout accepts an empty body; the refresh token is revoked when supplied.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength > 0 {
		if err := decode(w, r, &req); err != nil {
			apperrors.WriteHTTP(w, err)
			return
		}
	}
	if err := h.deps.Login.Logout(r.Context(), sessionIDFrom(r.Context()), req.RefreshToken); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
