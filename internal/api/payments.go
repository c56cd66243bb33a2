// internal/api/payments.go
package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/payment"

	"github.com/go-chi/chi/v5"
)

type initiatePaymentRequest struct {
	ApplicationID string `json:"applicationId"`
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if req.ApplicationID == "" {
		apperrors.WriteHTTP(w, apperrors.NewValidationError("applicationId is required", required("applicationId")))
		return
	}
	res, err := h.deps.Payments.Initiate(r.Context(), principal(r), req.ApplicationID)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// paymentCallback is called by the gateway, not by a logged-in user.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.deps.CallbackToken != "" {
		got := r.Header.Get("X-Callback-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.deps.CallbackToken)) != 1 {
			apperrors.WriteHTTP(w, apperrors.NewAuthenticationError("invalid callback token"))
			return
		}
	}

	var req payment.CallbackRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if req.ChallanNumber == "" {
		apperrors.WriteHTTP(w, apperrors.NewValidationError("orderId is required", required("orderId")))
		return
	}
	p, err := h.deps.Payments.Callback(r.Context(), req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Payments.Status(r.Context(), principal(r), chi.URLParam(r, "applicationId"))
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) challan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationId")
	doc, err := h.deps.Payments.Challan(r.Context(), principal(r), id)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "challan-"+id+".txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
