// internal/api/approvals.go
package api

import (
	"net/http"
	"strings"
	"time"

	"pmc-registration/internal/approval"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/workflow"
)

type generateOTPRequest struct {
	ApplicationID string `json:"applicationId"`
	OfficerID     string `json:"officerId"`
}

type actionRequest struct {
	ApplicationID   string   `json:"applicationId"`
	OfficerID       string   `json:"officerId"`
	OTP             string   `json:"otp"`
	Comments        string   `json:"comments,omitempty"`
	AppointmentDate string   `json:"appointmentDate,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Category        string   `json:"rejectionCategory,omitempty"`
	AffectedFields  []string `json:"affectedFields,omitempty"`
}

func (h *Handler) generateActionOTP(w http.ResponseWriter, r *http.Request) {
	var req generateOTPRequest
	if err := decode(w, r, &req); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if req.ApplicationID == "" {
		apperrors.WriteHTTP(w, apperrors.NewValidationError("applicationId is required", required("applicationId")))
		return
	}
	user := principal(r)
	if err := sameOfficer(req.OfficerID, user.ID); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	res, err := h.deps.Approvals.GenerateOTP(r.Context(), approval.GenerateRequest{
		ApplicationID: req.ApplicationID,
		OfficerID:     req.OfficerID,
		Role:          workflow.Role(user.Role),
	})
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) scheduleAppointment(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, workflow.ActionScheduleAppointment, false)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, workflow.ActionApprove, false)
}

// applySignature defaults the officer to the caller; officerId is optional there.
func (h *Handler) applySignature(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, workflow.ActionSign, true)
}

func (h *Handler) generateCertificate(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, workflow.ActionGenerateCertificate, false)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, workflow.ActionReject, false)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, action workflow.Action, defaultOfficer bool) {
	var body actionRequest
	if err := decode(w, r, &body); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	if body.ApplicationID == "" {
		apperrors.WriteHTTP(w, apperrors.NewValidationError("applicationId is required", required("applicationId")))
		return
	}

	user := principal(r)
	if body.OfficerID == "" && defaultOfficer {
		body.OfficerID = user.ID
	}
	if err := sameOfficer(body.OfficerID, user.ID); err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}

	req := approval.ActionRequest{
		ApplicationID:     body.ApplicationID,
		OfficerID:         body.OfficerID,
		OfficerName:       user.Name,
		Role:              workflow.Role(user.Role),
		Action:            action,
		OTP:               strings.TrimSpace(body.OTP),
		Comments:          body.Comments,
		Reason:            body.Reason,
		RejectionCategory: body.Category,
		AffectedFields:    body.AffectedFields,
	}
	if action == workflow.ActionScheduleAppointment && body.AppointmentDate != "" {
		at, err := parseAppointment(body.AppointmentDate)
		if err != nil {
			apperrors.WriteHTTP(w, apperrors.NewInvalidAppointmentError(err.Error()))
			return
		}
		req.Appointment = &at
	}

	res, err := h.deps.Approvals.Act(r.Context(), req)
	if err != nil {
		apperrors.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// sameOfficer rejects requests made in another officer's name. An empty id
// is left for the approval service to refuse.
func sameOfficer(officerID, callerID string) error {
	if officerID != "" && officerID != callerID {
		return apperrors.NewForbiddenError("officerId does not match the session")
	}
	return nil
}

// parseAppointment accepts a calendar date or an RFC 3339 timestamp.
func parseAppointment(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}
