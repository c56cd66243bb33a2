// internal/workflow/rejection.go

package workflow

import (
	"fmt"
	"strings"
	"time"
)

// RejectionCategory groups rejection reasons for the resubmission view.
type RejectionCategory string

const (
	CategoryDocuments   RejectionCategory = "DOCUMENTS"
	CategoryInformation RejectionCategory = "INFORMATION"
	CategoryEligibility RejectionCategory = "ELIGIBILITY"
	CategoryOther       RejectionCategory = "OTHER"
)

// ParseRejectionCategory falls back to CategoryOther for unknown values.
func ParseRejectionCategory(v string) RejectionCategory {
	switch c := RejectionCategory(strings.ToUpper(strings.TrimSpace(v))); c {
	case CategoryDocuments, CategoryInformation, CategoryEligibility:
		return c
	default:
		return CategoryOther
	}
}

// RejectionInput is what an officer supplies with a reject action.
type RejectionInput struct {
	Reason         string
	Category       string
	OfficerID      string
	OfficerName    string
	AffectedFields []string
	At             time.Time
}

// Rejection is the structured record kept on a rejected application.
type Rejection struct {
	Reason         string            `json:"reason" db:"reason"`
	Category       RejectionCategory `json:"category" db:"category"`
	OfficerID      string            `json:"officerId" db:"officer_id"`
	OfficerName    string            `json:"officerName" db:"officer_name"`
	Role           Role              `json:"role" db:"role"`
	Stage          Stage             `json:"stage" db:"stage"`
	AffectedFields []string          `json:"affectedFields" db:"-"`
	RejectedAt     time.Time         `json:"rejectedAt" db:"created_at"`
}

// CanReject reports whether the role may reject an application of type pt
// at stage. That is the officer who acts there, and at PaymentPending, where
// only the system moves the application, the clerk.
func CanReject(role Role, pt PositionType, stage Stage) bool {
	if role == RoleSystem || stage.IsTerminal() {
		return false
	}
	if stage == PaymentPending {
		return role == RoleClerk
	}
	return CanAct(role, pt, stage)
}

// Reject builds the rejection record. Only a role allowed by CanReject may
// reject, and a reason is mandatory.
func Reject(role Role, pt PositionType, from Stage, in RejectionInput) (Rejection, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Rejection{}, ErrReasonRequired
	}
	if !from.Valid() {
		return Rejection{}, fmt.Errorf("%w: %d", ErrInvalidStage, int(from))
	}
	if !CanReject(role, pt, from) {
		return Rejection{}, fmt.Errorf("%w: role %s cannot reject %s application at %s", ErrNotActionable, role, pt, from)
	}
	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	fields := in.AffectedFields
	if fields == nil {
		fields = []string{}
	}
	return Rejection{
		Reason:         reason,
		Category:       ParseRejectionCategory(in.Category),
		OfficerID:      in.OfficerID,
		OfficerName:    in.OfficerName,
		Role:           role,
		Stage:          from,
		AffectedFields: fields,
		RejectedAt:     at,
	}, nil
}
