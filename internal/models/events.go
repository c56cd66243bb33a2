// internal/models/events.go
package models

import (
	"time"

	"pmc-registration/internal/workflow"
)

// StageChangedEvent is published after every applied transition.
type StageChangedEvent struct {
	EventID           string                `json:"eventId"`
	ApplicationID     string                `json:"applicationId"`
	ApplicationNumber string                `json:"applicationNumber"`
	PositionType      workflow.PositionType `json:"positionType"`
	FromStage         workflow.Stage        `json:"fromStage"`
	ToStage           workflow.Stage        `json:"toStage"`
	Status            string                `json:"status"`
	Action            workflow.Action       `json:"action"`
	ActorID           string                `json:"actorId"`
	ActorRole         workflow.Role         `json:"actorRole"`
	ApplicantEmail    string                `json:"applicantEmail"`
	ApplicantMobile   string                `json:"applicantMobile,omitempty"`
	ApplicantName     string                `json:"applicantName"`
	CertificateNumber string                `json:"certificateNumber,omitempty"`
	Reason            string                `json:"reason,omitempty"`
	OccurredAt        time.Time             `json:"occurredAt"`
}

// Variables flattens the event for a Zeebe message payload.
func (e StageChangedEvent) Variables() map[string]interface{} {
	return map[string]interface{}{
		"applicationId":     e.ApplicationID,
		"applicationNumber": e.ApplicationNumber,
		"positionType":      string(e.PositionType),
		"fromStage":         int(e.FromStage),
		"toStage":           int(e.ToStage),
		"status":            e.Status,
		"action":            string(e.Action),
		"applicantEmail":    e.ApplicantEmail,
		"applicantMobile":   e.ApplicantMobile,
		"applicantName":     e.ApplicantName,
		"certificateNumber": e.CertificateNumber,
		"reason":            e.Reason,
	}
}
