// internal/workers/notification/notify-applicant/models.go
package notifyapplicant

import "pmc-registration/internal/models"

// Input is the stage-changed message payload carried into the job.
type Input struct {
	EventID           string `json:"eventId"`
	ApplicationID     string `json:"applicationId"`
	ApplicationNumber string `json:"applicationNumber"`
	PositionType      string `json:"positionType"`
	FromStage         int    `json:"fromStage"`
	ToStage           int    `json:"toStage"`
	Status            string `json:"status"`
	Action            string `json:"action"`
	ApplicantEmail    string `json:"applicantEmail"`
	ApplicantMobile   string `json:"applicantMobile"`
	ApplicantName     string `json:"applicantName"`
	CertificateNumber string `json:"certificateNumber"`
	Reason            string `json:"reason"`
}

type Output struct {
	NotificationID string                `json:"notificationId"`
	Status         string                `json:"status"` // "sent", "failed", "disabled"
	Notifications  []models.Notification `json:"notifications"`
	SentAt         string                `json:"sentAt"`
}
