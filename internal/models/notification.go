// internal/models/notification.go
package models

// Notification records a message sent to an applicant about their application.
type Notification struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	Recipient     string                 `json:"recipient"`
	Type          string                 `json:"type"`    // "stage_changed", "otp"
	Channel       string                 `json:"channel"` // "email", "sms"
	Status        string                 `json:"status"`  // "sent", "failed", "disabled"
	Payload       map[string]interface{} `json:"payload"`
	SentAt        string                 `json:"sentAt"`
}

type NotificationTemplate struct {
	Type     string `json:"type"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"htmlBody,omitempty"`
}
