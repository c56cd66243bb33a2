// internal/notify/templates.go
package notify

import (
	"fmt"
	"strings"

	"pmc-registration/internal/models"
)

const (
	TypeLoginOTP      = "login_otp"
	TypeActionOTP     = "action_otp"
	TypeStageChanged  = "stage_changed"
	TypeApproved      = "approved"
	TypeRejected      = "rejected"
	TypeAppointment   = "appointment_scheduled"
	TypePaymentDue    = "payment_due"
	TypeCertificateOK = "certificate_issued"
)

var templates = map[string]models.NotificationTemplate{
	TypeLoginOTP: {
		Type:    TypeLoginOTP,
		Subject: "Your PMC registration login code",
		Body:    "Your one time password is {{code}}. It expires in {{minutes}} minutes. Do not share it with anyone.",
	},
	TypeActionOTP: {
		Type:    TypeActionOTP,
		Subject: "Signature code for {{applicationNumber}}",
		Body:    "Dear {{officerName}}, use {{code}} to sign application {{applicationNumber}}. It expires in {{minutes}} minutes.",
	},
	TypeStageChanged: {
		Type:    TypeStageChanged,
		Subject: "Application {{applicationNumber}} update",
		Body:    "Dear {{applicantName}}, your application {{applicationNumber}} is now at: {{status}}. Track it at {{portalUrl}}.",
	},
	TypeAppointment: {
		Type:    TypeAppointment,
		Subject: "Document verification scheduled for {{applicationNumber}}",
		Body:    "Dear {{applicantName}}, your document verification for application {{applicationNumber}} has been scheduled. Details at {{portalUrl}}.",
	},
	TypePaymentDue: {
		Type:    TypePaymentDue,
		Subject: "Registration fee due for {{applicationNumber}}",
		Body:    "Dear {{applicantName}}, your application {{applicationNumber}} has been recommended. Please pay the registration fee at {{portalUrl}}.",
	},
	TypeApproved: {
		Type:    TypeApproved,
		Subject: "Application {{applicationNumber}} approved",
		Body:    "Dear {{applicantName}}, your registration is approved. Certificate number {{certificateNumber}}.",
	},
	TypeRejected: {
		Type:    TypeRejected,
		Subject: "Application {{applicationNumber}} rejected",
		Body:    "Dear {{applicantName}}, your application {{applicationNumber}} was rejected. Reason: {{reason}}. Details at {{portalUrl}}.",
	},
	TypeCertificateOK: {
		Type:    TypeCertificateOK,
		Subject: "Certificate ready for {{applicationNumber}}",
		Body:    "Dear {{applicantName}}, your registration certificate is ready for download at {{portalUrl}}.",
	},
}

// renderTemplate substitutes {{key}} placeholders and drops any left over.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		switch t := v.(type) {
		case string:
			value = t
		case nil:
		default:
			value = fmt.Sprintf("%v", t)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
