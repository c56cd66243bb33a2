// internal/notify/notifier.go

// Package notify renders and delivers OTP and applicant messages over SES
// and SNS.
package notify

import (
	"context"
	"errors"
	"math"
	"time"

	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/otp"
	"pmc-registration/internal/workflow"

	"github.com/google/uuid"
)

var ErrNoRecipient = errors.New("NO_RECIPIENT")

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

type EmailSender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	PortalURL    string
}

func ConfigFrom(c config.NotificationConfig) Config {
	return Config{EmailEnabled: c.Email.Enabled, SMSEnabled: c.SMS.Enabled, PortalURL: c.PortalURL}
}

type Notifier struct {
	config Config
	email  EmailSender
	sms    SMSSender
	logger logger.Logger
	now    func() time.Time
}

// NewNotifier accepts nil senders for channels that are not configured.
func NewNotifier(cfg Config, email EmailSender, sms SMSSender, log logger.Logger) *Notifier {
	return &Notifier{
		config: cfg,
		email:  email,
		sms:    sms,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
		now:    time.Now,
	}
}

func (n *Notifier) emailOn() bool { return n.config.EmailEnabled && n.email != nil }
func (n *Notifier) smsOn() bool   { return n.config.SMSEnabled && n.sms != nil }

// SendLoginOTP mails the applicant login code.
func (n *Notifier) SendLoginOTP(ctx context.Context, email string, ch *otp.Challenge) error {
	return n.sendOTP(ctx, email, TypeLoginOTP, ch, map[string]interface{}{})
}

// SendActionOTP mails the signature code to the officer who asked for it.
func (n *Notifier) SendActionOTP(ctx context.Context, officer *models.Officer, app *models.Application, ch *otp.Challenge) error {
	return n.sendOTP(ctx, officer.Email, TypeActionOTP, ch, map[string]interface{}{
		"officerName":       officer.Name,
		"applicationNumber": app.ApplicationNumber,
	})
}

func (n *Notifier) sendOTP(ctx context.Context, to, kind string, ch *otp.Challenge, data map[string]interface{}) error {
	if to == "" {
		return ErrNoRecipient
	}
	data["code"] = ch.Code
	data["minutes"] = int(math.Ceil(ch.ExpiresAt.Sub(ch.IssuedAt).Minutes()))

	if !n.emailOn() {
		n.logger.Debug("email disabled, otp not delivered", map[string]interface{}{
			"scope": string(ch.Scope),
			"code":  ch.Code,
		})
		return nil
	}
	tmpl := templates[kind]
	return n.email.Send(ctx, models.EmailMessage{
		To:      []string{to},
		Subject: renderTemplate(tmpl.Subject, data),
		Body:    renderTemplate(tmpl.Body, data),
	})
}

// templateFor picks the applicant message for the stage an application
// has just entered.
func templateFor(to workflow.Stage) string {
	switch to {
	case workflow.DocumentVerificationPending:
		return TypeAppointment
	case workflow.PaymentPending:
		return TypePaymentDue
	case workflow.Approved:
		return TypeApproved
	case workflow.Rejected:
		return TypeRejected
	default:
		return TypeStageChanged
	}
}

// NotifyStageChanged tells the applicant their application moved. Email is
// sent on every change when enabled; SMS only on the terminal stages.
// Delivery failures are reported in the returned records, not as errors.
func (n *Notifier) NotifyStageChanged(ctx context.Context, evt models.StageChangedEvent) []models.Notification {
	kind := templateFor(evt.ToStage)
	tmpl := templates[kind]
	data := map[string]interface{}{
		"applicantName":     evt.ApplicantName,
		"applicationNumber": evt.ApplicationNumber,
		"status":            evt.Status,
		"certificateNumber": evt.CertificateNumber,
		"reason":            evt.Reason,
		"portalUrl":         n.config.PortalURL,
	}
	subject := renderTemplate(tmpl.Subject, data)
	body := renderTemplate(tmpl.Body, data)

	record := func(channel, recipient, status string) models.Notification {
		return models.Notification{
			ID:            uuid.NewString(),
			ApplicationID: evt.ApplicationID,
			Recipient:     recipient,
			Type:          kind,
			Channel:       channel,
			Status:        status,
			Payload:       map[string]interface{}{"toStage": int(evt.ToStage), "eventId": evt.EventID},
			SentAt:        n.now().UTC().Format(time.RFC3339),
		}
	}

	out := make([]models.Notification, 0, 2)

	switch {
	case !n.emailOn() || evt.ApplicantEmail == "":
		out = append(out, record(ChannelEmail, evt.ApplicantEmail, StatusDisabled))
	default:
		status := StatusSent
		if err := n.email.Send(ctx, models.EmailMessage{To: []string{evt.ApplicantEmail}, Subject: subject, Body: body}); err != nil {
			n.logger.Error("email send failed", map[string]interface{}{"error": err.Error(), "applicationId": evt.ApplicationID})
			status = StatusFailed
		}
		out = append(out, record(ChannelEmail, evt.ApplicantEmail, status))
	}

	if evt.ToStage.IsTerminal() && n.smsOn() && evt.ApplicantMobile != "" {
		status := StatusSent
		if err := n.sms.SendSMS(ctx, evt.ApplicantMobile, body); err != nil {
			n.logger.Error("sms send failed", map[string]interface{}{"error": err.Error(), "applicationId": evt.ApplicationID})
			status = StatusFailed
		}
		out = append(out, record(ChannelSMS, evt.ApplicantMobile, status))
	}

	return out
}
