// internal/notify/notifier_test.go
package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/otp"
	"pmc-registration/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeEmail struct {
	sent []models.EmailMessage
	err  error
}

func (f *fakeEmail) Send(_ context.Context, msg models.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSMS struct {
	sent []string
}

func (f *fakeSMS) SendSMS(_ context.Context, phone, _ string) error {
	f.sent = append(f.sent, phone)
	return nil
}

func challenge() *otp.Challenge {
	issued := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	return &otp.Challenge{Scope: "action:app-1:off-1", Code: "493027", IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Minute)}
}

// ==========================
// OTP Delivery Tests
// ==========================

func TestSendActionOTP(t *testing.T) {
	email := &fakeEmail{}
	n := NewNotifier(Config{EmailEnabled: true}, email, nil, logger.NewTestLogger(t))

	err := n.SendActionOTP(context.Background(),
		&models.Officer{Email: "je@pmc.gov.in", Name: "R. Deshmukh"},
		&models.Application{ApplicationNumber: "PMC_APPLICATION_2025_4"}, challenge())
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	assert.Equal(t, []string{"je@pmc.gov.in"}, email.sent[0].To)
	assert.Contains(t, email.sent[0].Body, "493027")
	assert.Contains(t, email.sent[0].Body, "5 minutes")
	assert.Equal(t, "Signature code for PMC_APPLICATION_2025_4", email.sent[0].Subject)
}

func TestSendLoginOTP_NoRecipient(t *testing.T) {
	n := NewNotifier(Config{EmailEnabled: true}, &fakeEmail{}, nil, logger.NewNoOpLogger())
	assert.ErrorIs(t, n.SendLoginOTP(context.Background(), "", challenge()), ErrNoRecipient)
}

func TestSendLoginOTP_EmailDisabled(t *testing.T) {
	email := &fakeEmail{}
	n := NewNotifier(Config{}, email, nil, logger.NewNoOpLogger())
	require.NoError(t, n.SendLoginOTP(context.Background(), "a@b.in", challenge()))
	assert.Empty(t, email.sent)
}

// ==========================
// Stage Change Tests
// ==========================

func TestNotifyStageChanged(t *testing.T) {
	tests := []struct {
		name        string
		to          workflow.Stage
		wantType    string
		wantRecords int
	}{
		{"appointment", workflow.DocumentVerificationPending, TypeAppointment, 1},
		{"intermediate", workflow.ExecutiveEngineerPending, TypeStageChanged, 1},
		{"payment due", workflow.PaymentPending, TypePaymentDue, 1},
		{"approved adds sms", workflow.Approved, TypeApproved, 2},
		{"rejected adds sms", workflow.Rejected, TypeRejected, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, sms := &fakeEmail{}, &fakeSMS{}
			n := NewNotifier(Config{EmailEnabled: true, SMSEnabled: true, PortalURL: "https://portal"}, email, sms, logger.NewTestLogger(t))

			records := n.NotifyStageChanged(context.Background(), models.StageChangedEvent{
				ApplicationID:     "app-1",
				ApplicationNumber: "PMC_APPLICATION_2025_9",
				ToStage:           tt.to,
				Status:            tt.to.Status(),
				ApplicantName:     "Asha",
				ApplicantEmail:    "asha@example.com",
				ApplicantMobile:   "+919876543210",
				Reason:            "Blurred photo",
			})
			require.Len(t, records, tt.wantRecords)
			for _, r := range records {
				assert.Equal(t, tt.wantType, r.Type)
				assert.Equal(t, StatusSent, r.Status)
			}
			assert.Len(t, email.sent, 1)
			assert.NotContains(t, email.sent[0].Body, "{{")
		})
	}
}

func TestNotifyStageChanged_FailureIsRecorded(t *testing.T) {
	n := NewNotifier(Config{EmailEnabled: true}, &fakeEmail{err: errors.New("throttled")}, nil, logger.NewTestLogger(t))
	records := n.NotifyStageChanged(context.Background(), models.StageChangedEvent{
		ApplicationID: "app-1", ToStage: workflow.Approved, ApplicantEmail: "a@b.in", ApplicantMobile: "+919876543210",
	})
	require.Len(t, records, 1, "sms is off")
	assert.Equal(t, StatusFailed, records[0].Status)
}

func TestRenderTemplate_DropsUnknownPlaceholders(t *testing.T) {
	out := renderTemplate("Hi {{name}}, code {{code}}{{missing}}.", map[string]interface{}{"name": "A", "code": 12})
	assert.Equal(t, "Hi A, code 12.", out)
}
