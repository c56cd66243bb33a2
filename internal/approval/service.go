// internal/approval/service.go

// Package approval is the officer action protocol: an OTP is issued to the
// officer who may act on an application, and a verified OTP applies exactly
// one workflow transition.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmc-registration/internal/application"
	"pmc-registration/internal/audit"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/common/metrics"
	"pmc-registration/internal/common/observability"
	"pmc-registration/internal/models"
	"pmc-registration/internal/otp"
	"pmc-registration/internal/workflow"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Applications is the application persistence the protocol needs.
type Applications interface {
	Get(ctx context.Context, id string) (*models.Application, error)
	Transition(ctx context.Context, p application.TransitionParams) (*application.TransitionResult, error)
}

// Challenges issues and consumes action OTPs.
type Challenges interface {
	Generate(ctx context.Context, scope otp.Scope) (*otp.Challenge, error)
	Verify(ctx context.Context, scope otp.Scope, code string) error
	Invalidate(ctx context.Context, scope otp.Scope) error
}

type Officers interface {
	Get(ctx context.Context, id string) (*models.Officer, error)
}

type Mailer interface {
	SendActionOTP(ctx context.Context, officer *models.Officer, app *models.Application, ch *otp.Challenge) error
}

type Publisher interface {
	Publish(ctx context.Context, evt models.StageChangedEvent) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Invalidator drops cached dashboards.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Deps groups the collaborators. Publisher, Auditor, Invalidator and
// Observability are optional.
type Deps struct {
	Applications  Applications
	Challenges    Challenges
	Officers      Officers
	Mailer        Mailer
	Publisher     Publisher
	Auditor       Auditor
	Invalidator   Invalidator
	Observability *observability.Observability
}

type Service struct {
	apps      Applications
	otp       Challenges
	officers  Officers
	mailer    Mailer
	publisher Publisher
	auditor   Auditor
	cache     Invalidator
	obs       *observability.Observability
	logger    logger.Logger
	now       func() time.Time
}

func NewService(d Deps, log logger.Logger) *Service {
	obs := d.Observability
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Service{
		apps:      d.Applications,
		otp:       d.Challenges,
		officers:  d.Officers,
		mailer:    d.Mailer,
		publisher: d.Publisher,
		auditor:   d.Auditor,
		cache:     d.Invalidator,
		obs:       obs,
		logger:    log.WithFields(map[string]interface{}{"component": "approval"}),
		now:       time.Now,
	}
}

// RecommendedFormPath is where the City Engineer's recommendation form for
// an application is stored.
func RecommendedFormPath(app *models.Application) string {
	return "forms/recommended/" + app.ApplicationNumber + ".pdf"
}

// ==========================
// OTP issue
// ==========================

type GenerateRequest struct {
	ApplicationID string
	OfficerID     string
	Role          workflow.Role
}

type GenerateResult struct {
	ExpiresAt         time.Time `json:"expiresAt"`
	ResendAvailableAt time.Time `json:"resendAvailableAt"`
}

// GenerateOTP issues an action code to an officer who may act on the
// application now and mails it to the officer's address on record.
func (s *Service) GenerateOTP(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if strings.TrimSpace(req.OfficerID) == "" {
		return nil, apperrors.NewOfficerRequiredError()
	}

	app, err := s.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if req.Role == workflow.RoleSystem || !(workflow.CanAct(req.Role, app.PositionType, app.CurrentStage) || workflow.CanReject(req.Role, app.PositionType, app.CurrentStage)) {
		return nil, apperrors.NewNotActionableError(fmt.Sprintf("%s cannot act on %s at %s", req.Role, app.ApplicationNumber, app.CurrentStage))
	}

	officer, err := s.officers.Get(ctx, req.OfficerID)
	if err != nil {
		return nil, err
	}

	scope := otp.ActionScope(app.ID, req.OfficerID)
	ch, err := s.otp.Generate(ctx, scope)
	if err != nil {
		var cooldown *otp.CooldownError
		if errors.As(err, &cooldown) {
			metrics.OTPChallenges.WithLabelValues("action", "cooldown").Inc()
			return nil, apperrors.NewOTPCooldownError(cooldown.RetryAfter)
		}
		return nil, apperrors.NewExternalServiceError("otp store", err)
	}

	if err := s.mailer.SendActionOTP(ctx, officer, app, ch); err != nil {
		if invErr := s.otp.Invalidate(ctx, scope); invErr != nil {
			s.logger.Warn("failed to drop undelivered otp", map[string]interface{}{"error": invErr.Error()})
		}
		metrics.OTPChallenges.WithLabelValues("action", "undelivered").Inc()
		return nil, apperrors.NewNotificationSendFailedError("email", err)
	}

	metrics.OTPChallenges.WithLabelValues("action", "issued").Inc()
	s.logger.Info("action otp issued", map[string]interface{}{
		"applicationId": app.ID,
		"officerId":     req.OfficerID,
		"stage":         app.CurrentStage.String(),
	})
	return &GenerateResult{ExpiresAt: ch.ExpiresAt, ResendAvailableAt: ch.ResendAvailableAt}, nil
}

// ==========================
// Officer actions
// ==========================

type ActionRequest struct {
	ApplicationID     string
	OfficerID         string
	OfficerName       string
	Role              workflow.Role
	Action            workflow.Action
	OTP               string
	Comments          string
	Reason            string
	RejectionCategory string
	AffectedFields    []string
	Appointment       *time.Time
}

type ActionResult struct {
	ApplicationID     string         `json:"applicationId"`
	FromStage         workflow.Stage `json:"fromStage"`
	ToStage           workflow.Stage `json:"toStage"`
	Status            string         `json:"status"`
	CertificateNumber string         `json:"certificateNumber,omitempty"`
}

// Act validates, authorizes, verifies the OTP and applies the transition,
// in that order. Nothing changes unless every step passes.
func (s *Service) Act(ctx context.Context, req ActionRequest) (res *ActionResult, err error) {
	start := s.now()
	ctx, span := s.obs.StartSpan(ctx, "approval.Act",
		attribute.String("application.id", req.ApplicationID),
		attribute.String("action", string(req.Action)),
		attribute.String("role", string(req.Role)))
	defer func() {
		outcome := "applied"
		if err != nil {
			outcome = string(apperrors.Normalize(err).Code)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			metrics.ActionsRefused.WithLabelValues(string(req.Action), outcome).Inc()
		}
		s.obs.RecordApproval(ctx, string(req.Action), outcome, s.now().Sub(start))
		span.End()
	}()

	if err := s.validate(req); err != nil {
		return nil, err
	}

	app, err := s.load(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	params, err := s.plan(app, req)
	if err != nil {
		return nil, err
	}

	if err := s.verify(ctx, otp.ActionScope(app.ID, req.OfficerID), req.OTP); err != nil {
		return nil, err
	}

	return s.apply(ctx, app, params)
}

func (s *Service) validate(req ActionRequest) error {
	if strings.TrimSpace(req.OfficerID) == "" {
		return apperrors.NewOfficerRequiredError()
	}
	if req.Action == workflow.ActionReject && strings.TrimSpace(req.Reason) == "" {
		return apperrors.NewReasonRequiredError()
	}
	if strings.TrimSpace(req.OTP) == "" {
		return apperrors.NewOTPRequiredError()
	}
	if req.Action == workflow.ActionScheduleAppointment {
		if req.Appointment == nil {
			return apperrors.NewInvalidAppointmentError("appointment date is required")
		}
		if err := checkAppointment(*req.Appointment, s.now()); err != nil {
			return apperrors.NewInvalidAppointmentError(err.Error())
		}
	}
	return nil
}

// checkAppointment requires a weekday strictly after today.
func checkAppointment(at, now time.Time) error {
	day := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if !day(at).After(day(now.In(at.Location()))) {
		return errors.New("appointment must be after today")
	}
	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return errors.New("appointment must be on a weekday")
	}
	return nil
}

// plan resolves the transition the request asks for without touching state.
func (s *Service) plan(app *models.Application, req ActionRequest) (application.TransitionParams, error) {
	p := application.TransitionParams{
		ApplicationID: app.ID,
		From:          app.CurrentStage,
		Action:        req.Action,
		ActorID:       req.OfficerID,
		ActorRole:     req.Role,
		Comments:      strings.TrimSpace(req.Comments),
	}
	if req.Role == workflow.RoleSystem {
		return p, apperrors.NewNotActionableError("system transitions are not officer actions")
	}

	if req.Action == workflow.ActionReject {
		rej, err := workflow.Reject(req.Role, app.PositionType, app.CurrentStage, workflow.RejectionInput{
			Reason:         req.Reason,
			Category:       req.RejectionCategory,
			OfficerID:      req.OfficerID,
			OfficerName:    req.OfficerName,
			AffectedFields: req.AffectedFields,
			At:             s.now().UTC(),
		})
		if err != nil {
			return p, mapWorkflowError(err)
		}
		p.To = workflow.Rejected
		p.Rejection = &rej
		p.Comments = rej.Reason
		return p, nil
	}

	to, err := workflow.NextStage(req.Role, app.PositionType, app.CurrentStage, req.Action)
	if err != nil {
		return p, mapWorkflowError(err)
	}
	p.To = to

	switch {
	case req.Action == workflow.ActionScheduleAppointment:
		at := req.Appointment.UTC()
		p.AppointmentDate = &at
	case req.Action == workflow.ActionGenerateCertificate:
		p.IssueCertificate = true
	case req.Role == workflow.RoleCityEngineer && app.CurrentStage == workflow.CityEngineerPending:
		path := RecommendedFormPath(app)
		p.RecommendedFormPath = &path
	}
	return p, nil
}

func (s *Service) verify(ctx context.Context, scope otp.Scope, code string) error {
	err := s.otp.Verify(ctx, scope, code)
	switch {
	case err == nil:
		metrics.OTPChallenges.WithLabelValues("action", "verified").Inc()
		return nil
	case errors.Is(err, otp.ErrAttemptsExceeded):
		metrics.OTPChallenges.WithLabelValues("action", "burned").Inc()
		return apperrors.NewOTPInvalidError().WithMetadata("attemptsExhausted", true)
	case errors.Is(err, otp.ErrInvalidCode):
		metrics.OTPChallenges.WithLabelValues("action", "invalid").Inc()
		return apperrors.NewOTPInvalidError()
	case errors.Is(err, otp.ErrExpired):
		metrics.OTPChallenges.WithLabelValues("action", "expired").Inc()
		return apperrors.NewOTPExpiredError()
	default:
		return apperrors.NewExternalServiceError("otp store", err)
	}
}

// ==========================
// Payment settlement
// ==========================

// CompletePayment moves a paid application from PaymentPending to the
// clerk. It needs no OTP; the gateway reference is recorded as the comment.
func (s *Service) CompletePayment(ctx context.Context, applicationID, paymentRef string) (*ActionResult, error) {
	app, err := s.load(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	to, err := workflow.NextStage(workflow.RoleSystem, app.PositionType, app.CurrentStage, workflow.ActionCompletePayment)
	if err != nil {
		return nil, mapWorkflowError(err)
	}
	return s.apply(ctx, app, application.TransitionParams{
		ApplicationID: app.ID,
		From:          app.CurrentStage,
		To:            to,
		Action:        workflow.ActionCompletePayment,
		ActorID:       "payment-gateway",
		ActorRole:     workflow.RoleSystem,
		Comments:      "payment " + paymentRef,
	})
}

// ==========================
// Shared steps
// ==========================

func (s *Service) load(ctx context.Context, id string) (*models.Application, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("applicationId is required",
			apperrors.FieldError{Field: "applicationId", Code: "REQUIRED_FIELD_MISSING", Message: "applicationId is required"})
	}
	app, err := s.apps.Get(ctx, id)
	if errors.Is(err, application.ErrNotFound) {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}
	return app, nil
}

// apply writes the transition and runs the side effects. Only the write can
// fail the call.
func (s *Service) apply(ctx context.Context, app *models.Application, p application.TransitionParams) (*ActionResult, error) {
	tr, err := s.apps.Transition(ctx, p)
	switch {
	case errors.Is(err, application.ErrStageConflict):
		return nil, apperrors.NewStageConflictError(err.Error())
	case errors.Is(err, application.ErrNotFound):
		return nil, apperrors.NewResourceNotFoundError("application", p.ApplicationID)
	case err != nil:
		return nil, apperrors.NewActionFailedError(err.Error())
	}

	metrics.StageTransitions.WithLabelValues(string(p.Action), p.From.String(), p.To.String()).Inc()
	s.logger.Info("stage transition applied", map[string]interface{}{
		"applicationId": app.ID,
		"action":        string(p.Action),
		"from":          p.From.String(),
		"to":            p.To.String(),
		"actorId":       p.ActorID,
		"actorRole":     string(p.ActorRole),
	})

	certificate := tr.CertificateNumber
	if certificate == "" && app.CertificateNumber != nil {
		certificate = *app.CertificateNumber
	}
	evt := models.StageChangedEvent{
		EventID:           uuid.NewString(),
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		PositionType:      app.PositionType,
		FromStage:         p.From,
		ToStage:           p.To,
		Status:            p.To.Status(),
		Action:            p.Action,
		ActorID:           p.ActorID,
		ActorRole:         p.ActorRole,
		ApplicantEmail:    app.Email,
		ApplicantMobile:   app.Mobile,
		ApplicantName:     app.FullName(),
		CertificateNumber: certificate,
		OccurredAt:        s.now().UTC(),
	}
	if p.Rejection != nil {
		evt.Reason = p.Rejection.Reason
	}

	s.sideEffects(ctx, evt)

	return &ActionResult{
		ApplicationID:     app.ID,
		FromStage:         p.From,
		ToStage:           p.To,
		Status:            p.To.Status(),
		CertificateNumber: tr.CertificateNumber,
	}, nil
}

func (s *Service) sideEffects(ctx context.Context, evt models.StageChangedEvent) {
	if s.auditor != nil {
		err := s.auditor.Record(ctx, audit.Entry{
			EventType:    audit.EventStageTransition,
			ResourceType: audit.ResourceApplication,
			ResourceID:   evt.ApplicationID,
			Details: map[string]interface{}{
				"eventId":   evt.EventID,
				"action":    string(evt.Action),
				"from":      int(evt.FromStage),
				"to":        int(evt.ToStage),
				"actorId":   evt.ActorID,
				"actorRole": string(evt.ActorRole),
			},
		})
		if err != nil {
			s.logger.Warn("failed to write audit entry", map[string]interface{}{"error": err.Error(), "applicationId": evt.ApplicationID})
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn("failed to publish stage event", map[string]interface{}{"error": err.Error(), "applicationId": evt.ApplicationID})
		}
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func mapWorkflowError(err error) error {
	switch {
	case errors.Is(err, workflow.ErrReasonRequired):
		return apperrors.NewReasonRequiredError()
	case errors.Is(err, workflow.ErrNotActionable), errors.Is(err, workflow.ErrActionMismatch), errors.Is(err, workflow.ErrInvalidStage):
		return apperrors.NewNotActionableError(err.Error())
	default:
		return apperrors.NewInternalError(err)
	}
}
