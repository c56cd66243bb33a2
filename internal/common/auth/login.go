// internal/common/auth/login.go

// Package auth runs the two login flows: applicants sign in with an emailed
// OTP, officers with email and password. Both end in the same token response.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"pmc-registration/internal/audit"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/common/metrics"
	"pmc-registration/internal/models"
	"pmc-registration/internal/otp"
	"pmc-registration/internal/session"
)

// ApplicantRole is the external role every OTP login receives.
const ApplicantRole = "User"

type Challenges interface {
	Generate(ctx context.Context, scope otp.Scope) (*otp.Challenge, error)
	Verify(ctx context.Context, scope otp.Scope, code string) error
	Invalidate(ctx context.Context, scope otp.Scope) error
}

type Mailer interface {
	SendLoginOTP(ctx context.Context, email string, ch *otp.Challenge) error
}

type Applicants interface {
	UpsertApplicant(ctx context.Context, email string) (*models.Applicant, error)
}

type Officers interface {
	Authenticate(ctx context.Context, email, password string) (*models.Officer, error)
}

type Tokens interface {
	Issue(id session.Identity) (*session.IssuedToken, error)
}

type Activity interface {
	Begin(ctx context.Context, s models.Session) error
	Revoke(ctx context.Context, sessionID string) error
}

type RefreshTokens interface {
	Issue(ctx context.Context, id session.Identity) (string, error)
	Consume(ctx context.Context, token string) (*session.Identity, error)
	Revoke(ctx context.Context, token string) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Deps groups the login collaborators; Auditor may be nil.
type Deps struct {
	Challenges Challenges
	Mailer     Mailer
	Applicants Applicants
	Officers   Officers
	Tokens     Tokens
	Activity   Activity
	Refresh    RefreshTokens
	Auditor    Auditor
}

type LoginService struct {
	deps   Deps
	logger logger.Logger
}

func NewLoginService(d Deps, log logger.Logger) *LoginService {
	return &LoginService{deps: d, logger: log.WithFields(map[string]interface{}{"component": "auth"})}
}

// OTPIssued tells the portal when it may ask again.
type OTPIssued struct {
	Email             string    `json:"email"`
	ExpiresAt         time.Time `json:"expiresAt"`
	ResendAvailableAt time.Time `json:"resendAvailableAt"`
}

// RequestOTP emails a login code to the address.
func (s *LoginService) RequestOTP(ctx context.Context, email string) (*OTPIssued, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	scope := otp.LoginScope(email)
	ch, err := s.deps.Challenges.Generate(ctx, scope)
	if err != nil {
		var cooldown *otp.CooldownError
		if errors.As(err, &cooldown) {
			metrics.OTPChallenges.WithLabelValues("login", "cooldown").Inc()
			return nil, apperrors.NewOTPCooldownError(cooldown.RetryAfter)
		}
		return nil, apperrors.NewExternalServiceError("otp store", err)
	}
	if err := s.deps.Mailer.SendLoginOTP(ctx, email, ch); err != nil {
		if invErr := s.deps.Challenges.Invalidate(ctx, scope); invErr != nil {
			s.logger.Warn("failed to drop undelivered otp", map[string]interface{}{"error": invErr.Error()})
		}
		metrics.OTPChallenges.WithLabelValues("login", "undelivered").Inc()
		return nil, apperrors.NewNotificationSendFailedError("email", err)
	}
	metrics.OTPChallenges.WithLabelValues("login", "issued").Inc()
	return &OTPIssued{Email: email, ExpiresAt: ch.ExpiresAt, ResendAvailableAt: ch.ResendAvailableAt}, nil
}

// VerifyOTP signs an applicant in, creating the account on first login.
func (s *LoginService) VerifyOTP(ctx context.Context, email, code string) (*models.AuthResponse, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.NewOTPRequiredError()
	}

	if err := s.deps.Challenges.Verify(ctx, otp.LoginScope(email), code); err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidCode):
			metrics.OTPChallenges.WithLabelValues("login", "invalid").Inc()
			return nil, apperrors.NewOTPInvalidError()
		case errors.Is(err, otp.ErrExpired):
			metrics.OTPChallenges.WithLabelValues("login", "expired").Inc()
			return nil, apperrors.NewOTPExpiredError()
		default:
			return nil, apperrors.NewExternalServiceError("otp store", err)
		}
	}
	metrics.OTPChallenges.WithLabelValues("login", "verified").Inc()

	applicant, err := s.deps.Applicants.UpsertApplicant(ctx, email)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("upsert_applicant", err)
	}

	s.audit(ctx, audit.EventApplicantLogin, audit.ResourceApplicant, applicant.ID)
	return s.start(ctx, session.Identity{ID: applicant.ID, Email: applicant.Email, Role: ApplicantRole, Name: applicant.Name})
}

// OfficerLogin checks the password. Every failure reads as invalid credentials.
func (s *LoginService) OfficerLogin(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	officer, err := s.deps.Officers.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, audit.EventOfficerLogin, audit.ResourceOfficer, officer.ID)
	return s.start(ctx, session.Identity{ID: officer.ID, Email: officer.Email, Role: officer.Role, Name: officer.Name})
}

// Refresh trades a refresh token for a new session. The old refresh token
// is spent.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error) {
	id, err := s.deps.Refresh.Consume(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrMissingToken) {
			return nil, apperrors.NewSessionExpiredError()
		}
		return nil, apperrors.NewExternalServiceError("session store", err)
	}
	return s.start(ctx, *id)
}

// Logout ends the session and spends the refresh token if one is given.
func (s *LoginService) Logout(ctx context.Context, sessionID, refreshToken string) error {
	if err := s.deps.Activity.Revoke(ctx, sessionID); err != nil {
		return apperrors.NewExternalServiceError("session store", err)
	}
	if err := s.deps.Refresh.Revoke(ctx, strings.TrimSpace(refreshToken)); err != nil {
		s.logger.Warn("failed to revoke refresh token", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (s *LoginService) start(ctx context.Context, id session.Identity) (*models.AuthResponse, error) {
	tok, err := s.deps.Tokens.Issue(id)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	err = s.deps.Activity.Begin(ctx, models.Session{
		ID:        tok.ID,
		UserID:    id.ID,
		Role:      id.Role,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		return nil, apperrors.NewExternalServiceError("session store", err)
	}
	refresh, err := s.deps.Refresh.Issue(ctx, id)
	if err != nil {
		return nil, apperrors.NewExternalServiceError("session store", err)
	}

	s.logger.Info("session started", map[string]interface{}{"userId": id.ID, "role": id.Role})
	return &models.AuthResponse{
		Success:      true,
		Token:        tok.Token,
		RefreshToken: refresh,
		Email:        id.Email,
		Role:         id.Role,
		Name:         id.Name,
		ExpiresAt:    tok.ExpiresAt.Unix(),
	}, nil
}

func (s *LoginService) audit(ctx context.Context, event, resource, id string) {
	if s.deps.Auditor == nil {
		return
	}
	if err := s.deps.Auditor.Record(ctx, audit.Entry{EventType: event, ResourceType: resource, ResourceID: id}); err != nil {
		s.logger.Warn("failed to write audit entry", map[string]interface{}{"error": err.Error(), "event": event})
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if email == "" || err != nil || addr.Address != email {
		return "", apperrors.NewValidationError("a valid email address is required",
			apperrors.FieldError{Field: "email", Code: "INVALID_FORMAT", Message: "a valid email address is required"})
	}
	return email, nil
}
