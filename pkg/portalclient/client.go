// pkg/portalclient/client.go
package portalclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"pmc-registration/internal/application"
	"pmc-registration/internal/approval"
	"pmc-registration/internal/common/auth"
	commonhttp "pmc-registration/internal/common/http"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/draft"
	"pmc-registration/internal/models"
	"pmc-registration/internal/session"
	"pmc-registration/internal/workflow"
)

var actionPaths = map[workflow.Action]string{
	workflow.ActionScheduleAppointment: "/Application/schedule-appointment",
	workflow.ActionSign:                "/Application/apply-digital-signature",
	workflow.ActionGenerateCertificate: "/Application/generate-certificate",
	workflow.ActionReject:              "/Application/reject-by-officer",
}

// Client is a logged-in view of the registration API for one user.
type Client struct {
	api      *commonhttp.Client
	store    *session.Store
	inflight *InFlight
	logger   logger.Logger
	timeout  time.Duration
	idle     time.Duration

	mu           sync.RWMutex
	refreshToken string
	pending      []models.ApplicationSummary
	idleTimer    *session.InactivityTimer
	stopIdle     func()
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	Storage session.TokenStorage
	// InactivityTimeout defaults to session.DefaultInactivityTimeout.
	InactivityTimeout time.Duration
}

// New builds a client. Call Start before use so a saved session is
// restored and the inactivity logout is armed.
func New(opts Options, log logger.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Storage == nil {
		opts.Storage = session.NewMemoryStorage()
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = session.DefaultInactivityTimeout
	}
	store := session.NewStore(opts.Storage, log)
	return &Client{
		api:      commonhttp.NewClient(opts.BaseURL, opts.Timeout, store.Token),
		store:    store,
		inflight: NewInFlight(),
		logger:   log.WithFields(map[string]interface{}{"component": "portalclient"}),
		timeout:  opts.Timeout,
		idle:     opts.InactivityTimeout,
	}
}

// Start restores the stored token, if any, and installs the single
// inactivity timer. The timer is installed even when restoring fails, so a
// later login is still guarded.
func (c *Client) Start(ctx context.Context) error {
	err := c.store.Bootstrap(ctx)

	c.mu.Lock()
	if c.stopIdle == nil {
		c.idleTimer, c.stopIdle = session.Guard(c.store, c.idle, c.expire)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("session restore failed", map[string]interface{}{"error": err.Error()})
	}
	return err
}

// Touch records user activity and restarts the inactivity timer.
func (c *Client) Touch() {
	c.mu.RLock()
	timer := c.idleTimer
	c.mu.RUnlock()
	if timer != nil && c.store.IsAuthenticated() {
		timer.Touch()
	}
}

// Close disarms the inactivity timer. The session itself is kept.
func (c *Client) Close() {
	c.mu.Lock()
	stop := c.stopIdle
	c.idleTimer, c.stopIdle = nil, nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *Client) expire() {
	c.logger.Info("session idle, logging out", nil)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.Logout(ctx); err != nil {
		c.logger.Warn("idle logout failed", map[string]interface{}{"error": err.Error()})
	}
}

func (c *Client) Session() *session.Store { return c.store }

// ==========================
// Authentication
// ==========================

func (c *Client) RequestLoginOTP(ctx context.Context, email string) (*auth.OTPIssued, error) {
	var out auth.OTPIssued
	path := "/OtpAttempt/generate?emailAddress=" + url.QueryEscape(email)
	if err := c.api.DoJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LoginWithOTP(ctx context.Context, email, otp string) (models.User, error) {
	return c.login(ctx, "/Auth/verify-otp", map[string]string{"email": email, "otp": otp})
}

func (c *Client) LoginOfficer(ctx context.Context, email, password string) (models.User, error) {
	return c.login(ctx, "/Auth/token", map[string]string{"email": email, "password": password})
}

func (c *Client) login(ctx context.Context, path string, body interface{}) (models.User, error) {
	var res models.AuthResponse
	if err := c.api.DoJSON(ctx, http.MethodPost, path, body, &res); err != nil {
		return models.User{}, err
	}
	user, err := c.store.Login(ctx, res.Token)
	if err != nil {
		return models.User{}, err
	}
	c.mu.Lock()
	c.refreshToken = res.RefreshToken
	c.pending = nil
	c.mu.Unlock()
	return user, nil
}

// Logout revokes the session server side and always clears it locally.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.refreshToken = ""
	c.pending = nil
	c.mu.Unlock()

	if c.store.IsAuthenticated() {
		err := c.api.DoJSON(ctx, http.MethodPost, "/Auth/logout", map[string]string{"refreshToken": refresh}, nil)
		if err != nil {
			c.logger.Warn("server logout failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return c.store.Logout(ctx)
}

// ==========================
// Applicant
// ==========================

func (c *Client) CreateApplication(ctx context.Context, body []byte) (*models.Application, error) {
	done, err := c.inflight.Begin("create")
	if err != nil {
		return nil, err
	}
	defer done()

	var out models.Application
	if err := c.api.DoJSON(ctx, http.MethodPost, "/Application/create", json.RawMessage(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListApplications(ctx context.Context, req application.ListRequest) (*models.Page[models.ApplicationSummary], error) {
	var out models.Page[models.ApplicationSummary]
	if err := c.api.DoJSON(ctx, http.MethodPost, "/Application/list", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Application(ctx context.Context, id string) (*models.Application, error) {
	var out models.Application
	if err := c.api.DoJSON(ctx, http.MethodGet, "/Application/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveDraft strips uploaded files down to their names before sending.
func (c *Client) SaveDraft(ctx context.Context, form []byte) ([]byte, error) {
	stripped, err := draft.Strip(form)
	if err != nil {
		return nil, err
	}
	return c.api.DoRaw(ctx, http.MethodPut, "/Application/draft", stripped)
}

func (c *Client) LoadDraft(ctx context.Context) ([]byte, error) {
	return c.api.DoRaw(ctx, http.MethodGet, "/Application/draft", nil)
}

func (c *Client) DeleteDraft(ctx context.Context) error {
	_, err := c.api.DoRaw(ctx, http.MethodDelete, "/Application/draft", nil)
	return err
}

func (c *Client) InitiatePayment(ctx context.Context, applicationID string) (map[string]interface{}, error) {
	done, err := c.inflight.Begin("pay:" + applicationID)
	if err != nil {
		return nil, err
	}
	defer done()

	var out map[string]interface{}
	err = c.api.DoJSON(ctx, http.MethodPost, "/Payment/initiate", map[string]string{"applicationId": applicationID}, &out)
	return out, err
}

func (c *Client) PaymentStatus(ctx context.Context, applicationID string) (*models.Payment, error) {
	var out models.Payment
	if err := c.api.DoJSON(ctx, http.MethodGet, "/Payment/status/"+url.PathEscape(applicationID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Challan(ctx context.Context, applicationID string) ([]byte, error) {
	return c.api.DoRaw(ctx, http.MethodGet, "/Payment/challan/"+url.PathEscape(applicationID), nil)
}

// ==========================
// Officer
// ==========================

// Pending fetches the dashboard and remembers it as the latest known list.
func (c *Client) Pending(ctx context.Context) ([]models.ApplicationSummary, error) {
	var out []models.ApplicationSummary
	if err := c.api.DoJSON(ctx, http.MethodGet, "/Application/pending", nil, &out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pending = out
	c.mu.Unlock()
	return out, nil
}

// LastPending is the list from the most recent successful Pending call.
func (c *Client) LastPending() []models.ApplicationSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ApplicationSummary(nil), c.pending...)
}

func (c *Client) GenerateActionOTP(ctx context.Context, applicationID string) (*approval.GenerateResult, error) {
	user, _ := c.store.CurrentUser()
	var out approval.GenerateResult
	body := map[string]string{"applicationId": applicationID, "officerId": user.ID}
	if err := c.api.DoJSON(ctx, http.MethodPost, "/Application/generate-otp", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActionInput is the body of every officer action.
type ActionInput struct {
	ApplicationID     string   `json:"applicationId"`
	OfficerID         string   `json:"officerId"`
	OTP               string   `json:"otp"`
	Comments          string   `json:"comments,omitempty"`
	AppointmentDate   string   `json:"appointmentDate,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	RejectionCategory string   `json:"rejectionCategory,omitempty"`
	AffectedFields    []string `json:"affectedFields,omitempty"`
}

// Act submits an officer action. A second call for the same application and
// action while the first is outstanding fails with ErrActionInFlight. On
// success the pending list is fetched again; a failed refetch is logged only.
func (c *Client) Act(ctx context.Context, action workflow.Action, in ActionInput) (*approval.ActionResult, error) {
	path, err := c.actionPath(action)
	if err != nil {
		return nil, err
	}
	done, err := c.inflight.Begin(string(action) + ":" + in.ApplicationID)
	if err != nil {
		return nil, err
	}
	defer done()

	if in.OfficerID == "" {
		user, _ := c.store.CurrentUser()
		in.OfficerID = user.ID
	}

	var out approval.ActionResult
	if err := c.api.DoJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	if _, err := c.Pending(ctx); err != nil {
		c.logger.Warn("pending refetch failed", map[string]interface{}{"error": err.Error()})
	}
	return &out, nil
}

// actionPath picks the endpoint; approval has one path per reviewing stage.
func (c *Client) actionPath(action workflow.Action) (string, error) {
	if action == workflow.ActionApprove {
		user, _ := c.store.CurrentUser()
		switch workflow.Role(user.Role) {
		case workflow.RoleAssistantArchitect, workflow.RoleAssistantLicenceEngineer,
			workflow.RoleAssistantStructuralEngineer, workflow.RoleAssistantSupervisor1,
			workflow.RoleAssistantSupervisor2:
			return "/Application/approve-assistant-engineer", nil
		}
		return "/Application/approve-junior-engineer", nil
	}
	if p, ok := actionPaths[action]; ok {
		return p, nil
	}
	return "", fmt.Errorf("no endpoint for action %q", action)
}
