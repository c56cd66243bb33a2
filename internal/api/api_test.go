// internal/api/api_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pmc-registration/internal/application"
	"pmc-registration/internal/approval"
	"pmc-registration/internal/common/auth"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/draft"
	"pmc-registration/internal/models"
	"pmc-registration/internal/payment"
	"pmc-registration/internal/search"
	"pmc-registration/internal/session"
	"pmc-registration/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type MockLogin struct {
	mock.Mock
}

func (m *MockLogin) RequestOTP(ctx context.Context, email string) (*auth.OTPIssued, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.OTPIssued), args.Error(1)
}

func (m *MockLogin) VerifyOTP(ctx context.Context, email, code string) (*models.AuthResponse, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *MockLogin) OfficerLogin(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *MockLogin) Refresh(ctx context.Context, token string) (*models.AuthResponse, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthResponse), args.Error(1)
}

func (m *MockLogin) Logout(ctx context.Context, sessionID, refreshToken string) error {
	return m.Called(ctx, sessionID, refreshToken).Error(0)
}

type stubApps struct {
	app     *models.Application
	pending []models.ApplicationSummary
	role    workflow.Role
}

func (s *stubApps) Create(ctx context.Context, applicantID string, body []byte) (*models.Application, error) {
	return &models.Application{ID: "app-new", ApplicantID: applicantID, CurrentStage: workflow.JuniorEngineerPending}, nil
}

func (s *stubApps) Get(ctx context.Context, user models.User, id string) (*models.Application, error) {
	if s.app == nil || s.app.ID != id {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	return s.app, nil
}

func (s *stubApps) List(ctx context.Context, user models.User, req application.ListRequest) (*models.Page[models.ApplicationSummary], error) {
	return &models.Page[models.ApplicationSummary]{PageNumber: req.PageNumber, PageSize: req.PageSize}, nil
}

func (s *stubApps) Pending(ctx context.Context, role workflow.Role) ([]models.ApplicationSummary, error) {
	s.role = role
	return s.pending, nil
}

func (s *stubApps) History(ctx context.Context, user models.User, id string) ([]models.StageHistory, error) {
	return []models.StageHistory{}, nil
}

type recordingApprovals struct {
	mu       sync.Mutex
	acts     []approval.ActionRequest
	generate []approval.GenerateRequest
	err      error
}

func (r *recordingApprovals) GenerateOTP(ctx context.Context, req approval.GenerateRequest) (*approval.GenerateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generate = append(r.generate, req)
	if r.err != nil {
		return nil, r.err
	}
	return &approval.GenerateResult{ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

func (r *recordingApprovals) Act(ctx context.Context, req approval.ActionRequest) (*approval.ActionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acts = append(r.acts, req)
	if r.err != nil {
		return nil, r.err
	}
	return &approval.ActionResult{ApplicationID: req.ApplicationID}, nil
}

type stubPayments struct {
	callbacks int
}

func (s *stubPayments) Initiate(ctx context.Context, user models.User, applicationID string) (*payment.Initiation, error) {
	return &payment.Initiation{GatewayURL: "https://gateway.test/pay"}, nil
}

func (s *stubPayments) Callback(ctx context.Context, req payment.CallbackRequest) (*models.Payment, error) {
	s.callbacks++
	return &models.Payment{ChallanNumber: req.ChallanNumber, Status: models.PaymentSuccess}, nil
}

func (s *stubPayments) Status(ctx context.Context, user models.User, applicationID string) (*models.Payment, error) {
	return &models.Payment{ApplicationID: applicationID, Status: models.PaymentInitiated}, nil
}

func (s *stubPayments) Challan(ctx context.Context, user models.User, applicationID string) ([]byte, error) {
	return []byte("CHALLAN " + applicationID), nil
}

type memoryDrafts struct {
	data map[string][]byte
}

func (m *memoryDrafts) Save(ctx context.Context, id string, raw []byte) ([]byte, error) {
	stripped, err := draft.Strip(raw)
	if err != nil {
		return nil, err
	}
	m.data[id] = stripped
	return stripped, nil
}

func (m *memoryDrafts) Load(ctx context.Context, id string) ([]byte, error) {
	b, ok := m.data[id]
	if !ok {
		return nil, draft.ErrNotFound
	}
	return b, nil
}

func (m *memoryDrafts) Delete(ctx context.Context, id string) error {
	delete(m.data, id)
	return nil
}

type capturingSearch struct {
	last search.Query
}

func (c *capturingSearch) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	c.last = q
	return &search.Result{Total: 0, Items: []search.Document{}}, nil
}

// activeSessions treats every session as live unless listed as ended.
type activeSessions struct {
	ended map[string]bool
}

func (a *activeSessions) Touch(ctx context.Context, id string) (*models.Session, error) {
	if a.ended[id] {
		return nil, session.ErrInactive
	}
	return &models.Session{ID: id}, nil
}

// ==========================
// Fixture
// ==========================

type fixture struct {
	router    http.Handler
	tokens    *session.TokenIssuer
	login     *MockLogin
	apps      *stubApps
	approvals *recordingApprovals
	payments  *stubPayments
	drafts    *memoryDrafts
	search    *capturingSearch
	activity  *activeSessions
	readyErr  error
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		tokens:    session.NewTokenIssuer("test-secret", "pmc-registration", time.Hour),
		login:     new(MockLogin),
		apps:      &stubApps{},
		approvals: &recordingApprovals{},
		payments:  &stubPayments{},
		drafts:    &memoryDrafts{data: map[string][]byte{}},
		search:    &capturingSearch{},
		activity:  &activeSessions{ended: map[string]bool{}},
	}
	h := NewHandler(Deps{
		Login:        f.login,
		Applications: f.apps,
		Approvals:    f.approvals,
		Payments:     f.payments,
		Drafts:       f.drafts,
		Search:       f.search,
		Tokens:       f.tokens,
		Activity:     f.activity,
		Checks: []Check{{Name: "postgres", Ping: func(ctx context.Context) error {
			return f.readyErr
		}}},
		CallbackToken: "gateway-secret",
	}, logger.NewTestLogger(t))
	f.router = h.Router()
	return f
}

func (f *fixture) token(t *testing.T, id, role string) *session.IssuedToken {
	tok, err := f.tokens.Issue(session.Identity{ID: id, Email: id + "@pmc.test", Role: role, Name: "Officer " + id})
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, tok *session.IssuedToken) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != nil {
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Error.Code
}

// ==========================
// Ops and routing
// ==========================

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", nil, nil).Code)

	f.readyErr = errors.New("connection refused")
	rec := f.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestUnknownRouteIsJSONNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/Application/update-stage", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", nil, nil)
	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

// ==========================
// Authentication
// ==========================

func TestAuthentication(t *testing.T) {
	f := newFixture(t)
	junior := f.token(t, "off-1", "JuniorArchitect")
	ended := f.token(t, "off-2", "JuniorArchitect")
	f.activity.ended[ended.ID] = true

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{"missing token", "", http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
		{"inactive session", "Bearer " + ended.Token, http.StatusUnauthorized, "SESSION_EXPIRED"},
		{"valid", "Bearer " + junior.Token, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/Application/pending", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, errorCode(t, rec))
			}
		})
	}
}

func TestExpiredTokenIsSessionExpired(t *testing.T) {
	f := newFixture(t)
	short := session.NewTokenIssuer("test-secret", "pmc-registration", time.Nanosecond)
	tok, err := short.Issue(session.Identity{ID: "u-1", Email: "u@pmc.test", Role: "User"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	rec := f.do(t, http.MethodPost, "/Application/list", map[string]int{"pageNumber": 1}, tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_EXPIRED", errorCode(t, rec))
}

func TestVerifyOTP(t *testing.T) {
	f := newFixture(t)
	f.login.On("VerifyOTP", mock.Anything, "asha@example.com", "123456").
		Return(&models.AuthResponse{Success: true, Token: "jwt", RefreshToken: "rt", Email: "asha@example.com", Role: "User"}, nil)

	rec := f.do(t, http.MethodPost, "/Auth/verify-otp", verifyOTPRequest{Email: "asha@example.com", OTP: "123456"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "jwt", resp.Token)
	assert.Equal(t, "User", resp.Role)

	rec = f.do(t, http.MethodPost, "/Auth/verify-otp", verifyOTPRequest{Email: "asha@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OTP_REQUIRED", errorCode(t, rec))
	f.login.AssertExpectations(t)
}

func TestOfficerLoginGenericError(t *testing.T) {
	f := newFixture(t)
	f.login.On("OfficerLogin", mock.Anything, "je@pmc.test", "wrong").
		Return(nil, apperrors.NewInvalidCredentialsError())

	rec := f.do(t, http.MethodPost, "/Auth/token", officerLoginRequest{Email: "je@pmc.test", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestGenerateLoginOTPCooldown(t *testing.T) {
	f := newFixture(t)
	f.login.On("RequestOTP", mock.Anything, "asha@example.com").
		Return(nil, apperrors.NewOTPCooldownError(20*time.Second))

	rec := f.do(t, http.MethodGet, "/OtpAttempt/generate?emailAddress=asha@example.com", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "20", rec.Header().Get("Retry-After"))
}

func TestLogoutRevokesCurrentSession(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u-1", "User")
	f.login.On("Logout", mock.Anything, tok.ID, "rt-1").Return(nil)

	rec := f.do(t, http.MethodPost, "/Auth/logout", refreshRequest{RefreshToken: "rt-1"}, tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	f.login.AssertExpectations(t)
}

// ==========================
// Role guards
// ==========================

func TestRoleGuards(t *testing.T) {
	f := newFixture(t)
	applicant := f.token(t, "u-1", "User")
	junior := f.token(t, "off-1", "JuniorEngineer")
	assistant := f.token(t, "off-2", "AssistantArchitect")
	clerk := f.token(t, "off-3", "Clerk")

	tests := []struct {
		name   string
		method string
		path   string
		tok    *session.IssuedToken
		want   int
	}{
		{"applicant has no dashboard", http.MethodGet, "/Application/pending", applicant, http.StatusForbidden},
		{"officer cannot create", http.MethodPost, "/Application/create", junior, http.StatusForbidden},
		{"assistant cannot schedule", http.MethodPost, "/Application/schedule-appointment", assistant, http.StatusForbidden},
		{"junior cannot sign", http.MethodPost, "/Application/apply-digital-signature", junior, http.StatusForbidden},
		{"assistant cannot approve as junior", http.MethodPost, "/Application/approve-junior-engineer", assistant, http.StatusForbidden},
		{"clerk cannot approve", http.MethodPost, "/Application/approve-assistant-engineer", clerk, http.StatusForbidden},
		{"applicant cannot search", http.MethodGet, "/Application/search?q=x", applicant, http.StatusForbidden},
		{"officer cannot pay", http.MethodPost, "/Payment/initiate", clerk, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, map[string]string{"applicationId": "app-1"}, tt.tok)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Empty(t, f.approvals.acts)
}

func TestPendingUsesInternalRole(t *testing.T) {
	f := newFixture(t)
	f.apps.pending = []models.ApplicationSummary{{ID: "app-1", CurrentStage: workflow.JuniorEngineerPending}}

	rec := f.do(t, http.MethodGet, "/Application/pending", nil, f.token(t, "off-1", "JuniorEngineer"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, workflow.RoleJuniorArchitect, f.apps.role)

	var items []models.ApplicationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)
}

// ==========================
// Officer actions
// ==========================

func TestApproveJuniorEngineer(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "off-1", "JuniorArchitect")

	rec := f.do(t, http.MethodPost, "/Application/approve-junior-engineer", actionRequest{
		ApplicationID: "app-1", OfficerID: "off-1", OTP: " 123456 ", Comments: "documents verified",
	}, tok)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.approvals.acts, 1)
	got := f.approvals.acts[0]
	assert.Equal(t, workflow.ActionApprove, got.Action)
	assert.Equal(t, workflow.RoleJuniorArchitect, got.Role)
	assert.Equal(t, "123456", got.OTP)
	assert.Equal(t, "Officer off-1", got.OfficerName)
	assert.Equal(t, "documents verified", got.Comments)
}

func TestActionInAnotherOfficersName(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "off-1", "JuniorArchitect")

	rec := f.do(t, http.MethodPost, "/Application/generate-otp", generateOTPRequest{ApplicationID: "app-1", OfficerID: "off-9"}, tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(t, http.MethodPost, "/Application/reject-by-officer", actionRequest{ApplicationID: "app-1", OfficerID: "off-9", Reason: "x", OTP: "1"}, tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Empty(t, f.approvals.acts)
	assert.Empty(t, f.approvals.generate)
}

func TestScheduleAppointment(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		wantCode int
		wantDate time.Time
	}{
		{"calendar date", "2025-06-04", http.StatusOK, time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)},
		{"timestamp", "2025-06-04T10:30:00Z", http.StatusOK, time.Date(2025, 6, 4, 10, 30, 0, 0, time.UTC)},
		{"garbage", "next tuesday", http.StatusBadRequest, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tok := f.token(t, "off-1", "JuniorStructuralEngineer")
			rec := f.do(t, http.MethodPost, "/Application/schedule-appointment", actionRequest{
				ApplicationID: "app-1", OfficerID: "off-1", OTP: "123456", AppointmentDate: tt.date,
			}, tok)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "INVALID_APPOINTMENT_DATE", errorCode(t, rec))
				assert.Empty(t, f.approvals.acts)
				return
			}
			require.Len(t, f.approvals.acts, 1)
			require.NotNil(t, f.approvals.acts[0].Appointment)
			assert.True(t, tt.wantDate.Equal(*f.approvals.acts[0].Appointment))
			assert.Equal(t, workflow.ActionScheduleAppointment, f.approvals.acts[0].Action)
		})
	}
}

func TestApplySignatureDefaultsOfficer(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "ee-1", "ExecutiveEngineer")

	rec := f.do(t, http.MethodPost, "/Application/apply-digital-signature", actionRequest{ApplicationID: "app-1", OTP: "123456"}, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.approvals.acts, 1)
	assert.Equal(t, "ee-1", f.approvals.acts[0].OfficerID)
	assert.Equal(t, workflow.ActionSign, f.approvals.acts[0].Action)
}

func TestRejectPassesReason(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "off-1", "JuniorLicenceEngineer")

	rec := f.do(t, http.MethodPost, "/Application/reject-by-officer", actionRequest{
		ApplicationID:  "app-1",
		OfficerID:      "off-1",
		OTP:            "123456",
		Reason:         "degree certificate unreadable",
		Category:       "DOCUMENTS",
		AffectedFields: []string{"qualifications[0].certificate"},
	}, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	got := f.approvals.acts[0]
	assert.Equal(t, workflow.ActionReject, got.Action)
	assert.Equal(t, "degree certificate unreadable", got.Reason)
	assert.Equal(t, "DOCUMENTS", got.RejectionCategory)
	assert.Equal(t, []string{"qualifications[0].certificate"}, got.AffectedFields)
}

func TestActionErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"stage conflict", apperrors.NewStageConflictError("moved"), http.StatusConflict},
		{"wrong otp", apperrors.NewOTPInvalidError(), http.StatusUnprocessableEntity},
		{"not actionable", apperrors.NewNotActionableError("stage 3"), http.StatusForbidden},
		{"reason missing", apperrors.NewReasonRequiredError(), http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.approvals.err = tt.err
			tok := f.token(t, "clerk-1", "Clerk")
			rec := f.do(t, http.MethodPost, "/Application/generate-certificate", actionRequest{ApplicationID: "app-1", OfficerID: "clerk-1", OTP: "1"}, tok)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

// ==========================
// Applicant surface
// ==========================

func TestDraftRoundTrip(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u-1", "User")

	rec := f.do(t, http.MethodGet, "/Application/draft", nil, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	form := map[string]interface{}{
		"firstName": "Asha",
		"photo":     map[string]interface{}{"name": "me.jpg", "size": 1024, "content": "aGVsbG8="},
	}
	rec = f.do(t, http.MethodPut, "/Application/draft", form, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "aGVsbG8=")

	rec = f.do(t, http.MethodGet, "/Application/draft", nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"firstName":"Asha","photo":{"name":"me.jpg"}}`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/Application/draft", nil, tok)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.drafts.data)
}

func TestCreateApplicationUsesPrincipal(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/Application/create", map[string]string{"firstName": "Asha"}, f.token(t, "u-7", "User"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var app models.Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &app))
	assert.Equal(t, "u-7", app.ApplicantID)
}

func TestCertificate(t *testing.T) {
	f := newFixture(t)
	tok := f.token(t, "u-1", "User")
	f.apps.app = &models.Application{ID: "app-1", CurrentStage: workflow.CityEngineerSignPending}

	rec := f.do(t, http.MethodGet, "/Application/app-1/certificate", nil, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	path, number := "certificates/PMC_ARC_2025_00001.pdf", "PMC/ARC/2025/00001"
	f.apps.app = &models.Application{ID: "app-1", CurrentStage: workflow.Approved, IsCertificateGenerated: true, CertificatePath: &path, CertificateNumber: &number}
	rec = f.do(t, http.MethodGet, "/Application/app-1/certificate", nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PMC_ARC_2025_00001.pdf")
}

func TestSearchScope(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/Application/search?q=patil&positionType=Supervisor1", nil, f.token(t, "off-1", "JuniorArchitect"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "patil", f.search.last.Text)
	assert.Equal(t, []workflow.PositionType{"-"}, f.search.last.PositionTypes)

	rec = f.do(t, http.MethodGet, "/Application/search?q=patil", nil, f.token(t, "off-1", "JuniorArchitect"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []workflow.PositionType{workflow.Architect}, f.search.last.PositionTypes)

	rec = f.do(t, http.MethodGet, "/Application/search?stage=ClerkPending", nil, f.token(t, "adm-1", "Admin"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.search.last.PositionTypes)

	rec = f.do(t, http.MethodGet, "/Application/search?positionType=Plumber", nil, f.token(t, "adm-1", "Admin"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Payment
// ==========================

func TestPaymentCallbackToken(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"orderId": "PMC/CHALLAN/2025/000001", "status": "SUCCESS", "transactionId": "tx-1"}

	rec := f.do(t, http.MethodPost, "/Payment/callback", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, f.payments.callbacks)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/Payment/callback", &buf)
	req.Header.Set("X-Callback-Token", "gateway-secret")
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, f.payments.callbacks)
}

func TestChallanDownload(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/Payment/challan/app-1", nil, f.token(t, "u-1", "User"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "challan-app-1.txt")
	assert.Equal(t, "CHALLAN app-1", rec.Body.String())
}

func TestRolesAt(t *testing.T) {
	juniors := rolesAt(workflow.JuniorEngineerPending)
	assert.Len(t, juniors, 5)
	assert.Contains(t, juniors, workflow.RoleJuniorStructuralEngineer)
	assert.Equal(t, []workflow.Role{workflow.RoleClerk}, rolesAt(workflow.ClerkPending))
	assert.Empty(t, rolesAt(workflow.PaymentPending))
}
