// internal/api/api.go
package api

import (
	"context"
	"net/http"
	"time"

	"pmc-registration/internal/application"
	"pmc-registration/internal/approval"
	"pmc-registration/internal/authz"
	"pmc-registration/internal/common/auth"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/payment"
	"pmc-registration/internal/search"
	"pmc-registration/internal/session"
	"pmc-registration/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Login interface {
	RequestOTP(ctx context.Context, email string) (*auth.OTPIssued, error)
	VerifyOTP(ctx context.Context, email, code string) (*models.AuthResponse, error)
	OfficerLogin(ctx context.Context, email, password string) (*models.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthResponse, error)
	Logout(ctx context.Context, sessionID, refreshToken string) error
}

type Applications interface {
	Create(ctx context.Context, applicantID string, body []byte) (*models.Application, error)
	Get(ctx context.Context, user models.User, id string) (*models.Application, error)
	List(ctx context.Context, user models.User, req application.ListRequest) (*models.Page[models.ApplicationSummary], error)
	Pending(ctx context.Context, role workflow.Role) ([]models.ApplicationSummary, error)
	History(ctx context.Context, user models.User, id string) ([]models.StageHistory, error)
}

type Approvals interface {
	GenerateOTP(ctx context.Context, req approval.GenerateRequest) (*approval.GenerateResult, error)
	Act(ctx context.Context, req approval.ActionRequest) (*approval.ActionResult, error)
}

type Payments interface {
	Initiate(ctx context.Context, user models.User, applicationID string) (*payment.Initiation, error)
	Callback(ctx context.Context, req payment.CallbackRequest) (*models.Payment, error)
	Status(ctx context.Context, user models.User, applicationID string) (*models.Payment, error)
	Challan(ctx context.Context, user models.User, applicationID string) ([]byte, error)
}

type Drafts interface {
	Save(ctx context.Context, applicantID string, raw []byte) ([]byte, error)
	Load(ctx context.Context, applicantID string) ([]byte, error)
	Delete(ctx context.Context, applicantID string) error
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Tokens verifies bearer tokens.
type Tokens interface {
	Parse(raw string) (*session.Claims, error)
}

// Activity keeps the server-side inactivity window of a session.
type Activity interface {
	Touch(ctx context.Context, sessionID string) (*models.Session, error)
}

// Check is one dependency probed by /ready.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Login        Login
	Applications Applications
	Approvals    Approvals
	Payments     Payments
	Drafts       Drafts
	Search       Searcher
	Tokens       Tokens
	Activity     Activity
	Checks       []Check

	CallbackToken string
}

type Handler struct {
	deps   Deps
	logger logger.Logger
}

func NewHandler(d Deps, log logger.Logger) *Handler {
	return &Handler{deps: d, logger: log.WithFields(map[string]interface{}{"component": "api"})}
}

// Router builds the chi router for the whole REST surface.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperrors.WriteHTTP(w, apperrors.NewResourceNotFoundError("route", r.Method+" "+r.URL.Path))
	})

	r.Get("/health", h.health)
	r.Get("/ready", h.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/OtpAttempt/generate", h.generateLoginOTP)
	r.Post("/Auth/verify-otp", h.verifyOTP)
	r.Post("/Auth/token", h.officerLogin)
	r.Post("/Auth/refresh", h.refresh)
	r.Post("/Payment/callback", h.paymentCallback)

	officers := workflow.OfficerRoles()
	applicant := []workflow.Role{workflow.RoleUser}

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Post("/Auth/logout", h.logout)

		r.With(authz.RequireRoles(applicant...)).Post("/Application/create", h.createApplication)
		r.With(authz.RequireRoles(applicant...)).Post("/Application/list", h.listApplications)
		r.Route("/Application/draft", func(r chi.Router) {
			r.Use(authz.RequireRoles(applicant...))
			r.Put("/", h.saveDraft)
			r.Get("/", h.loadDraft)
			r.Delete("/", h.deleteDraft)
		})

		r.With(authz.RequireOfficer()).Get("/Application/pending", h.pending)
		r.With(authz.RequireRoles(append([]workflow.Role{workflow.RoleAdmin}, officers...)...)).
			Get("/Application/search", h.search)

		r.With(authz.RequireOfficer()).Post("/Application/generate-otp", h.generateActionOTP)
		r.With(authz.RequireRoles(rolesAt(workflow.JuniorEngineerPending)...)).
			Post("/Application/schedule-appointment", h.scheduleAppointment)
		r.With(authz.RequireRoles(rolesAt(workflow.DocumentVerificationPending)...)).
			Post("/Application/approve-junior-engineer", h.approve)
		r.With(authz.RequireRoles(rolesAt(workflow.AssistantEngineerPending)...)).
			Post("/Application/approve-assistant-engineer", h.approve)
		r.With(authz.RequireRoles(workflow.RoleExecutiveEngineer, workflow.RoleCityEngineer)).
			Post("/Application/apply-digital-signature", h.applySignature)
		r.With(authz.RequireRoles(workflow.RoleClerk)).
			Post("/Application/generate-certificate", h.generateCertificate)
		r.With(authz.RequireOfficer()).Post("/Application/reject-by-officer", h.reject)

		r.Get("/Application/{id}", h.getApplication)
		r.Get("/Application/{id}/history", h.history)
		r.Get("/Application/{id}/certificate", h.certificate)

		r.With(authz.RequireRoles(applicant...)).Post("/Payment/initiate", h.initiatePayment)
		r.Get("/Payment/status/{applicationId}", h.paymentStatus)
		r.Get("/Payment/challan/{applicationId}", h.challan)
	})

	return r
}

// rolesAt lists the officer roles with work pending at stage.
func rolesAt(stage workflow.Stage) []workflow.Role {
	var out []workflow.Role
	for _, r := range workflow.OfficerRoles() {
		for _, st := range workflow.PendingStages(r) {
			if st == stage {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Checks))
	for _, c := range h.deps.Checks {
		if err := c.Ping(ctx); err != nil {
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}
	writeJSON(w, status, map[string]interface{}{"ready": status == http.StatusOK, "checks": checks})
}
