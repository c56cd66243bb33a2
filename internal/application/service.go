// internal/application/service.go
package application

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/common/validation"
	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"
)

//go:embed schema/create_application.json
var createSchemaJSON []byte

var createSchema = validation.MustCompile(createSchemaJSON)

const dateLayout = "2006-01-02"

// Store is what the service needs from persistence.
type Store interface {
	Create(ctx context.Context, app *models.Application) error
	Get(ctx context.Context, id string) (*models.Application, error)
	ListByApplicant(ctx context.Context, applicantID string, stage *workflow.Stage, pageNumber, pageSize int) (*models.Page[models.ApplicationSummary], error)
	ListPending(ctx context.Context, stages []workflow.Stage, types []workflow.PositionType) ([]models.ApplicationSummary, error)
	History(ctx context.Context, id string) ([]models.StageHistory, error)
}

// Indexer receives newly created applications for search.
type Indexer interface {
	Index(ctx context.Context, app *models.Application) error
}

type Service struct {
	store   Store
	cache   *DashboardCache
	indexer Indexer
	logger  logger.Logger
}

func NewService(store Store, cache *DashboardCache, indexer Indexer, log logger.Logger) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		indexer: indexer,
		logger:  log.WithFields(map[string]interface{}{"component": "application"}),
	}
}

// CreateRequest is the citizen submission payload.
type CreateRequest struct {
	FirstName        string                 `json:"firstName"`
	MiddleName       string                 `json:"middleName"`
	LastName         string                 `json:"lastName"`
	MotherName       string                 `json:"motherName"`
	Email            string                 `json:"email"`
	Mobile           string                 `json:"mobile"`
	Gender           string                 `json:"gender"`
	BloodGroup       string                 `json:"bloodGroup"`
	Height           float64                `json:"height"`
	DateOfBirth      string                 `json:"dateOfBirth"`
	PositionType     string                 `json:"positionType"`
	PermanentAddress models.Address         `json:"permanentAddress"`
	CurrentAddress   models.Address         `json:"currentAddress"`
	Documents        []models.Document      `json:"documents"`
	Qualifications   []models.Qualification `json:"qualifications"`
	Experiences      []experienceRequest    `json:"experiences"`
}

type experienceRequest struct {
	CompanyName string `json:"companyName"`
	Position    string `json:"position"`
	FromDate    string `json:"fromDate"`
	ToDate      string `json:"toDate"`
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
}

// Create validates the raw JSON body and stores a new application at stage 0.
func (s *Service) Create(ctx context.Context, applicantID string, body []byte) (*models.Application, error) {
	result, err := createSchema.Validate(body)
	if err != nil {
		return nil, apperrors.NewValidationError("request body is not valid JSON")
	}
	if !result.Valid {
		return nil, apperrors.NewValidationError("invalid application", toFieldErrors(result.Errors)...)
	}

	var req CreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperrors.NewValidationError("request body is not valid JSON")
	}

	app, fieldErrs := buildApplication(applicantID, &req)
	if len(fieldErrs) > 0 {
		return nil, apperrors.NewValidationError("invalid application", fieldErrs...)
	}

	if err := s.store.Create(ctx, app); err != nil {
		s.logger.Error("failed to create application", map[string]interface{}{"error": err.Error(), "applicantId": applicantID})
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}

	s.logger.Info("application created", map[string]interface{}{
		"applicationId":     app.ID,
		"applicationNumber": app.ApplicationNumber,
		"positionType":      string(app.PositionType),
	})

	s.invalidate(ctx)
	if s.indexer != nil {
		if err := s.indexer.Index(ctx, app); err != nil {
			s.logger.Warn("failed to index application", map[string]interface{}{"error": err.Error(), "applicationId": app.ID})
		}
	}
	return app, nil
}

func buildApplication(applicantID string, req *CreateRequest) (*models.Application, []apperrors.FieldError) {
	var errs []apperrors.FieldError
	invalid := func(field, msg string) {
		errs = append(errs, apperrors.FieldError{Field: field, Code: "INVALID_FORMAT", Message: msg})
	}

	email := strings.TrimSpace(req.Email)
	if !validation.ValidateEmail(email) {
		invalid("email", "invalid email address")
	}
	if !validation.ValidateMobile(req.Mobile) {
		invalid("mobile", "invalid mobile number")
	}
	pt, err := workflow.ParsePositionType(req.PositionType)
	if err != nil {
		invalid("positionType", "unknown position type")
	}

	app := &models.Application{
		ApplicantID:      applicantID,
		FirstName:        strings.TrimSpace(req.FirstName),
		MiddleName:       strings.TrimSpace(req.MiddleName),
		LastName:         strings.TrimSpace(req.LastName),
		MotherName:       strings.TrimSpace(req.MotherName),
		Email:            strings.ToLower(email),
		Mobile:           strings.ReplaceAll(req.Mobile, " ", ""),
		Gender:           req.Gender,
		BloodGroup:       req.BloodGroup,
		Height:           req.Height,
		PermanentAddress: req.PermanentAddress,
		CurrentAddress:   req.CurrentAddress,
		PositionType:     pt,
		Documents:        req.Documents,
		Qualifications:   req.Qualifications,
	}

	if req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, req.DateOfBirth)
		switch {
		case err != nil:
			invalid("dateOfBirth", "invalid date")
		case dob.After(time.Now()):
			invalid("dateOfBirth", "date of birth is in the future")
		default:
			app.DateOfBirth = &dob
		}
	}

	for i, e := range req.Experiences {
		from, err := time.Parse(dateLayout, e.FromDate)
		if err != nil {
			invalid(experienceField(i, "fromDate"), "invalid date")
			continue
		}
		exp := models.Experience{Company: e.CompanyName, Position: e.Position, FromDate: from, FileID: e.FileID, FileName: e.FileName}
		if e.ToDate != "" {
			to, err := time.Parse(dateLayout, e.ToDate)
			if err != nil || to.Before(from) {
				invalid(experienceField(i, "toDate"), "end date must not precede start date")
				continue
			}
			exp.ToDate = &to
		}
		app.Experiences = append(app.Experiences, exp)
	}

	return app, errs
}

func experienceField(i int, name string) string {
	return "experiences." + strconv.Itoa(i) + "." + name
}

func toFieldErrors(in []validation.ValidationError) []apperrors.FieldError {
	out := make([]apperrors.FieldError, len(in))
	for i, e := range in {
		out[i] = apperrors.FieldError{Field: e.Field, Code: e.Code, Message: e.Message}
	}
	return out
}

// Get returns the application if user may see it. Applicants only see their
// own; to them another applicant's application does not exist.
func (s *Service) Get(ctx context.Context, user models.User, id string) (*models.Application, error) {
	app, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_application", err)
	}
	if workflow.Role(user.Role) == workflow.RoleUser && app.ApplicantID != user.ID {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	return app, nil
}

// ListRequest mirrors the list endpoint body.
type ListRequest struct {
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
	Status     string `json:"status,omitempty"`
}

// List pages through the applicant's own applications. Status accepts a
// stage name, a stage number or a display status.
func (s *Service) List(ctx context.Context, user models.User, req ListRequest) (*models.Page[models.ApplicationSummary], error) {
	if req.PageNumber < 1 {
		req.PageNumber = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 10
	}

	var stage *workflow.Stage
	if req.Status != "" {
		st, ok := parseStatus(req.Status)
		if !ok {
			return nil, apperrors.NewValidationError("invalid status filter",
				apperrors.FieldError{Field: "status", Code: "INVALID_ENUM_VALUE", Message: "unknown status"})
		}
		stage = &st
	}

	page, err := s.store.ListByApplicant(ctx, user.ID, stage, req.PageNumber, req.PageSize)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_applications", err)
	}
	return page, nil
}

func parseStatus(v string) (workflow.Stage, bool) {
	if st, err := workflow.ParseStage(v); err == nil {
		return st, true
	}
	for _, st := range workflow.AllStages() {
		if strings.EqualFold(st.Status(), v) {
			return st, true
		}
	}
	return 0, false
}

// Pending is the officer dashboard: applications at the role's pending
// stages with the position types it handles.
func (s *Service) Pending(ctx context.Context, role workflow.Role) ([]models.ApplicationSummary, error) {
	if !role.IsOfficer() {
		return nil, apperrors.NewForbiddenError("role " + string(role) + " has no dashboard")
	}

	var gen int64
	cacheable := false
	if s.cache != nil {
		items, ok, err := s.cache.Get(ctx, role)
		if err == nil && ok {
			return items, nil
		}
		if err == nil {
			gen, err = s.cache.Generation(ctx)
		}
		if err != nil {
			s.logger.Warn("dashboard cache read failed", map[string]interface{}{"error": err.Error(), "role": string(role)})
		} else {
			cacheable = true
		}
	}

	items, err := s.store.ListPending(ctx, workflow.PendingStages(role), workflow.ResponsibleFor(role))
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_pending", err)
	}
	items = workflow.FilterDashboard(role, items, func(a models.ApplicationSummary) (workflow.Stage, workflow.PositionType) {
		return a.CurrentStage, a.PositionType
	})

	if cacheable {
		stored, err := s.cache.Set(ctx, role, gen, items)
		if err != nil {
			s.logger.Warn("dashboard cache write failed", map[string]interface{}{"error": err.Error(), "role": string(role)})
		} else if !stored {
			s.logger.Debug("dashboard changed while loading, not cached", map[string]interface{}{"role": string(role)})
		}
	}
	return items, nil
}

// History returns the transitions applied to an application.
func (s *Service) History(ctx context.Context, user models.User, id string) ([]models.StageHistory, error) {
	if _, err := s.Get(ctx, user, id); err != nil {
		return nil, err
	}
	items, err := s.store.History(ctx, id)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("stage_history", err)
	}
	return items, nil
}

// Invalidate drops cached dashboards after a transition.
func (s *Service) Invalidate(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", map[string]interface{}{"error": err.Error()})
	}
}
