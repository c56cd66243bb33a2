// internal/application/repository.go
package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound      = errors.New("APPLICATION_NOT_FOUND")
	ErrStageConflict = errors.New("STAGE_CONFLICT")
)

const (
	counterApplication = "application"
	counterCertificate = "certificate"
)

// FormatApplicationNumber renders the human readable application number.
func FormatApplicationNumber(year, seq int) string {
	return fmt.Sprintf("PMC_APPLICATION_%d_%d", year, seq)
}

// FormatCertificateNumber renders the registration certificate number.
func FormatCertificateNumber(pt workflow.PositionType, year, seq int) string {
	return fmt.Sprintf("PMC/%s/%d/%05d", positionCode(pt), year, seq)
}

func positionCode(pt workflow.PositionType) string {
	switch pt {
	case workflow.Architect:
		return "ARC"
	case workflow.StructuralEngineer:
		return "STR"
	case workflow.LicenceEngineer:
		return "LIC"
	case workflow.Supervisor1:
		return "SUP1"
	case workflow.Supervisor2:
		return "SUP2"
	default:
		return strings.ToUpper(string(pt))
	}
}

// TransitionParams describes one compare-and-set stage move.
type TransitionParams struct {
	ApplicationID       string
	From                workflow.Stage
	To                  workflow.Stage
	Action              workflow.Action
	ActorID             string
	ActorRole           workflow.Role
	Comments            string
	AppointmentDate     *time.Time
	IssueCertificate    bool
	RecommendedFormPath *string
	Rejection           *workflow.Rejection
}

// TransitionResult reports what the move wrote.
type TransitionResult struct {
	CertificateNumber string
}

// Repository is the postgres store for applications.
type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const applicationColumns = `id, application_number, applicant_id, first_name, middle_name, last_name,
	mother_name, email, mobile, gender, blood_group, height, date_of_birth, permanent_address,
	current_address, position_type, current_stage, appointment_date, certificate_number,
	certificate_path, is_certificate_generated, recommended_form_path, created_at, updated_at`

// applicationRow mirrors the table; nullable text columns scan into NullString.
type applicationRow struct {
	ID                     string                `db:"id"`
	ApplicationNumber      string                `db:"application_number"`
	ApplicantID            string                `db:"applicant_id"`
	FirstName              string                `db:"first_name"`
	MiddleName             sql.NullString        `db:"middle_name"`
	LastName               string                `db:"last_name"`
	MotherName             sql.NullString        `db:"mother_name"`
	Email                  string                `db:"email"`
	Mobile                 string                `db:"mobile"`
	Gender                 sql.NullString        `db:"gender"`
	BloodGroup             sql.NullString        `db:"blood_group"`
	Height                 sql.NullFloat64       `db:"height"`
	DateOfBirth            sql.NullTime          `db:"date_of_birth"`
	PermanentAddress       models.Address        `db:"permanent_address"`
	CurrentAddress         models.Address        `db:"current_address"`
	PositionType           workflow.PositionType `db:"position_type"`
	CurrentStage           workflow.Stage        `db:"current_stage"`
	AppointmentDate        sql.NullTime          `db:"appointment_date"`
	CertificateNumber      sql.NullString        `db:"certificate_number"`
	CertificatePath        sql.NullString        `db:"certificate_path"`
	IsCertificateGenerated bool                  `db:"is_certificate_generated"`
	RecommendedFormPath    sql.NullString        `db:"recommended_form_path"`
	CreatedAt              time.Time             `db:"created_at"`
	UpdatedAt              time.Time             `db:"updated_at"`
}

func (r applicationRow) model() *models.Application {
	a := &models.Application{
		ID:                     r.ID,
		ApplicationNumber:      r.ApplicationNumber,
		ApplicantID:            r.ApplicantID,
		FirstName:              r.FirstName,
		MiddleName:             r.MiddleName.String,
		LastName:               r.LastName,
		MotherName:             r.MotherName.String,
		Email:                  r.Email,
		Mobile:                 r.Mobile,
		Gender:                 r.Gender.String,
		BloodGroup:             r.BloodGroup.String,
		Height:                 r.Height.Float64,
		PermanentAddress:       r.PermanentAddress,
		CurrentAddress:         r.CurrentAddress,
		PositionType:           r.PositionType,
		CurrentStage:           r.CurrentStage,
		IsCertificateGenerated: r.IsCertificateGenerated,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
	if r.DateOfBirth.Valid {
		a.DateOfBirth = &r.DateOfBirth.Time
	}
	if r.AppointmentDate.Valid {
		a.AppointmentDate = &r.AppointmentDate.Time
	}
	a.CertificateNumber = nullable(r.CertificateNumber)
	a.CertificatePath = nullable(r.CertificatePath)
	a.RecommendedFormPath = nullable(r.RecommendedFormPath)
	return a
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// nextValue bumps a yearly counter inside tx.
func nextValue(ctx context.Context, tx *sqlx.Tx, name string, year int) (int, error) {
	var v int
	err := tx.GetContext(ctx, &v, `
		INSERT INTO counters (name, year, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (name, year) DO UPDATE SET last_value = counters.last_value + 1
		RETURNING last_value`, name, year)
	return v, err
}

// Create inserts the application with its attachments at stage 0 and fills
// in ID, ApplicationNumber and timestamps.
func (r *Repository) Create(ctx context.Context, app *models.Application) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().UTC()
	seq, err := nextValue(ctx, tx, counterApplication, now.Year())
	if err != nil {
		return fmt.Errorf("next application number: %w", err)
	}

	app.ID = uuid.NewString()
	app.ApplicationNumber = FormatApplicationNumber(now.Year(), seq)
	app.CurrentStage = workflow.JuniorEngineerPending
	app.CreatedAt, app.UpdatedAt = now, now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (id, application_number, applicant_id, first_name, middle_name, last_name,
			mother_name, email, mobile, gender, blood_group, height, date_of_birth, permanent_address,
			current_address, position_type, current_stage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)`,
		app.ID, app.ApplicationNumber, app.ApplicantID, app.FirstName, app.MiddleName, app.LastName,
		app.MotherName, app.Email, app.Mobile, app.Gender, app.BloodGroup, app.Height, app.DateOfBirth,
		app.PermanentAddress, app.CurrentAddress, string(app.PositionType), int(app.CurrentStage), now)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}

	for i := range app.Documents {
		d := &app.Documents[i]
		d.ID, d.SortOrder = uuid.NewString(), i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO application_documents (id, application_id, document_type, file_id, file_path, file_name, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.ID, app.ID, string(d.DocumentType), d.FileID, d.FilePath, d.FileName, d.SortOrder); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	for i := range app.Qualifications {
		q := &app.Qualifications[i]
		q.ID, q.SortOrder = uuid.NewString(), i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO application_qualifications (id, application_id, institute, university, degree,
				passing_month, passing_year, file_id, file_name, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			q.ID, app.ID, q.Institute, q.University, q.Degree, q.PassingMonth, q.PassingYear, q.FileID, q.FileName, q.SortOrder); err != nil {
			return fmt.Errorf("insert qualification: %w", err)
		}
	}
	for i := range app.Experiences {
		e := &app.Experiences[i]
		e.ID, e.SortOrder = uuid.NewString(), i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO application_experiences (id, application_id, company, position, from_date, to_date,
				file_id, file_name, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, app.ID, e.Company, e.Position, e.FromDate, e.ToDate, e.FileID, e.FileName, e.SortOrder); err != nil {
			return fmt.Errorf("insert experience: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads the application with attachments and its rejection, if any.
func (r *Repository) Get(ctx context.Context, id string) (*models.Application, error) {
	var row applicationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	app := row.model()

	if err := r.db.SelectContext(ctx, &app.Documents, `
		SELECT id, document_type, COALESCE(file_id, '') AS file_id, COALESCE(file_path, '') AS file_path, file_name, sort_order
		FROM application_documents WHERE application_id = $1 ORDER BY sort_order`, id); err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if err := r.db.SelectContext(ctx, &app.Qualifications, `
		SELECT id, institute, university, degree, COALESCE(passing_month, 0) AS passing_month, passing_year,
			COALESCE(file_id, '') AS file_id, COALESCE(file_name, '') AS file_name, sort_order
		FROM application_qualifications WHERE application_id = $1 ORDER BY sort_order`, id); err != nil {
		return nil, fmt.Errorf("load qualifications: %w", err)
	}
	if err := r.db.SelectContext(ctx, &app.Experiences, `
		SELECT id, company, position, from_date, to_date, COALESCE(file_id, '') AS file_id,
			COALESCE(file_name, '') AS file_name, sort_order
		FROM application_experiences WHERE application_id = $1 ORDER BY sort_order`, id); err != nil {
		return nil, fmt.Errorf("load experiences: %w", err)
	}

	if app.CurrentStage == workflow.Rejected {
		rej, err := r.rejection(ctx, id)
		if err != nil {
			return nil, err
		}
		app.Rejection = rej
	}
	return app, nil
}

type rejectionRow struct {
	workflow.Rejection
	Fields []byte `db:"affected_fields"`
}

func (r *Repository) rejection(ctx context.Context, id string) (*workflow.Rejection, error) {
	var row rejectionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT reason, category, officer_id, COALESCE(officer_name, '') AS officer_name, role, stage,
			affected_fields, created_at
		FROM application_rejections WHERE application_id = $1
		ORDER BY created_at DESC LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rejection: %w", err)
	}
	rej := row.Rejection
	rej.AffectedFields = []string{}
	if len(row.Fields) > 0 {
		if err := json.Unmarshal(row.Fields, &rej.AffectedFields); err != nil {
			return nil, fmt.Errorf("decode affected fields: %w", err)
		}
	}
	return &rej, nil
}

const summaryColumns = `id, application_number, first_name, last_name, email, position_type, current_stage, created_at`

func withStatus(items []models.ApplicationSummary) []models.ApplicationSummary {
	for i := range items {
		items[i].Status = items[i].CurrentStage.Status()
	}
	return items
}

// ListByApplicant pages through one applicant's applications, newest first.
// A nil stage lists all.
func (r *Repository) ListByApplicant(ctx context.Context, applicantID string, stage *workflow.Stage, pageNumber, pageSize int) (*models.Page[models.ApplicationSummary], error) {
	where := `applicant_id = $1`
	args := []interface{}{applicantID}
	if stage != nil {
		where += ` AND current_stage = $2`
		args = append(args, int(*stage))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(1) FROM applications WHERE `+where, args...); err != nil {
		return nil, err
	}

	items := []models.ApplicationSummary{}
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		summaryColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (pageNumber-1)*pageSize)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	return &models.Page[models.ApplicationSummary]{
		Items:      withStatus(items),
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalCount: total,
	}, nil
}

// ListPending returns applications sitting at one of stages with one of the
// given position types, oldest first.
func (r *Repository) ListPending(ctx context.Context, stages []workflow.Stage, types []workflow.PositionType) ([]models.ApplicationSummary, error) {
	items := []models.ApplicationSummary{}
	if len(stages) == 0 || len(types) == 0 {
		return items, nil
	}
	stageArgs := make([]int64, len(stages))
	for i, s := range stages {
		stageArgs[i] = int64(s)
	}
	typeArgs := make([]string, len(types))
	for i, t := range types {
		typeArgs[i] = string(t)
	}
	err := r.db.SelectContext(ctx, &items, `SELECT `+summaryColumns+` FROM applications
		WHERE current_stage = ANY($1) AND position_type = ANY($2)
		ORDER BY created_at ASC`, pq.Array(stageArgs), pq.Array(typeArgs))
	if err != nil {
		return nil, err
	}
	return withStatus(items), nil
}

// Transition moves the application from p.From to p.To only if it is still
// at p.From. The history row, the rejection record and any certificate
// number are written in the same transaction.
func (r *Repository) Transition(ctx context.Context, p TransitionParams) (*TransitionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res := &TransitionResult{}
	var certificate *string
	if p.IssueCertificate {
		var pt workflow.PositionType
		if err := tx.GetContext(ctx, &pt, `SELECT position_type FROM applications WHERE id = $1`, p.ApplicationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		year := r.now().UTC().Year()
		seq, err := nextValue(ctx, tx, counterCertificate, year)
		if err != nil {
			return nil, fmt.Errorf("next certificate number: %w", err)
		}
		res.CertificateNumber = FormatCertificateNumber(pt, year, seq)
		certificate = &res.CertificateNumber
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE applications
		SET current_stage = $1,
			appointment_date = COALESCE($2, appointment_date),
			certificate_number = COALESCE($3, certificate_number),
			recommended_form_path = COALESCE($4, recommended_form_path),
			updated_at = NOW()
		WHERE id = $5 AND current_stage = $6`,
		int(p.To), p.AppointmentDate, certificate, p.RecommendedFormPath, p.ApplicationID, int(p.From))
	if err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM applications WHERE id = $1)`, p.ApplicationID); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: application %s is no longer at %s", ErrStageConflict, p.ApplicationID, p.From)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO application_stage_history (id, application_id, from_stage, to_stage, action, actor_id, actor_role, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), p.ApplicationID, int(p.From), int(p.To), string(p.Action), p.ActorID, string(p.ActorRole), p.Comments); err != nil {
		return nil, fmt.Errorf("insert stage history: %w", err)
	}

	if p.Rejection != nil {
		fields, _ := json.Marshal(p.Rejection.AffectedFields)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO application_rejections (id, application_id, reason, category, officer_id, officer_name,
				role, stage, affected_fields, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.NewString(), p.ApplicationID, p.Rejection.Reason, string(p.Rejection.Category), p.Rejection.OfficerID,
			p.Rejection.OfficerName, string(p.Rejection.Role), int(p.Rejection.Stage), fields, p.Rejection.RejectedAt); err != nil {
			return nil, fmt.Errorf("insert rejection: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return res, nil
}

// History returns the applied transitions, oldest first.
func (r *Repository) History(ctx context.Context, id string) ([]models.StageHistory, error) {
	items := []models.StageHistory{}
	err := r.db.SelectContext(ctx, &items, `
		SELECT id, application_id, from_stage, to_stage, action, actor_id, actor_role,
			COALESCE(comments, '') AS comments, created_at
		FROM application_stage_history WHERE application_id = $1 ORDER BY created_at ASC`, id)
	return items, err
}

// SetCertificatePath records the generated certificate file.
func (r *Repository) SetCertificatePath(ctx context.Context, id, path string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE applications SET certificate_path = $1, is_certificate_generated = TRUE, updated_at = NOW()
		WHERE id = $2`, path, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ForceStage sets the stage without any workflow checks. It exists for the
// non-production override tool only.
func (r *Repository) ForceStage(ctx context.Context, id string, to workflow.Stage, actorID, comments string) (workflow.Stage, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var from workflow.Stage
	if err := tx.GetContext(ctx, &from, `SELECT current_stage FROM applications WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE applications SET current_stage = $1, updated_at = NOW() WHERE id = $2`, int(to), id); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO application_stage_history (id, application_id, from_stage, to_stage, action, actor_id, actor_role, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), id, int(from), int(to), "override", actorID, "tool", comments); err != nil {
		return 0, err
	}
	return from, tx.Commit()
}
