// internal/application/repository_test.go
package application

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRepository(sqlx.NewDb(db, "postgres"))
	repo.now = func() time.Time { return time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) }
	return repo, mock
}

func sampleApplication() *models.Application {
	return &models.Application{
		ApplicantID:      "5f1e0a6e-8d2c-4f7a-9a51-0f0e8f6a1b11",
		FirstName:        "Asha",
		LastName:         "Kulkarni",
		Email:            "asha@example.com",
		Mobile:           "9876543210",
		PositionType:     workflow.Architect,
		PermanentAddress: models.Address{Line1: "12 FC Road", City: "Pune", State: "MH", Pincode: "411004"},
		CurrentAddress:   models.Address{Line1: "12 FC Road", City: "Pune", State: "MH", Pincode: "411004"},
		Documents: []models.Document{
			{DocumentType: models.DocumentPhoto, FileName: "photo.jpg"},
			{DocumentType: models.DocumentAadhar, FileName: "aadhar.pdf"},
		},
	}
}

// ==========================
// Create Tests
// ==========================

func TestRepository_Create(t *testing.T) {
	repo, mock := setupRepository(t)
	app := sampleApplication()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO counters`).
		WithArgs(counterApplication, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(87))
	mock.ExpectExec(`INSERT INTO applications`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), app))

	assert.Equal(t, "PMC_APPLICATION_2025_87", app.ApplicationNumber)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, workflow.JuniorEngineerPending, app.CurrentStage)
	assert.Equal(t, 1, app.Documents[1].SortOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Create_RollsBackOnFailure(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO counters`).WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO applications`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleApplication())
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Transition Tests
// ==========================

func TestRepository_Transition_Applies(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE applications`).
		WithArgs(int(workflow.AssistantEngineerPending), nil, nil, nil, "app-1", int(workflow.DocumentVerificationPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_stage_history`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID: "app-1",
		From:          workflow.DocumentVerificationPending,
		To:            workflow.AssistantEngineerPending,
		Action:        workflow.ActionApprove,
		ActorID:       "off-1",
		ActorRole:     workflow.RoleJuniorArchitect,
	})
	require.NoError(t, err)
	assert.Empty(t, res.CertificateNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Transition_StageConflict(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE applications`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID: "app-1", From: workflow.CityEngineerPending, To: workflow.PaymentPending,
		Action: workflow.ActionSign, ActorID: "off-9", ActorRole: workflow.RoleCityEngineer,
	})
	assert.ErrorIs(t, err, ErrStageConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Transition_NotFound(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE applications`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), TransitionParams{ApplicationID: "missing", From: 0, To: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Transition_IssuesCertificateNumber(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT position_type FROM applications`).WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"position_type"}).AddRow("StructuralEngineer"))
	mock.ExpectQuery(`INSERT INTO counters`).WithArgs(counterCertificate, 2025).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(12))
	mock.ExpectExec(`UPDATE applications`).
		WithArgs(int(workflow.ExecutiveEngineerSignPending), nil, "PMC/STR/2025/00012", nil, "app-1", int(workflow.ClerkPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_stage_history`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID: "app-1", From: workflow.ClerkPending, To: workflow.ExecutiveEngineerSignPending,
		Action: workflow.ActionGenerateCertificate, ActorID: "clerk-1", ActorRole: workflow.RoleClerk,
		IssueCertificate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "PMC/STR/2025/00012", res.CertificateNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Transition_StoresRejection(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE applications`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_stage_history`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO application_rejections`).
		WithArgs(sqlmock.AnyArg(), "app-1", "Missing documents", "DOCUMENTS", "off-1", "A. Patil",
			"juniorarchitect", 1, []byte(`["documents"]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID: "app-1", From: workflow.DocumentVerificationPending, To: workflow.Rejected,
		Action: workflow.ActionReject, ActorID: "off-1", ActorRole: workflow.RoleJuniorArchitect,
		Rejection: &workflow.Rejection{
			Reason: "Missing documents", Category: workflow.CategoryDocuments, OfficerID: "off-1",
			OfficerName: "A. Patil", Role: workflow.RoleJuniorArchitect, Stage: workflow.DocumentVerificationPending,
			AffectedFields: []string{"documents"}, RejectedAt: time.Now(),
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Query Tests
// ==========================

func TestRepository_ListPending(t *testing.T) {
	repo, mock := setupRepository(t)
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE current_stage = ANY\(\$1\) AND position_type = ANY\(\$2\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_number", "first_name", "last_name", "email", "position_type", "current_stage", "created_at"}).
			AddRow("app-1", "PMC_APPLICATION_2025_1", "Asha", "K", "a@x.in", "Architect", 2, created))

	items, err := repo.ListPending(context.Background(),
		[]workflow.Stage{workflow.AssistantEngineerPending}, []workflow.PositionType{workflow.Architect})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, workflow.AssistantEngineerPending, items[0].CurrentStage)
	assert.Equal(t, "AssistantEngineerPending", items[0].Status)
}

func TestRepository_ListPending_NothingToAsk(t *testing.T) {
	repo, mock := setupRepository(t)
	items, err := repo.ListPending(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Get_NotFound(t *testing.T) {
	repo, mock := setupRepository(t)
	mock.ExpectQuery(`FROM applications WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_SetCertificatePath(t *testing.T) {
	repo, mock := setupRepository(t)
	mock.ExpectExec(`UPDATE applications SET certificate_path`).
		WithArgs("certificates/app-1.pdf", "app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetCertificatePath(context.Background(), "app-1", "certificates/app-1.pdf"))
}

func TestFormatNumbers(t *testing.T) {
	assert.Equal(t, "PMC_APPLICATION_2025_87", FormatApplicationNumber(2025, 87))
	assert.Equal(t, "PMC/SUP2/2026/00003", FormatCertificateNumber(workflow.Supervisor2, 2026, 3))
}
