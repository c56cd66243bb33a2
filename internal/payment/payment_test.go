// internal/payment/payment_test.go
package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"pmc-registration/internal/approval"
	"pmc-registration/internal/audit"
	"pmc-registration/internal/common/config"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// ==========================
// Repository Tests
// ==========================

func setupRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := NewRepository(sqlx.NewDb(db, "postgres"))
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func TestRepository_Create(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO counters`).
		WithArgs("challan", 2025).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs(sqlmock.AnyArg(), "app-1", 1500.0, "INR", models.PaymentInitiated, "PMC/CHALLAN/2025/000007", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := &models.Payment{ApplicationID: "app-1", Amount: 1500, Currency: "INR"}
	require.NoError(t, repo.Create(context.Background(), p))

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "PMC/CHALLAN/2025/000007", p.ChallanNumber)
	assert.Equal(t, models.PaymentInitiated, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Latest_NotFound(t *testing.T) {
	repo, mock := setupRepository(t)
	mock.ExpectQuery(`SELECT (.+) FROM payments`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Latest(context.Background(), "app-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_MarkPaid(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec(`UPDATE payments SET status`).
		WithArgs(models.PaymentSuccess, "TXN-1", fixedNow, "pay-1", models.PaymentInitiated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payments SET status`).
		WithArgs(models.PaymentSuccess, "TXN-1", fixedNow, "pay-1", models.PaymentInitiated).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := repo.MarkPaid(context.Background(), "pay-1", "TXN-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.MarkPaid(context.Background(), "pay-1", "TXN-1")
	require.NoError(t, err)
	assert.False(t, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Service Test Doubles
// ==========================

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	if args.Error(0) == nil {
		p.ID = "pay-new"
		p.ChallanNumber = FormatChallanNumber(2025, 1)
		p.Status = models.PaymentInitiated
	}
	return args.Error(0)
}

func (m *mockStore) Latest(ctx context.Context, applicationID string) (*models.Payment, error) {
	args := m.Called(ctx, applicationID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) GetByChallan(ctx context.Context, challan string) (*models.Payment, error) {
	args := m.Called(ctx, challan)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) MarkPaid(ctx context.Context, id, ref string) (bool, error) {
	args := m.Called(ctx, id, ref)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkFailed(ctx context.Context, id, ref string) error {
	return m.Called(ctx, id, ref).Error(0)
}

type stubApps map[string]*models.Application

func (s stubApps) Get(_ context.Context, user models.User, id string) (*models.Application, error) {
	app, ok := s[id]
	if !ok || (workflow.Role(user.Role) == workflow.RoleUser && app.ApplicantID != user.ID) {
		return nil, apperrors.NewResourceNotFoundError("application", id)
	}
	return app, nil
}

type mockSettler struct{ mock.Mock }

func (m *mockSettler) CompletePayment(ctx context.Context, applicationID, ref string) (*approval.ActionResult, error) {
	args := m.Called(ctx, applicationID, ref)
	r, _ := args.Get(0).(*approval.ActionResult)
	return r, args.Error(1)
}

type recordingAuditor struct{ entries []audit.Entry }

func (r *recordingAuditor) Record(_ context.Context, e audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

var applicant = models.User{ID: "user-1", Email: "asha@example.com", Role: string(workflow.RoleUser)}

func setupService(t *testing.T, stage workflow.Stage) (*Service, *mockStore, *mockSettler) {
	t.Helper()
	store := &mockStore{}
	settler := &mockSettler{}
	apps := stubApps{"app-1": {
		ID: "app-1", ApplicantID: "user-1", ApplicationNumber: "PMC_APPLICATION_2025_4",
		FirstName: "Asha", LastName: "Kulkarni", PositionType: workflow.Architect, CurrentStage: stage,
	}}
	cfg := config.PaymentConfig{FeeAmount: 1500, GatewayURL: "https://pay.example.com/checkout", MerchantID: "PMC01", ReturnURL: "https://portal.example.com/payment/return"}
	return NewService(store, apps, settler, &recordingAuditor{}, cfg, logger.NewTestLogger(t)), store, settler
}

// ==========================
// Initiate Tests
// ==========================

func TestInitiate_CreatesChallan(t *testing.T) {
	svc, store, _ := setupService(t, workflow.PaymentPending)
	store.On("Latest", mock.Anything, "app-1").Return(nil, ErrNotFound)
	store.On("Create", mock.Anything, mock.MatchedBy(func(p *models.Payment) bool {
		return p.Amount == 1500 && p.Currency == "INR"
	})).Return(nil)

	got, err := svc.Initiate(context.Background(), applicant, "app-1")
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example.com/checkout", got.GatewayURL)
	assert.Equal(t, "PMC/CHALLAN/2025/000001", got.Fields["orderId"])
	assert.Equal(t, "1500.00", got.Fields["amount"])
	assert.Equal(t, "PMC01", got.Fields["merchantId"])
	store.AssertExpectations(t)
}

func TestInitiate_ReusesOpenChallan(t *testing.T) {
	svc, store, _ := setupService(t, workflow.PaymentPending)
	open := &models.Payment{ID: "pay-1", ApplicationID: "app-1", Amount: 1500, Currency: "INR", Status: models.PaymentInitiated, ChallanNumber: "PMC/CHALLAN/2025/000003"}
	store.On("Latest", mock.Anything, "app-1").Return(open, nil)

	got, err := svc.Initiate(context.Background(), applicant, "app-1")
	require.NoError(t, err)
	assert.Same(t, open, got.Payment)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInitiate_Refusals(t *testing.T) {
	t.Run("not at payment stage", func(t *testing.T) {
		svc, _, _ := setupService(t, workflow.CityEngineerPending)
		_, err := svc.Initiate(context.Background(), applicant, "app-1")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotActionable))
	})
	t.Run("someone else's application", func(t *testing.T) {
		svc, _, _ := setupService(t, workflow.PaymentPending)
		other := models.User{ID: "user-2", Role: string(workflow.RoleUser)}
		_, err := svc.Initiate(context.Background(), other, "app-1")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}

// ==========================
// Callback Tests
// ==========================

func TestCallback_SuccessSettles(t *testing.T) {
	svc, store, settler := setupService(t, workflow.PaymentPending)
	p := &models.Payment{ID: "pay-1", ApplicationID: "app-1", Status: models.PaymentInitiated, ChallanNumber: "PMC/CHALLAN/2025/000003"}
	store.On("GetByChallan", mock.Anything, p.ChallanNumber).Return(p, nil)
	store.On("MarkPaid", mock.Anything, "pay-1", "TXN-9").Return(true, nil)
	settler.On("CompletePayment", mock.Anything, "app-1", p.ChallanNumber).
		Return(&approval.ActionResult{ApplicationID: "app-1", ToStage: workflow.ClerkPending}, nil)

	got, err := svc.Callback(context.Background(), CallbackRequest{ChallanNumber: p.ChallanNumber, Status: "success", GatewayRef: "TXN-9"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, got.Status)
	require.NotNil(t, got.GatewayRef)
	assert.Equal(t, "TXN-9", *got.GatewayRef)
	settler.AssertExpectations(t)

	audited := svc.auditor.(*recordingAuditor).entries
	require.Len(t, audited, 1)
	assert.Equal(t, audit.EventPaymentReceived, audited[0].EventType)
	assert.Equal(t, "app-1", audited[0].ResourceID)
}

func TestCallback_RepeatIsNoop(t *testing.T) {
	svc, store, settler := setupService(t, workflow.ClerkPending)
	ref := "TXN-9"
	p := &models.Payment{ID: "pay-1", ApplicationID: "app-1", Status: models.PaymentSuccess, ChallanNumber: "PMC/CHALLAN/2025/000003", GatewayRef: &ref}
	store.On("GetByChallan", mock.Anything, p.ChallanNumber).Return(p, nil)
	store.On("MarkPaid", mock.Anything, "pay-1", "TXN-9").Return(false, nil)
	settler.On("CompletePayment", mock.Anything, "app-1", p.ChallanNumber).
		Return(nil, apperrors.NewNotActionableError("already at clerk"))

	got, err := svc.Callback(context.Background(), CallbackRequest{ChallanNumber: p.ChallanNumber, Status: "SUCCESS", GatewayRef: "TXN-9"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, got.Status)
	assert.Empty(t, svc.auditor.(*recordingAuditor).entries)
}

func TestCallback_FailedPaymentDoesNotSettle(t *testing.T) {
	svc, store, settler := setupService(t, workflow.PaymentPending)
	p := &models.Payment{ID: "pay-1", ApplicationID: "app-1", Status: models.PaymentInitiated, ChallanNumber: "C-1"}
	store.On("GetByChallan", mock.Anything, "C-1").Return(p, nil)
	store.On("MarkFailed", mock.Anything, "pay-1", "TXN-X").Return(nil)

	got, err := svc.Callback(context.Background(), CallbackRequest{ChallanNumber: "C-1", Status: "FAILED", GatewayRef: "TXN-X"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, got.Status)
	settler.AssertNotCalled(t, "CompletePayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestCallback_SettlementErrorSurfaces(t *testing.T) {
	svc, store, settler := setupService(t, workflow.PaymentPending)
	p := &models.Payment{ID: "pay-1", ApplicationID: "app-1", Status: models.PaymentInitiated, ChallanNumber: "C-1"}
	store.On("GetByChallan", mock.Anything, "C-1").Return(p, nil)
	store.On("MarkPaid", mock.Anything, "pay-1", "T").Return(true, nil)
	settler.On("CompletePayment", mock.Anything, "app-1", "C-1").Return(nil, errors.New("db down"))

	_, err := svc.Callback(context.Background(), CallbackRequest{ChallanNumber: "C-1", Status: "SUCCESS", GatewayRef: "T"})
	assert.Error(t, err)
}

func TestCallback_UnknownChallan(t *testing.T) {
	svc, store, _ := setupService(t, workflow.PaymentPending)
	store.On("GetByChallan", mock.Anything, "nope").Return(nil, ErrNotFound)

	_, err := svc.Callback(context.Background(), CallbackRequest{ChallanNumber: "nope", Status: "SUCCESS"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

// ==========================
// Challan Tests
// ==========================

func TestChallan_RendersReceipt(t *testing.T) {
	svc, store, _ := setupService(t, workflow.ClerkPending)
	ref := "TXN-9"
	paid := fixedNow
	store.On("Latest", mock.Anything, "app-1").Return(&models.Payment{
		ID: "pay-1", ApplicationID: "app-1", Amount: 1500, Currency: "INR",
		Status: models.PaymentSuccess, ChallanNumber: "PMC/CHALLAN/2025/000003", GatewayRef: &ref, PaidAt: &paid,
	}, nil)

	body, err := svc.Challan(context.Background(), applicant, "app-1")
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "PMC/CHALLAN/2025/000003")
	assert.Contains(t, text, "PMC_APPLICATION_2025_4")
	assert.Contains(t, text, "Asha Kulkarni")
	assert.Contains(t, text, "INR 1500.00")
	assert.Contains(t, text, "TXN-9")
}

func TestStatus_NoPayment(t *testing.T) {
	svc, store, _ := setupService(t, workflow.PaymentPending)
	store.On("Latest", mock.Anything, "app-1").Return(nil, ErrNotFound)

	_, err := svc.Status(context.Background(), applicant, "app-1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}
