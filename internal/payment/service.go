// internal/payment/service.go

// Package payment handles the registration fee: challan creation, the
// gateway callback that settles it, and the challan receipt.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pmc-registration/internal/approval"
	"pmc-registration/internal/audit"
	"pmc-registration/internal/common/config"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"
)

type Store interface {
	Create(ctx context.Context, p *models.Payment) error
	Latest(ctx context.Context, applicationID string) (*models.Payment, error)
	GetByChallan(ctx context.Context, challan string) (*models.Payment, error)
	MarkPaid(ctx context.Context, id, gatewayRef string) (bool, error)
	MarkFailed(ctx context.Context, id, gatewayRef string) error
}

// Applications resolves an application the user is allowed to see.
type Applications interface {
	Get(ctx context.Context, user models.User, id string) (*models.Application, error)
}

// Settler advances a paid application.
type Settler interface {
	CompletePayment(ctx context.Context, applicationID, paymentRef string) (*approval.ActionResult, error)
}

// Auditor records settled payments.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Service struct {
	store   Store
	apps    Applications
	settler Settler
	auditor Auditor
	config  config.PaymentConfig
	logger  logger.Logger
}

func NewService(store Store, apps Applications, settler Settler, auditor Auditor, cfg config.PaymentConfig, log logger.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		store:   store,
		apps:    apps,
		settler: settler,
		auditor: auditor,
		config:  cfg,
		logger:  log.WithFields(map[string]interface{}{"component": "payment"}),
	}
}

// Initiation carries what the portal posts to the gateway.
type Initiation struct {
	Payment    *models.Payment   `json:"payment"`
	GatewayURL string            `json:"gatewayUrl"`
	Fields     map[string]string `json:"fields"`
}

// Initiate opens a challan for an application waiting on payment. A still
// open challan is reused.
func (s *Service) Initiate(ctx context.Context, user models.User, applicationID string) (*Initiation, error) {
	app, err := s.apps.Get(ctx, user, applicationID)
	if err != nil {
		return nil, err
	}
	if app.CurrentStage != workflow.PaymentPending {
		return nil, apperrors.NewNotActionableError(fmt.Sprintf("application %s is at %s", app.ApplicationNumber, app.CurrentStage))
	}

	p, err := s.store.Latest(ctx, app.ID)
	switch {
	case err == nil && p.Status == models.PaymentInitiated:
	case err == nil || errors.Is(err, ErrNotFound):
		p = &models.Payment{ApplicationID: app.ID, Amount: s.config.FeeAmount, Currency: s.config.Currency}
		if err := s.store.Create(ctx, p); err != nil {
			return nil, apperrors.NewDatabaseInsertFailedError(err)
		}
		s.logger.Info("payment initiated", map[string]interface{}{"applicationId": app.ID, "challan": p.ChallanNumber})
	default:
		return nil, apperrors.NewQueryExecutionFailedError("latest_payment", err)
	}

	return &Initiation{
		Payment:    p,
		GatewayURL: s.config.GatewayURL,
		Fields: map[string]string{
			"merchantId":  s.config.MerchantID,
			"orderId":     p.ChallanNumber,
			"amount":      fmt.Sprintf("%.2f", p.Amount),
			"currency":    p.Currency,
			"returnUrl":   s.config.ReturnURL,
			"referenceNo": app.ApplicationNumber,
		},
	}, nil
}

// CallbackRequest is the gateway's result notification.
type CallbackRequest struct {
	ChallanNumber string `json:"orderId"`
	Status        string `json:"status"`
	GatewayRef    string `json:"transactionId"`
}

// Callback records the gateway result. A successful payment settles the
// application; repeated callbacks for a settled payment are no-ops.
func (s *Service) Callback(ctx context.Context, req CallbackRequest) (*models.Payment, error) {
	if strings.TrimSpace(req.ChallanNumber) == "" {
		return nil, apperrors.NewValidationError("orderId is required",
			apperrors.FieldError{Field: "orderId", Code: "REQUIRED_FIELD_MISSING", Message: "orderId is required"})
	}
	p, err := s.store.GetByChallan(ctx, req.ChallanNumber)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NewResourceNotFoundError("payment", req.ChallanNumber)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_payment", err)
	}

	log := s.logger.WithFields(map[string]interface{}{"applicationId": p.ApplicationID, "challan": p.ChallanNumber})

	if !strings.EqualFold(req.Status, string(models.PaymentSuccess)) {
		if err := s.store.MarkFailed(ctx, p.ID, req.GatewayRef); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("mark_payment_failed", err)
		}
		log.Warn("payment failed at gateway", map[string]interface{}{"status": req.Status})
		if p.Status == models.PaymentInitiated {
			p.Status = models.PaymentFailed
		}
		return p, nil
	}

	first, err := s.store.MarkPaid(ctx, p.ID, req.GatewayRef)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("mark_payment_paid", err)
	}
	if !first && p.Status != models.PaymentSuccess {
		return nil, apperrors.NewStageConflictError("payment " + p.ChallanNumber + " is " + string(p.Status))
	}
	p.Status = models.PaymentSuccess
	if p.GatewayRef == nil {
		ref := req.GatewayRef
		p.GatewayRef = &ref
	}
	if first {
		err := s.auditor.Record(ctx, audit.Entry{
			EventType:    audit.EventPaymentReceived,
			ResourceType: audit.ResourceApplication,
			ResourceID:   p.ApplicationID,
			Details: map[string]interface{}{
				"challanNumber": p.ChallanNumber,
				"amount":        p.Amount,
				"gatewayRef":    req.GatewayRef,
			},
		})
		if err != nil {
			log.Warn("failed to audit payment", map[string]interface{}{"error": err.Error()})
		}
	}

	if _, err := s.settler.CompletePayment(ctx, p.ApplicationID, p.ChallanNumber); err != nil {
		if !first && (apperrors.HasCode(err, apperrors.ErrCodeNotActionable) || apperrors.HasCode(err, apperrors.ErrCodeStageConflict)) {
			log.Debug("payment already settled", nil)
			return p, nil
		}
		return nil, err
	}
	log.Info("payment settled", nil)
	return p, nil
}

// Status returns the latest challan for an application the user may see.
func (s *Service) Status(ctx context.Context, user models.User, applicationID string) (*models.Payment, error) {
	app, err := s.apps.Get(ctx, user, applicationID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Latest(ctx, app.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NewResourceNotFoundError("payment", applicationID)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("latest_payment", err)
	}
	return p, nil
}

// Challan renders the receipt for the latest payment as plain text.
func (s *Service) Challan(ctx context.Context, user models.User, applicationID string) ([]byte, error) {
	app, err := s.apps.Get(ctx, user, applicationID)
	if err != nil {
		return nil, err
	}
	p, err := s.Status(ctx, user, app.ID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PUNE MUNICIPAL CORPORATION\n")
	fmt.Fprintf(&b, "Registration Fee Challan\n\n")
	fmt.Fprintf(&b, "Challan No    : %s\n", p.ChallanNumber)
	fmt.Fprintf(&b, "Application No: %s\n", app.ApplicationNumber)
	fmt.Fprintf(&b, "Applicant     : %s\n", app.FullName())
	fmt.Fprintf(&b, "Position      : %s\n", app.PositionType)
	fmt.Fprintf(&b, "Amount        : %s %.2f\n", p.Currency, p.Amount)
	fmt.Fprintf(&b, "Status        : %s\n", p.Status)
	if p.GatewayRef != nil {
		fmt.Fprintf(&b, "Transaction   : %s\n", *p.GatewayRef)
	}
	if p.PaidAt != nil {
		fmt.Fprintf(&b, "Paid On       : %s\n", p.PaidAt.Format("02 Jan 2006 15:04 MST"))
	}
	return []byte(b.String()), nil
}
