// internal/payment/repository.go
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pmc-registration/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("PAYMENT_NOT_FOUND")

const counterChallan = "challan"

const paymentColumns = `id, application_id, amount, currency, status, challan_number, gateway_ref, created_at, paid_at`

// FormatChallanNumber renders the challan reference printed on the receipt.
func FormatChallanNumber(year, seq int) string {
	return fmt.Sprintf("PMC/CHALLAN/%d/%06d", year, seq)
}

type Repository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create stores a new INITIATED payment and assigns its id and challan number.
func (r *Repository) Create(ctx context.Context, p *models.Payment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().UTC()
	var seq int
	err = tx.GetContext(ctx, &seq, `
		INSERT INTO counters (name, year, last_value) VALUES ($1, $2, 1)
		ON CONFLICT (name, year) DO UPDATE SET last_value = counters.last_value + 1
		RETURNING last_value`, counterChallan, now.Year())
	if err != nil {
		return fmt.Errorf("next challan number: %w", err)
	}

	p.ID = uuid.NewString()
	p.ChallanNumber = FormatChallanNumber(now.Year(), seq)
	p.Status = models.PaymentInitiated
	p.CreatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, application_id, amount, currency, status, challan_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.ApplicationID, p.Amount, p.Currency, p.Status, p.ChallanNumber, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return tx.Commit()
}

// Latest returns the most recent payment for an application.
func (r *Repository) Latest(ctx context.Context, applicationID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments
		WHERE application_id = $1 ORDER BY created_at DESC LIMIT 1`, applicationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetByChallan(ctx context.Context, challan string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE challan_number = $1`, challan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkPaid moves an INITIATED payment to SUCCESS. It reports false when the
// payment had already left INITIATED.
func (r *Repository) MarkPaid(ctx context.Context, id, gatewayRef string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, gateway_ref = $2, paid_at = $3
		WHERE id = $4 AND status = $5`,
		models.PaymentSuccess, gatewayRef, r.now().UTC(), id, models.PaymentInitiated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) MarkFailed(ctx context.Context, id, gatewayRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, gateway_ref = $2
		WHERE id = $3 AND status = $4`,
		models.PaymentFailed, gatewayRef, id, models.PaymentInitiated)
	return err
}
