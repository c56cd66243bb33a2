// internal/officer/repository.go

// Package officer holds staff and applicant accounts and password login.
package officer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pmc-registration/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrNotFound  = errors.New("ACCOUNT_NOT_FOUND")
	ErrDuplicate = errors.New("ACCOUNT_EXISTS")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const officerColumns = `id, email, name, role, COALESCE(mobile, '') AS mobile, password_hash, active, created_at`

func (r *Repository) GetOfficer(ctx context.Context, id string) (*models.Officer, error) {
	var o models.Officer
	err := r.db.GetContext(ctx, &o, `SELECT `+officerColumns+` FROM officers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) GetOfficerByEmail(ctx context.Context, email string) (*models.Officer, error) {
	var o models.Officer
	err := r.db.GetContext(ctx, &o, `SELECT `+officerColumns+` FROM officers WHERE email = $1`, normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOfficer inserts o and fills in its ID and CreatedAt.
func (r *Repository) CreateOfficer(ctx context.Context, o *models.Officer) error {
	o.ID = uuid.NewString()
	o.Email = normalizeEmail(o.Email)
	o.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO officers (id, email, name, role, mobile, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		o.ID, o.Email, o.Name, o.Role, o.Mobile, o.PasswordHash, o.Active, o.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, o.Email)
	}
	return err
}

// UpsertApplicant returns the applicant account for email, creating it on
// first login.
func (r *Repository) UpsertApplicant(ctx context.Context, email string) (*models.Applicant, error) {
	var a models.Applicant
	err := r.db.GetContext(ctx, &a, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, COALESCE(name, '') AS name, created_at`,
		uuid.NewString(), normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
