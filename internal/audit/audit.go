// internal/audit/audit.go

// Package audit appends rows to the audit_log table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	EventStageTransition = "stage_transition"
	EventStageOverride   = "stage_override"
	EventOfficerLogin    = "officer_login"
	EventApplicantLogin  = "applicant_login"
	EventPaymentReceived = "payment_received"

	ResourceApplication = "application"
	ResourceOfficer     = "officer"
	ResourceApplicant   = "applicant"
)

// Entry is one audit record.
type Entry struct {
	EventType    string
	ResourceType string
	ResourceID   string
	Details      map[string]interface{}
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts the entry. Callers treat failures as non-fatal.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details)
		VALUES ($1, $2, $3, $4)`,
		e.EventType, e.ResourceType, e.ResourceID, details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
