// internal/models/payment.go
package models

import "time"

type PaymentStatus string

const (
	PaymentInitiated PaymentStatus = "INITIATED"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment is the registration fee challan for an application.
type Payment struct {
	ID            string        `json:"id" db:"id"`
	ApplicationID string        `json:"applicationId" db:"application_id"`
	Amount        float64       `json:"amount" db:"amount"`
	Currency      string        `json:"currency" db:"currency"`
	Status        PaymentStatus `json:"status" db:"status"`
	ChallanNumber string        `json:"challanNumber" db:"challan_number"`
	GatewayRef    *string       `json:"gatewayRef,omitempty" db:"gateway_ref"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	PaidAt        *time.Time    `json:"paidAt,omitempty" db:"paid_at"`
}
