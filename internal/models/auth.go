// internal/models/auth.go
package models

import "time"

// User is the authenticated actor carried in a session token. Role holds the
// internal lowercase role identifier.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
}

// Applicant is a citizen account, created on first OTP login.
type Applicant struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name,omitempty" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Officer is a staff account that logs in with a password.
type Officer struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Role         string    `json:"role" db:"role"` // external role string, e.g. JuniorStructuralEngineer
	Mobile       string    `json:"mobile,omitempty" db:"mobile"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// AuthResponse is returned by both login flows.
type AuthResponse struct {
	Success      bool   `json:"success"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Name         string `json:"name,omitempty"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// EmailMessage represents an email to be sent
type EmailMessage struct {
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
	HTMLBody string   `json:"htmlBody,omitempty"`
	From     string   `json:"from"`
	ReplyTo  string   `json:"replyTo,omitempty"`
}
