// internal/session/token.go

// Package session issues bearer tokens and keeps the client and server side
// view of who is logged in.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pmc-registration/internal/authz"
	"pmc-registration/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("MISSING_TOKEN")
	ErrInvalidToken = errors.New("INVALID_TOKEN")
	ErrTokenExpired = errors.New("TOKEN_EXPIRED")
	ErrInactive     = errors.New("SESSION_INACTIVE")
)

// Claims carries the backend role string exactly as the role table knows it.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity is who a token is issued for. Role is the external role string.
type Identity struct {
	ID    string
	Email string
	Role  string
	Name  string
}

// IssuedToken is a signed token and its bookkeeping.
type IssuedToken struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token for id.
func (i *TokenIssuer) Issue(id Identity) (*IssuedToken, error) {
	if id.ID == "" || id.Email == "" || id.Role == "" {
		return nil, errors.New("required inputs are missing to generate token")
	}
	if _, err := authz.MapRole(id.Role); err != nil {
		return nil, err
	}

	now := i.now()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: id.Email,
		Role:  id.Role,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("unable to sign the token: %w", err)
	}
	return &IssuedToken{Token: signed, ID: jti, ExpiresAt: exp}, nil
}

// Parse verifies signature and expiry. Both "Bearer <token>" and "<token>"
// are accepted.
func (i *TokenIssuer) Parse(raw string) (*Claims, error) {
	raw, err := stripBearer(raw)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Decode reads claims without verifying the signature. It is what a client
// that does not hold the secret can do; expiry is still checked.
func Decode(raw string, now time.Time) (*Claims, error) {
	raw, err := stripBearer(raw)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// User maps the claims onto the internal user; the role is re-resolved
// through the role table every time.
func (c *Claims) User() (models.User, error) {
	role, err := authz.MapRole(c.Role)
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: c.Subject, Email: c.Email, Role: string(role), Name: c.Name}, nil
}

func stripBearer(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingToken
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		raw = strings.TrimSpace(raw[len("bearer "):])
		if raw == "" {
			return "", fmt.Errorf("%w: invalid token format", ErrInvalidToken)
		}
	}
	return raw, nil
}
