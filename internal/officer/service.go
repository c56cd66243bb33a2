// internal/officer/service.go
package officer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pmc-registration/internal/authz"
	apperrors "pmc-registration/internal/common/errors"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// Store is the account persistence the service needs.
type Store interface {
	GetOfficer(ctx context.Context, id string) (*models.Officer, error)
	GetOfficerByEmail(ctx context.Context, email string) (*models.Officer, error)
	CreateOfficer(ctx context.Context, o *models.Officer) error
}

type Service struct {
	store  Store
	logger logger.Logger
	cost   int

	dummyOnce sync.Once
	dummy     []byte
}

func NewService(store Store, log logger.Logger) *Service {
	return &Service{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "officer"}),
		cost:   bcrypt.DefaultCost,
	}
}

// Authenticate checks an officer's password. Every failure, whether unknown
// email, wrong password or inactive account, is the same generic error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Officer, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperrors.NewInvalidCredentialsError()
	}
	o, err := s.store.GetOfficerByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// unknown emails take as long as wrong passwords
		_ = bcrypt.CompareHashAndPassword(s.dummyHash(), []byte(password))
		return nil, apperrors.NewInvalidCredentialsError()
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_officer", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("officer login rejected", map[string]interface{}{"officerId": o.ID})
		return nil, apperrors.NewInvalidCredentialsError()
	}
	if !o.Active {
		s.logger.Warn("inactive officer login", map[string]interface{}{"officerId": o.ID})
		return nil, apperrors.NewInvalidCredentialsError()
	}
	return o, nil
}

func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	return s.dummy
}

// Get returns an officer by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Officer, error) {
	o, err := s.store.GetOfficer(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.NewResourceNotFoundError("officer", id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_officer", err)
	}
	return o, nil
}

// CreateRequest seeds a staff account. Role is the external role string.
type CreateRequest struct {
	Email    string
	Name     string
	Role     string
	Mobile   string
	Password string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Officer, error) {
	role, err := authz.MapRole(req.Role)
	if err != nil || !role.IsOfficer() {
		return nil, fmt.Errorf("%q is not an officer role", req.Role)
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	o := &models.Officer{
		Email:        req.Email,
		Name:         req.Name,
		Role:         req.Role,
		Mobile:       req.Mobile,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.store.CreateOfficer(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("officer created", map[string]interface{}{"officerId": o.ID, "role": o.Role})
	return o, nil
}
