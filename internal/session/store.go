// internal/session/store.go
package session

import (
	"context"
	"sync"
	"time"

	"pmc-registration/internal/authz"
	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"
	"pmc-registration/internal/workflow"
)

// State is a snapshot of the session.
type State struct {
	Initializing  bool
	Authenticated bool
	User          models.User
	Token         string
	ExpiresAt     time.Time
}

// Guard converts the state for the route guard.
func (s State) Guard() authz.SessionState {
	return authz.SessionState{
		Initializing:  s.Initializing,
		Authenticated: s.Authenticated,
		Role:          workflow.Role(s.User.Role),
	}
}

// Store is the explicit client-side session: one token, one user, and the
// listeners that want to hear when either changes.
type Store struct {
	mu        sync.RWMutex
	storage   TokenStorage
	logger    logger.Logger
	state     State
	listeners map[int]func(State)
	nextID    int
	now       func() time.Time
}

func NewStore(storage TokenStorage, log logger.Logger) *Store {
	return &Store{
		storage:   storage,
		logger:    log.WithFields(map[string]interface{}{"component": "session"}),
		state:     State{Initializing: true},
		listeners: map[int]func(State){},
		now:       time.Now,
	}
}

// Bootstrap restores the persisted token. Expired, undecodable or
// unknown-role tokens are cleared from storage.
func (s *Store) Bootstrap(ctx context.Context) error {
	raw, err := s.storage.Load(ctx)
	if err != nil {
		s.set(State{})
		return err
	}
	if raw == "" {
		s.set(State{})
		return nil
	}

	next, err := s.restore(raw)
	if err != nil {
		s.logger.Info("discarding stored token", map[string]interface{}{"reason": err.Error()})
		s.set(State{})
		return s.storage.Delete(ctx)
	}
	s.set(next)
	return nil
}

// Login adopts a token issued by the backend.
func (s *Store) Login(ctx context.Context, token string) (models.User, error) {
	next, err := s.restore(token)
	if err != nil {
		return models.User{}, err
	}
	if err := s.storage.Save(ctx, next.Token); err != nil {
		return models.User{}, err
	}
	s.set(next)
	return next.User, nil
}

// Logout clears storage and state.
func (s *Store) Logout(ctx context.Context) error {
	err := s.storage.Delete(ctx)
	s.set(State{})
	return err
}

func (s *Store) CurrentUser() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User, s.state.Authenticated
}

// IsAuthenticated also reports false once the token's expiry has passed.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Authenticated && s.now().Before(s.state.ExpiresAt)
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Token
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every state change and returns the function
// that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) restore(raw string) (State, error) {
	claims, err := Decode(raw, s.now())
	if err != nil {
		return State{}, err
	}
	user, err := claims.User()
	if err != nil {
		return State{}, err
	}
	token, _ := stripBearer(raw)
	return State{Authenticated: true, User: user, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Store) set(next State) {
	s.mu.Lock()
	s.state = next
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
