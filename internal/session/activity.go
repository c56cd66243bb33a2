// internal/session/activity.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pmc-registration/internal/models"

	"github.com/redis/go-redis/v9"
)

const activityPrefix = "session:activity:"

// ActivityTracker is the server-side inactivity check. Each token id has a
// last-seen record whose TTL is the inactivity timeout; a missing record
// means the session went idle or was logged out.
type ActivityTracker struct {
	redis   redis.UniversalClient
	timeout time.Duration
	now     func() time.Time
}

func NewActivityTracker(rdb redis.UniversalClient, timeout time.Duration) *ActivityTracker {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &ActivityTracker{redis: rdb, timeout: timeout, now: time.Now}
}

// Begin records a fresh login.
func (a *ActivityTracker) Begin(ctx context.Context, s models.Session) error {
	s.LastActivity = a.now().UTC()
	return a.write(ctx, s)
}

// Touch refreshes the last-seen record. It returns ErrInactive when the
// record is gone.
func (a *ActivityTracker) Touch(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := a.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.IsExpired() {
		_ = a.Revoke(ctx, sessionID)
		return nil, ErrTokenExpired
	}
	s.LastActivity = a.now().UTC()
	if err := a.write(ctx, *s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *ActivityTracker) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	data, err := a.redis.Get(ctx, activityPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInactive
	}
	if err != nil {
		return nil, fmt.Errorf("load session activity: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session activity: %w", err)
	}
	return &s, nil
}

// Revoke ends the session immediately.
func (a *ActivityTracker) Revoke(ctx context.Context, sessionID string) error {
	return a.redis.Del(ctx, activityPrefix+sessionID).Err()
}

func (a *ActivityTracker) write(ctx context.Context, s models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := a.timeout
	if left := s.ExpiresAt.Sub(a.now()); left > 0 && left < ttl {
		ttl = left
	}
	return a.redis.Set(ctx, activityPrefix+s.ID, data, ttl).Err()
}
