// internal/session/refresh.go
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshPrefix = "session:refresh:"

// DefaultRefreshTTL is how long a refresh token stays usable.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// RefreshStore keeps opaque refresh tokens in Redis. Only a SHA-256 hash of
// the token is used as the key, and a token is consumed by its first use.
type RefreshStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func NewRefreshStore(rdb redis.UniversalClient, ttl time.Duration) *RefreshStore {
	if ttl <= 0 {
		ttl = DefaultRefreshTTL
	}
	return &RefreshStore{redis: rdb, ttl: ttl}
}

func refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return refreshPrefix + hex.EncodeToString(sum[:])
}

// Issue mints a refresh token bound to id.
func (r *RefreshStore) Issue(ctx context.Context, id Identity) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	data, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	if err := r.redis.Set(ctx, refreshKey(token), data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return token, nil
}

// Consume returns the identity behind token and deletes it.
func (r *RefreshStore) Consume(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	data, err := r.redis.GetDel(ctx, refreshKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &id, nil
}

// Revoke drops token if it is still live.
func (r *RefreshStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return r.redis.Del(ctx, refreshKey(token)).Err()
}
