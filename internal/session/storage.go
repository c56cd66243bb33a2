// internal/session/storage.go
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// StorageKey is the name the bearer token is persisted under.
const StorageKey = "token"

// TokenStorage persists the bearer token between process runs.
// Load returns "" and no error when nothing is stored.
type TokenStorage interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

type MemoryStorage struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *MemoryStorage) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStorage) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// FileStorage keeps the token in <dir>/token with 0600 permissions.
type FileStorage struct {
	path string
}

func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{path: filepath.Join(dir, StorageKey)}
}

func (f *FileStorage) Load(context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStorage) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	return os.WriteFile(f.path, []byte(token), 0o600)
}

func (f *FileStorage) Delete(context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// RedisStorage keeps the token under "<namespace>:token".
type RedisStorage struct {
	redis redis.UniversalClient
	key   string
}

func NewRedisStorage(rdb redis.UniversalClient, namespace string) *RedisStorage {
	return &RedisStorage{redis: rdb, key: namespace + ":" + StorageKey}
}

func (r *RedisStorage) Load(ctx context.Context) (string, error) {
	v, err := r.redis.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (r *RedisStorage) Save(ctx context.Context, token string) error {
	return r.redis.Set(ctx, r.key, token, 0).Err()
}

func (r *RedisStorage) Delete(ctx context.Context) error {
	return r.redis.Del(ctx, r.key).Err()
}
