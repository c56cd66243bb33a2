// internal/draft/draft.go

// Package draft keeps an applicant's unfinished application form. File
// contents never survive a save: file objects are reduced to their name.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pmc-registration/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound = errors.New("DRAFT_NOT_FOUND")
	ErrInvalid  = errors.New("DRAFT_INVALID")
	ErrTooLarge = errors.New("DRAFT_TOO_LARGE")
)

const (
	keyPrefix  = "pmc_application_draft:"
	defaultTTL = 30 * 24 * time.Hour
	// MaxSize bounds a stripped draft.
	MaxSize = 256 << 10
)

// fileKeys mark an object as a serialized file attachment.
var fileKeys = []string{"content", "data", "base64", "blob", "lastModified", "size"}

// Strip replaces every file-like object in a JSON document with {"name": n}.
// An object is file-like when it has a string "name" (or "fileName") and at
// least one of the payload keys.
func Strip(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, ok := doc.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("%w: draft must be a JSON object", ErrInvalid)
	}
	return json.Marshal(strip(doc))
}

func strip(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if name, ok := fileName(t); ok {
			return map[string]interface{}{"name": name}
		}
		for k, child := range t {
			t[k] = strip(child)
		}
		return t
	case []interface{}:
		for i, child := range t {
			t[i] = strip(child)
		}
		return t
	default:
		return v
	}
}

func fileName(obj map[string]interface{}) (string, bool) {
	name, ok := obj["name"].(string)
	if !ok {
		if name, ok = obj["fileName"].(string); !ok {
			return "", false
		}
	}
	for _, k := range fileKeys {
		if _, has := obj[k]; has {
			return name, true
		}
	}
	return "", false
}

// Store persists one draft per applicant in Redis.
type Store struct {
	redis  redis.UniversalClient
	ttl    time.Duration
	logger logger.Logger
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration, log logger.Logger) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{redis: rdb, ttl: ttl, logger: log.WithFields(map[string]interface{}{"component": "draft"})}
}

func key(applicantID string) string { return keyPrefix + applicantID }

// Save strips and stores the draft, replacing any earlier one. It returns
// the stored form.
func (s *Store) Save(ctx context.Context, applicantID string, raw []byte) ([]byte, error) {
	stripped, err := Strip(raw)
	if err != nil {
		return nil, err
	}
	if len(stripped) > MaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(stripped))
	}
	if err := s.redis.Set(ctx, key(applicantID), stripped, s.ttl).Err(); err != nil {
		return nil, err
	}
	s.logger.Debug("draft saved", map[string]interface{}{"applicantId": applicantID, "bytes": len(stripped)})
	return stripped, nil
}

func (s *Store) Load(ctx context.Context, applicantID string) ([]byte, error) {
	b, err := s.redis.Get(ctx, key(applicantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Store) Delete(ctx context.Context, applicantID string) error {
	return s.redis.Del(ctx, key(applicantID)).Err()
}
