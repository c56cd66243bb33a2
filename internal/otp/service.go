// internal/otp/service.go

// Package otp issues and verifies single-use numeric codes held in Redis.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCooldown         = errors.New("OTP_RESEND_COOLDOWN")
	ErrExpired          = errors.New("OTP_EXPIRED")
	ErrInvalidCode      = errors.New("OTP_INVALID")
	ErrAttemptsExceeded = errors.New("OTP_ATTEMPTS_EXCEEDED")
	ErrEmptyScope       = errors.New("OTP_SCOPE_REQUIRED")
	ErrStore            = errors.New("OTP_STORE_FAILED")
)

const keyPrefix = "otp:"

// verifyScript compares the stored hash and deletes the challenge on
// success, so a code is accepted at most once. Wrong guesses increment the
// attempt counter; reaching the limit burns the challenge.
//
// returns 1 ok, 0 mismatch, -1 no challenge, -2 mismatch and burned
var verifyScript = redis.NewScript(`
local h = redis.call('HGET', KEYS[1], 'hash')
if not h then
  return -1
end
if h == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if n >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return -2
end
return 0
`)

type Config struct {
	Length      int
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// ConfigFrom converts the millisecond based settings.
func ConfigFrom(c config.OTPConfig) Config {
	return Config{
		Length:      c.Length,
		TTL:         config.GetDuration(c.TTL),
		Cooldown:    config.GetDuration(c.ResendCooldown),
		MaxAttempts: c.MaxAttempts,
	}
}

func DefaultConfig() Config {
	return Config{Length: 6, TTL: 5 * time.Minute, Cooldown: 30 * time.Second, MaxAttempts: 5}
}

// Scope identifies what a challenge authorizes.
type Scope string

// ActionScope binds a challenge to one application and one officer.
func ActionScope(applicationID, officerID string) Scope {
	return Scope("action:" + applicationID + ":" + officerID)
}

// LoginScope binds a challenge to an email login.
func LoginScope(email string) Scope {
	return Scope("login:" + strings.ToLower(strings.TrimSpace(email)))
}

// Challenge is returned to the caller once; only the hash is kept.
type Challenge struct {
	Scope             Scope
	Code              string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
}

// CooldownError carries how long the caller must wait.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrCooldown, e.RetryAfter)
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

type Service struct {
	config Config
	redis  redis.UniversalClient
	logger logger.Logger
	now    func() time.Time
}

func NewService(cfg Config, rdb redis.UniversalClient, log logger.Logger) *Service {
	if cfg.Length <= 0 {
		cfg.Length = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Service{
		config: cfg,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"component": "otp"}),
		now:    time.Now,
	}
}

func challengeKey(scope Scope) string { return keyPrefix + string(scope) }
func cooldownKey(scope Scope) string  { return keyPrefix + "cooldown:" + string(scope) }

// Generate issues a new code for scope, replacing any live one.
func (s *Service) Generate(ctx context.Context, scope Scope) (*Challenge, error) {
	if scope == "" {
		return nil, ErrEmptyScope
	}

	if s.config.Cooldown > 0 {
		ok, err := s.redis.SetNX(ctx, cooldownKey(scope), 1, s.config.Cooldown).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if !ok {
			wait, err := s.redis.PTTL(ctx, cooldownKey(scope)).Result()
			if err != nil || wait < 0 {
				wait = s.config.Cooldown
			}
			return nil, &CooldownError{RetryAfter: wait}
		}
	}

	code, err := s.newCode()
	if err != nil {
		s.releaseCooldown(ctx, scope)
		return nil, err
	}

	now := s.now().UTC()
	key := challengeKey(scope)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", hashCode(scope, code), "attempts", 0, "issued_at", now.Unix())
		pipe.Expire(ctx, key, s.config.TTL)
		return nil
	})
	if err != nil {
		s.releaseCooldown(ctx, scope)
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.logger.Debug("otp issued", map[string]interface{}{"scope": string(scope)})

	return &Challenge{
		Scope:             scope,
		Code:              code,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.config.TTL),
		ResendAvailableAt: now.Add(s.config.Cooldown),
	}, nil
}

// Verify consumes the challenge when code matches.
func (s *Service) Verify(ctx context.Context, scope Scope, code string) error {
	code = strings.TrimSpace(code)
	if scope == "" {
		return ErrEmptyScope
	}
	if code == "" {
		return ErrInvalidCode
	}

	res, err := verifyScript.Run(ctx, s.redis, []string{challengeKey(scope)}, hashCode(scope, code), s.config.MaxAttempts).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	switch res {
	case 1:
		s.logger.Debug("otp verified", map[string]interface{}{"scope": string(scope)})
		return nil
	case -1:
		return ErrExpired
	case -2:
		s.logger.Warn("otp attempts exhausted", map[string]interface{}{"scope": string(scope)})
		return fmt.Errorf("%w: %w", ErrInvalidCode, ErrAttemptsExceeded)
	default:
		return ErrInvalidCode
	}
}

// Invalidate drops any live challenge for scope together with its resend
// cooldown. Callers use it when a code was never delivered, so a new one can
// be requested straight away.
func (s *Service) Invalidate(ctx context.Context, scope Scope) error {
	if err := s.redis.Del(ctx, challengeKey(scope), cooldownKey(scope)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (s *Service) releaseCooldown(ctx context.Context, scope Scope) {
	if s.config.Cooldown <= 0 {
		return
	}
	if err := s.redis.Del(ctx, cooldownKey(scope)).Err(); err != nil {
		s.logger.Warn("failed to release otp cooldown", map[string]interface{}{"scope": string(scope), "error": err.Error()})
	}
}

func (s *Service) newCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.config.Length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", s.config.Length, n), nil
}

func hashCode(scope Scope, code string) string {
	sum := sha256.Sum256([]byte(string(scope) + "|" + code))
	return hex.EncodeToString(sum[:])
}
