// internal/otp/service_test.go
package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"pmc-registration/internal/common/config"
	"pmc-registration/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupService(t *testing.T, cfg Config) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(cfg, client, logger.NewTestLogger(t)), mr
}

// ==========================
// Generate Tests
// ==========================

func TestGenerate_IssuesSixDigitCode(t *testing.T) {
	svc, mr := setupService(t, DefaultConfig())
	scope := ActionScope("app-1", "off-1")

	ch, err := svc.Generate(context.Background(), scope)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), ch.Code)
	assert.Equal(t, scope, ch.Scope)
	assert.Equal(t, 5*time.Minute, ch.ExpiresAt.Sub(ch.IssuedAt))
	assert.Equal(t, 30*time.Second, ch.ResendAvailableAt.Sub(ch.IssuedAt))

	// only the hash is stored
	stored := mr.HGet(challengeKey(scope), "hash")
	assert.NotEmpty(t, stored)
	assert.NotContains(t, stored, ch.Code)
	assert.Equal(t, 5*time.Minute, mr.TTL(challengeKey(scope)))
}

func TestGenerate_CooldownRefusesResend(t *testing.T) {
	svc, mr := setupService(t, DefaultConfig())
	scope := LoginScope("citizen@example.com")

	_, err := svc.Generate(context.Background(), scope)
	require.NoError(t, err)

	mr.FastForward(10 * time.Second)
	_, err = svc.Generate(context.Background(), scope)
	require.ErrorIs(t, err, ErrCooldown)

	var cd *CooldownError
	require.True(t, errors.As(err, &cd))
	assert.Equal(t, 20*time.Second, cd.RetryAfter)

	mr.FastForward(21 * time.Second)
	_, err = svc.Generate(context.Background(), scope)
	assert.NoError(t, err)
}

func TestGenerate_RegenerateInvalidatesPrevious(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = 0
	svc, _ := setupService(t, cfg)
	ctx := context.Background()
	scope := ActionScope("app-1", "off-1")

	first, err := svc.Generate(ctx, scope)
	require.NoError(t, err)
	second, err := svc.Generate(ctx, scope)
	require.NoError(t, err)

	if first.Code != second.Code {
		assert.ErrorIs(t, svc.Verify(ctx, scope, first.Code), ErrInvalidCode)
	}
	assert.NoError(t, svc.Verify(ctx, scope, second.Code))
}

func TestGenerate_EmptyScope(t *testing.T) {
	svc, _ := setupService(t, DefaultConfig())
	_, err := svc.Generate(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyScope)
}

func TestLoginScope_NormalizesEmail(t *testing.T) {
	assert.Equal(t, LoginScope("a@b.com"), LoginScope("  A@B.com "))
	assert.NotEqual(t, ActionScope("app-1", "off-1"), ActionScope("app-1", "off-2"))
}

// ==========================
// Verify Tests
// ==========================

func TestVerify_AcceptedExactlyOnce(t *testing.T) {
	svc, _ := setupService(t, DefaultConfig())
	ctx := context.Background()
	scope := ActionScope("app-1", "off-1")

	ch, err := svc.Generate(ctx, scope)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(ctx, scope, ch.Code))
	assert.ErrorIs(t, svc.Verify(ctx, scope, ch.Code), ErrExpired)
}

func TestVerify_ScopedToOfficer(t *testing.T) {
	svc, _ := setupService(t, DefaultConfig())
	ctx := context.Background()

	ch, err := svc.Generate(ctx, ActionScope("app-1", "off-1"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Verify(ctx, ActionScope("app-1", "off-2"), ch.Code), ErrExpired)
	assert.NoError(t, svc.Verify(ctx, ActionScope("app-1", "off-1"), ch.Code))
}

func TestVerify_Expired(t *testing.T) {
	svc, mr := setupService(t, DefaultConfig())
	ctx := context.Background()
	scope := ActionScope("app-1", "off-1")

	ch, err := svc.Generate(ctx, scope)
	require.NoError(t, err)

	mr.FastForward(5*time.Minute + time.Second)
	assert.ErrorIs(t, svc.Verify(ctx, scope, ch.Code), ErrExpired)
}

func TestVerify_WrongCodeThenBurned(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 3
	svc, _ := setupService(t, cfg)
	ctx := context.Background()
	scope := ActionScope("app-1", "off-1")

	ch, err := svc.Generate(ctx, scope)
	require.NoError(t, err)
	wrong := "000000"
	if ch.Code == wrong {
		wrong = "111111"
	}

	assert.ErrorIs(t, svc.Verify(ctx, scope, wrong), ErrInvalidCode)
	assert.ErrorIs(t, svc.Verify(ctx, scope, wrong), ErrInvalidCode)
	err = svc.Verify(ctx, scope, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.ErrorIs(t, err, ErrAttemptsExceeded)

	assert.ErrorIs(t, svc.Verify(ctx, scope, ch.Code), ErrExpired)
}

func TestVerify_EmptyCode(t *testing.T) {
	svc, _ := setupService(t, DefaultConfig())
	assert.ErrorIs(t, svc.Verify(context.Background(), ActionScope("a", "o"), "  "), ErrInvalidCode)
}

func TestInvalidate(t *testing.T) {
	svc, _ := setupService(t, DefaultConfig())
	ctx := context.Background()
	scope := LoginScope("x@y.z")

	ch, err := svc.Generate(ctx, scope)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx, scope))
	assert.ErrorIs(t, svc.Verify(ctx, scope, ch.Code), ErrExpired)
}

func TestInvalidate_ClearsCooldown(t *testing.T) {
	svc, mr := setupService(t, DefaultConfig())
	ctx := context.Background()
	scope := ActionScope("app-1", "off-1")

	_, err := svc.Generate(ctx, scope)
	require.NoError(t, err)
	require.True(t, mr.Exists(cooldownKey(scope)))

	require.NoError(t, svc.Invalidate(ctx, scope))
	assert.Empty(t, mr.Keys())

	_, err = svc.Generate(ctx, scope)
	assert.NoError(t, err)
}

// ==========================
// Error Path Tests
// ==========================

func TestGenerate_StoreError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	svc := NewService(DefaultConfig(), client, logger.NewTestLogger(t))
	scope := ActionScope("app-1", "off-1")

	mock.ExpectSetNX(cooldownKey(scope), 1, 30*time.Second).SetErr(errors.New("connection refused"))

	_, err := svc.Generate(context.Background(), scope)
	assert.ErrorIs(t, err, ErrStore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// failingPipelines lets single commands through and fails every pipeline.
type failingPipelines struct{}

func (failingPipelines) DialHook(next redis.DialHook) redis.DialHook { return next }

func (failingPipelines) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (failingPipelines) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(context.Context, []redis.Cmder) error {
		return errors.New("connection reset")
	}
}

func TestGenerate_StoreWriteFailureReleasesCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	client.AddHook(failingPipelines{})
	svc := NewService(DefaultConfig(), client, logger.NewTestLogger(t))
	scope := LoginScope("citizen@example.com")

	_, err := svc.Generate(context.Background(), scope)
	require.ErrorIs(t, err, ErrStore)

	assert.False(t, mr.Exists(cooldownKey(scope)))
	assert.False(t, mr.Exists(challengeKey(scope)))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.OTPConfig{Length: 8, TTL: 60000, ResendCooldown: 15000, MaxAttempts: 4})
	assert.Equal(t, 8, cfg.Length)
	assert.Equal(t, time.Minute, cfg.TTL)
	assert.Equal(t, 15*time.Second, cfg.Cooldown)
	assert.Equal(t, 4, cfg.MaxAttempts)
}
