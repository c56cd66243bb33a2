// internal/session/session_test.go
package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pmc-registration/internal/common/logger"
	"pmc-registration/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func issuerAt(now time.Time, ttl time.Duration) *TokenIssuer {
	i := NewTokenIssuer(testSecret, "pmc-test", ttl)
	i.now = func() time.Time { return now }
	return i
}

func issue(t *testing.T, i *TokenIssuer, role string) *IssuedToken {
	t.Helper()
	tok, err := i.Issue(Identity{ID: "u-1", Email: "officer@pmc.gov.in", Role: role, Name: "Officer One"})
	require.NoError(t, err)
	return tok
}

// ==========================
// Token Tests
// ==========================

func TestTokenIssuer_RoundTrip(t *testing.T) {
	i := NewTokenIssuer(testSecret, "pmc-test", time.Hour)
	tok := issue(t, i, "JuniorEngineer")

	claims, err := i.Parse("Bearer " + tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "JuniorEngineer", claims.Role)
	assert.Equal(t, tok.ID, claims.ID)

	user, err := claims.User()
	require.NoError(t, err)
	assert.Equal(t, "juniorarchitect", user.Role)
	assert.Equal(t, "Officer One", user.Name)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	past := issuerAt(time.Now().Add(-2*time.Hour), time.Hour)
	expired := issue(t, past, "Clerk")

	i := NewTokenIssuer(testSecret, "pmc-test", time.Hour)
	other := NewTokenIssuer("a-different-secret-also-long-enough", "pmc-test", time.Hour)
	forged := issue(t, other, "Clerk")

	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"empty", "", ErrMissingToken},
		{"bearer only", "Bearer ", ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong secret", forged.Token, ErrInvalidToken},
		{"expired", expired.Token, ErrTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i.Parse(tt.raw)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenIssuer_UnknownRole(t *testing.T) {
	i := NewTokenIssuer(testSecret, "pmc-test", time.Hour)
	_, err := i.Issue(Identity{ID: "u", Email: "e@x", Role: "Janitor"})
	assert.Error(t, err)
}

// ==========================
// Store Tests
// ==========================

func TestStore_BootstrapExpiredTokenClearsStorage(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	expired := issue(t, issuerAt(time.Now().Add(-9*time.Hour), 8*time.Hour), "User")
	require.NoError(t, storage.Save(ctx, expired.Token))

	store := NewStore(storage, logger.NewTestLogger(t))
	assert.True(t, store.State().Initializing)

	require.NoError(t, store.Bootstrap(ctx))

	assert.False(t, store.IsAuthenticated())
	assert.False(t, store.State().Initializing)
	stored, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestStore_BootstrapValidToken(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	tok := issue(t, NewTokenIssuer(testSecret, "pmc-test", time.Hour), "AssistantEngineer")
	require.NoError(t, storage.Save(ctx, tok.Token))

	store := NewStore(storage, logger.NewTestLogger(t))
	require.NoError(t, store.Bootstrap(ctx))

	user, ok := store.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "assistantarchitect", user.Role)
	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, "/assistantarchitect/dashboard", "/"+string(store.State().Guard().Role)+"/dashboard")
}

func TestStore_BootstrapEmptyStorage(t *testing.T) {
	store := NewStore(NewMemoryStorage(), logger.NewTestLogger(t))
	require.NoError(t, store.Bootstrap(context.Background()))
	assert.False(t, store.IsAuthenticated())
	assert.False(t, store.State().Initializing)
}

func TestStore_LoginLogoutNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	store := NewStore(storage, logger.NewTestLogger(t))
	require.NoError(t, store.Bootstrap(ctx))

	var states []State
	unsubscribe := store.Subscribe(func(s State) { states = append(states, s) })

	tok := issue(t, NewTokenIssuer(testSecret, "pmc-test", time.Hour), "Clerk")
	user, err := store.Login(ctx, "Bearer "+tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "clerk", user.Role)

	stored, _ := storage.Load(ctx)
	assert.Equal(t, tok.Token, stored)

	require.NoError(t, store.Logout(ctx))
	assert.False(t, store.IsAuthenticated())

	unsubscribe()
	_, err = store.Login(ctx, tok.Token)
	require.NoError(t, err)

	require.Len(t, states, 2)
	assert.True(t, states[0].Authenticated)
	assert.False(t, states[1].Authenticated)
}

func TestStore_LoginRejectsExpired(t *testing.T) {
	store := NewStore(NewMemoryStorage(), logger.NewTestLogger(t))
	expired := issue(t, issuerAt(time.Now().Add(-3*time.Hour), time.Hour), "User")
	_, err := store.Login(context.Background(), expired.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, store.IsAuthenticated())
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStorage(t.TempDir())

	v, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, fs.Save(ctx, "abc"))
	v, err = fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, fs.Delete(ctx))
	require.NoError(t, fs.Delete(ctx))
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rs := NewRedisStorage(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "portal")

	require.NoError(t, rs.Save(ctx, "abc"))
	got, err := mr.Get("portal:token")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	require.NoError(t, rs.Delete(ctx))
	v, err := rs.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, v)
}

// ==========================
// Inactivity Tests
// ==========================

func TestInactivityTimer_FiresAfterIdle(t *testing.T) {
	var fired atomic.Int32
	timer := NewInactivityTimer(40*time.Millisecond, func() { fired.Add(1) })
	timer.Start()

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestInactivityTimer_TouchPostpones(t *testing.T) {
	var fired atomic.Int32
	timer := NewInactivityTimer(80*time.Millisecond, func() { fired.Add(1) })
	timer.Start()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		timer.Touch()
	}
	assert.Equal(t, int32(0), fired.Load())

	timer.Stop()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestGuard_LogsOutStoreWhenIdle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), logger.NewTestLogger(t))
	require.NoError(t, store.Bootstrap(ctx))

	_, stop := Guard(store, 30*time.Millisecond, func() { _ = store.Logout(ctx) })
	defer stop()

	tok := issue(t, NewTokenIssuer(testSecret, "pmc-test", time.Hour), "User")
	_, err := store.Login(ctx, tok.Token)
	require.NoError(t, err)
	require.True(t, store.IsAuthenticated())

	assert.Eventually(t, func() bool { return !store.IsAuthenticated() }, time.Second, 5*time.Millisecond)
}

// ==========================
// Activity Tracker Tests
// ==========================

func TestActivityTracker(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tracker := NewActivityTracker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 30*time.Minute)

	sess := models.Session{ID: "jti-1", UserID: "u-1", Role: "clerk", ExpiresAt: time.Now().Add(8 * time.Hour)}
	require.NoError(t, tracker.Begin(ctx, sess))

	got, err := tracker.Touch(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)

	mr.FastForward(31 * time.Minute)
	_, err = tracker.Touch(ctx, "jti-1")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestActivityTracker_Revoke(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	tracker := NewActivityTracker(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)

	require.NoError(t, tracker.Begin(ctx, models.Session{ID: "jti-2", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, tracker.Revoke(ctx, "jti-2"))
	_, err := tracker.Get(ctx, "jti-2")
	assert.ErrorIs(t, err, ErrInactive)
}

// ==========================
// Refresh Token Tests
// ==========================

func TestRefreshStore_SingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRefreshStore(rdb, time.Hour)
	ctx := context.Background()

	id := Identity{ID: "u-1", Email: "citizen@example.com", Role: "User"}
	token, err := store.Issue(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, time.Hour, mr.TTL(refreshKey(token)))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, token)
	}

	got, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshStore_Revoke(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRefreshStore(rdb, time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, Identity{ID: "u-1", Email: "a@b.c", Role: "User"})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, token))

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = store.Consume(ctx, "")
	assert.ErrorIs(t, err, ErrMissingToken)
}
