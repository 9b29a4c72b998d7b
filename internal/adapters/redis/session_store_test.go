package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/ports"
	"github.com/target/cqrs-monitor/internal/testutil"
)

var (
	_ ports.SessionStore = (*SessionStore)(nil)
	_ ports.AdminFlag    = (*AdminFlag)(nil)
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newSession(id, uid string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:        id,
		UserID:    uid,
		Email:     uid + "@example.com",
		Role:      domainauth.RoleWriter,
		State:     domainauth.SessionResolved,
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	store := NewSessionStore(setupTestRedis(t))
	ctx := context.Background()

	session := newSession("test-session-1", "user-123", 30*time.Minute)
	require.NoError(t, store.Save(ctx, session))

	retrieved, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.ID, retrieved.ID)
	assert.Equal(t, session.UserID, retrieved.UserID)
	assert.Equal(t, session.Email, retrieved.Email)
	assert.Equal(t, session.Role, retrieved.Role)
	assert.Equal(t, domainauth.SessionResolved, retrieved.State)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	store := NewSessionStore(setupTestRedis(t))

	_, err := store.Get(context.Background(), "non-existent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("test-session-delete", "user-123", 30*time.Minute)))
	require.NoError(t, store.Delete(ctx, "test-session-delete"))

	_, err := store.Get(ctx, "test-session-delete")
	assert.ErrorIs(t, err, ErrNotFound)

	members, err := client.SMembers(ctx, "session:user:user-123").Result()
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.NoError(t, store.Delete(ctx, "test-session-delete"), "deleting twice is a no-op")
	assert.NoError(t, store.Delete(ctx, ""))
}

func TestSessionStore_SaveRejectsInvalid(t *testing.T) {
	store := NewSessionStore(setupTestRedis(t))
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, newSession("", "user-123", time.Minute)))
	assert.Error(t, store.Save(ctx, newSession("expired", "user-123", -time.Minute)))
}

func TestSessionStore_TTL(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("test-session-ttl", "user-123", 2*time.Second)))

	ttl, err := client.TTL(ctx, "session:test-session-ttl").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*time.Second)
}

func TestSessionStore_CustomPrefix(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "custom:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("test-session-prefix", "user-123", 30*time.Minute)))

	exists, err := client.Exists(ctx, "custom:test-session-prefix").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	exists, err = client.Exists(ctx, "session:test-session-prefix").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestSessionStore_MarkRefreshRequired(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("a1", "alice", 30*time.Minute)))
	require.NoError(t, store.Save(ctx, newSession("a2", "alice", 30*time.Minute)))
	require.NoError(t, store.Save(ctx, newSession("b1", "bob", 30*time.Minute)))

	ttlBefore, err := client.TTL(ctx, "session:a1").Result()
	require.NoError(t, err)

	n, err := store.MarkRefreshRequired(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"a1", "a2"} {
		sess, getErr := store.Get(ctx, id)
		require.NoError(t, getErr)
		assert.Equal(t, domainauth.SessionRefreshRequired, sess.State)
		assert.False(t, sess.Resolution().Resolved)
	}

	other, err := store.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.SessionResolved, other.State)

	ttlAfter, err := client.TTL(ctx, "session:a1").Result()
	require.NoError(t, err)
	assert.InDelta(t, ttlBefore.Seconds(), ttlAfter.Seconds(), 2, "expiry is preserved")

	n, err = store.MarkRefreshRequired(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n, "already marked sessions are not counted twice")
}

func TestSessionStore_MarkRefreshRequiredPrunesDeadIndexEntries(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("gone", "carol", 30*time.Minute)))
	require.NoError(t, client.Del(ctx, "session:gone").Err())

	n, err := store.MarkRefreshRequired(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, n)

	members, err := client.SMembers(ctx, "session:user:carol").Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAdminFlag(t *testing.T) {
	client := setupTestRedis(t)
	flag := NewAdminFlag(client, "")
	ctx := context.Background()

	set, err := flag.Get(ctx)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, flag.Set(ctx))
	require.NoError(t, flag.Set(ctx))

	set, err = flag.Get(ctx)
	require.NoError(t, err)
	assert.True(t, set)

	ttl, err := client.TTL(ctx, DefaultAdminFlagKey).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "flag never expires")
}
