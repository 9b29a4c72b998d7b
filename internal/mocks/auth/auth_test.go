package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
)

func TestFakeIdentityProvider_VerifyReflectsCurrentClaims(t *testing.T) {
	ctx := context.Background()
	p := NewFakeIdentityProvider()
	p.AddAccount(domainauth.Account{UID: "u1", Email: "a@example.com"}, "tok")

	id, err := p.VerifyToken(ctx, "tok")
	require.NoError(t, err)
	_, ok, _ := id.Claims.Role()
	assert.False(t, ok)

	require.NoError(t, p.SetCustomClaims(ctx, "u1", domainauth.Claims{"role": "admin"}))
	id, err = p.VerifyToken(ctx, "tok")
	require.NoError(t, err)
	role, ok, err := id.Claims.Role()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domainauth.RoleAdmin, role)

	_, err = p.VerifyToken(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFakeIdentityProvider_ListStopsEarly(t *testing.T) {
	p := NewFakeIdentityProvider()
	p.AddAccount(domainauth.Account{UID: "a"}, "")
	p.AddAccount(domainauth.Account{UID: "b"}, "")

	var seen []string
	err := p.ListAccounts(context.Background(), func(a domainauth.Account) bool {
		seen = append(seen, a.UID)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, seen)
}

func TestMemorySessionStore_MarkRefreshRequired(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()
	require.NoError(t, s.Save(ctx, domainauth.Session{ID: "s1", UserID: "u1", State: domainauth.SessionResolved}))
	require.NoError(t, s.Save(ctx, domainauth.Session{ID: "s2", UserID: "u2", State: domainauth.SessionResolved}))

	n, err := s.MarkRefreshRequired(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.SessionRefreshRequired, got.State)

	other, _ := s.Get(ctx, "s2")
	assert.Equal(t, domainauth.SessionResolved, other.State)
}

func TestMemorySessionStore_GetMissing(t *testing.T) {
	_, err := NewMemorySessionStore().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAuditLog_NewestFirst(t *testing.T) {
	ctx := context.Background()
	var l MemoryAuditLog
	require.NoError(t, l.Record(ctx, domainauth.RoleChange{ID: "1"}))
	require.NoError(t, l.Record(ctx, domainauth.RoleChange{ID: "2"}))

	got, err := l.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}
