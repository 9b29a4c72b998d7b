package ports

// Package ports defines interfaces (hexagonal ports) for identity, session
// and upstream behaviour. Implementations live in internal/adapters;
// orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
)

// IdentityProvider verifies bearer tokens and manages account custom claims.
type IdentityProvider interface {
	// VerifyToken validates a provider-issued ID token and returns the identity it carries.
	VerifyToken(ctx context.Context, token string) (domainauth.Identity, error)

	// ListAccounts walks every account, calling visit for each one. Returning
	// false from visit stops the walk early.
	ListAccounts(ctx context.Context, visit func(domainauth.Account) bool) error

	// GetAccount fetches a single account by UID.
	GetAccount(ctx context.Context, uid string) (domainauth.Account, error)

	// SetCustomClaims replaces the account's custom claims.
	SetCustomClaims(ctx context.Context, uid string, claims domainauth.Claims) error
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
	// MarkRefreshRequired flags every live session of uid as stale and
	// returns how many were updated.
	MarkRefreshRequired(ctx context.Context, uid string) (int, error)
}

// AdminFlag caches the admin-existence flag. It only ever moves from false to true.
type AdminFlag interface {
	Get(ctx context.Context) (bool, error)
	Set(ctx context.Context) error
}

// AuditLog records role changes.
type AuditLog interface {
	Record(ctx context.Context, change domainauth.RoleChange) error
	List(ctx context.Context, limit int) ([]domainauth.RoleChange, error)
}

// RoleChangeNotifier fans role changes out to humans.
type RoleChangeNotifier interface {
	NotifyRoleChange(ctx context.Context, change domainauth.RoleChange) error
}
