package auth

// Package auth contains simple hand-written test doubles for identity and
// session ports. These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider   = (*FakeIdentityProvider)(nil)
	_ ports.SessionStore       = (*MemorySessionStore)(nil)
	_ ports.AdminFlag          = (*MemoryAdminFlag)(nil)
	_ ports.AuditLog           = (*MemoryAuditLog)(nil)
	_ ports.RoleChangeNotifier = (*RecordingNotifier)(nil)
)

// ErrInvalidToken is returned by FakeIdentityProvider for unknown tokens.
var ErrInvalidToken = errors.New("invalid token")

// FakeIdentityProvider keeps accounts in memory. Tokens map to account UIDs;
// verification always reflects the account's current claims, which mirrors
// a freshly refreshed provider token.
type FakeIdentityProvider struct {
	mu       sync.Mutex
	accounts   map[string]domainauth.Account
	tokens     map[string]string
	unverified map[string]bool

	VerifyErr   error
	ListErr     error
	SetClaimErr error

	ListCalls     int
	SetClaimCalls int
}

// NewFakeIdentityProvider creates an empty provider.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		accounts:   make(map[string]domainauth.Account),
		tokens:     make(map[string]string),
		unverified: make(map[string]bool),
	}
}

// MarkUnverified makes tokens for uid report an unverified email.
func (p *FakeIdentityProvider) MarkUnverified(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unverified[uid] = true
}

// AddAccount registers an account and a bearer token that verifies as it.
func (p *FakeIdentityProvider) AddAccount(acc domainauth.Account, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[acc.UID] = acc
	if token != "" {
		p.tokens[token] = acc.UID
	}
}

// Account returns the stored account.
func (p *FakeIdentityProvider) Account(uid string) (domainauth.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[uid]
	return acc, ok
}

func (p *FakeIdentityProvider) VerifyToken(_ context.Context, token string) (domainauth.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.VerifyErr != nil {
		return domainauth.Identity{}, p.VerifyErr
	}
	uid, ok := p.tokens[token]
	if !ok {
		return domainauth.Identity{}, ErrInvalidToken
	}
	acc := p.accounts[uid]
	return domainauth.Identity{
		UID:           acc.UID,
		Email:         acc.Email,
		EmailVerified: !p.unverified[uid],
		Claims:        acc.CustomClaims.With("sub", acc.UID),
		ExpiresAt:     time.Now().Add(time.Hour),
	}, nil
}

func (p *FakeIdentityProvider) ListAccounts(_ context.Context, visit func(domainauth.Account) bool) error {
	p.mu.Lock()
	p.ListCalls++
	if p.ListErr != nil {
		p.mu.Unlock()
		return p.ListErr
	}
	uids := make([]string, 0, len(p.accounts))
	for uid := range p.accounts {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	accounts := make([]domainauth.Account, 0, len(uids))
	for _, uid := range uids {
		accounts = append(accounts, p.accounts[uid])
	}
	p.mu.Unlock()

	for _, acc := range accounts {
		if !visit(acc) {
			return nil
		}
	}
	return nil
}

func (p *FakeIdentityProvider) GetAccount(_ context.Context, uid string) (domainauth.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[uid]
	if !ok {
		return domainauth.Account{}, apperrors.Wrap(ErrNotFound, apperrors.ErrCodeNotFound, "account not found")
	}
	return acc, nil
}

func (p *FakeIdentityProvider) SetCustomClaims(_ context.Context, uid string, claims domainauth.Claims) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SetClaimCalls++
	if p.SetClaimErr != nil {
		return p.SetClaimErr
	}
	acc, ok := p.accounts[uid]
	if !ok {
		return ErrNotFound
	}
	acc.CustomClaims = claims
	p.accounts[uid] = acc
	return nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) MarkRefreshRequired(_ context.Context, uid string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, sess := range m.sessions {
		if sess.UserID != uid {
			continue
		}
		sess.State = domainauth.SessionRefreshRequired
		m.sessions[id] = sess
		n++
	}
	return n, nil
}

// MemoryAdminFlag is an in-memory admin-existence flag.
type MemoryAdminFlag struct {
	mu  sync.Mutex
	set bool
	Err error
}

func (f *MemoryAdminFlag) Get(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	return f.set, nil
}

func (f *MemoryAdminFlag) Set(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.set = true
	return nil
}

// MemoryAuditLog records role changes in memory, newest first.
type MemoryAuditLog struct {
	mu      sync.Mutex
	changes []domainauth.RoleChange
}

func (l *MemoryAuditLog) Record(_ context.Context, change domainauth.RoleChange) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append([]domainauth.RoleChange{change}, l.changes...)
	return nil
}

func (l *MemoryAuditLog) List(_ context.Context, limit int) ([]domainauth.RoleChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.changes) {
		limit = len(l.changes)
	}
	return slices.Clone(l.changes[:limit]), nil
}

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu      sync.Mutex
	Changes []domainauth.RoleChange
}

func (n *RecordingNotifier) NotifyRoleChange(_ context.Context, change domainauth.RoleChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Changes = append(n.Changes, change)
	return nil
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var ErrNotFound error = notFoundError{}
