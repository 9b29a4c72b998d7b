package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/ports"
)

const defaultSessionTTL = time.Hour

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider   ports.IdentityProvider
	Sessions   ports.SessionStore
	SessionTTL time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
	Now        func() time.Time
}

// AuthService owns role resolution and the server-side session lifecycle.
// It is the only writer of session state; handlers read the resolution it
// produces from the request context.
type AuthService struct {
	provider   ports.IdentityProvider
	sessions   ports.SessionStore
	sessionTTL time.Duration
	logger     *slog.Logger
	metrics    *metrics.Recorder
	now        func() time.Time
}

var errSessionExpired = errors.New("session expired")

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider:   opts.Provider,
		sessions:   opts.Sessions,
		sessionTTL: ttl,
		logger:     logger.With("component", "auth_service"),
		metrics:    opts.Metrics,
		now:        now,
	}
}

// ResolveToken verifies a bearer token and resolves its role. Any failure
// resolves to the anonymous viewer; the cause is logged and never surfaced.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (domainauth.Resolution, *domainauth.Identity) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.Anonymous(), nil
	}

	id, err := s.provider.VerifyToken(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "bearer token rejected, treating request as anonymous", "error", err)
		s.metrics.Session("resolve", apperrors.Unauthenticated("token rejected"))
		return domainauth.Anonymous(), nil
	}

	role := s.resolveRole(ctx, &id)
	s.metrics.Session("resolve", nil)
	return domainauth.Resolution{
		Resolved:      true,
		Authenticated: true,
		Role:          role,
		UserID:        id.UID,
		Email:         id.Email,
	}, &id
}

// resolveRole applies the role rules and fails open to viewer on a bad claim.
func (s *AuthService) resolveRole(ctx context.Context, id *domainauth.Identity) domainauth.Role {
	role, err := domainauth.ResolveRole(id)
	if err != nil {
		s.logger.WarnContext(ctx, "role claim unreadable, falling back to viewer",
			"user_id", id.UID,
			"error", err,
		)
	}
	return role
}

// SignIn verifies a provider token and persists a new session for it.
func (s *AuthService) SignIn(ctx context.Context, token string) (*domainauth.Session, error) {
	id, err := s.verify(ctx, token)
	if err != nil {
		s.metrics.Session("sign_in", err)
		return nil, err
	}

	now := s.now()
	session := domainauth.Session{
		ID:          generateSessionID(),
		UserID:      id.UID,
		Email:       id.Email,
		Role:        s.resolveRole(ctx, &id),
		State:       domainauth.SessionResolved,
		ExpiresAt:   s.expiry(now, id.ExpiresAt),
		RefreshedAt: now,
	}

	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		s.metrics.Session("sign_in", saveErr)
		return nil, fmt.Errorf("save session: %w", saveErr)
	}

	s.metrics.Session("sign_in", nil)
	s.logger.InfoContext(ctx, "session created", "user_id", session.UserID, "role", session.Role)
	return &session, nil
}

// Refresh re-reads the role from a freshly issued token and marks the
// session resolved again. The token must belong to the session's account.
func (s *AuthService) Refresh(ctx context.Context, sessionID, token string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, apperrors.Unauthenticated("no session to refresh")
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "session not found")
	}

	id, err := s.verify(ctx, token)
	if err != nil {
		s.metrics.Session("refresh", err)
		return nil, err
	}
	if id.UID != session.UserID {
		err = apperrors.Forbidden("token does not belong to this session")
		s.metrics.Session("refresh", err)
		return nil, err
	}

	now := s.now()
	previous := session.Role
	session.Role = s.resolveRole(ctx, &id)
	session.Email = id.Email
	session.State = domainauth.SessionResolved
	session.RefreshedAt = now
	session.ExpiresAt = s.expiry(now, id.ExpiresAt)

	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		s.metrics.Session("refresh", saveErr)
		return nil, fmt.Errorf("save session: %w", saveErr)
	}

	s.metrics.Session("refresh", nil)
	if previous != session.Role {
		s.logger.InfoContext(ctx, "session role changed on refresh",
			"user_id", session.UserID,
			"previous_role", previous,
			"role", session.Role,
		)
	}
	return &session, nil
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if s.now().After(session.ExpiresAt) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &session, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.metrics.Session("sign_out", err)
		return fmt.Errorf("delete session: %w", err)
	}
	s.metrics.Session("sign_out", nil)
	return nil
}

func (s *AuthService) verify(ctx context.Context, token string) (domainauth.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.Identity{}, apperrors.Unauthenticated("missing bearer token")
	}
	id, err := s.provider.VerifyToken(ctx, token)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "invalid bearer token")
	}
	return id, nil
}

// expiry caps the session at the configured TTL and at the token's own expiry.
func (s *AuthService) expiry(now, tokenExpiry time.Time) time.Time {
	limit := now.Add(s.sessionTTL)
	if !tokenExpiry.IsZero() && tokenExpiry.Before(limit) {
		return tokenExpiry
	}
	return limit
}

// generateSessionID creates a random, URL-safe session ID.
func generateSessionID() string {
	return uuid.New().String()
}
