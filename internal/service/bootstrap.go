package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/ports"
)

// BootstrapServiceOptions groups dependencies for BootstrapService.
type BootstrapServiceOptions struct {
	Provider ports.IdentityProvider
	// Flag caches a positive admin-existence result. Optional.
	Flag     ports.AdminFlag
	Sessions ports.SessionStore
	Changes  *RoleChangeRecorder

	// Production enables the initial admin email check.
	Production        bool
	InitialAdminEmail string

	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

// BootstrapService grants the admin role to the first account that claims
// it while no admin exists.
//
// The existence check and the claim update are two separate provider calls
// with no compare-and-set between them. Two concurrent first claims can
// both succeed; this window is accepted and not guarded.
type BootstrapService struct {
	provider          ports.IdentityProvider
	flag              ports.AdminFlag
	sessions          ports.SessionStore
	changes           *RoleChangeRecorder
	production        bool
	initialAdminEmail string
	logger            *slog.Logger
	metrics           *metrics.Recorder
	now               func() time.Time
}

// NewBootstrapService constructs a BootstrapService.
func NewBootstrapService(opts BootstrapServiceOptions) *BootstrapService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &BootstrapService{
		provider:          opts.Provider,
		flag:              opts.Flag,
		sessions:          opts.Sessions,
		changes:           opts.Changes,
		production:        opts.Production,
		initialAdminEmail: strings.TrimSpace(opts.InitialAdminEmail),
		logger:            logger.With("component", "bootstrap_service"),
		metrics:           opts.Metrics,
		now:               now,
	}
}

// BootstrapResult reports a successful first-admin claim. The caller must
// refresh its token before the new role takes effect.
type BootstrapResult struct {
	UID                  string
	Email                string
	Role                 domainauth.Role
	RequiresTokenRefresh bool
}

// AdminExists reports whether any account holds the admin role. A cached
// positive answer is trusted since the flag never goes back to false.
func (s *BootstrapService) AdminExists(ctx context.Context) (bool, error) {
	if s.flag != nil {
		cached, err := s.flag.Get(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "admin flag cache unavailable, scanning accounts", "error", err)
		} else if cached {
			return true, nil
		}
	}

	found := false
	err := s.provider.ListAccounts(ctx, func(acc domainauth.Account) bool {
		if acc.HasRole(domainauth.RoleAdmin) {
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list accounts")
	}

	if found {
		s.rememberAdmin(ctx)
	}
	return found, nil
}

// ClaimFirstAdmin grants admin to the bearer of token if no admin exists yet.
// Checks run in this order: token, production configuration, existing
// admin, production email.
func (s *BootstrapService) ClaimFirstAdmin(ctx context.Context, token string) (*BootstrapResult, error) {
	res, err := s.claim(ctx, token)
	s.metrics.Bootstrap(err)
	if err != nil {
		s.logger.WarnContext(ctx, "first admin claim rejected", "reason", apperrors.GetCode(err), "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "first admin granted", "user_id", res.UID, "email", res.Email)
	return res, nil
}

func (s *BootstrapService) claim(ctx context.Context, token string) (*BootstrapResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.Unauthenticated("missing bearer token")
	}
	id, err := s.provider.VerifyToken(ctx, token)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "invalid bearer token")
	}

	if s.production && s.initialAdminEmail == "" {
		return nil, apperrors.Misconfigured("initial admin email is not configured")
	}

	exists, err := s.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.AdminExists()
	}

	if s.production && !s.authorizedInitialAdmin(id) {
		return nil, apperrors.NotAuthorizedEmail()
	}

	account, err := s.provider.GetAccount(ctx, id.UID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load account")
	}
	previous, _, _ := account.CustomClaims.Role()

	claims := account.CustomClaims.With(domainauth.ClaimRole, string(domainauth.RoleAdmin))
	if err := s.provider.SetCustomClaims(ctx, id.UID, claims); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to set admin role")
	}

	s.rememberAdmin(ctx)
	if s.sessions != nil {
		if _, err := s.sessions.MarkRefreshRequired(ctx, id.UID); err != nil {
			s.logger.WarnContext(ctx, "failed to flag sessions for refresh", "user_id", id.UID, "error", err)
		}
	}

	s.changes.Record(ctx, domainauth.RoleChange{
		ID:           uuid.NewString(),
		Kind:         domainauth.ChangeBootstrap,
		ActorUID:     id.UID,
		ActorEmail:   id.Email,
		TargetUID:    id.UID,
		TargetEmail:  id.Email,
		PreviousRole: previous,
		NewRole:      domainauth.RoleAdmin,
		At:           s.now(),
	})

	return &BootstrapResult{
		UID:                  id.UID,
		Email:                id.Email,
		Role:                 domainauth.RoleAdmin,
		RequiresTokenRefresh: true,
	}, nil
}

// authorizedInitialAdmin requires a verified email matching the configured
// initial admin.
func (s *BootstrapService) authorizedInitialAdmin(id domainauth.Identity) bool {
	return id.EmailVerified && strings.EqualFold(strings.TrimSpace(id.Email), s.initialAdminEmail)
}

func (s *BootstrapService) rememberAdmin(ctx context.Context) {
	if s.flag == nil {
		return
	}
	if err := s.flag.Set(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to cache admin flag", "error", err)
	}
}
