package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/ports"
)

// RoleServiceOptions groups dependencies for RoleService.
type RoleServiceOptions struct {
	Provider ports.IdentityProvider
	Sessions ports.SessionStore
	Flag     ports.AdminFlag
	Changes  *RoleChangeRecorder
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	Now      func() time.Time
}

// RoleService lets admins assign roles and inspect accounts.
type RoleService struct {
	provider ports.IdentityProvider
	sessions ports.SessionStore
	flag     ports.AdminFlag
	changes  *RoleChangeRecorder
	validate *validator.Validate
	logger   *slog.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(opts RoleServiceOptions) *RoleService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RoleService{
		provider: opts.Provider,
		sessions: opts.Sessions,
		flag:     opts.Flag,
		changes:  opts.Changes,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "role_service"),
		metrics:  opts.Metrics,
		now:      now,
	}
}

// SetRoleInput names the target account and its new role.
type SetRoleInput struct {
	UID  string `json:"uid"  validate:"required,max=128"`
	Role string `json:"role" validate:"required,oneof=viewer writer admin"`
}

// SetRoleResult reports a committed role change.
type SetRoleResult struct {
	UID                  string
	Email                string
	Role                 domainauth.Role
	PreviousRole         domainauth.Role
	RequiresTokenRefresh bool
}

// SetRole assigns a role to the target account. The caller's bearer token
// must carry the admin role. Other custom claims on the target are kept.
func (s *RoleService) SetRole(ctx context.Context, callerToken string, in SetRoleInput) (*SetRoleResult, error) {
	res, err := s.setRole(ctx, callerToken, in)
	s.metrics.RoleChange(roleLabel(in.Role), err)
	if err != nil {
		s.logger.WarnContext(ctx, "set role rejected", "target_uid", in.UID, "reason", apperrors.GetCode(err), "error", err)
		return nil, err
	}
	return res, nil
}

// AssignRole applies a role change on behalf of a trusted operator, such as
// the admin CLI. No bearer token is checked; actor is recorded in the audit log.
func (s *RoleService) AssignRole(ctx context.Context, actor domainauth.Identity, in SetRoleInput) (*SetRoleResult, error) {
	res, err := s.assign(ctx, actor, in)
	s.metrics.RoleChange(roleLabel(in.Role), err)
	if err != nil {
		s.logger.WarnContext(ctx, "role assignment rejected", "actor_uid", actor.UID, "target_uid", in.UID, "reason", apperrors.GetCode(err), "error", err)
		return nil, err
	}
	return res, nil
}

// AuthorizeAdmin verifies the caller's bearer token and requires the admin
// role. Callers run it before reading the request body so a non-admin is
// refused as forbidden whatever it sent.
func (s *RoleService) AuthorizeAdmin(ctx context.Context, callerToken string) (domainauth.Identity, error) {
	id, err := s.authorizeToken(ctx, callerToken)
	if err != nil {
		s.metrics.RoleChange("invalid", err)
		s.logger.WarnContext(ctx, "set role rejected", "reason", apperrors.GetCode(err), "error", err)
		return domainauth.Identity{}, err
	}
	return id, nil
}

func roleLabel(raw string) string {
	if r, err := domainauth.ParseRole(raw); err == nil {
		return string(r)
	}
	return "invalid"
}

func (s *RoleService) setRole(ctx context.Context, callerToken string, in SetRoleInput) (*SetRoleResult, error) {
	caller, err := s.authorizeToken(ctx, callerToken)
	if err != nil {
		return nil, err
	}
	return s.assign(ctx, caller, in)
}

func (s *RoleService) assign(ctx context.Context, caller domainauth.Identity, in SetRoleInput) (*SetRoleResult, error) {
	in.UID = strings.TrimSpace(in.UID)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	role, err := domainauth.ParseRole(in.Role)
	if err != nil {
		return nil, apperrors.ValidationField("role", err.Error())
	}

	target, err := s.provider.GetAccount(ctx, in.UID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load account")
	}
	previous, _, _ := target.CustomClaims.Role()

	claims := target.CustomClaims.With(domainauth.ClaimRole, string(role))
	if err := s.provider.SetCustomClaims(ctx, target.UID, claims); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to set role")
	}

	if s.sessions != nil {
		if _, err := s.sessions.MarkRefreshRequired(ctx, target.UID); err != nil {
			s.logger.WarnContext(ctx, "failed to flag sessions for refresh", "user_id", target.UID, "error", err)
		}
	}
	if role == domainauth.RoleAdmin && s.flag != nil {
		if err := s.flag.Set(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to cache admin flag", "error", err)
		}
	}

	s.changes.Record(ctx, domainauth.RoleChange{
		ID:           uuid.NewString(),
		Kind:         domainauth.ChangeSetRole,
		ActorUID:     caller.UID,
		ActorEmail:   caller.Email,
		TargetUID:    target.UID,
		TargetEmail:  target.Email,
		PreviousRole: previous,
		NewRole:      role,
		At:           s.now(),
	})

	return &SetRoleResult{
		UID:                  target.UID,
		Email:                target.Email,
		Role:                 role,
		PreviousRole:         previous,
		RequiresTokenRefresh: true,
	}, nil
}

// AccountSummary is an account as shown on the admin page.
type AccountSummary struct {
	UID      string          `json:"uid"`
	Email    string          `json:"email"`
	Disabled bool            `json:"disabled"`
	Role     domainauth.Role `json:"role"`
	// Explicit is false when the account has no role claim and resolves to
	// the default.
	Explicit bool `json:"explicit"`
}

// ListAccounts returns every account with its effective role, sorted by email.
func (s *RoleService) ListAccounts(ctx context.Context, caller domainauth.Resolution) ([]AccountSummary, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	var out []AccountSummary
	err := s.provider.ListAccounts(ctx, func(acc domainauth.Account) bool {
		role, explicit, claimErr := acc.CustomClaims.Role()
		switch {
		case claimErr != nil:
			role = domainauth.RoleViewer
		case !explicit:
			role = domainauth.RoleWriter
		}
		out = append(out, AccountSummary{
			UID:      acc.UID,
			Email:    acc.Email,
			Disabled: acc.Disabled,
			Role:     role,
			Explicit: explicit && claimErr == nil,
		})
		return true
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list accounts")
	}

	slices.SortFunc(out, func(a, b AccountSummary) int {
		return strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email))
	})
	return out, nil
}

// History returns recent role changes for the admin page.
func (s *RoleService) History(ctx context.Context, caller domainauth.Resolution, limit int) ([]domainauth.RoleChange, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	changes, err := s.changes.History(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load role history")
	}
	return changes, nil
}

func (s *RoleService) authorizeToken(ctx context.Context, token string) (domainauth.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.Identity{}, apperrors.Unauthenticated("missing bearer token")
	}
	id, err := s.provider.VerifyToken(ctx, token)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeUnauthenticated, "invalid bearer token")
	}
	role, err := domainauth.ResolveRole(&id)
	if err != nil {
		s.logger.WarnContext(ctx, "caller role claim unreadable", "user_id", id.UID, "error", err)
	}
	if role != domainauth.RoleAdmin {
		return domainauth.Identity{}, apperrors.Forbidden("only admins can change roles")
	}
	return id, nil
}

func requireAdmin(caller domainauth.Resolution) error {
	if !caller.Resolved || !caller.Authenticated {
		return apperrors.Unauthenticated("sign in required")
	}
	if caller.Role != domainauth.RoleAdmin {
		return apperrors.Forbidden("admin role required")
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return apperrors.ValidationField(field, field+" is required")
		case "oneof":
			return apperrors.ValidationField(field, field+" must be one of: "+fe.Param())
		default:
			return apperrors.ValidationField(field, field+" is invalid")
		}
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
}
