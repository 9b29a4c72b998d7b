package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/service"
)

// BootstrapService defines the first-admin operations.
type BootstrapService interface {
	AdminExists(ctx context.Context) (bool, error)
	ClaimFirstAdmin(ctx context.Context, token string) (*service.BootstrapResult, error)
}

// RoleService defines the admin role-management operations.
type RoleService interface {
	AuthorizeAdmin(ctx context.Context, callerToken string) (domainauth.Identity, error)
	AssignRole(ctx context.Context, actor domainauth.Identity, in service.SetRoleInput) (*service.SetRoleResult, error)
	ListAccounts(ctx context.Context, caller domainauth.Resolution) ([]service.AccountSummary, error)
	History(ctx context.Context, caller domainauth.Resolution, limit int) ([]domainauth.RoleChange, error)
}

// EnvReport describes the running configuration without exposing secrets.
type EnvReport struct {
	Environment         string   `json:"environment"`
	IsProduction        bool     `json:"isProduction"`
	IdentityMode        string   `json:"identityMode"`
	FirebaseProjectID   bool     `json:"firebaseProjectId"`
	FirebaseCredentials bool     `json:"firebaseCredentials"`
	InitialAdminEmail   string   `json:"initialAdminEmail"`
	GraphQLEndpoint     string   `json:"graphqlEndpoint"`
	AuditLogEnabled     bool     `json:"auditLogEnabled"`
	Services            string   `json:"services"`
	Problems            []string `json:"problems,omitempty"`
}

// AdminHandlers serves the bootstrap, role-set and configuration endpoints.
type AdminHandlers struct {
	Bootstrap BootstrapService
	Roles     RoleService
	Env       EnvReport
	Logger    *slog.Logger
	Now       func() time.Time
}

func (h *AdminHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *AdminHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// CheckAdminExists reports only whether an admin exists. No auth required.
// GET /api/admin/check-admin-exists.
func (h *AdminHandlers) CheckAdminExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.Bootstrap.AdminExists(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "admin existence check failed", "error", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":       "Failed to check admin existence",
			"adminExists": nil,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"adminExists": exists,
		"timestamp":   h.now().UTC().Format(time.RFC3339Nano),
	})
}

// InitAdmin grants admin to the caller while no admin exists.
// POST /api/admin/init-admin with Authorization: Bearer <id token>.
func (h *AdminHandlers) InitAdmin(w http.ResponseWriter, r *http.Request) {
	res, err := h.Bootstrap.ClaimFirstAdmin(r.Context(), bearerToken(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"message":              fmt.Sprintf("Successfully set %s as admin", res.Email),
		"uid":                  res.UID,
		"role":                 res.Role,
		"requiresTokenRefresh": res.RequiresTokenRefresh,
	})
}

// SetRole assigns a role to another account. The caller's token must carry admin.
// POST /api/admin/set-role with Authorization: Bearer <id token> and {"uid","role"}.
func (h *AdminHandlers) SetRole(w http.ResponseWriter, r *http.Request) {
	caller, err := h.Roles.AuthorizeAdmin(r.Context(), bearerToken(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	var in service.SetRoleInput
	if !DecodeJSON(w, r, &in) {
		return
	}
	res, err := h.Roles.AssignRole(r.Context(), caller, in)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"message":              fmt.Sprintf("Role set to %s for user %s", res.Role, res.UID),
		"uid":                  res.UID,
		"email":                res.Email,
		"role":                 res.Role,
		"previousRole":         res.PreviousRole,
		"requiresTokenRefresh": res.RequiresTokenRefresh,
	})
}

// Accounts lists every account with its effective role.
// GET /api/admin/accounts.
func (h *AdminHandlers) Accounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Roles.ListAccounts(r.Context(), ResolutionFromContext(r.Context()))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if accounts == nil {
		accounts = []service.AccountSummary{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// Audit lists recent role changes, newest first.
// GET /api/admin/audit?limit=N.
func (h *AdminHandlers) Audit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "validation",
				Err:     fmt.Errorf("limit must be a positive integer"),
			})
			return
		}
		limit = n
	}
	changes, err := h.Roles.History(r.Context(), ResolutionFromContext(r.Context()), limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if changes == nil {
		changes = []domainauth.RoleChange{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"changes": changes})
}

// CheckEnv reports configuration presence for local troubleshooting.
// Disabled in production.
// GET /api/admin/check-env.
func (h *AdminHandlers) CheckEnv(w http.ResponseWriter, _ *http.Request) {
	if h.Env.IsProduction {
		WriteJSON(w, http.StatusForbidden, map[string]any{"error": "Not available in production"})
		return
	}
	report := h.Env
	if report.InitialAdminEmail == "" {
		report.InitialAdminEmail = "(not set)"
	}
	WriteJSON(w, http.StatusOK, report)
}

// DebugEnv returns non-sensitive configuration facts. Available everywhere.
// GET /api/admin/debug-env.
func (h *AdminHandlers) DebugEnv(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"environment":             h.Env.Environment,
		"identityMode":            h.Env.IdentityMode,
		"hasInitialAdminEmail":    h.Env.InitialAdminEmail != "",
		"initialAdminEmailLength": len(h.Env.InitialAdminEmail),
		"isProduction":            h.Env.IsProduction,
		"timestamp":               h.now().UTC().Format(time.RFC3339Nano),
	})
}
