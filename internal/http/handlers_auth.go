package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

// SessionCookieName names the cookie carrying the opaque session id.
const SessionCookieName = "session_id"

// SessionService defines the session operations the auth handlers need.
type SessionService interface {
	SessionResolver
	SignIn(ctx context.Context, token string) (*domainauth.Session, error)
	Refresh(ctx context.Context, sessionID, token string) (*domainauth.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlers exchanges provider ID tokens for server-side sessions.
type AuthHandlers struct {
	Svc          SessionService
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type sessionUser struct {
	ID    string          `json:"id"`
	Email string          `json:"email"`
	Role  domainauth.Role `json:"role,omitempty"`
}

type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	Resolved      bool            `json:"resolved"`
	Role          domainauth.Role `json:"role,omitempty"`
	User          *sessionUser    `json:"user,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

func responseFor(res domainauth.Resolution, session *domainauth.Session) sessionResponse {
	out := sessionResponse{
		Authenticated: res.Authenticated,
		Resolved:      res.Resolved,
		Role:          res.Role,
	}
	if res.Authenticated {
		out.User = &sessionUser{ID: res.UserID, Email: res.Email, Role: res.Role}
	}
	if session != nil {
		exp := session.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

// SignIn creates a session from a provider ID token.
// POST /auth/session with Authorization: Bearer <id token>.
func (h *AuthHandlers) SignIn(w http.ResponseWriter, r *http.Request) {
	session, err := h.Svc.SignIn(r.Context(), bearerToken(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.setSessionCookie(w, r, session)
	WriteJSON(w, http.StatusOK, responseFor(session.Resolution(), session))
}

// Refresh re-reads the role from a fresh ID token after a role change.
// POST /auth/refresh with the session cookie and Authorization: Bearer <id token>.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		WriteAppError(w, apperrors.Unauthenticated("no session to refresh"))
		return
	}

	session, err := h.Svc.Refresh(r.Context(), c.Value, bearerToken(r))
	if err != nil {
		if apperrors.IsUnauthenticated(err) {
			h.clearCookie(w, r, SessionCookieName)
		}
		WriteAppError(w, err)
		return
	}
	h.setSessionCookie(w, r, session)
	WriteJSON(w, http.StatusOK, responseFor(session.Resolution(), session))
}

// Logout handles the logout endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if logoutErr := h.Svc.Logout(r.Context(), c.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}
	h.clearCookie(w, r, SessionCookieName)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "redirect_to": "/"})
}

// Status reports the resolution ResolveSession stored for this request.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	session, _ := GetSessionFromContext(r.Context())
	if session == nil {
		if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" && bearerToken(r) == "" {
			// The cookie no longer maps to a live session.
			h.clearCookie(w, r, SessionCookieName)
		}
	}
	WriteJSON(w, http.StatusOK, responseFor(ResolutionFromContext(r.Context()), session))
}

// clearCookie clears a cookie by setting it to expire immediately, mirroring
// the attributes used when it was set.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s *domainauth.Session) {
	maxAge := int(time.Until(s.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
