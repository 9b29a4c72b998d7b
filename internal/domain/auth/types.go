package auth

// Package auth contains domain-level types for authentication, roles and
// sessions. It is pure and free of framework/adapter concerns.

import "time"

// ClaimRole is the custom claim carrying an account's role.
const ClaimRole = "role"

// Claims are the custom claims attached to an account by the identity provider.
type Claims map[string]any

// Role reads the role claim. ok is false when the claim is absent. A claim
// that is present but not a known role string yields an error.
func (c Claims) Role() (role Role, ok bool, err error) {
	raw, present := c[ClaimRole]
	if !present || raw == nil {
		return "", false, nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", true, &InvalidRoleError{Value: raw}
	}
	r, err := ParseRole(s)
	if err != nil {
		return "", true, err
	}
	return r, true, nil
}

// With returns a copy of c with key set to value. Other claims are kept.
func (c Claims) With(key string, value any) Claims {
	out := make(Claims, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

// Identity is a verified token as reported by the identity provider.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	Claims        Claims
	ExpiresAt     time.Time // absolute expiry of the presented token
}

// Account is a provider-side user record, as returned by account enumeration.
type Account struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	Disabled     bool   `json:"disabled"`
	CustomClaims Claims `json:"custom_claims,omitempty"`
}

// HasRole reports whether the account's role claim equals r.
func (a Account) HasRole(r Role) bool {
	got, ok, err := a.CustomClaims.Role()
	return err == nil && ok && got == r
}

// SessionState tracks whether the role held in a session is still current.
type SessionState string

const (
	// SessionResolved means the role was read from the most recent token.
	SessionResolved SessionState = "resolved"
	// SessionRefreshRequired means the account's claims changed after the
	// session was created; the role must be re-read from a fresh token.
	SessionRefreshRequired SessionState = "refresh_required"
)

// Session is the server-side record we persist for an authenticated user.
// ID is an opaque session identifier.
type Session struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Email       string       `json:"email"`
	Role        Role         `json:"role"`
	State       SessionState `json:"state"`
	ExpiresAt   time.Time    `json:"expires_at"`
	RefreshedAt time.Time    `json:"refreshed_at"`
}

// Resolution returns the access-decision input for this session. A session
// awaiting a token refresh is reported as unresolved.
func (s Session) Resolution() Resolution {
	if s.State == SessionRefreshRequired {
		return Resolution{Authenticated: true, UserID: s.UserID, Email: s.Email}
	}
	return Resolution{
		Resolved:      true,
		Authenticated: true,
		Role:          s.Role,
		UserID:        s.UserID,
		Email:         s.Email,
	}
}

// Resolution is the outcome of role resolution for one request.
// Resolved=false is distinct from a resolved viewer.
type Resolution struct {
	Resolved      bool
	Authenticated bool
	Role          Role
	UserID        string
	Email         string
}

// Anonymous is the resolution for a request with no session.
func Anonymous() Resolution {
	return Resolution{Resolved: true, Role: RoleViewer}
}

// Pending is the resolution for a request whose role is not known yet.
func Pending() Resolution {
	return Resolution{}
}
