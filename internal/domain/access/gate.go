// Package access decides whether a resolved session may see a role-gated view.
package access

import "github.com/target/cqrs-monitor/internal/domain/auth"

// DefaultRedirect is where denied requests are sent when a gate names no
// override.
const DefaultRedirect = "/unauthorized"

// Phase is the state of a guarded view for one request.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseAllowed Phase = "allowed"
	PhaseDenied  Phase = "denied"
)

// Gate names the roles that may pass. Any listed role is sufficient, so the
// effective requirement is the lowest-ranked one. An empty Roles list admits
// every resolved session; a list of only unknown roles admits none.
type Gate struct {
	Roles      []auth.Role
	RedirectTo string
}

// Require is shorthand for a gate with the default redirect.
func Require(roles ...auth.Role) Gate {
	return Gate{Roles: roles}
}

// Decision is the outcome of evaluating a Gate.
type Decision struct {
	Phase    Phase
	Redirect string
}

// Allowed reports whether the view may render.
func (d Decision) Allowed() bool { return d.Phase == PhaseAllowed }

// Decide evaluates the gate against a resolution. An unresolved session
// yields PhaseLoading and no redirect; the decision is deferred until the
// role is known.
func (g Gate) Decide(res auth.Resolution) Decision {
	if !res.Resolved {
		return Decision{Phase: PhaseLoading}
	}
	if res.Role.Valid() && res.Role.Rank() >= auth.MinRank(g.Roles) {
		return Decision{Phase: PhaseAllowed}
	}
	redirect := g.RedirectTo
	if redirect == "" {
		redirect = DefaultRedirect
	}
	return Decision{Phase: PhaseDenied, Redirect: redirect}
}
