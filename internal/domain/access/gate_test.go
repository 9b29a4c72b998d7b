package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/cqrs-monitor/internal/domain/auth"
)

func resolved(r auth.Role) auth.Resolution {
	return auth.Resolution{Resolved: true, Authenticated: true, Role: r}
}

func TestGate_RankRule(t *testing.T) {
	gates := [][]auth.Role{
		{auth.RoleViewer},
		{auth.RoleWriter},
		{auth.RoleAdmin},
		{auth.RoleWriter, auth.RoleAdmin},
		{auth.RoleAdmin, auth.RoleViewer},
	}
	for _, roles := range gates {
		g := Require(roles...)
		for _, current := range auth.Roles() {
			d := g.Decide(resolved(current))
			want := current.Rank() >= auth.MinRank(roles)
			assert.Equal(t, want, d.Allowed(), "role %s against %v", current, roles)
		}
	}
}

func TestGate_ViewerNeverReachesWriterGate(t *testing.T) {
	for _, roles := range [][]auth.Role{{auth.RoleWriter}, {auth.RoleAdmin}, {auth.RoleWriter, auth.RoleAdmin}} {
		d := Require(roles...).Decide(auth.Anonymous())
		assert.Equal(t, PhaseDenied, d.Phase)
		assert.Equal(t, DefaultRedirect, d.Redirect)
	}
}

func TestGate_LoadingWhileUnresolved(t *testing.T) {
	d := Require(auth.RoleAdmin).Decide(auth.Pending())
	assert.Equal(t, PhaseLoading, d.Phase)
	assert.Empty(t, d.Redirect, "loading must not redirect")
}

func TestGate_RedirectOverride(t *testing.T) {
	g := Gate{Roles: []auth.Role{auth.RoleAdmin}, RedirectTo: "/login"}
	d := g.Decide(resolved(auth.RoleWriter))
	assert.Equal(t, PhaseDenied, d.Phase)
	assert.Equal(t, "/login", d.Redirect)
}

func TestGate_EmptyRolesAdmitsResolved(t *testing.T) {
	assert.True(t, Gate{}.Decide(auth.Anonymous()).Allowed())
	assert.False(t, Gate{}.Decide(auth.Resolution{Resolved: true}).Allowed(), "unknown role is denied")
}

func TestGate_UnknownRolesDenyEveryone(t *testing.T) {
	g := Require("superadmin")
	for _, current := range auth.Roles() {
		d := g.Decide(resolved(current))
		assert.Equal(t, PhaseDenied, d.Phase, "role %s", current)
		assert.Equal(t, DefaultRedirect, d.Redirect)
	}
	assert.True(t, Require("superadmin", auth.RoleWriter).Decide(resolved(auth.RoleWriter)).Allowed())
}

func TestGate_AdminPage(t *testing.T) {
	// Scenario: admin page guarded by admin, writer is redirected.
	d := Require(auth.RoleAdmin).Decide(resolved(auth.RoleWriter))
	assert.Equal(t, PhaseDenied, d.Phase)
	assert.Equal(t, "/unauthorized", d.Redirect)

	assert.True(t, Require(auth.RoleAdmin).Decide(resolved(auth.RoleAdmin)).Allowed())
}
