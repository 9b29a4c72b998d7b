package auth

import (
	"fmt"
	"strings"
)

// Role represents an application's authorization role.
// Kept in string form for claims, cookies and persistence.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer: 1,
	RoleWriter: 2,
	RoleAdmin:  3,
}

// Roles returns every role in ascending rank order.
func Roles() []Role {
	return []Role{RoleViewer, RoleWriter, RoleAdmin}
}

// Rank returns the role's position in the hierarchy, 0 for unknown roles.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r ranks at or above required.
func (r Role) AtLeast(required Role) bool {
	return r.Valid() && r.Rank() >= required.Rank()
}

// InvalidRoleError is returned for claim values that are not known roles.
type InvalidRoleError struct {
	Value any
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("invalid role %v (valid options: viewer, writer, admin)", e.Value)
}

// ParseRole parses a role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", &InvalidRoleError{Value: s}
	}
	return r, nil
}

// MinRank returns the lowest rank among roles, ignoring unknown ones.
// An empty list yields 0, which every valid role satisfies. A non-empty list
// with no known role yields a rank above admin so nothing satisfies it.
func MinRank(roles []Role) int {
	lowest := 0
	for _, r := range roles {
		rank := r.Rank()
		if rank == 0 {
			continue
		}
		if lowest == 0 || rank < lowest {
			lowest = rank
		}
	}
	if lowest == 0 && len(roles) > 0 {
		return len(roleRanks) + 1
	}
	return lowest
}

// ResolveRole maps a verified identity to its effective role.
//
//   - nil identity: viewer
//   - role claim present: that role
//   - no role claim: writer (never admin)
//
// A malformed role claim resolves to viewer and the error is returned so the
// caller can log it.
func ResolveRole(id *Identity) (Role, error) {
	if id == nil {
		return RoleViewer, nil
	}
	role, ok, err := id.Claims.Role()
	if err != nil {
		return RoleViewer, err
	}
	if !ok {
		return RoleWriter, nil
	}
	return role, nil
}
