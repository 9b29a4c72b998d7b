package auth

import "time"

// ChangeKind says how a role change came about.
type ChangeKind string

const (
	ChangeBootstrap ChangeKind = "bootstrap"
	ChangeSetRole   ChangeKind = "set_role"
)

// RoleChange records one successful role assignment.
type RoleChange struct {
	ID           string     `json:"id"`
	Kind         ChangeKind `json:"kind"`
	ActorUID     string     `json:"actor_uid"`
	ActorEmail   string     `json:"actor_email"`
	TargetUID    string     `json:"target_uid"`
	TargetEmail  string     `json:"target_email"`
	PreviousRole Role       `json:"previous_role,omitempty"`
	NewRole      Role       `json:"new_role"`
	At           time.Time  `json:"at"`
}
