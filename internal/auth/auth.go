// Package auth implements the access guard consulted by the API before any job
// operation reaches the engine.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Permission is an action an actor may perform
type Permission string

// Permissions checked by the API routes
const (
	PermJobRead        Permission = "job:read"
	PermTestRun        Permission = "test:run"
	PermTestCancel     Permission = "test:cancel"
	PermDeployCreate   Permission = "deploy:create"
	PermDeployCancel   Permission = "deploy:cancel"
	PermDeployRollback Permission = "deploy:rollback"
	PermProjectManage  Permission = "project:manage"
)

// Role is a named set of permissions
type Role string

// Roles ordered from least to most privileged
const (
	RoleViewer    Role = "viewer"
	RoleDeveloper Role = "developer"
	RoleDeployer  Role = "deployer"
	RoleAdmin     Role = "admin"
)

var (
	// ErrUnauthenticated is returned when no actor identity was presented
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the actor's role lacks the permission
	ErrForbidden = errors.New("forbidden")
)

// capabilities maps each role to the permissions it grants. Every role includes
// the permissions of the roles below it.
var capabilities = func() map[Role]map[Permission]struct{} {
	ladder := []struct {
		role  Role
		perms []Permission
	}{
		{RoleViewer, []Permission{PermJobRead}},
		{RoleDeveloper, []Permission{PermTestRun, PermTestCancel}},
		{RoleDeployer, []Permission{PermDeployCreate, PermDeployCancel, PermDeployRollback}},
		{RoleAdmin, []Permission{PermProjectManage}},
	}

	table := make(map[Role]map[Permission]struct{}, len(ladder))
	granted := make(map[Permission]struct{})
	for _, step := range ladder {
		for _, p := range step.perms {
			granted[p] = struct{}{}
		}
		set := make(map[Permission]struct{}, len(granted))
		for p := range granted {
			set[p] = struct{}{}
		}
		table[step.role] = set
	}
	return table
}()

// ParseRole converts a header value into a Role
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := capabilities[role]; !ok {
		return "", fmt.Errorf("unknown role: %q", s)
	}
	return role, nil
}

// Can reports whether the role grants the permission
func (r Role) Can(perm Permission) bool {
	_, ok := capabilities[r][perm]
	return ok
}

// Actor is the identity making a request
type Actor struct {
	Name string
	Role Role
}

// anonymous is the actor used when the guard is disabled
var anonymous = Actor{Name: "anonymous", Role: RoleAdmin}

// Guard authorizes actors against the capability table
type Guard struct {
	enabled bool
}

// NewGuard creates a guard. A disabled guard approves every request as an
// anonymous admin.
func NewGuard(enabled bool) *Guard {
	return &Guard{enabled: enabled}
}

// Enabled reports whether the guard enforces identities
func (g *Guard) Enabled() bool {
	return g.enabled
}

// Authorize resolves the actor from the presented name and role and checks it
// holds perm.
func (g *Guard) Authorize(name, role string, perm Permission) (Actor, error) {
	if !g.enabled {
		if name = strings.TrimSpace(name); name != "" {
			return Actor{Name: name, Role: RoleAdmin}, nil
		}
		return anonymous, nil
	}

	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(role) == "" {
		return Actor{}, ErrUnauthenticated
	}
	r, err := ParseRole(role)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	actor := Actor{Name: name, Role: r}
	if !r.Can(perm) {
		return actor, fmt.Errorf("%w: role %s lacks %s", ErrForbidden, r, perm)
	}
	return actor, nil
}
