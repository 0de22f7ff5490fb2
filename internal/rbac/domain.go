package rbac

import (
	"sort"
	"strings"
)

// Role identifies a named permission bundle.
type Role string

// Built-in roles.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
	RoleAuditor    Role = "auditor"
	RoleViewer     Role = "viewer"
	RoleHR         Role = "hr"
	RoleTeamLeader Role = "team_leader"
)

// ParseRole normalizes a stored role name.
func ParseRole(raw string) Role {
	return Role(strings.TrimSpace(strings.ToLower(raw)))
}

// RoleDefinition is the static data declared for a single role.
type RoleDefinition struct {
	Inherits []Role
	Routes   []string
	Actions  []string
}

// Matrix maps roles to their definitions. A Matrix is read-only once built.
type Matrix map[Role]RoleDefinition

// Set is a string set.
type Set map[string]struct{}

// NewSet builds a set from values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

func (s Set) merge(values []string) {
	for _, v := range values {
		s[v] = struct{}{}
	}
}

// ResolvedRole is the flattened result of expanding roles through inheritance.
type ResolvedRole struct {
	Routes  Set
	Actions Set
}

func newResolvedRole() ResolvedRole {
	return ResolvedRole{Routes: Set{}, Actions: Set{}}
}

func (r ResolvedRole) union(other ResolvedRole) {
	for v := range other.Routes {
		r.Routes[v] = struct{}{}
	}
	for v := range other.Actions {
		r.Actions[v] = struct{}{}
	}
}

// Empty reports whether nothing is granted.
func (r ResolvedRole) Empty() bool {
	return len(r.Routes) == 0 && len(r.Actions) == 0
}

// HasAction reports whether the action code is granted.
func (r ResolvedRole) HasAction(action string) bool {
	return r.Actions.Has(action)
}

// Equal compares route and action sets.
func (r ResolvedRole) Equal(other ResolvedRole) bool {
	return r.Routes.Equal(other.Routes) && r.Actions.Equal(other.Actions)
}
