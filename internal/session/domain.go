package session

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
)

// Permission is a resource/action pair.
type Permission struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

// Key returns the "resource:action" form used for bit positions.
func (p Permission) Key() string {
	return PermissionKey(p.Resource, p.Action)
}

// PermissionKey composes a resource and action into an index key.
func PermissionKey(resource, action string) string {
	return resource + ":" + action
}

// ParsePermissionKey is the inverse of PermissionKey.
func ParsePermissionKey(key string) Permission {
	resource, action, _ := strings.Cut(key, ":")
	return Permission{Resource: resource, Action: action}
}

// PermissionFromCode converts an action code such as "accounts.view".
func PermissionFromCode(code string) Permission {
	resource, action := rbac.SplitAction(code)
	return Permission{Resource: resource, Action: action}
}

// ScopedRole is a role granted within an optional organization or project.
type ScopedRole struct {
	Role           rbac.Role `json:"role"`
	OrganizationID string    `json:"organization_id,omitempty"`
	ProjectID      string    `json:"project_id,omitempty"`
}

// Organization is an organization the user belongs to.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Project is a project the user can reach.
type Project struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id"`
}

// AuthPayload is the full authorization data of a user at login.
type AuthPayload struct {
	UserID               string `validate:"required"`
	Email                string `validate:"required,email"`
	DisplayName          string
	Permissions          []Permission
	Roles                []ScopedRole
	Organizations        []Organization
	Projects             []Project
	ActiveOrganizationID string
	ActiveProjectID      string
}

// Component names a decompressible part of a session.
type Component string

// Session components.
const (
	ComponentPermissions   Component = "permissions"
	ComponentRoles         Component = "roles"
	ComponentOrganizations Component = "organizations"
	ComponentProjects      Component = "projects"
)

// ParseComponent validates a component name.
func ParseComponent(raw string) (Component, bool) {
	switch c := Component(strings.ToLower(strings.TrimSpace(raw))); c {
	case ComponentPermissions, ComponentRoles, ComponentOrganizations, ComponentProjects:
		return c, true
	}
	return "", false
}

var allComponents = []Component{ComponentPermissions, ComponentRoles, ComponentOrganizations, ComponentProjects}

// CompressedSessionData is the compact authorization record of one session.
//
// Roles, organizations and projects are stored at creation time when the
// payload carries them and left nil otherwise. "Lazy" refers to decoding:
// a component counts as unmaterialized until LoadComponent first returns it.
type CompressedSessionData struct {
	UserID               string
	Email                string
	DisplayName          string
	ActiveOrganizationID string
	ActiveProjectID      string

	Bitmap *Bitmap
	// Index maps bit positions back to permission keys.
	Index map[int]string
	// positions is the reverse of Index. Both are immutable after Create.
	positions map[string]int

	Roles         []ScopedRole
	Organizations []Organization
	Projects      []Project

	materialized atomic.Uint32
}

func (d *CompressedSessionData) markMaterialized(c Component) {
	bit := componentBit(c)
	for {
		old := d.materialized.Load()
		if old&bit != 0 || d.materialized.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

func (d *CompressedSessionData) isMaterialized(c Component) bool {
	return d.materialized.Load()&componentBit(c) != 0
}

func componentBit(c Component) uint32 {
	for i, known := range allComponents {
		if known == c {
			return 1 << uint(i)
		}
	}
	return 0
}

func (d *CompressedSessionData) present(c Component) bool {
	switch c {
	case ComponentPermissions:
		return true
	case ComponentRoles:
		return d.Roles != nil
	case ComponentOrganizations:
		return d.Organizations != nil
	case ComponentProjects:
		return d.Projects != nil
	}
	return false
}

// OptimizedSession wraps compressed data with identity and lifetime.
type OptimizedSession struct {
	ID        string
	Data      *CompressedSessionData
	CreatedAt time.Time
	ExpiresAt time.Time
	// Dropped lists permissions that did not fit in the bitmap.
	Dropped []Permission

	lastAccessed atomic.Int64
}

// LastAccessed returns the time of the most recent read.
func (s *OptimizedSession) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

func (s *OptimizedSession) touch(now time.Time) {
	s.lastAccessed.Store(now.UnixNano())
}

// Expired reports whether the session expiry is at or before now.
func (s *OptimizedSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
