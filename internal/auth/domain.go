package auth

import (
	"context"
	"time"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/session"
)

// Account is a stored login account.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// User is the identity attached to an identity provider session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an identity provider session.
type Session struct {
	AccessToken string    `json:"-"`
	User        User      `json:"user"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Event is an identity provider state change.
type Event string

// Identity provider events.
const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Profile is the user profile record.
type Profile struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	DisplayName          string `json:"display_name"`
	IsSuperAdmin         bool   `json:"is_super_admin"`
	ActiveOrganizationID string `json:"active_organization_id,omitempty"`
	ActiveProjectID      string `json:"active_project_id,omitempty"`
}

// RoleAssignment grants a role to a user, optionally within a scope.
type RoleAssignment struct {
	UserID         string
	Role           rbac.Role
	OrganizationID string
	ProjectID      string
}

// IdentityProvider is the external sign-in and session authority.
type IdentityProvider interface {
	// CurrentSession returns the active session or nil when there is none.
	CurrentSession(ctx context.Context) (*Session, error)
	// SubscribeToAuthChanges registers fn and returns a function removing it.
	SubscribeToAuthChanges(fn func(Event, *Session)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}

// DataSource serves profiles and role assignments.
type DataSource interface {
	// QueryProfile returns shared.ErrNotFound when the user has no profile.
	QueryProfile(ctx context.Context, userID string) (*Profile, error)
	QueryUserRoleAssignments(ctx context.Context, userID string) ([]RoleAssignment, error)
}

// MembershipSource lists the organizations and projects of a user.
type MembershipSource interface {
	QueryMemberships(ctx context.Context, userID string) ([]session.Organization, []session.Project, error)
}

// SnapshotStore persists permission snapshots between loads.
type SnapshotStore interface {
	// LoadSnapshot returns nil without error when nothing usable is stored.
	LoadSnapshot(ctx context.Context, userID string) (*rbac.PermissionSnapshot, error)
	SaveSnapshot(ctx context.Context, userID string, snapshot rbac.PermissionSnapshot) error
}
