package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

// FallbackPolicy decides what a user receives when no role data is available.
type FallbackPolicy string

// Fallback policies.
const (
	// FallbackClosed grants nothing.
	FallbackClosed FallbackPolicy = "closed"
	// FallbackOpen grants super_admin so users are never locked out.
	FallbackOpen FallbackPolicy = "open"
)

// ParseFallbackPolicy validates a configured policy name.
func ParseFallbackPolicy(raw string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case FallbackClosed, FallbackOpen:
		return p, nil
	case "":
		return FallbackClosed, nil
	}
	return "", fmt.Errorf("auth: unknown fallback policy %q", raw)
}

// LoaderConfig tunes a Loader.
type LoaderConfig struct {
	Policy FallbackPolicy
	// SuperAdminEmails grants super_admin by email when the profile flag is unset.
	SuperAdminEmails []string
}

// AuthData is the resolved authorization state of one user.
type AuthData struct {
	UserID      string
	Profile     *Profile
	Assignments []RoleAssignment
	Roles       []rbac.Role
	Permissions rbac.ResolvedRole
	SuperAdmin  bool
	// Degraded is set when a data source call failed or timed out.
	Degraded bool
	// Fallback is set when the fallback policy chose the roles.
	Fallback bool
}

// Loader fetches profile and role assignments and resolves them.
type Loader struct {
	source      DataSource
	cache       *rbac.Cache
	policy      FallbackPolicy
	superAdmins map[string]struct{}
	logger      *slog.Logger
}

// NewLoader constructs a Loader.
func NewLoader(source DataSource, cache *rbac.Cache, cfg LoaderConfig, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Policy
	if policy == "" {
		policy = FallbackClosed
	}
	admins := make(map[string]struct{}, len(cfg.SuperAdminEmails))
	for _, email := range cfg.SuperAdminEmails {
		if email = NormalizeEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Loader{source: source, cache: cache, policy: policy, superAdmins: admins, logger: logger}
}

// Resolver exposes the resolver behind the loader cache.
func (l *Loader) Resolver() *rbac.Resolver {
	return l.cache.Resolver()
}

// Policy returns the configured fallback policy.
func (l *Loader) Policy() FallbackPolicy {
	return l.policy
}

// Load issues the profile and role-assignment queries concurrently and
// resolves the effective roles. It never fails: data source errors and
// timeouts are logged and handled by the fallback policy.
func (l *Loader) Load(ctx context.Context, user User) AuthData {
	data := AuthData{UserID: user.ID}

	var (
		profile     *Profile
		assignments []RoleAssignment
		profileErr  error
		assignErr   error
	)
	var g errgroup.Group
	g.Go(func() error {
		p, err := l.source.QueryProfile(ctx, user.ID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			profileErr = fmt.Errorf("query profile: %w", err)
			return profileErr
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		rows, err := l.source.QueryUserRoleAssignments(ctx, user.ID)
		if err != nil {
			assignErr = fmt.Errorf("query role assignments: %w", err)
			return assignErr
		}
		assignments = rows
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
		data.Profile = profile
		data.Assignments = assignments
		if err := errors.Join(profileErr, assignErr); err != nil {
			data.Degraded = true
			l.logger.Error("load auth data", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	case <-ctx.Done():
		data.Degraded = true
		l.logger.Error("load auth data timed out", slog.String("user_id", user.ID), slog.Any("error", ctx.Err()))
	}

	email := user.Email
	if data.Profile != nil && data.Profile.Email != "" {
		email = data.Profile.Email
	}
	data.SuperAdmin = (data.Profile != nil && data.Profile.IsSuperAdmin) || l.isSuperAdminEmail(email)

	roles := assignedRoles(data.Assignments)
	switch {
	case data.SuperAdmin:
		roles = []rbac.Role{rbac.RoleSuperAdmin}
	case len(roles) == 0:
		data.Fallback = true
		roles = l.fallbackRoles()
		data.SuperAdmin = l.policy == FallbackOpen
		l.logger.Warn("no role assignments, applying fallback",
			slog.String("user_id", user.ID),
			slog.String("policy", string(l.policy)),
			slog.Bool("degraded", data.Degraded))
	}
	data.Roles = roles
	data.Permissions = l.resolve(ctx, roles)
	return data
}

func (l *Loader) resolve(ctx context.Context, roles []rbac.Role) rbac.ResolvedRole {
	resolved, err := l.cache.Flatten(ctx, roles)
	if err != nil {
		return l.cache.Resolver().FlattenPermissions(roles)
	}
	return resolved
}

func (l *Loader) fallbackRoles() []rbac.Role {
	if l.policy == FallbackOpen {
		return []rbac.Role{rbac.RoleSuperAdmin}
	}
	return []rbac.Role{}
}

func (l *Loader) isSuperAdminEmail(email string) bool {
	if email == "" {
		return false
	}
	_, ok := l.superAdmins[NormalizeEmail(email)]
	return ok
}

func assignedRoles(assignments []RoleAssignment) []rbac.Role {
	seen := make(map[rbac.Role]struct{}, len(assignments))
	roles := make([]rbac.Role, 0, len(assignments))
	for _, a := range assignments {
		role := rbac.ParseRole(string(a.Role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}
