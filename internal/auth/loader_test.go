package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-authz/internal/auth"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/shared"
	_ "github.com/odyssey-erp/ledger-authz/testing"
)

func TestLoaderResolvesAssignedRoles(t *testing.T) {
	source := &stubSource{
		profileFn: func(context.Context, string) (*auth.Profile, error) {
			return &auth.Profile{UserID: "u1", Email: "ana@example.com", DisplayName: "Ana"}, nil
		},
		rolesFn: assignments("u1", rbac.RoleAccountant, rbac.RoleAccountant),
	}
	loader := newLoader(t, source, auth.LoaderConfig{})

	data := loader.Load(context.Background(), auth.User{ID: "u1", Email: "ana@example.com"})

	assert.False(t, data.Degraded)
	assert.False(t, data.Fallback)
	assert.False(t, data.SuperAdmin)
	assert.Equal(t, []rbac.Role{rbac.RoleAccountant}, data.Roles)
	assert.Equal(t, "Ana", data.Profile.DisplayName)
	assert.True(t, data.Permissions.HasAction(shared.PermTransactionsCreate))
	assert.True(t, data.Permissions.HasAction(shared.PermReportsView))
	assert.False(t, data.Permissions.HasAction(shared.PermUsersManage))
}

func TestLoaderIssuesQueriesConcurrently(t *testing.T) {
	profileStarted := make(chan struct{})
	rolesStarted := make(chan struct{})
	source := &stubSource{
		profileFn: func(ctx context.Context, _ string) (*auth.Profile, error) {
			close(profileStarted)
			select {
			case <-rolesStarted:
				return nil, shared.ErrNotFound
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		rolesFn: func(ctx context.Context, userID string) ([]auth.RoleAssignment, error) {
			close(rolesStarted)
			select {
			case <-profileStarted:
				return []auth.RoleAssignment{{UserID: userID, Role: rbac.RoleViewer}}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	loader := newLoader(t, source, auth.LoaderConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data := loader.Load(ctx, auth.User{ID: "u1"})

	require.False(t, data.Degraded, "queries must not wait on each other")
	assert.Equal(t, []rbac.Role{rbac.RoleViewer}, data.Roles)
}

func TestLoaderSuperAdminSources(t *testing.T) {
	t.Run("profile flag", func(t *testing.T) {
		source := &stubSource{
			profileFn: func(context.Context, string) (*auth.Profile, error) {
				return &auth.Profile{UserID: "u1", IsSuperAdmin: true}, nil
			},
			rolesFn: assignments("u1", rbac.RoleViewer),
		}
		data := newLoader(t, source, auth.LoaderConfig{}).Load(context.Background(), auth.User{ID: "u1"})
		assert.True(t, data.SuperAdmin)
		assert.Equal(t, []rbac.Role{rbac.RoleSuperAdmin}, data.Roles)
		assert.True(t, data.Permissions.Routes.Has(rbac.WildcardRoute))
	})

	t.Run("email list", func(t *testing.T) {
		source := &stubSource{rolesFn: assignments("u2", rbac.RoleViewer)}
		cfg := auth.LoaderConfig{SuperAdminEmails: []string{" Root@Example.com "}}
		data := newLoader(t, source, cfg).Load(context.Background(), auth.User{ID: "u2", Email: "root@example.com"})
		assert.True(t, data.SuperAdmin)
		assert.Equal(t, []rbac.Role{rbac.RoleSuperAdmin}, data.Roles)
	})
}

func TestLoaderFallbackPolicies(t *testing.T) {
	source := &stubSource{rolesFn: assignments("u1")}

	closed := newLoader(t, source, auth.LoaderConfig{}).Load(context.Background(), auth.User{ID: "u1"})
	assert.True(t, closed.Fallback)
	assert.False(t, closed.SuperAdmin)
	assert.Empty(t, closed.Roles)
	assert.True(t, closed.Permissions.Empty())

	open := newLoader(t, source, auth.LoaderConfig{Policy: auth.FallbackOpen}).Load(context.Background(), auth.User{ID: "u1"})
	assert.True(t, open.Fallback)
	assert.True(t, open.SuperAdmin)
	assert.Equal(t, []rbac.Role{rbac.RoleSuperAdmin}, open.Roles)
}

func TestLoaderDegradesOnErrors(t *testing.T) {
	source := &stubSource{
		rolesFn: func(context.Context, string) ([]auth.RoleAssignment, error) {
			return nil, errors.New("connection refused")
		},
	}
	data := newLoader(t, source, auth.LoaderConfig{}).Load(context.Background(), auth.User{ID: "u1"})

	assert.True(t, data.Degraded)
	assert.True(t, data.Fallback)
	assert.True(t, data.Permissions.Empty())
}

func TestLoaderTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	source := &stubSource{
		rolesFn: func(context.Context, string) ([]auth.RoleAssignment, error) {
			<-release
			return nil, nil
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	data := newLoader(t, source, auth.LoaderConfig{Policy: auth.FallbackOpen}).Load(ctx, auth.User{ID: "u1"})

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, data.Degraded)
	assert.True(t, data.SuperAdmin)
}

func TestParseFallbackPolicy(t *testing.T) {
	policy, err := auth.ParseFallbackPolicy("")
	require.NoError(t, err)
	assert.Equal(t, auth.FallbackClosed, policy)

	policy, err = auth.ParseFallbackPolicy(" OPEN ")
	require.NoError(t, err)
	assert.Equal(t, auth.FallbackOpen, policy)

	_, err = auth.ParseFallbackPolicy("sometimes")
	require.Error(t, err)
}
