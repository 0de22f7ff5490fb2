package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

func assertSuperset(t *testing.T, outer, inner ResolvedRole, msg string) {
	t.Helper()
	for route := range inner.Routes {
		assert.Truef(t, outer.Routes.Has(route), "%s: missing route %s", msg, route)
	}
	for action := range inner.Actions {
		assert.Truef(t, outer.Actions.Has(action), "%s: missing action %s", msg, action)
	}
}

func TestResolveRoleIncludesEveryParent(t *testing.T) {
	resolver := NewResolver(nil)
	for role, def := range DefaultMatrix() {
		resolved := resolver.ResolveRole(role)
		for _, parent := range def.Inherits {
			assertSuperset(t, resolved, resolver.ResolveRole(parent), string(role)+" <- "+string(parent))
		}
	}
}

func TestResolveRoleTransitiveInheritance(t *testing.T) {
	resolver := NewResolver(nil)
	resolved := resolver.ResolveRole(RoleAdmin)

	assert.True(t, resolved.HasAction(shared.PermUsersManage))
	assert.True(t, resolved.HasAction(shared.PermApprovalsReview), "from manager")
	assert.True(t, resolved.HasAction(shared.PermDocumentsManage), "from accountant")
	assert.True(t, resolved.HasAction(shared.PermAuditView), "from auditor")
	assert.True(t, resolved.HasAction(shared.PermAccountsView), "from viewer")
	assert.False(t, resolved.HasAction(shared.PermHRManage))
}

func TestResolveRoleCycleTerminates(t *testing.T) {
	matrix := Matrix{
		"a": {Inherits: []Role{"b"}, Routes: []string{"/a"}, Actions: []string{"a.view"}},
		"b": {Inherits: []Role{"a"}, Routes: []string{"/b"}, Actions: []string{"b.view"}},
	}
	resolver := NewResolver(matrix)

	resolved := resolver.ResolveRole("a")
	assert.True(t, resolved.Routes.Has("/a"))
	assert.True(t, resolved.Actions.Has("a.view"))
	assert.Equal(t, NewSet("/a", "/b"), resolved.Routes)
	assert.Equal(t, NewSet("a.view", "b.view"), resolved.Actions)
}

func TestResolveRoleSelfCycle(t *testing.T) {
	resolver := NewResolver(Matrix{"loop": {Inherits: []Role{"loop"}, Actions: []string{"x.view"}}})
	assert.Equal(t, NewSet("x.view"), resolver.ResolveRole("loop").Actions)
}

func TestResolveRoleUnknownIsEmpty(t *testing.T) {
	resolver := NewResolver(nil)
	assert.True(t, resolver.ResolveRole("nobody").Empty())

	resolver = NewResolver(Matrix{"child": {Inherits: []Role{"ghost"}, Actions: []string{"c.view"}}})
	assert.Equal(t, NewSet("c.view"), resolver.ResolveRole("child").Actions)
}

func TestFlattenPermissionsEmpty(t *testing.T) {
	resolved := NewResolver(nil).FlattenPermissions(nil)
	assert.Empty(t, resolved.Routes)
	assert.Empty(t, resolved.Actions)

	resolved = NewResolver(nil).FlattenPermissions([]Role{})
	assert.True(t, resolved.Empty())
}

func TestFlattenPermissionsOrderIndependentAndIdempotent(t *testing.T) {
	resolver := NewResolver(nil)
	first := resolver.FlattenPermissions([]Role{RoleHR, RoleAccountant, RoleTeamLeader})
	second := resolver.FlattenPermissions([]Role{RoleTeamLeader, RoleHR, RoleAccountant})
	third := resolver.FlattenPermissions([]Role{RoleHR, RoleAccountant, RoleTeamLeader})

	require.True(t, first.Equal(second))
	require.True(t, first.Equal(third))
	assertSuperset(t, first, resolver.ResolveRole(RoleHR), "hr")
	assertSuperset(t, first, resolver.ResolveRole(RoleTeamLeader), "team_leader")
}

func TestFlattenPermissionsPerBranchVisitedSets(t *testing.T) {
	matrix := Matrix{
		"a":    {Inherits: []Role{"base"}, Actions: []string{"a.view"}},
		"b":    {Inherits: []Role{"base"}, Actions: []string{"b.view"}},
		"base": {Actions: []string{"base.view"}},
	}
	resolved := NewResolver(matrix).FlattenPermissions([]Role{"a", "b"})
	assert.Equal(t, NewSet("a.view", "b.view", "base.view"), resolved.Actions)
}

func TestSuperAdminGrantsWholeVocabulary(t *testing.T) {
	resolved := NewResolver(nil).ResolveRole(RoleSuperAdmin)
	for _, code := range shared.AllPermissions() {
		assert.Truef(t, resolved.HasAction(code), "missing %s", code)
	}
	assert.True(t, resolved.Routes.Has(WildcardRoute))
}

func TestMatrixRolesSorted(t *testing.T) {
	roles := DefaultMatrix().Roles()
	require.Len(t, roles, 8)
	assert.Equal(t, RoleAccountant, roles[0])
	assert.True(t, DefaultMatrix().Has(RoleViewer))
	assert.False(t, DefaultMatrix().Has("ghost"))
}

func TestMatrixActionsBelongToVocabulary(t *testing.T) {
	for role, def := range DefaultMatrix() {
		for _, code := range def.Actions {
			assert.Truef(t, shared.IsKnownPermission(code), "%s declares unknown action %s", role, code)
		}
	}
}
