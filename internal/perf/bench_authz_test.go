package perf

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/odyssey-erp/ledger-authz/internal/auth"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/session"
	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

func allPermissions() []session.Permission {
	codes := shared.AllPermissions()
	perms := make([]session.Permission, 0, len(codes))
	for _, code := range codes {
		perms = append(perms, session.PermissionFromCode(code))
	}
	return perms
}

func TestPermissionCheckLatencyTargets(t *testing.T) {
	manager := session.NewManager(session.Config{}, nil, nil)
	sess := manager.Create(session.AuthPayload{UserID: "u1", Email: "ana@example.com", Permissions: allPermissions()})

	samples := make([]time.Duration, 0, 20)
	for round := 0; round < 20; round++ {
		start := time.Now()
		for i := 0; i < 1000; i++ {
			manager.HasPermission(sess.ID, "transactions", "create")
		}
		samples = append(samples, time.Since(start))
	}

	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("permission check regression: p95=%s per 1000 checks", p95)
	}
}

func TestRouteGuardLatencyTargets(t *testing.T) {
	resolver := rbac.NewResolver(nil)
	guard, err := auth.NewGuard(resolver, nil, 0)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	resolved := resolver.FlattenPermissions([]rbac.Role{rbac.RoleManager})
	guard.Update(auth.Grant{Authenticated: true, Permissions: &resolved})

	paths := []string{"/transactions/abc123", "/reports/x/y/z", "/users", "/approvals/42", "/documents"}
	samples := make([]time.Duration, 0, 20)
	for round := 0; round < 20; round++ {
		start := time.Now()
		for i := 0; i < 1000; i++ {
			guard.HasRouteAccess(paths[i%len(paths)])
		}
		samples = append(samples, time.Since(start))
	}

	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("route guard regression: p95=%s per 1000 checks", p95)
	}
}

func BenchmarkHasPermission(b *testing.B) {
	manager := session.NewManager(session.Config{}, nil, nil)
	sess := manager.Create(session.AuthPayload{UserID: "u1", Email: "ana@example.com", Permissions: allPermissions()})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		manager.HasPermission(sess.ID, "reports", "export")
	}
}

func BenchmarkFlattenPermissions(b *testing.B) {
	resolver := rbac.NewResolver(nil)
	roles := []rbac.Role{rbac.RoleManager, rbac.RoleHR}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resolver.FlattenPermissions(roles)
	}
}

func BenchmarkCachedFlatten(b *testing.B) {
	cache, err := rbac.NewCache(rbac.NewResolver(nil), 0, nil)
	if err != nil {
		b.Fatalf("new cache: %v", err)
	}
	roles := []rbac.Role{rbac.RoleManager, rbac.RoleHR}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cache.Flatten(ctx, roles); err != nil {
			b.Fatalf("flatten: %v", err)
		}
	}
}

func BenchmarkMatchRoute(b *testing.B) {
	resolver := rbac.NewResolver(nil)
	resolved := resolver.FlattenPermissions([]rbac.Role{rbac.RoleAccountant})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resolver.MatchRoute(resolved, "/transactions/abc123/edit")
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
