package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-authz/internal/auth"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

type stubSource struct {
	profileFn func(ctx context.Context, userID string) (*auth.Profile, error)
	rolesFn   func(ctx context.Context, userID string) ([]auth.RoleAssignment, error)
}

func (s *stubSource) QueryProfile(ctx context.Context, userID string) (*auth.Profile, error) {
	if s.profileFn == nil {
		return nil, shared.ErrNotFound
	}
	return s.profileFn(ctx, userID)
}

func (s *stubSource) QueryUserRoleAssignments(ctx context.Context, userID string) ([]auth.RoleAssignment, error) {
	if s.rolesFn == nil {
		return nil, nil
	}
	return s.rolesFn(ctx, userID)
}

func assignments(userID string, roles ...rbac.Role) func(context.Context, string) ([]auth.RoleAssignment, error) {
	return func(context.Context, string) ([]auth.RoleAssignment, error) {
		out := make([]auth.RoleAssignment, 0, len(roles))
		for _, role := range roles {
			out = append(out, auth.RoleAssignment{UserID: userID, Role: role})
		}
		return out, nil
	}
}

type stubProvider struct {
	currentFn func(ctx context.Context) (*auth.Session, error)
	signInErr error

	mu          sync.Mutex
	subscribers map[int]func(auth.Event, *auth.Session)
	next        int
}

func newStubProvider() *stubProvider {
	return &stubProvider{subscribers: make(map[int]func(auth.Event, *auth.Session))}
}

func (p *stubProvider) CurrentSession(ctx context.Context) (*auth.Session, error) {
	if p.currentFn == nil {
		return nil, nil
	}
	return p.currentFn(ctx)
}

func (p *stubProvider) SubscribeToAuthChanges(fn func(auth.Event, *auth.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	p.subscribers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

func (p *stubProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	sess := &auth.Session{AccessToken: "token", User: auth.User{ID: "user-" + email, Email: email}}
	p.emit(auth.EventSignedIn, sess)
	return sess, nil
}

func (p *stubProvider) SignOut(ctx context.Context) error {
	p.emit(auth.EventSignedOut, nil)
	return nil
}

func (p *stubProvider) subscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

func (p *stubProvider) emit(event auth.Event, sess *auth.Session) {
	p.mu.Lock()
	fns := make([]func(auth.Event, *auth.Session), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(event, sess)
	}
}

type memorySnapshots struct {
	mu    sync.Mutex
	items map[string]rbac.PermissionSnapshot
	saves int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{items: make(map[string]rbac.PermissionSnapshot)}
}

func (m *memorySnapshots) LoadSnapshot(ctx context.Context, userID string) (*rbac.PermissionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.items[userID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func (m *memorySnapshots) SaveSnapshot(ctx context.Context, userID string, snapshot rbac.PermissionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[userID] = snapshot
	m.saves++
	return nil
}

func (m *memorySnapshots) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func newLoader(t *testing.T, source auth.DataSource, cfg auth.LoaderConfig) *auth.Loader {
	t.Helper()
	cache, err := rbac.NewCache(rbac.NewResolver(nil), 16, nil)
	require.NoError(t, err)
	return auth.NewLoader(source, cache, cfg, nil)
}

func newGuard(t *testing.T) *auth.Guard {
	t.Helper()
	guard, err := auth.NewGuard(rbac.NewResolver(nil), nil, 32)
	require.NoError(t, err)
	return guard
}
