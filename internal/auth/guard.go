package auth

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
)

// DefaultPublicRoutes are open to any authenticated user.
var DefaultPublicRoutes = []string{"/dashboard", "/profile"}

// DefaultGuardCacheSize bounds each guard memo cache.
const DefaultGuardCacheSize = 1024

// Grant is the authorization input of a Guard.
type Grant struct {
	Authenticated bool
	SuperAdmin    bool
	// Permissions is nil while roles are unresolved.
	Permissions *rbac.ResolvedRole
}

// Guard answers route and action checks for one identity and memoizes the
// decisions until the grant changes.
type Guard struct {
	resolver *rbac.Resolver
	public   []string

	mu      sync.RWMutex
	grant   Grant
	routes  *lru.Cache[string, bool]
	actions *lru.Cache[string, bool]
}

// NewGuard constructs a Guard. A nil publicRoutes uses DefaultPublicRoutes.
func NewGuard(resolver *rbac.Resolver, publicRoutes []string, cacheSize int) (*Guard, error) {
	if resolver == nil {
		return nil, fmt.Errorf("auth: guard requires resolver")
	}
	if publicRoutes == nil {
		publicRoutes = DefaultPublicRoutes
	}
	if cacheSize <= 0 {
		cacheSize = DefaultGuardCacheSize
	}
	routes, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("auth: route cache: %w", err)
	}
	actions, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("auth: action cache: %w", err)
	}
	return &Guard{
		resolver: resolver,
		public:   append([]string(nil), publicRoutes...),
		routes:   routes,
		actions:  actions,
	}, nil
}

// Update replaces the grant and clears both memo caches.
func (g *Guard) Update(grant Grant) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grant = grant
	g.routes.Purge()
	g.actions.Purge()
}

// HasRouteAccess reports whether pathname may be visited.
func (g *Guard) HasRouteAccess(pathname string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.grant.Authenticated {
		return false
	}
	if g.grant.SuperAdmin {
		return true
	}
	if allowed, ok := g.routes.Get(pathname); ok {
		return allowed
	}
	allowed := IsPublicRoute(g.public, pathname)
	if !allowed && g.grant.Permissions != nil {
		allowed = g.resolver.MatchRoute(*g.grant.Permissions, pathname)
	}
	g.routes.Add(pathname, allowed)
	return allowed
}

// HasActionAccess reports whether the action code is granted.
func (g *Guard) HasActionAccess(action string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.grant.Authenticated {
		return false
	}
	if g.grant.SuperAdmin {
		return true
	}
	if allowed, ok := g.actions.Get(action); ok {
		return allowed
	}
	allowed := g.grant.Permissions != nil && g.grant.Permissions.HasAction(action)
	g.actions.Add(action, allowed)
	return allowed
}

// IsPublicRoute reports whether pathname equals or sits below a public prefix.
// The root prefix "/" only matches the root path itself.
func IsPublicRoute(prefixes []string, pathname string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			if pathname == "/" {
				return true
			}
			continue
		}
		if pathname == prefix || strings.HasPrefix(pathname, prefix+"/") {
			return true
		}
	}
	return false
}
