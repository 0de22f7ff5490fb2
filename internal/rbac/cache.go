package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of distinct role bundles kept resolved.
const DefaultCacheSize = 256

// Cache memoizes FlattenPermissions per role bundle. Concurrent misses for
// the same bundle share one resolution. Returned values are shared and must
// not be mutated.
type Cache struct {
	resolver *Resolver
	entries  *lru.Cache[string, ResolvedRole]
	group    singleflight.Group
	metrics  *CacheMetrics
}

// NewCache wraps resolver with a bounded cache. metrics may be nil.
func NewCache(resolver *Resolver, size int, metrics *CacheMetrics) (*Cache, error) {
	if resolver == nil {
		return nil, fmt.Errorf("rbac: cache requires resolver")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, ResolvedRole](size)
	if err != nil {
		return nil, fmt.Errorf("rbac: new cache: %w", err)
	}
	return &Cache{resolver: resolver, entries: entries, metrics: metrics}, nil
}

// Resolver returns the wrapped resolver.
func (c *Cache) Resolver() *Resolver {
	return c.resolver
}

// Flatten returns the cached resolution of roles, resolving on a miss.
func (c *Cache) Flatten(ctx context.Context, roles []Role) (ResolvedRole, error) {
	key := BundleKey(roles)
	if resolved, ok := c.entries.Get(key); ok {
		c.metrics.hit()
		return resolved, nil
	}
	c.metrics.miss()

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		resolved := c.resolver.FlattenPermissions(roles)
		c.entries.Add(key, resolved)
		return resolved, nil
	})
	select {
	case <-ctx.Done():
		return ResolvedRole{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return ResolvedRole{}, res.Err
		}
		return res.Val.(ResolvedRole), nil
	}
}

// Purge drops every cached bundle.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len returns the number of cached bundles.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// BundleKey builds an order-independent key for a role list.
func BundleKey(roles []Role) string {
	unique := make(map[Role]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		if _, ok := unique[role]; ok {
			continue
		}
		unique[role] = struct{}{}
		names = append(names, string(role))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
