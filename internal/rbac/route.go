package rbac

import (
	"regexp"
	"strings"
	"sync"
)

// WildcardRoute matches every path.
const WildcardRoute = "*"

var dynamicSegment = regexp.MustCompile(`:[^/]+`)

// RouteMatcher is a compiled route pattern.
type RouteMatcher struct {
	pattern string
	any     bool
	re      *regexp.Regexp
}

// CompileRoute turns a route pattern into an anchored matcher.
//
// ":name" tokens match exactly one non-empty path segment, a trailing "*"
// matches any suffix including slashes, and everything else is literal.
func CompileRoute(pattern string) *RouteMatcher {
	if pattern == WildcardRoute {
		return &RouteMatcher{pattern: pattern, any: true}
	}
	body := pattern
	suffix := false
	if strings.HasSuffix(body, "*") {
		body = strings.TrimSuffix(body, "*")
		suffix = true
	}

	var expr strings.Builder
	expr.WriteString("^")
	last := 0
	for _, loc := range dynamicSegment.FindAllStringIndex(body, -1) {
		expr.WriteString(regexp.QuoteMeta(body[last:loc[0]]))
		expr.WriteString(`[^/]+`)
		last = loc[1]
	}
	expr.WriteString(regexp.QuoteMeta(body[last:]))
	if suffix {
		expr.WriteString(".*")
	}
	expr.WriteString("$")

	return &RouteMatcher{pattern: pattern, re: regexp.MustCompile(expr.String())}
}

// Pattern returns the source pattern.
func (m *RouteMatcher) Pattern() string {
	return m.pattern
}

// Match reports whether pathname is fully matched.
func (m *RouteMatcher) Match(pathname string) bool {
	if m == nil {
		return false
	}
	if m.any {
		return true
	}
	return m.re.MatchString(pathname)
}

// matcherCache keeps one compiled matcher per distinct pattern.
type matcherCache struct {
	mu       sync.RWMutex
	matchers map[string]*RouteMatcher
}

func newMatcherCache() *matcherCache {
	return &matcherCache{matchers: make(map[string]*RouteMatcher)}
}

func (c *matcherCache) get(pattern string) *RouteMatcher {
	c.mu.RLock()
	m, ok := c.matchers[pattern]
	c.mu.RUnlock()
	if ok {
		return m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.matchers[pattern]; ok {
		return m
	}
	m = CompileRoute(pattern)
	c.matchers[pattern] = m
	return m
}

func (c *matcherCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matchers)
}
