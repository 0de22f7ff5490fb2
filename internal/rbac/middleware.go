package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

// PermissionChecker answers permission presence for a session.
type PermissionChecker interface {
	HasPermission(sessionID, resource, action string) bool
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Checker PermissionChecker
	Logger  *slog.Logger
}

// RequireAny ensures the current session has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			sessionID := shared.SessionIDFromContext(r.Context())
			if sessionID == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, code := range normalized {
				if m.granted(sessionID, code) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, normalized)
		})
	}
}

// RequireAll ensures the current session has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			sessionID := shared.SessionIDFromContext(r.Context())
			if sessionID == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			for _, code := range normalized {
				if !m.granted(sessionID, code) {
					m.deny(w, r, normalized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) granted(sessionID, code string) bool {
	if m.Checker == nil {
		return false
	}
	resource, action := SplitAction(code)
	return m.Checker.HasPermission(sessionID, resource, action)
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, required []string) {
	if m.Logger != nil {
		m.Logger.Debug("rbac denied", slog.String("path", r.URL.Path), slog.Any("required", required))
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
