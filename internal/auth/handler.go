package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/ledger-authz/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-authz/internal/rbac"
	"github.com/odyssey-erp/ledger-authz/internal/session"
	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

// DefaultCookieName carries the compressed session id.
const DefaultCookieName = "authz_session"

// HandlerConfig wires the collaborators of a Handler.
type HandlerConfig struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Loader        *Loader
	Cache         *rbac.Cache
	Memberships   MembershipSource
	Sessions      *session.Manager
	Snapshots     SnapshotStore
	PublicRoutes  []string
	CookieName    string
	SecureCookie  bool
	// LoginRateLimit is the number of login attempts per IP per minute.
	LoginRateLimit  int
	RoleLoadTimeout time.Duration
}

// Handler exposes login, logout, and access checks over HTTP.
type Handler struct {
	logger      *slog.Logger
	auth        Authenticator
	loader      *Loader
	cache       *rbac.Cache
	memberships MembershipSource
	sessions    *session.Manager
	snapshots   SnapshotStore
	public      []string
	cookieName  string
	secure      bool
	loginLimit  int
	loadTimeout time.Duration
	validator   *validator.Validate
	rbac        rbac.Middleware
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Authenticator == nil || cfg.Loader == nil || cfg.Cache == nil || cfg.Sessions == nil {
		return nil, errors.New("auth: handler requires authenticator, loader, cache, and sessions")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	public := cfg.PublicRoutes
	if public == nil {
		public = DefaultPublicRoutes
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	limit := cfg.LoginRateLimit
	if limit <= 0 {
		limit = 10
	}
	timeout := cfg.RoleLoadTimeout
	if timeout <= 0 {
		timeout = DefaultRoleLoadTimeout
	}
	return &Handler{
		logger:      logger,
		auth:        cfg.Authenticator,
		loader:      cfg.Loader,
		cache:       cfg.Cache,
		memberships: cfg.Memberships,
		sessions:    cfg.Sessions,
		snapshots:   cfg.Snapshots,
		public:      public,
		cookieName:  cookieName,
		secure:      cfg.SecureCookie,
		loginLimit:  limit,
		loadTimeout: timeout,
		validator:   validator.New(),
		rbac:        rbac.Middleware{Checker: cfg.Sessions, Logger: logger},
	}, nil
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.loginLimit, time.Minute)).Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Post("/logout", h.handleLogout)
		r.Get("/session", h.handleSession)
		r.Get("/access/route", h.handleRouteAccess)
		r.Get("/access/action", h.handleActionAccess)
		r.Get("/components/{component}", h.handleComponent)
		r.Get("/snapshot", h.handleSnapshot)
		r.With(h.rbac.RequireAny(shared.PermSettingsManage)).Get("/stats", h.handleStats)
	})
}

// RequireSession resolves the session id from the cookie or a bearer token
// and rejects requests without a live session.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.sessionID(r)
		if id == "" {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		if _, ok := h.sessions.Get(id); !ok {
			h.clearCookie(w)
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithSessionID(r.Context(), id)))
	})
}

func (h *Handler) sessionID(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(h.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	SessionID string               `json:"session_id"`
	ExpiresAt time.Time            `json:"expires_at"`
	User      User                 `json:"user"`
	Roles     []rbac.Role          `json:"roles"`
	Degraded  bool                 `json:"degraded,omitempty"`
	Dropped   []session.Permission `json:"dropped,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	req.Email = NormalizeEmail(req.Email)
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, validationMessage(err)))
		return
	}

	account, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("login rejected", slog.String("email", req.Email))
		httpx.RespondError(w, err)
		return
	}
	user := User{ID: account.ID, Email: account.Email}

	ctx, cancel := context.WithTimeout(r.Context(), h.loadTimeout)
	defer cancel()
	data := h.loader.Load(ctx, user)

	payload := session.AuthPayload{
		UserID:      user.ID,
		Email:       user.Email,
		Permissions: permissionsOf(data.Permissions),
		Roles:       scopedRoles(data),
	}
	if data.Profile != nil {
		payload.DisplayName = data.Profile.DisplayName
		payload.ActiveOrganizationID = data.Profile.ActiveOrganizationID
		payload.ActiveProjectID = data.Profile.ActiveProjectID
	}
	if h.memberships != nil {
		orgs, projects, err := h.memberships.QueryMemberships(ctx, user.ID)
		if err != nil {
			h.logger.Warn("load memberships", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		payload.Organizations = orgs
		payload.Projects = projects
	}
	if err := h.validator.Struct(payload); err != nil {
		h.logger.Error("invalid session payload", slog.String("user_id", user.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	sess := h.sessions.Create(payload)
	if h.snapshots != nil && !data.Degraded && !data.Fallback {
		snapshot := h.cache.Resolver().BuildSnapshot(data.Roles)
		if err := h.snapshots.SaveSnapshot(r.Context(), user.ID, snapshot); err != nil {
			h.logger.Warn("save permission snapshot", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("login succeeded", slog.String("user_id", user.ID), slog.Int("permissions", len(payload.Permissions)))
	httpx.JSON(w, http.StatusOK, loginResponse{
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
		User:      user,
		Roles:     data.Roles,
		Degraded:  data.Degraded,
		Dropped:   sess.Dropped,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Invalidate(shared.SessionIDFromContext(r.Context()))
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	SessionID            string    `json:"session_id"`
	UserID               string    `json:"user_id"`
	Email                string    `json:"email"`
	DisplayName          string    `json:"display_name,omitempty"`
	ActiveOrganizationID string    `json:"active_organization_id,omitempty"`
	ActiveProjectID      string    `json:"active_project_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	ExpiresAt            time.Time `json:"expires_at"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Get(shared.SessionIDFromContext(r.Context()))
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		SessionID:            sess.ID,
		UserID:               sess.Data.UserID,
		Email:                sess.Data.Email,
		DisplayName:          sess.Data.DisplayName,
		ActiveOrganizationID: sess.Data.ActiveOrganizationID,
		ActiveProjectID:      sess.Data.ActiveProjectID,
		CreatedAt:            sess.CreatedAt,
		ExpiresAt:            sess.ExpiresAt,
	})
}

type accessResponse struct {
	Target  string `json:"target"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) handleRouteAccess(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		httpx.RespondError(w, fmt.Errorf("%w: path is required", httpx.ErrValidation))
		return
	}
	allowed, err := h.routeAllowed(r.Context(), shared.SessionIDFromContext(r.Context()), path)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accessResponse{Target: path, Allowed: allowed})
}

func (h *Handler) routeAllowed(ctx context.Context, sessionID, path string) (bool, error) {
	roles, ok := h.sessionRoles(sessionID)
	if !ok {
		return false, shared.ErrUnauthenticated
	}
	if hasRole(roles, rbac.RoleSuperAdmin) || IsPublicRoute(h.public, path) {
		return true, nil
	}
	resolved, err := h.cache.Flatten(ctx, roles)
	if err != nil {
		return false, err
	}
	return h.cache.Resolver().MatchRoute(resolved, path), nil
}

func (h *Handler) handleActionAccess(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimSpace(r.URL.Query().Get("resource"))
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if resource == "" || action == "" {
		httpx.RespondError(w, fmt.Errorf("%w: resource and action are required", httpx.ErrValidation))
		return
	}
	allowed := h.sessions.HasPermission(shared.SessionIDFromContext(r.Context()), resource, action)
	httpx.JSON(w, http.StatusOK, accessResponse{Target: resource + "." + action, Allowed: allowed})
}

type permissionView struct {
	session.Permission
	Label string `json:"label"`
}

func (h *Handler) handleComponent(w http.ResponseWriter, r *http.Request) {
	component, ok := session.ParseComponent(chi.URLParam(r, "component"))
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: unknown component", httpx.ErrValidation))
		return
	}
	value, ok := h.sessions.LoadComponent(shared.SessionIDFromContext(r.Context()), component)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("component %s: %w", component, shared.ErrNotFound))
		return
	}
	if perms, isPerms := value.([]session.Permission); isPerms {
		views := make([]permissionView, 0, len(perms))
		for _, p := range perms {
			views = append(views, permissionView{Permission: p, Label: rbac.DisplayName(p.Resource + "." + p.Action)})
		}
		value = views
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"component": component, "data": value})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	roles, ok := h.sessionRoles(shared.SessionIDFromContext(r.Context()))
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, h.cache.Resolver().BuildSnapshot(roles))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.sessions.MemoryUsage())
}

func (h *Handler) sessionRoles(sessionID string) ([]rbac.Role, bool) {
	if _, ok := h.sessions.Get(sessionID); !ok {
		return nil, false
	}
	scoped, _ := h.sessions.LoadRoles(sessionID)
	seen := make(map[rbac.Role]struct{}, len(scoped))
	roles := make([]rbac.Role, 0, len(scoped))
	for _, s := range scoped {
		if _, dup := seen[s.Role]; dup {
			continue
		}
		seen[s.Role] = struct{}{}
		roles = append(roles, s.Role)
	}
	return roles, true
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func permissionsOf(resolved rbac.ResolvedRole) []session.Permission {
	codes := resolved.Actions.Sorted()
	perms := make([]session.Permission, 0, len(codes))
	for _, code := range codes {
		perms = append(perms, session.PermissionFromCode(code))
	}
	return perms
}

// scopedRoles keeps assignment scopes when the assignments produced the
// roles, and lists the effective roles unscoped otherwise.
func scopedRoles(data AuthData) []session.ScopedRole {
	if !data.SuperAdmin && !data.Fallback && len(data.Assignments) > 0 {
		out := make([]session.ScopedRole, 0, len(data.Assignments))
		for _, a := range data.Assignments {
			role := rbac.ParseRole(string(a.Role))
			if role == "" {
				continue
			}
			out = append(out, session.ScopedRole{Role: role, OrganizationID: a.OrganizationID, ProjectID: a.ProjectID})
		}
		return out
	}
	out := make([]session.ScopedRole, 0, len(data.Roles))
	for _, role := range data.Roles {
		out = append(out, session.ScopedRole{Role: role})
	}
	return out
}

func hasRole(roles []rbac.Role, target rbac.Role) bool {
	for _, role := range roles {
		if role == target {
			return true
		}
	}
	return false
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return strings.Join(fields, ", ")
}
