package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults applied by NewManager.
const (
	DefaultTTL             = 12 * time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	DefaultMemoryTarget    = 950_000
)

// Config tunes a Manager.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	BitmapBytes     int
	// MemoryTarget is the soft average per-session footprint in bytes.
	MemoryTarget int64
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.BitmapBytes <= 0 {
		c.BitmapBytes = DefaultBitmapBytes
	}
	if c.MemoryTarget <= 0 {
		c.MemoryTarget = DefaultMemoryTarget
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Manager owns compressed sessions keyed by session id.
//
// Each session numbers its permissions sequentially from bit 0 in input
// order, so any session holding up to capacity permissions stores all of them.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.RWMutex
	sessions map[string]*OptimizedSession
}

// NewManager constructs a Manager. logger and metrics may be nil.
func NewManager(cfg Config, logger *slog.Logger, metrics *Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		metrics:  metrics,
		sessions: make(map[string]*OptimizedSession),
	}
}

// TTL exposes the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Create compresses payload into a new registered session. Permissions that
// do not fit in the bitmap are listed in the session's Dropped field.
func (m *Manager) Create(payload AuthPayload) *OptimizedSession {
	now := m.cfg.Now()
	data := &CompressedSessionData{
		UserID:               payload.UserID,
		Email:                payload.Email,
		DisplayName:          payload.DisplayName,
		ActiveOrganizationID: payload.ActiveOrganizationID,
		ActiveProjectID:      payload.ActiveProjectID,
		Bitmap:               NewBitmap(m.cfg.BitmapBytes),
		Index:                make(map[int]string, len(payload.Permissions)),
		positions:            make(map[string]int, len(payload.Permissions)),
	}

	var dropped []Permission
	for _, perm := range payload.Permissions {
		key := perm.Key()
		if _, seen := data.positions[key]; seen {
			continue
		}
		pos := len(data.positions)
		if err := data.Bitmap.Set(pos); err != nil {
			dropped = append(dropped, perm)
			continue
		}
		data.positions[key] = pos
		data.Index[pos] = key
	}
	if len(payload.Roles) > 0 {
		data.Roles = append([]ScopedRole(nil), payload.Roles...)
	}
	if len(payload.Organizations) > 0 {
		data.Organizations = append([]Organization(nil), payload.Organizations...)
	}
	if len(payload.Projects) > 0 {
		data.Projects = append([]Project(nil), payload.Projects...)
	}

	sess := &OptimizedSession{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
		Dropped:   dropped,
	}
	sess.touch(now)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.setActive(count)

	if len(dropped) > 0 {
		m.metrics.addDropped(len(dropped))
		m.logger.Warn("session capacity exceeded",
			slog.String("user_id", payload.UserID),
			slog.Int("capacity", data.Bitmap.Capacity()),
			slog.Int("dropped", len(dropped)))
	}
	return sess
}

func (m *Manager) lookup(id string) (*OptimizedSession, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || sess.Expired(m.cfg.Now()) {
		return nil, false
	}
	return sess, true
}

// Get returns the session and bumps its last-accessed time. Expired sessions
// that the sweep has not yet removed are reported as absent.
func (m *Manager) Get(id string) (*OptimizedSession, bool) {
	sess, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	sess.touch(m.cfg.Now())
	return sess, true
}

// HasPermission reports whether the session holds resource:action.
func (m *Manager) HasPermission(id, resource, action string) bool {
	granted := m.hasPermission(id, resource, action)
	m.metrics.check(granted)
	return granted
}

func (m *Manager) hasPermission(id, resource, action string) bool {
	sess, ok := m.lookup(id)
	if !ok {
		return false
	}
	pos, ok := sess.Data.positions[PermissionKey(resource, action)]
	if !ok {
		return false
	}
	return sess.Data.Bitmap.Has(pos)
}

// LoadPermissions decodes the session bitmap back into permissions.
func (m *Manager) LoadPermissions(id string) ([]Permission, bool) {
	sess, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	data := sess.Data
	perms := make([]Permission, 0, data.Bitmap.Count())
	for pos := 0; pos < data.Bitmap.Capacity(); pos++ {
		if !data.Bitmap.Has(pos) {
			continue
		}
		key, ok := data.Index[pos]
		if !ok {
			continue
		}
		perms = append(perms, ParsePermissionKey(key))
	}
	data.markMaterialized(ComponentPermissions)
	return perms, true
}

// LoadRoles returns the scoped roles of a session when present.
func (m *Manager) LoadRoles(id string) ([]ScopedRole, bool) {
	sess, ok := m.lookup(id)
	if !ok || sess.Data.Roles == nil {
		return nil, false
	}
	sess.Data.markMaterialized(ComponentRoles)
	return append([]ScopedRole(nil), sess.Data.Roles...), true
}

// LoadOrganizations returns the organizations of a session when present.
func (m *Manager) LoadOrganizations(id string) ([]Organization, bool) {
	sess, ok := m.lookup(id)
	if !ok || sess.Data.Organizations == nil {
		return nil, false
	}
	sess.Data.markMaterialized(ComponentOrganizations)
	return append([]Organization(nil), sess.Data.Organizations...), true
}

// LoadProjects returns the projects of a session when present.
func (m *Manager) LoadProjects(id string) ([]Project, bool) {
	sess, ok := m.lookup(id)
	if !ok || sess.Data.Projects == nil {
		return nil, false
	}
	sess.Data.markMaterialized(ComponentProjects)
	return append([]Project(nil), sess.Data.Projects...), true
}

// LoadComponent dispatches to the typed loaders.
func (m *Manager) LoadComponent(id string, component Component) (any, bool) {
	switch component {
	case ComponentPermissions:
		return m.LoadPermissions(id)
	case ComponentRoles:
		return m.LoadRoles(id)
	case ComponentOrganizations:
		return m.LoadOrganizations(id)
	case ComponentProjects:
		return m.LoadProjects(id)
	}
	return nil, false
}

// Invalidate removes the session. Unknown ids are ignored.
func (m *Manager) Invalidate(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.setActive(count)
}

// CleanupExpired removes every session whose expiry is at or before now and
// returns how many were removed.
func (m *Manager) CleanupExpired() int {
	now := m.cfg.Now()
	m.mu.Lock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.setActive(count)
	m.metrics.addExpired(removed)
	if removed > 0 {
		m.logger.Debug("expired sessions removed", slog.Int("removed", removed), slog.Int("remaining", count))
	}
	return removed
}

// Run sweeps expired sessions and refreshes the memory estimate on the
// cleanup interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpired()
			m.MemoryUsage()
		}
	}
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) snapshot() []*OptimizedSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*OptimizedSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}
