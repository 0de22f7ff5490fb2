package rbac

import "errors"

// SnapshotVersion stamps persisted snapshots. Bump it whenever the matrix or
// the snapshot shape changes so stale client caches are discarded.
const SnapshotVersion = 3

// ErrSnapshotVersion reports a snapshot built by a different schema version.
var ErrSnapshotVersion = errors.New("rbac: snapshot version mismatch")

// PermissionSnapshot is the persisted projection of a resolved role bundle.
type PermissionSnapshot struct {
	Version int      `json:"version"`
	Roles   []Role   `json:"roles"`
	Routes  []string `json:"routes"`
	Actions []string `json:"actions"`
}

// BuildSnapshot resolves roles and stamps the result with SnapshotVersion.
func (r *Resolver) BuildSnapshot(roles []Role) PermissionSnapshot {
	resolved := r.FlattenPermissions(roles)
	return PermissionSnapshot{
		Version: SnapshotVersion,
		Roles:   append([]Role(nil), roles...),
		Routes:  resolved.Routes.Sorted(),
		Actions: resolved.Actions.Sorted(),
	}
}

// HydrateSnapshot restores a ResolvedRole. It returns false for a nil
// snapshot or one whose version differs from SnapshotVersion.
func HydrateSnapshot(snapshot *PermissionSnapshot) (ResolvedRole, bool) {
	if snapshot == nil || snapshot.Version != SnapshotVersion {
		return ResolvedRole{}, false
	}
	return ResolvedRole{
		Routes:  NewSet(snapshot.Routes...),
		Actions: NewSet(snapshot.Actions...),
	}, true
}

// Validate returns ErrSnapshotVersion when the snapshot cannot be hydrated.
func (s *PermissionSnapshot) Validate() error {
	if s == nil || s.Version != SnapshotVersion {
		return ErrSnapshotVersion
	}
	return nil
}
