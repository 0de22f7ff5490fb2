package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
)

// DefaultSnapshotTTL is how long a stored permission snapshot is kept.
const DefaultSnapshotTTL = 7 * 24 * time.Hour

const snapshotKeyPrefix = "authz:snapshot:"

// SnapshotStore persists permission snapshots in Redis as JSON.
type SnapshotStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewSnapshotStore constructs a SnapshotStore.
func NewSnapshotStore(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{client: client, ttl: ttl, logger: logger}
}

func snapshotKey(userID string) string {
	return snapshotKeyPrefix + userID
}

// LoadSnapshot returns the stored snapshot of userID. Missing, malformed, or
// outdated entries yield nil; the last two are also deleted.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, userID string) (*rbac.PermissionSnapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("platform/cache: get snapshot: %w", err)
	}
	var snapshot rbac.PermissionSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil || snapshot.Validate() != nil {
		s.logger.Info("discarding stale permission snapshot", slog.String("user_id", userID))
		if delErr := s.client.Del(ctx, snapshotKey(userID)).Err(); delErr != nil {
			return nil, fmt.Errorf("platform/cache: delete snapshot: %w", delErr)
		}
		return nil, nil
	}
	return &snapshot, nil
}

// SaveSnapshot stores snapshot for userID with the configured TTL.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, userID string, snapshot rbac.PermissionSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("platform/cache: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(userID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("platform/cache: set snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes the snapshot of userID.
func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, snapshotKey(userID)).Err(); err != nil {
		return fmt.Errorf("platform/cache: delete snapshot: %w", err)
	}
	return nil
}
