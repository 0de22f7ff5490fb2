package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
)

func newTestStore(t *testing.T) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSnapshotStore(client, time.Hour, nil), mr
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	resolver := rbac.NewResolver(nil)
	roles := []rbac.Role{rbac.RoleAccountant, rbac.RoleHR}

	missing, err := store.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.SaveSnapshot(ctx, "u1", resolver.BuildSnapshot(roles)))
	assert.Equal(t, time.Hour, mr.TTL(snapshotKey("u1")))

	loaded, err := store.LoadSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	hydrated, ok := rbac.HydrateSnapshot(loaded)
	require.True(t, ok)
	assert.True(t, hydrated.Equal(resolver.FlattenPermissions(roles)))

	require.NoError(t, store.DeleteSnapshot(ctx, "u1"))
	assert.False(t, mr.Exists(snapshotKey("u1")))
}

func TestSnapshotStoreDiscardsStaleEntries(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(snapshotKey("old"), `{"version":1,"roles":["viewer"],"routes":[],"actions":[]}`))
	require.NoError(t, mr.Set(snapshotKey("junk"), `not json`))

	for _, user := range []string{"old", "junk"} {
		loaded, err := store.LoadSnapshot(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, loaded, user)
		assert.False(t, mr.Exists(snapshotKey(user)), user)
	}
}

func TestSnapshotStoreReportsConnectionErrors(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.LoadSnapshot(context.Background(), "u1")
	require.Error(t, err)
	require.Error(t, store.SaveSnapshot(context.Background(), "u1", rbac.PermissionSnapshot{Version: rbac.SnapshotVersion}))
}
