package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T) (*OnlineMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewOnlineMirror(rdb, "ps", "node-a", time.Minute), mr
}

func TestOnlineOfflineLookup(t *testing.T) {
	m, mr := newMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Online(ctx, 7, "c1"))
	node, conn, ok, err := m.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "node-a", node)
	assert.Equal(t, "c1", conn)
	assert.True(t, mr.Exists("ps:presence:7"))

	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, ids)

	done, err := m.Offline(ctx, 7, "c1")
	require.NoError(t, err)
	assert.True(t, done)
	_, _, ok, err = m.Lookup(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOfflineOfSupersededConnKeepsNewer(t *testing.T) {
	m, _ := newMirror(t)
	ctx := context.Background()

	require.NoError(t, m.Online(ctx, 1, "old"))
	require.NoError(t, m.Online(ctx, 1, "new"))

	done, err := m.Offline(ctx, 1, "old")
	require.NoError(t, err)
	assert.False(t, done)

	_, conn, ok, err := m.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", conn)
}

func TestListDropsStaleMembers(t *testing.T) {
	m, _ := newMirror(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	m.now = func() time.Time { return base }
	require.NoError(t, m.Refresh(ctx, map[int64]string{3: "a", 4: "b"}))

	m.now = func() time.Time { return base.Add(30 * time.Second) }
	require.NoError(t, m.Online(ctx, 5, "c"))

	m.now = func() time.Time { return base.Add(90 * time.Second) }
	ids, err := m.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
}
