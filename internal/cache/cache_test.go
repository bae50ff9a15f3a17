package cache_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legnaleurc/faststart/internal/cache"
	"github.com/legnaleurc/faststart/internal/model"
)

func newTestCache(t *testing.T) *cache.SQLiteCache {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), cache.FileName)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	c, err := cache.Open(context.Background(), dbPath, logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestCacheLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	item := model.FileItem{ID: "abc", Name: "movie.mp4"}

	has, err := c.HasCache(ctx, item)
	require.NoError(t, err)
	require.False(t, has)

	migrated, err := c.IsMigrated(ctx, item)
	require.NoError(t, err)
	require.False(t, migrated)

	require.NoError(t, c.SetCache(ctx, item, true, false))

	has, err = c.HasCache(ctx, item)
	require.NoError(t, err)
	require.True(t, has)

	need, err := c.NeedTranscode(ctx, item)
	require.NoError(t, err)
	require.True(t, need)

	migrated, err = c.IsMigrated(ctx, item)
	require.NoError(t, err)
	require.False(t, migrated, "SetCache must not touch migrated")

	require.NoError(t, c.SetMigrated(ctx, item))

	migrated, err = c.IsMigrated(ctx, item)
	require.NoError(t, err)
	require.True(t, migrated)

	require.NoError(t, c.UnsetCache(ctx, item))

	has, err = c.HasCache(ctx, item)
	require.NoError(t, err)
	require.False(t, has)
}

func TestNeedTranscodeWithoutRecord(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	item := model.FileItem{ID: "missing"}

	_, err := c.NeedTranscode(ctx, item)
	require.ErrorIs(t, err, cache.ErrNoRecord)
}

func TestSetMigratedWithoutPriorCache(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	item := model.FileItem{ID: "fresh"}

	require.NoError(t, c.SetMigrated(ctx, item))

	migrated, err := c.IsMigrated(ctx, item)
	require.NoError(t, err)
	require.True(t, migrated)

	need, err := c.NeedTranscode(ctx, item)
	require.NoError(t, err)
	require.False(t, need, "SetMigrated creates record with both bool fields true")
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), cache.FileName)
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	item := model.FileItem{ID: "persist"}

	c1, err := cache.Open(ctx, dbPath, logger)
	require.NoError(t, err)
	require.NoError(t, c1.SetCache(ctx, item, true, true))
	require.NoError(t, c1.SetMigrated(ctx, item))
	require.NoError(t, c1.Close())

	c2, err := cache.Open(ctx, dbPath, logger)
	require.NoError(t, err)
	defer c2.Close()

	migrated, err := c2.IsMigrated(ctx, item)
	require.NoError(t, err)
	require.True(t, migrated)
}
