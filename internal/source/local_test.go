package source_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legnaleurc/faststart/internal/model"
	"github.com/legnaleurc/faststart/internal/source"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func collectWalk(ch <-chan source.WalkEntry) []source.WalkEntry {
	var entries []source.WalkEntry
	for e := range ch {
		entries = append(entries, e)
	}

	return entries
}

func TestLocalSourceWalkSingleFileRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	src := source.NewLocalSource(discardLogger())

	ch, err := src.Walk(context.Background(), []string{path})
	require.NoError(t, err)

	entries := collectWalk(ch)
	require.Len(t, entries, 1)
	require.NoError(t, entries[0].Err)
	require.Equal(t, "movie.mp4", entries[0].Item.Name)
	require.Equal(t, int64(len("content")), entries[0].Item.Size)
}

func TestLocalSourceWalkRecursesDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp4"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.mkv"), []byte("bb"), 0o644))

	src := source.NewLocalSource(discardLogger())

	ch, err := src.Walk(context.Background(), []string{dir})
	require.NoError(t, err)

	entries := collectWalk(ch)
	require.Len(t, entries, 2)

	names := map[string]int64{}
	for _, e := range entries {
		require.NoError(t, e.Err)
		names[e.Item.Name] = e.Item.Size
	}

	require.Equal(t, int64(1), names["a.mp4"])
	require.Equal(t, int64(2), names["b.mkv"])
}

func TestLocalSourceFetchCopiesBytes(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	path := filepath.Join(srcDir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	src := source.NewLocalSource(discardLogger())

	ch, err := src.Walk(context.Background(), []string{srcDir})
	require.NoError(t, err)

	entries := collectWalk(ch)
	require.Len(t, entries, 1)

	destPath, err := src.Fetch(context.Background(), entries[0].Item, destDir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(destDir, "clip.mp4"), destPath)

	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestLocalSourceFetchUnknownItemFails(t *testing.T) {
	src := source.NewLocalSource(discardLogger())

	_, err := src.Fetch(context.Background(), model.FileItem{ID: "never-walked", Name: "whatever.mp4"}, t.TempDir())
	require.Error(t, err)
}
