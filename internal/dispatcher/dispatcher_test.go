package dispatcher_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legnaleurc/faststart/internal/cache"
	"github.com/legnaleurc/faststart/internal/dispatcher"
	"github.com/legnaleurc/faststart/internal/model"
	"github.com/legnaleurc/faststart/internal/probe"
	"github.com/legnaleurc/faststart/internal/processor"
	"github.com/legnaleurc/faststart/internal/sink"
	"github.com/legnaleurc/faststart/internal/source"
	"github.com/legnaleurc/faststart/internal/transcode"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// fakeCache is a minimal in-memory Cache shared by these tests.
type fakeCache struct {
	migrated map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{migrated: map[string]bool{}} }

func (c *fakeCache) IsMigrated(_ context.Context, item model.FileItem) (bool, error) {
	return c.migrated[item.ID], nil
}
func (c *fakeCache) HasCache(_ context.Context, _ model.FileItem) (bool, error)     { return false, nil }
func (c *fakeCache) NeedTranscode(_ context.Context, _ model.FileItem) (bool, error) { return false, nil }
func (c *fakeCache) SetCache(_ context.Context, _ model.FileItem, _, _ bool) error   { return nil }
func (c *fakeCache) SetMigrated(_ context.Context, item model.FileItem) error {
	c.migrated[item.ID] = true
	return nil
}
func (c *fakeCache) UnsetCache(_ context.Context, _ model.FileItem) error { return nil }
func (c *fakeCache) Close() error                                        { return nil }

var _ cache.Cache = (*fakeCache)(nil)

// fakeSource yields a fixed list of items once, then closes.
type fakeSource struct {
	items   []model.FileItem
	content []byte
}

func (s *fakeSource) Walk(_ context.Context, _ []string) (<-chan source.WalkEntry, error) {
	ch := make(chan source.WalkEntry, len(s.items))
	for _, it := range s.items {
		ch <- source.WalkEntry{Item: it}
	}
	close(ch)

	return ch, nil
}

func (s *fakeSource) Fetch(_ context.Context, item model.FileItem, destDir string) (string, error) {
	path := filepath.Join(destDir, item.Name)
	if err := os.WriteFile(path, s.content, 0o644); err != nil {
		return "", err
	}

	return path, nil
}

var _ source.Source = (*fakeSource)(nil)

type fakeSink struct{}

func (s *fakeSink) Store(_ context.Context, _ string, origin model.FileItem, _ sink.MediaInfo) (model.FileItem, error) {
	return origin, nil
}

func (s *fakeSink) QuotaUsed(_ context.Context) (int64, error) { return 0, nil }

var _ sink.Sink = (*fakeSink)(nil)

type fakeProbe struct{}

func (p *fakeProbe) Probe(_ context.Context, _ string) (probe.Result, error) {
	return probe.Result{IsFaststart: true, VideoCodec: "h264", AudioCodec: "aac", VideoCodecs: []string{"h264"}, AudioCodecs: []string{"aac"}}, nil
}

var _ probe.Probe = (*fakeProbe)(nil)

func TestDispatcherRunProcessesAllWalkedItems(t *testing.T) {
	c := newFakeCache()

	items := []model.FileItem{
		{ID: "a", Name: "a.mp4", MimeType: "video/mp4", Size: 1},
		{ID: "b", Name: "b.mp4", MimeType: "video/mp4", Size: 1},
		{ID: "c", Name: "c.txt", MimeType: "text/plain", Size: 1},
	}

	d := &dispatcher.Dispatcher{
		Roots:       []string{"/some/root"},
		Jobs:        2,
		ScratchRoot: t.TempDir(),
		Cache:       c,
		Source:      &fakeSource{items: items, content: []byte("bytes")},
		Sink:        &fakeSink{},
		Probe:       &fakeProbe{},
		Transcoder:  transcode.NewTranscoder("true", discardLogger()),
		Modes:       processor.Modes{},
		Logger:      discardLogger(),
	}

	err := d.Run(context.Background())
	require.NoError(t, err)

	migratedA, _ := c.IsMigrated(context.Background(), items[0])
	migratedB, _ := c.IsMigrated(context.Background(), items[1])
	require.True(t, migratedA)
	require.True(t, migratedB)
}

func TestDispatcherRunSkipsNonVideoMimeTypes(t *testing.T) {
	c := newFakeCache()

	items := []model.FileItem{
		{ID: "doc", Name: "readme.txt", MimeType: "text/plain", Size: 1},
	}

	d := &dispatcher.Dispatcher{
		Roots:       []string{"/some/root"},
		Jobs:        1,
		ScratchRoot: t.TempDir(),
		Cache:       c,
		Source:      &fakeSource{items: items},
		Sink:        &fakeSink{},
		Probe:       &fakeProbe{},
		Transcoder:  transcode.NewTranscoder("true", discardLogger()),
		Modes:       processor.Modes{},
		Logger:      discardLogger(),
	}

	err := d.Run(context.Background())
	require.NoError(t, err)

	migrated, _ := c.IsMigrated(context.Background(), items[0])
	require.False(t, migrated, "a non-video item must never reach the processor")
}

func TestDispatcherRunReturnsErrorWhenWalkFails(t *testing.T) {
	d := &dispatcher.Dispatcher{
		Roots:       []string{"/some/root"},
		Jobs:        1,
		ScratchRoot: t.TempDir(),
		Cache:       newFakeCache(),
		Source:      &failingWalkSource{},
		Sink:        &fakeSink{},
		Probe:       &fakeProbe{},
		Transcoder:  transcode.NewTranscoder("true", discardLogger()),
		Modes:       processor.Modes{},
		Logger:      discardLogger(),
	}

	err := d.Run(context.Background())
	require.Error(t, err)
}

type failingWalkSource struct{}

func (s *failingWalkSource) Walk(_ context.Context, _ []string) (<-chan source.WalkEntry, error) {
	return nil, os.ErrInvalid
}

func (s *failingWalkSource) Fetch(_ context.Context, _ model.FileItem, _ string) (string, error) {
	return "", os.ErrInvalid
}

var _ source.Source = (*failingWalkSource)(nil)
