package sink_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legnaleurc/faststart/internal/driveapi"
	"github.com/legnaleurc/faststart/internal/model"
	"github.com/legnaleurc/faststart/internal/sink"
)

type fixedToken struct{}

func (fixedToken) Token() (string, error) { return "tok", nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestLocalSinkStoreCopiesFile(t *testing.T) {
	srcDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "nested", "output")

	localPath := filepath.Join(srcDir, "result.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("bytes"), 0o644))

	s := sink.NewLocalSink(outDir, discardLogger())
	origin := model.FileItem{ID: "x", Name: "result.mp4"}

	stored, err := s.Store(context.Background(), localPath, origin, sink.MediaInfo{})
	require.NoError(t, err)
	require.Equal(t, origin, stored)

	got, err := os.ReadFile(filepath.Join(outDir, "result.mp4"))
	require.NoError(t, err)
	require.Equal(t, "bytes", string(got))

	used, err := s.QuotaUsed(context.Background())
	require.NoError(t, err)
	require.Zero(t, used)
}

// driveSinkFixture models a single remote item that the test drives through
// DriveSink's same-location store protocol: rename-hide, upload, verify,
// delete-origin. It tracks the item's current name and whatever was
// uploaded so assertions can check final state.
type driveSinkFixture struct {
	mu sync.Mutex

	name       string
	trashed    bool
	uploadedTo string
	failDelete bool
}

func newDriveSinkServer(t *testing.T, fx *driveSinkFixture, localHash string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	// The delta link is absolute, as the drive API emits it; the handler
	// below reads srv.URL once the server has started.
	var srv *httptest.Server

	mux.HandleFunc("/items/origin-id", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fx.mu.Lock()
			defer fx.mu.Unlock()

			writeJSON(w, map[string]any{
				"id":              "origin-id",
				"name":            fx.name,
				"parentReference": map[string]any{"id": "parent-id"},
				"file":            map[string]any{"mimeType": "video/mp4"},
			})
		case http.MethodPatch:
			var body struct {
				Name string `json:"name"`
			}

			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			fx.mu.Lock()
			fx.name = body.Name
			fx.mu.Unlock()

			writeJSON(w, map[string]any{"id": "origin-id", "name": body.Name})
		case http.MethodDelete:
			fx.mu.Lock()
			shouldFail := fx.failDelete
			if !shouldFail {
				fx.trashed = true
			}
			fx.mu.Unlock()

			if shouldFail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			w.WriteHeader(http.StatusNoContent)
		}
	})

	mux.HandleFunc("/root/delta", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"value": []any{}, "@odata.deltaLink": srv.URL + "/root/delta?token=next"})
	})

	mux.HandleFunc("/items/parent-id:/movie.mp4:/content", func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		fx.uploadedTo = "movie.mp4"
		fx.mu.Unlock()

		writeJSON(w, map[string]any{
			"id":   "new-id",
			"name": "movie.mp4",
			"size": 5,
			"file": map[string]any{"mimeType": "video/mp4", "hashes": map[string]any{"quickXorHash": localHash}},
		})
	})

	mux.HandleFunc("/items/new-id", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		writeJSON(w, map[string]any{
			"id":   "new-id",
			"name": "movie.mp4",
			"file": map[string]any{"mimeType": "video/mp4", "hashes": map[string]any{"quickXorHash": localHash}},
		})
	})

	srv = httptest.NewServer(mux)

	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestDriveSinkStoreSameLocationRenamesUploadsAndDeletesOrigin(t *testing.T) {
	localDir := t.TempDir()
	localPath := filepath.Join(localDir, "movie.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("hello"), 0o644))

	localHash, err := driveapi.ComputeQuickXorHash(localPath)
	require.NoError(t, err)

	fx := &driveSinkFixture{name: "movie.mp4"}

	srv := newDriveSinkServer(t, fx, localHash)
	defer srv.Close()

	client := driveapi.NewClient(srv.URL, srv.Client(), fixedToken{}, discardLogger())
	s := sink.NewDriveSink(client, true, discardLogger())

	origin := model.FileItem{ID: "origin-id", Name: "movie.mp4"}

	stored, err := s.Store(context.Background(), localPath, origin, sink.MediaInfo{VideoCodec: "h264", AudioCodec: "aac"})
	require.NoError(t, err)
	require.Equal(t, "new-id", stored.ID)

	fx.mu.Lock()
	defer fx.mu.Unlock()

	require.True(t, fx.trashed, "origin should have been trashed after successful verify")
	require.Equal(t, "movie.mp4", fx.uploadedTo)
}

func TestDriveSinkStoreSameLocationRestoresOnHashMismatch(t *testing.T) {
	localDir := t.TempDir()
	localPath := filepath.Join(localDir, "movie.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("hello"), 0o644))

	fx := &driveSinkFixture{name: "movie.mp4"}

	// Wrong hash forces a mismatch.
	srv := newDriveSinkServer(t, fx, "not-the-real-hash")
	defer srv.Close()

	client := driveapi.NewClient(srv.URL, srv.Client(), fixedToken{}, discardLogger())
	s := sink.NewDriveSink(client, true, discardLogger())

	origin := model.FileItem{ID: "origin-id", Name: "movie.mp4"}

	_, err := s.Store(context.Background(), localPath, origin, sink.MediaInfo{})
	require.ErrorIs(t, err, sink.ErrHashMismatch)

	fx.mu.Lock()
	defer fx.mu.Unlock()

	require.False(t, fx.trashed, "origin must not be trashed when verify fails")
	require.Equal(t, "movie.mp4", fx.name, "origin name must be restored after a failed verify")
}

func TestDriveSinkStoreSameLocationRestoresOnDeleteOriginFailure(t *testing.T) {
	localDir := t.TempDir()
	localPath := filepath.Join(localDir, "movie.mp4")
	require.NoError(t, os.WriteFile(localPath, []byte("hello"), 0o644))

	localHash, err := driveapi.ComputeQuickXorHash(localPath)
	require.NoError(t, err)

	fx := &driveSinkFixture{name: "movie.mp4", failDelete: true}

	srv := newDriveSinkServer(t, fx, localHash)
	defer srv.Close()

	client := driveapi.NewClient(srv.URL, srv.Client(), fixedToken{}, discardLogger())
	s := sink.NewDriveSink(client, true, discardLogger())

	origin := model.FileItem{ID: "origin-id", Name: "movie.mp4"}

	_, err = s.Store(context.Background(), localPath, origin, sink.MediaInfo{})
	require.Error(t, err)

	fx.mu.Lock()
	defer fx.mu.Unlock()

	require.False(t, fx.trashed, "origin must not be marked trashed when the delete call itself failed")
	require.Equal(t, "movie.mp4", fx.name, "origin name must be restored after upload+verify succeed but delete-origin fails")
}

func TestDailyQuotaBytesMatchesSpecBudget(t *testing.T) {
	require.Equal(t, int64(500*1024*1024*1024), int64(sink.DailyQuotaBytes))
}
