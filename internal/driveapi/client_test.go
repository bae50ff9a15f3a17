package driveapi_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legnaleurc/faststart/internal/driveapi"
)

type staticToken struct{ tok string }

func (s staticToken) Token() (string, error) { return s.tok, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestGetItemSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   "abc",
			"name": "movie.mp4",
			"size": 123,
			"file": map[string]any{"mimeType": "video/mp4"},
		})
	}))
	defer srv.Close()

	client := driveapi.NewClient(srv.URL, srv.Client(), staticToken{"tok"}, discardLogger())

	item, err := client.GetItem(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", item.ID)
	require.Equal(t, "video/mp4", item.MimeType)
	require.Equal(t, int64(123), item.Size)
}

func TestGetItemNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer srv.Close()

	client := driveapi.NewClient(srv.URL, srv.Client(), staticToken{"tok"}, discardLogger())

	_, err := client.GetItem(context.Background(), "missing")
	require.Error(t, err)
	require.ErrorIs(t, err, driveapi.ErrNotFound)
}

func TestGetItemByPathRejectsLeadingSlash(t *testing.T) {
	client := driveapi.NewClient("http://example.invalid", http.DefaultClient, staticToken{"tok"}, discardLogger())

	_, err := client.GetItemByPath(context.Background(), "/foo")
	require.ErrorIs(t, err, driveapi.ErrInvalidPath)

	_, err = client.GetItemByPath(context.Background(), "")
	require.ErrorIs(t, err, driveapi.ErrInvalidPath)
}

func TestMoveItemRequiresChange(t *testing.T) {
	client := driveapi.NewClient("http://example.invalid", http.DefaultClient, staticToken{"tok"}, discardLogger())

	_, err := client.MoveItem(context.Background(), "abc", "", "")
	require.ErrorIs(t, err, driveapi.ErrMoveNoChanges)
}

func TestRetriesOnServerErrorThenSucceeds(t *testing.T) {
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "abc", "name": "x"})
	}))
	defer srv.Close()

	client := driveapi.NewClient(srv.URL, srv.Client(), staticToken{"tok"}, discardLogger())

	item, err := client.GetItem(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", item.ID)
	require.Equal(t, 2, calls)
}
